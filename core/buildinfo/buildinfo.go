package buildinfo

import "runtime"

// These variables are intended to be set via -ldflags at build time:
//
//	-X 'github.com/m3rciful/quizbot/core/buildinfo.Version=v1.2.3'
//	-X 'github.com/m3rciful/quizbot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/quizbot/core/buildinfo.Date=2025-08-30T12:00:00Z'
//
// Default values are useful for local dev.
var (
	// Version reports the semantic version or tag of the build.
	Version = "dev"
	// Commit reports the source control commit used for the build.
	Commit = "local"
	// Date reports the build timestamp in RFC3339 format.
	Date = ""
)

// Info is the build metadata exposed by diagnostic endpoints.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date,omitempty"`
	GoVersion string `json:"go_version"`
}

// Current returns the build metadata of the running binary.
func Current() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
	}
}
