package netutil

import (
	"context"
	"errors"
	"net"
	"net/url"
	"syscall"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyAndRetry(t *testing.T) {
	dial := &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}}
	dns := &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: &net.DNSError{Name: "api.telegram.org", Err: "no such host"}}
	timeout := &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: timeoutErr{}}
	reset := &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}}

	tests := []struct {
		name      string
		err       error
		class     string
		retry     bool
		notSent   bool
	}{
		{name: "nil", err: nil},
		{name: "dial refused", err: dial, class: "dial", retry: true, notSent: true},
		{name: "dns", err: dns, class: "dns", notSent: true},
		{name: "timeout", err: timeout, class: "timeout", retry: true},
		{name: "reset after send", err: reset, retry: true},
		{name: "cancelled", err: context.Canceled, class: "cancelled"},
		{name: "deadline", err: context.DeadlineExceeded, class: "timeout", retry: true},
		{name: "plain", err: errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.class {
				t.Errorf("Classify = %q, want %q", got, tt.class)
			}
			if got := ShouldRetry(tt.err); got != tt.retry {
				t.Errorf("ShouldRetry = %v, want %v", got, tt.retry)
			}
			if got := NotSent(tt.err); got != tt.notSent {
				t.Errorf("NotSent = %v, want %v", got, tt.notSent)
			}
		})
	}
}
