// Package quiz turns a user-supplied JSON document into quiz questions.
//
// The accepted shape is
//
//	{"all_q": [{"q": "...", "o": ["a", "b"], "c": 0, "e": "..."}]}
//
// where q is the question, o the options, c the zero-based correct index
// and e an optional explanation.
package quiz

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Limits applied while parsing.
const (
	DefaultMaxQuestions = 25
	MinOptions          = 2
	MaxOptions          = 10
)

var (
	// ErrMalformed reports a document that is not a JSON object with an all_q array.
	ErrMalformed = errors.New("quiz: malformed submission")
	// ErrNoQuestions reports a well-formed document without questions.
	ErrNoQuestions = errors.New("quiz: no questions")
)

// Question is one normalized entry. Index is its position in all_q.
type Question struct {
	Index       int
	Text        string
	Options     []string
	Correct     int
	Explanation string
}

// Submission is the result of Parse.
type Submission struct {
	Questions []Question
	// Skipped holds all_q positions rejected for shape or too few options.
	Skipped []int
	// Dropped counts entries beyond the question cap.
	Dropped int
}

// LooksLikeSubmission reports whether text should be treated as a quiz
// document rather than chat.
func LooksLikeSubmission(text string) bool {
	t := strings.TrimSpace(text)
	return strings.HasPrefix(t, "{") || strings.Contains(t, `"all_q"`)
}

// Parse decodes text and normalizes up to maxQuestions entries.
// A non-positive maxQuestions selects DefaultMaxQuestions.
func Parse(text string, maxQuestions int) (Submission, error) {
	if maxQuestions <= 0 {
		maxQuestions = DefaultMaxQuestions
	}
	raw := bytes.TrimSpace([]byte(text))
	if len(raw) == 0 || raw[0] != '{' {
		return Submission{}, fmt.Errorf("%w: top level is not an object", ErrMalformed)
	}

	var doc struct {
		AllQ json.RawMessage `json:"all_q"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Submission{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(doc.AllQ) == 0 || string(doc.AllQ) == "null" {
		return Submission{}, ErrNoQuestions
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(doc.AllQ, &entries); err != nil {
		return Submission{}, fmt.Errorf("%w: all_q is not an array", ErrMalformed)
	}
	if len(entries) == 0 {
		return Submission{}, ErrNoQuestions
	}

	var sub Submission
	if len(entries) > maxQuestions {
		sub.Dropped = len(entries) - maxQuestions
		entries = entries[:maxQuestions]
	}
	for i, entry := range entries {
		q, ok := parseQuestion(i, entry)
		if !ok {
			sub.Skipped = append(sub.Skipped, i)
			continue
		}
		sub.Questions = append(sub.Questions, q)
	}
	return sub, nil
}

func parseQuestion(index int, entry json.RawMessage) (Question, bool) {
	entry = bytes.TrimSpace(entry)
	if len(entry) == 0 || entry[0] != '{' {
		return Question{}, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(entry, &fields); err != nil {
		return Question{}, false
	}

	var rawOpts []json.RawMessage
	if err := json.Unmarshal(fields["o"], &rawOpts); err != nil || len(rawOpts) < MinOptions {
		return Question{}, false
	}
	if len(rawOpts) > MaxOptions {
		rawOpts = rawOpts[:MaxOptions]
	}
	opts := make([]string, len(rawOpts))
	for i, o := range rawOpts {
		opts[i] = strings.TrimSpace(scalarText(o))
		if opts[i] == "" {
			opts[i] = fmt.Sprintf("Option %d", i+1)
		}
	}

	text := strings.TrimSpace(scalarText(fields["q"]))
	if text == "" {
		text = fmt.Sprintf("Question %d", index+1)
	}

	return Question{
		Index:       index,
		Text:        text,
		Options:     opts,
		Correct:     correctIndex(fields["c"], len(opts)),
		Explanation: strings.TrimSpace(scalarText(fields["e"])),
	}, true
}

// correctIndex returns c when it is an integer literal within [0, n),
// otherwise 0. Strings are not numbers even when they spell one.
func correctIndex(raw json.RawMessage, n int) int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' {
		return 0
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return 0
	}
	c, err := num.Int64()
	if err != nil || c < 0 || c >= int64(n) {
		return 0
	}
	return int(c)
}

// scalarText renders a JSON value as display text: strings are unquoted,
// null is empty and anything else keeps its compact JSON form.
func scalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
