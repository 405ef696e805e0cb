package quiz

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestParseTemplate(t *testing.T) {
	sub, err := Parse(Template, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(sub.Questions) != 4 || len(sub.Skipped) != 0 {
		t.Fatalf("questions=%d skipped=%v", len(sub.Questions), sub.Skipped)
	}
	if sub.Questions[1].Correct != 1 || sub.Questions[3].Options[0] != "JavaScript" {
		t.Fatalf("unexpected question: %+v", sub.Questions[1])
	}
}

func TestParseSkipsSingleOptionQuestion(t *testing.T) {
	doc := `{"all_q":[
		{"q":"one","o":["a","b"],"c":1},
		{"q":"two","o":["a","b","c"],"c":2},
		{"q":"three","o":["only"],"c":0},
		{"q":"four","o":["x","y"]}
	]}`
	sub, err := Parse(doc, 25)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(sub.Questions) != 3 {
		t.Fatalf("questions = %d, want 3", len(sub.Questions))
	}
	if !reflect.DeepEqual(sub.Skipped, []int{2}) {
		t.Fatalf("skipped = %v, want [2]", sub.Skipped)
	}
	if sub.Questions[2].Index != 3 || sub.Questions[2].Text != "four" {
		t.Fatalf("index not preserved: %+v", sub.Questions[2])
	}
}

func TestParseCoercesCorrectIndex(t *testing.T) {
	tests := []struct {
		name string
		c    string
		want int
	}{
		{name: "out of range", c: `99`, want: 0},
		{name: "negative", c: `-1`, want: 0},
		{name: "fraction", c: `1.5`, want: 0},
		{name: "text", c: `"second"`, want: 0},
		{name: "quoted number", c: `"2"`, want: 0},
		{name: "quoted index", c: `"1"`, want: 0},
		{name: "valid", c: `1`, want: 1},
		{name: "null", c: `null`, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := fmt.Sprintf(`{"all_q":[{"q":"q","o":["a","b","c"],"c":%s}]}`, tt.c)
			sub, err := Parse(doc, 25)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got := sub.Questions[0].Correct; got != tt.want {
				t.Fatalf("correct = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{name: "not json", doc: `{"all_q": [`, want: ErrMalformed},
		{name: "array top level", doc: `[{"all_q":[]}]`, want: ErrMalformed},
		{name: "text mentioning all_q", doc: `please parse "all_q"`, want: ErrMalformed},
		{name: "all_q object", doc: `{"all_q":{"q":"x"}}`, want: ErrMalformed},
		{name: "trailing garbage", doc: `{"all_q":[]} extra`, want: ErrMalformed},
		{name: "missing all_q", doc: `{"questions":[]}`, want: ErrNoQuestions},
		{name: "empty all_q", doc: `{"all_q":[]}`, want: ErrNoQuestions},
		{name: "null all_q", doc: `{"all_q":null}`, want: ErrNoQuestions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.doc, 25); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseNormalizesEntries(t *testing.T) {
	doc := `{"all_q":[
		"not an object",
		{"o":["a","b"]},
		{"q":"  ","o":[1, true, null, {"k":"v"}],"e":"  why  "},
		{"q":"no options"},
		{"q":"opts not array","o":"a,b"}
	]}`
	sub, err := Parse(doc, 25)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(sub.Skipped, []int{0, 3, 4}) {
		t.Fatalf("skipped = %v", sub.Skipped)
	}
	if sub.Questions[0].Text != "Question 2" || sub.Questions[1].Text != "Question 3" {
		t.Fatalf("placeholders = %q, %q", sub.Questions[0].Text, sub.Questions[1].Text)
	}
	wantOpts := []string{"1", "true", "Option 3", `{"k":"v"}`}
	if !reflect.DeepEqual(sub.Questions[1].Options, wantOpts) {
		t.Fatalf("options = %q", sub.Questions[1].Options)
	}
	if sub.Questions[1].Explanation != "why" {
		t.Fatalf("explanation = %q", sub.Questions[1].Explanation)
	}
}

func TestParseCapsQuestionsAndOptions(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"all_q":[`)
	for i := 0; i < 30; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`{"q":"q","o":["1","2","3","4","5","6","7","8","9","10","11","12"],"c":11}`)
	}
	b.WriteString(`]}`)

	sub, err := Parse(b.String(), 25)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(sub.Questions) != 25 || sub.Dropped != 5 {
		t.Fatalf("questions=%d dropped=%d", len(sub.Questions), sub.Dropped)
	}
	q := sub.Questions[0]
	if len(q.Options) != MaxOptions || q.Correct != 0 {
		t.Fatalf("options=%d correct=%d", len(q.Options), q.Correct)
	}
}

func TestLooksLikeSubmission(t *testing.T) {
	for text, want := range map[string]bool{
		` {"all_q":[]}`:        true,
		`here: "all_q": [...]`: true,
		`hello`:                false,
		`/start`:               false,
	} {
		if got := LooksLikeSubmission(text); got != want {
			t.Errorf("LooksLikeSubmission(%q) = %v, want %v", text, got, want)
		}
	}
}
