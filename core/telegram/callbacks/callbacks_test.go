package callbacks

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		data, key, payload string
	}{
		{data: "anon_true", key: "anon_true"},
		{data: "\fanon_false", key: "anon_false"},
		{data: "\fpage|42", key: "page", payload: "42"},
		{data: " spaced |x|y", key: "spaced", payload: "x|y"},
		{data: "", key: ""},
	}
	for _, tt := range tests {
		key, payload := Parse(tt.data)
		if key != tt.key || payload != tt.payload {
			t.Errorf("Parse(%q) = (%q, %q), want (%q, %q)", tt.data, key, payload, tt.key, tt.payload)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	data := Encode("page", "7")
	n, err := PayloadInt64(data)
	if err != nil || n != 7 || Key(data) != "page" {
		t.Fatalf("round trip failed: key=%q n=%d err=%v", Key(data), n, err)
	}
	if Encode("x", "") != "\fx" {
		t.Fatalf("unexpected encoding %q", Encode("x", ""))
	}
}
