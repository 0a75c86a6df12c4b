package jsonx

import "testing"

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"{\"a\":1}":               `{"a":1}`,
		"```\n[1,2,3]\n```":       `[1,2,3]`,
	}
	for in, want := range cases {
		if got := StripFences(in); got != want {
			t.Errorf("StripFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFirstJSONObject(t *testing.T) {
	in := `Here is the result:

{"a": 1, "b": "contains } and { braces in a string"}

Hope that helps!`
	want := `{"a": 1, "b": "contains } and { braces in a string"}`
	if got := FirstJSONObject(in); got != want {
		t.Errorf("FirstJSONObject = %q, want %q", got, want)
	}
}

func TestFirstJSONObject_Array(t *testing.T) {
	in := "prefix [1, [2, 3], 4] suffix"
	want := "[1, [2, 3], 4]"
	if got := FirstJSONObject(in); got != want {
		t.Errorf("FirstJSONObject = %q, want %q", got, want)
	}
}

func TestNumberToString(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"already a string", "already a string"},
		{float64(2024), "2024"},
		{float64(3.5), "3.5"},
	}
	for _, c := range cases {
		if got := NumberToString(c.in); got != c.want {
			t.Errorf("NumberToString(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSmartParseInto_RawJSON(t *testing.T) {
	var out struct {
		A int `json:"a"`
	}
	if err := SmartParseInto(`{"a": 7}`, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.A != 7 {
		t.Errorf("expected a=7, got %d", out.A)
	}
}

func TestSmartParseInto_FencedWithProse(t *testing.T) {
	var out struct {
		A int `json:"a"`
	}
	raw := "Sure, here's the JSON:\n```json\n{\"a\": 9}\n```\nLet me know if you need anything else."
	if err := SmartParseInto(raw, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.A != 9 {
		t.Errorf("expected a=9, got %d", out.A)
	}
}

func TestSmartParseInto_TrailingComma(t *testing.T) {
	var out struct {
		A int `json:"a"`
		B int `json:"b"`
	}
	// A raw json.Unmarshal would reject the trailing comma; this exercises
	// the repair/hjson fallback tiers.
	if err := SmartParseInto(`{"a": 1, "b": 2,}`, &out); err != nil {
		t.Fatalf("expected repair cascade to recover from trailing comma: %v", err)
	}
	if out.A != 1 || out.B != 2 {
		t.Errorf("expected a=1, b=2, got %+v", out)
	}
}

func TestSmartParseInto_Unrecoverable(t *testing.T) {
	var out struct{}
	if err := SmartParseInto("this is not JSON at all, just prose.", &out); err == nil {
		t.Fatal("expected an error for unrecoverable input")
	}
}
