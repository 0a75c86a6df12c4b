// Package jsonx implements the tolerant-parse step every Analysis Agent
// uses (spec section 4.3 step 4): strip markdown code fences, extract the
// first JSON object, then run the teacher's Draft-Validate-Fix cascade
// (raw unmarshal -> json-repair -> hjson) adapted from
// pkg/core/utils/json_validator.go.
package jsonx

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

var fenceRe = regexp.MustCompile("(?s)```(?:json|hjson)?\\s*(.*?)\\s*```")

// StripFences removes a leading/trailing markdown code fence if present.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// FirstJSONObject extracts the first balanced {...} or [...] substring,
// tolerating surrounding prose the LLM may have emitted around the JSON.
func FirstJSONObject(s string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			open = s[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start == -1 {
		return s
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}

// NumberToString coerces a decoded `any` field back to a string, for the
// case where an LLM emits a bare number where the target schema expects a
// string.
func NumberToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// SmartParseInto runs the tolerant extraction + Draft-Validate-Fix cascade
// and unmarshals the result into out. On failure, out may already hold
// fields set by an unmarshal attempt that failed partway.
func SmartParseInto(raw string, out any) error {
	candidate := FirstJSONObject(StripFences(raw))

	if err := json.Unmarshal([]byte(candidate), out); err == nil {
		return nil
	}

	if repaired, err := jsonrepair.RepairJSON(candidate); err == nil {
		if err := json.Unmarshal([]byte(repaired), out); err == nil {
			return nil
		}
	}

	var hj any
	if err := hjson.Unmarshal([]byte(candidate), &hj); err == nil {
		if jb, err := json.Marshal(hj); err == nil {
			if err := json.Unmarshal(jb, out); err == nil {
				return nil
			}
		}
	}

	return fmt.Errorf("jsonx: all parsing strategies failed for LLM output")
}
