// Package jsonrepair implements the §7 JSON-repair ladder: when an LLM
// response cannot be parsed directly as JSON, attempt, in order —
//
//  1. strip common pre/suffix markers (code fences, leading prose);
//  2. extract a balanced '{...}' or '[...]' block starting at the first
//     opening bracket;
//  3. replace single-quoted keys/values with double quotes;
//  4. strip trailing commas before a closing bracket.
//
// The first variant that parses as valid JSON is accepted. Used both by
// the inbound LLM-response parser (C3's entry point) and by C10's
// LLM-repair path, grounded on the guardrails/validation middleware's
// auto-correction behavior (original_source/core/llm/guardrails_middleware.py,
// validation_middleware.py).
package jsonrepair

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	codeFenceRE    = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	trailingCommaRE = regexp.MustCompile(`,\s*([}\]])`)
	singleQuotedRE  = regexp.MustCompile(`'([^'\\]*(?:\\.[^'\\]*)*)'`)
)

// Repair attempts to parse raw as JSON, applying the repair ladder until
// one variant succeeds. It returns the parsed value and the variant of
// raw that actually parsed (for logging/debugging), or an error if every
// step fails.
func Repair(raw string) (interface{}, string, error) {
	candidates := []string{raw}
	candidates = append(candidates, stripMarkers(raw))

	if extracted, ok := extractBalanced(raw); ok {
		candidates = append(candidates, extracted)
		candidates = append(candidates, stripMarkers(extracted))
	}

	var lastErr error
	for _, c := range candidates {
		for _, variant := range []string{c, singleToDoubleQuotes(c), stripTrailingCommas(c), stripTrailingCommas(singleToDoubleQuotes(c))} {
			var v interface{}
			if err := json.Unmarshal([]byte(variant), &v); err == nil {
				return v, variant, nil
			} else {
				lastErr = err
			}
		}
	}
	return nil, "", lastErr
}

// stripMarkers removes markdown code fences and leading/trailing prose
// outside them, returning the fenced body if present.
func stripMarkers(s string) string {
	if m := codeFenceRE.FindStringSubmatch(s); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// extractBalanced finds the first '{' or '[' and returns the substring up
// to its matching closing bracket, tracking string literals so brackets
// inside quoted values don't confuse the depth count.
func extractBalanced(s string) (string, bool) {
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
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func singleToDoubleQuotes(s string) string {
	return singleQuotedRE.ReplaceAllStringFunc(s, func(m string) string {
		inner := m[1 : len(m)-1]
		inner = strings.ReplaceAll(inner, `"`, `\"`)
		return `"` + inner + `"`
	})
}

func stripTrailingCommas(s string) string {
	return trailingCommaRE.ReplaceAllString(s, "$1")
}
