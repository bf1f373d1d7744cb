// Package llm contains helpers for consuming language-model output,
// which routinely arrives wrapped in markdown fences or mildly malformed.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"
)

// ExtractJSON pulls a JSON object out of raw model output. It tries the
// cheap paths first and escalates to structural repair only when needed:
//  1. the raw text parses as-is
//  2. text inside a ```json fence parses
//  3. the first balanced {...} block parses
//  4. jsonrepair fixes trailing commas, single quotes, truncation
func ExtractJSON(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("empty model output")
	}

	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	if fenced := extractFenced(trimmed); fenced != "" && json.Valid([]byte(fenced)) {
		return fenced, nil
	}

	candidate := firstObject(trimmed)
	if candidate == "" {
		candidate = trimmed
	}
	if json.Valid([]byte(candidate)) {
		return candidate, nil
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return "", fmt.Errorf("repairing model output: %w", err)
	}
	if !json.Valid([]byte(repaired)) {
		return "", fmt.Errorf("model output unrecoverable as JSON")
	}

	log.Debug().
		Int("raw_len", len(raw)).
		Int("repaired_len", len(repaired)).
		Msg("repaired malformed model JSON")

	return repaired, nil
}

// extractFenced returns the body of the first markdown code fence, or "".
func extractFenced(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return ""
	}
	rest := s[start+3:]
	// Skip an optional language tag on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine == "json" || firstLine == "" {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

// firstObject returns the first balanced top-level {...} block, or "".
// Brace counting ignores braces inside string literals.
func firstObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
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
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	// Unbalanced; hand the tail to the repairer.
	return s[start:]
}
