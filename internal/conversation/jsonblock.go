package conversation

import "strings"

// extractJSONBlock locates the first balanced {...} block in free-form model
// output. Models often wrap the requested JSON in prose or code fences, so
// the judges decode whatever balanced block appears first and fall back to
// their neutral defaults when nothing decodable is present.
func extractJSONBlock(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}
