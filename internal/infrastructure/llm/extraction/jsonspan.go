package extraction

// extractJSONSpan isolates the first syntactically balanced JSON value from
// a reply that may wrap it in explanatory prose or markdown fencing. It
// scans from the first opening bracket and counts nesting depth, skipping
// string literals and escapes, until the matching close. found is false when
// the text contains no JSON-opening character at all.
func extractJSONSpan(text string) (span string, found bool) {
	start := -1
	for i, r := range text {
		if r == '{' || r == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	// Unbalanced: return the open span so the parse step can report it.
	return text[start:], true
}
