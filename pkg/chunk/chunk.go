package chunk

import "unicode/utf8"

// Split cuts text into chunks of at most maxLen bytes.
//
// A chunk ends at the last newline at or before index maxLen of the remaining
// text; that newline is consumed. When no such newline exists past the first
// byte, the text is hard cut at maxLen, backed off to the nearest rune start
// so multi-byte characters stay intact. A remaining tail that already fits is
// returned as-is.
//
// maxLen < 1 is treated as 1. Every iteration consumes at least one byte, so
// Split always terminates.
func Split(text string, maxLen int) []string {
	if maxLen < 1 {
		maxLen = 1
	}
	if text == "" {
		return nil
	}

	chunks := make([]string, 0, len(text)/maxLen+1)
	rest := text
	for len(rest) > 0 {
		if len(rest) <= maxLen {
			chunks = append(chunks, rest)
			break
		}

		if p := lastNewline(rest, maxLen); p > 0 {
			chunks = append(chunks, rest[:p])
			rest = rest[p+1:]
			continue
		}

		cut := runeBoundary(rest, maxLen)
		chunks = append(chunks, rest[:cut])
		rest = rest[cut:]
	}
	return chunks
}

// lastNewline returns the index of the last '\n' in s[0:limit+1], or 0 when
// none is found after index 0. Callers guarantee len(s) > limit.
func lastNewline(s string, limit int) int {
	for i := limit; i > 0; i-- {
		if s[i] == '\n' {
			return i
		}
	}
	return 0
}

// runeBoundary returns the largest cut <= limit that does not split a UTF-8
// sequence. If the first rune alone is wider than limit, limit is returned
// so the caller still makes progress.
func runeBoundary(s string, limit int) int {
	for cut := limit; cut > 0; cut-- {
		if utf8.RuneStart(s[cut]) {
			return cut
		}
	}
	return limit
}
