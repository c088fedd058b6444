package pipeline

import "strings"

// cutSentence finds the first complete sentence in s: a '.', '!' or '?'
// followed by whitespace. It returns the sentence (trimmed, terminator
// included), the remainder after the whitespace, and whether a boundary was
// found. A terminator at the very end of s does not count; the text may still
// grow ("3." could become "3.14").
func cutSentence(s string) (sentence, rest string, ok bool) {
	for i := 0; i+1 < len(s); i++ {
		c := s[i]
		if (c == '.' || c == '!' || c == '?') && isSpace(s[i+1]) {
			sentence = strings.TrimSpace(s[:i+1])
			rest = strings.TrimLeft(s[i+1:], " \n\r\t")
			if hasWords(sentence) {
				return sentence, rest, true
			}
			// Stray terminator with no words; drop it and keep scanning.
			return cutSentence(rest)
		}
	}
	return "", s, false
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\r' || b == '\t'
}

// hasWords reports whether s contains anything besides terminators and
// whitespace.
func hasWords(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.', '!', '?', ' ', '\n', '\r', '\t':
		default:
			return true
		}
	}
	return false
}
