package reply

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Ellipsis marks a reply that was cut mid-sentence.
const Ellipsis = "..."

// Truncate caps text at maxWords words. A reply within budget is returned
// unchanged. Otherwise the first maxWords words are kept and cut back to the
// last sentence terminator ('.', '!' or '?') followed by whitespace; when no
// such boundary exists the kept words get Ellipsis appended.
// maxWords <= 0 disables truncation.
func Truncate(text string, maxWords int) string {
	if maxWords <= 0 {
		return text
	}
	end, over := wordCutOffset(text, maxWords)
	if !over {
		return text
	}
	head := text[:end]
	if cut := lastSentenceEnd(head); cut > 0 {
		return head[:cut]
	}
	return strings.TrimRightFunc(head, unicode.IsSpace) + Ellipsis
}

// WordCount counts whitespace separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// wordCutOffset returns the byte offset just past the n-th word and whether
// text holds more than n words.
func wordCutOffset(text string, n int) (int, bool) {
	words := 0
	inWord := false
	end := 0
	for i, r := range text {
		if unicode.IsSpace(r) {
			if inWord {
				inWord = false
				if words == n {
					end = i
				}
			}
			continue
		}
		if !inWord {
			inWord = true
			words++
			if words > n {
				return end, true
			}
		}
	}
	return len(text), false
}

// lastSentenceEnd returns the offset just past the last terminator that is
// followed by whitespace or sits at the very end of head, or 0.
func lastSentenceEnd(head string) int {
	for i := len(head); i > 0; {
		r, size := utf8.DecodeLastRuneInString(head[:i])
		i -= size
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		after := i + size
		if after == len(head) {
			return after
		}
		next, _ := utf8.DecodeRuneInString(head[after:])
		if unicode.IsSpace(next) {
			return after
		}
	}
	return 0
}
