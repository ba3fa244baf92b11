package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const fence = "```"

// scanner walks text once, left to right. The noFence flag records that no
// closing fence exists past the cursor so later openers skip the search.
type scanner struct {
	text     string
	emitWord func(word string, out []string) []string
	noFence  bool
}

func (s *scanner) run(out []string) []string {
	text := s.text
	i := 0
	for i < len(text) {
		c := text[i]
		if c == '`' {
			var ok bool
			if out, i, ok = s.code(out, i); ok {
				continue
			}
			i++
			continue
		}
		if (c == 'h' || c == 'H' || c == 'w' || c == 'W') && s.atBoundary(i) {
			if end := urlEnd(text, i); end > i {
				out = append(out, text[i:end])
				i = end
				continue
			}
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case IsCJK(r):
			out, i = s.cjk(out, i)
		case isWordRune(r):
			end := wordEnd(text, i)
			out = s.emitWord(text[i:end], out)
			i = end
		default:
			i += size
		}
	}
	return out
}

// code handles a fenced block or inline span opening at i. It reports false
// when the backticks at i open nothing, leaving the caller to skip them.
func (s *scanner) code(out []string, i int) ([]string, int, bool) {
	text := s.text
	if strings.HasPrefix(text[i:], fence) {
		if s.noFence {
			return out, i + len(fence), true
		}
		start := i + len(fence)
		rel := strings.Index(text[start:], fence)
		if rel < 0 {
			s.noFence = true
			return out, start, true
		}
		if body := strings.TrimSpace(text[start : start+rel]); body != "" {
			out = append(out, body)
		}
		return out, start + rel + len(fence), true
	}

	// Spans close on their own line. A failed search leaves no backtick
	// before the newline, so nothing is scanned twice.
	start := i + 1
	rel := strings.IndexAny(text[start:], "`\n")
	if rel < 0 || text[start+rel] == '\n' {
		return out, i, false
	}
	if body := strings.TrimSpace(text[start : start+rel]); body != "" {
		out = append(out, body)
	}
	return out, start + rel + 1, true
}

// cjk emits every CJK character of the run starting at i followed by the
// bigrams of adjacent characters.
func (s *scanner) cjk(out []string, i int) ([]string, int) {
	text := s.text
	runStart := len(out)
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !IsCJK(r) {
			break
		}
		out = append(out, text[i:i+size])
		i += size
	}
	runEnd := len(out)
	for k := runStart + 1; k < runEnd; k++ {
		out = append(out, out[k-1]+out[k])
	}
	return out, i
}

func (s *scanner) atBoundary(i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s.text[:i])
	return !isWordRune(r) && !isConnector(r)
}

// wordEnd returns the end of the word starting at i. Connectors are kept only
// when a word rune follows them.
func wordEnd(text string, i int) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if isWordRune(r) {
			i += size
			continue
		}
		if isConnector(r) && i+size < len(text) {
			next, _ := utf8.DecodeRuneInString(text[i+size:])
			if isWordRune(next) {
				i += size
				continue
			}
		}
		break
	}
	return i
}

var urlPrefixes = []string{"https://", "http://", "www."}

// urlEnd returns the end of a URL starting at i, or i when none starts there.
func urlEnd(text string, i int) int {
	rest := text[i:]
	prefix := 0
	for _, p := range urlPrefixes {
		if len(rest) > len(p) && strings.EqualFold(rest[:len(p)], p) {
			prefix = len(p)
			break
		}
	}
	if prefix == 0 {
		return i
	}
	end := i
	for end < len(text) {
		r, size := utf8.DecodeRuneInString(text[end:])
		if unicode.IsSpace(r) || strings.ContainsRune(`<>"'()[]{}`, r) {
			break
		}
		end += size
	}
	for end > i && strings.ContainsRune(".,;:!?", rune(text[end-1])) {
		end--
	}
	if end <= i+prefix {
		return i
	}
	return end
}
