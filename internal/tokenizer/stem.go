package tokenizer

import "strings"

// stemLight strips common English inflections. It handles plurals first,
// then -ing/-ed with consonant undoubling, then -ly. It is deliberately
// conservative: a stem shorter than three characters is never produced.
func stemLight(word string) string {
	word = stemPlural(word)
	word = stemVerb(word)
	if strings.HasSuffix(word, "ly") && len(word) > 5 {
		word = word[:len(word)-2]
	}
	return word
}

func stemPlural(word string) string {
	n := len(word)
	switch {
	case strings.HasSuffix(word, "ies") && n > 4:
		return word[:n-3] + "y"
	case strings.HasSuffix(word, "sses"):
		return word[:n-2]
	case strings.HasSuffix(word, "ss"), strings.HasSuffix(word, "us"), strings.HasSuffix(word, "is"):
		return word
	case strings.HasSuffix(word, "es") && n > 4:
		base := word[:n-2]
		if strings.HasSuffix(base, "s") || strings.HasSuffix(base, "x") || strings.HasSuffix(base, "z") ||
			strings.HasSuffix(base, "ch") || strings.HasSuffix(base, "sh") {
			return base
		}
		return word[:n-1]
	case strings.HasSuffix(word, "s") && n > 3:
		return word[:n-1]
	}
	return word
}

func stemVerb(word string) string {
	for _, suffix := range []string{"ing", "ed"} {
		if !strings.HasSuffix(word, suffix) {
			continue
		}
		base := word[:len(word)-len(suffix)]
		if len(base) < 3 || !hasVowel(base) {
			return word
		}
		return undouble(base)
	}
	return word
}

// undouble turns "runn" into "run" but leaves "fall", "miss" and "buzz".
func undouble(base string) string {
	n := len(base)
	if n < 4 {
		return base
	}
	last := base[n-1]
	if last != base[n-2] || isVowel(last) {
		return base
	}
	switch last {
	case 'l', 's', 'z':
		return base
	}
	return base[:n-1]
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u', 'y':
		return true
	}
	return false
}

func hasVowel(s string) bool {
	for i := 0; i < len(s); i++ {
		if isVowel(s[i]) {
			return true
		}
	}
	return false
}
