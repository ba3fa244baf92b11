// Package tokenizer normalises raw document text into a stream of terms.
// It lower-cases input, expands contractions, keeps code spans, URLs and
// file names intact, splits CJK runs into characters and bigrams, removes
// stop-words and applies a light suffix stemmer.
//
// The scanner is a single forward pass: every step advances the cursor and
// delimiter searches never rescan text already known to hold no closing
// delimiter, so run time stays linear on adversarial input.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	snowballeng "github.com/kljensen/snowball/english"
	"golang.org/x/text/unicode/norm"
)

// Stemmer selects the suffix-stripping strategy.
type Stemmer string

const (
	StemLight    Stemmer = "light"
	StemSnowball Stemmer = "snowball"
	StemNone     Stemmer = "none"
)

// Config controls token filtering.
type Config struct {
	// MinTokenLength is the minimum rune count for a word token. Shorter
	// words are dropped. CJK tokens, code spans and URLs are exempt.
	MinTokenLength int
	Stemmer        Stemmer
}

func DefaultConfig() Config {
	return Config{
		MinTokenLength: 3,
		Stemmer:        StemLight,
	}
}

// Tokenizer is safe for concurrent use; it holds no mutable state.
type Tokenizer struct {
	cfg Config
}

func New(cfg Config) *Tokenizer {
	if cfg.MinTokenLength <= 0 {
		cfg.MinTokenLength = DefaultConfig().MinTokenLength
	}
	if cfg.Stemmer == "" {
		cfg.Stemmer = StemLight
	}
	return &Tokenizer{cfg: cfg}
}

var defaultTokenizer = New(DefaultConfig())

// Tokenize returns the normalised token stream of text joined by single
// spaces, using the default configuration.
func Tokenize(text string) string {
	return defaultTokenizer.Tokenize(text)
}

// Tokens returns the normalised tokens of text using the default
// configuration.
func Tokens(text string) []string {
	return defaultTokenizer.Tokens(text)
}

func (t *Tokenizer) Tokenize(text string) string {
	return strings.Join(t.Tokens(text), " ")
}

// Tokens returns the normalised tokens of text in document order. Code spans
// and URLs are returned verbatim and may contain characters other tokens
// never do.
func (t *Tokenizer) Tokens(text string) []string {
	if text == "" {
		return nil
	}
	text = norm.NFKC.String(text)
	s := scanner{
		text: text,
		emitWord: func(word string, out []string) []string {
			return t.appendWord(out, word)
		},
	}
	return s.run(make([]string, 0, len(text)/6))
}

// appendWord lower-cases, expands, filters and stems a raw word.
func (t *Tokenizer) appendWord(out []string, raw string) []string {
	word := strings.ToLower(raw)
	if isFilename(word) {
		if utf8.RuneCountInString(word) >= t.cfg.MinTokenLength {
			out = append(out, word)
		}
		return out
	}
	for _, part := range expandContraction(word) {
		for _, piece := range strings.FieldsFunc(part, isInnerSeparator) {
			if _, stop := stopWords[piece]; stop {
				continue
			}
			if utf8.RuneCountInString(piece) < t.cfg.MinTokenLength {
				continue
			}
			stemmed := t.stem(piece)
			if stemmed == "" {
				continue
			}
			out = append(out, stemmed)
		}
	}
	return out
}

func (t *Tokenizer) stem(word string) string {
	switch t.cfg.Stemmer {
	case StemNone:
		return word
	case StemSnowball:
		return snowballeng.Stem(word, false)
	default:
		return stemLight(word)
	}
}

// isInnerSeparator splits dotted and hyphenated words that are not file
// names. Underscores stay, so identifiers survive as one token.
func isInnerSeparator(r rune) bool {
	return r == '.' || r == '-' || r == '\'' || r == '’'
}

// IsCJK reports whether r belongs to a Chinese, Japanese or Korean script
// range that is segmented per character.
func IsCJK(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF: // CJK unified ideographs
		return true
	case r >= 0x3400 && r <= 0x4DBF: // extension A
		return true
	case r >= 0x3040 && r <= 0x30FF: // hiragana, katakana
		return true
	case r >= 0xAC00 && r <= 0xD7AF: // hangul syllables
		return true
	case r >= 0x1100 && r <= 0x11FF: // hangul jamo
		return true
	case r >= 0xF900 && r <= 0xFAFF: // compatibility ideographs
		return true
	case r >= 0x20000 && r <= 0x2A6DF: // extension B
		return true
	}
	return false
}

// IsCJKToken reports whether the first rune of token is CJK.
func IsCJKToken(token string) bool {
	r, _ := utf8.DecodeRuneInString(token)
	return r != utf8.RuneError && IsCJK(r)
}

func isWordRune(r rune) bool {
	return (unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)) && !IsCJK(r)
}

func isConnector(r rune) bool {
	return r == '.' || r == '_' || r == '-' || r == '\'' || r == '’'
}

var knownExtensions = map[string]struct{}{
	"md": {}, "markdown": {}, "json": {}, "go": {}, "js": {}, "ts": {}, "tsx": {}, "jsx": {},
	"py": {}, "txt": {}, "yaml": {}, "yml": {}, "toml": {}, "html": {}, "css": {}, "csv": {},
	"pdf": {}, "png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "svg": {}, "sh": {}, "rs": {},
	"java": {}, "c": {}, "h": {}, "cpp": {}, "xml": {}, "sql": {}, "ini": {}, "lock": {},
}

// isFilename reports whether word looks like name.ext with a known
// extension, e.g. config.json.
func isFilename(word string) bool {
	dot := strings.LastIndexByte(word, '.')
	if dot <= 0 || dot == len(word)-1 {
		return false
	}
	if _, ok := knownExtensions[word[dot+1:]]; !ok {
		return false
	}
	for _, r := range word[:dot] {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

var contractions = map[string][]string{
	"won't":   {"will", "not"},
	"can't":   {"can", "not"},
	"cannot":  {"can", "not"},
	"shan't":  {"shall", "not"},
	"ain't":   {"are", "not"},
	"let's":   {"let", "us"},
	"y'all":   {"you", "all"},
	"o'clock": {"oclock"},
}

var contractionSuffixes = []struct {
	suffix string
	expand string
}{
	{"n't", "not"},
	{"'re", "are"},
	{"'m", "are"},
	{"'ll", "will"},
	{"'ve", "have"},
	{"'d", "would"},
	{"'s", ""},
}

// expandContraction rewrites don't-style contractions into their canonical
// words; forms of "to be" collapse to "are". Curly apostrophes are treated
// like straight ones.
func expandContraction(word string) []string {
	if !strings.ContainsAny(word, "'’") {
		return []string{word}
	}
	word = strings.ReplaceAll(word, "’", "'")
	if parts, ok := contractions[word]; ok {
		return parts
	}
	for _, c := range contractionSuffixes {
		if strings.HasSuffix(word, c.suffix) && len(word) > len(c.suffix) {
			base := word[:len(word)-len(c.suffix)]
			if c.expand == "" {
				return []string{base}
			}
			return []string{base, c.expand}
		}
	}
	return []string{word}
}
