package benchmark

import (
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/tokenizer"
)

var sampleTexts = map[string]string{
	"short": "Weekly review: we're shipping the garden planner, see notes/plan.md",
	"medium": `Bloom filters trade exactness for space. Each note is reduced to a fixed
        bit array holding its words, word pairs and character trigrams, and two notes
        are compared by the overlap of their set bits. Saturated filters are penalized
        because nearly full arrays overlap with everything. The word index narrows the
        candidates before any filter is compared, which keeps queries fast even when
        the vault holds tens of thousands of notes.`,
	"long": strings.Repeat(`Personal knowledge bases grow by accretion: meeting notes,
        reading highlights, half finished essays and daily journals. Finding related
        notes by hand stops working after a few hundred files. Tokenization lowercases
        text, expands contractions, keeps code spans and links intact, drops stop words
        and stems what remains. 東京の会議メモ also appear, and CJK runs are split into
        characters and bigrams so they still contribute useful features. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = tokenizer.Tokenize(text)
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = tokenizer.Tokenize(text)
		}
	})
}

func BenchmarkTokenizeSnowball(b *testing.B) {
	tok := tokenizer.New(tokenizer.Config{MinTokenLength: 3, Stemmer: tokenizer.Stemmer("snowball")})
	text := sampleTexts["long"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = tok.Tokens(text)
	}
}

func BenchmarkTokenizeCodeAndURLs(b *testing.B) {
	text := strings.Repeat("See https://example.com/docs/page?id=3 and `inline.code()` plus ```go\nfunc main() {}\n``` in notes/plan.md. ", 50)
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = tokenizer.Tokens(text)
	}
}
