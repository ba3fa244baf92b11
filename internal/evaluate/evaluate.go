// Package evaluate samples random document pairs and compares the index's
// bloom similarity with a plain word-Jaccard baseline, broken down by
// the category encoded in each file name.
package evaluate

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"math/rand"
	"path"
	"slices"
	"strings"
	"unicode"

	"github.com/bbalet/stopwords"
	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/stat"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/vault"
)

const (
	MethodWordJaccard = "word_jaccard"
	MethodBloom       = "bloom"

	bins = 10
	top  = 5
)

// Scorer is the part of the similarity index evaluation needs.
type Scorer interface {
	CalculateSimilarity(id1, id2 string) float64
}

type Pair struct {
	A            string             `json:"file1"`
	B            string             `json:"file2"`
	CategoryA    string             `json:"category1"`
	CategoryB    string             `json:"category2"`
	SameCategory bool               `json:"sameCategory"`
	Duplicate    bool               `json:"duplicate"`
	Similarities map[string]float64 `json:"similarities"`
}

type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stdDev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

type MethodReport struct {
	Name      string    `json:"name"`
	All       Summary   `json:"all"`
	Same      Summary   `json:"sameCategory"`
	Different Summary   `json:"differentCategory"`
	Histogram [bins]int `json:"histogram"`
	Top       []Pair    `json:"top"`
}

type Report struct {
	Files      int            `json:"files"`
	Categories map[string]int `json:"categories"`
	Pairs      []Pair         `json:"pairs"`
	Methods    []MethodReport `json:"methods"`
}

// Category derives a note's category from its file name:
// generated_note_000042_science.md is "science", note_000001_unknown_book_chapter_3.md
// is "literature", anything else "unknown".
func Category(id string) string {
	name := path.Base(id)
	stem, ok := strings.CutSuffix(name, ".md")
	if !ok {
		return "unknown"
	}
	if rest, ok := strings.CutPrefix(stem, "generated_note_"); ok {
		num, cat, found := strings.Cut(rest, "_")
		if found && cat != "" && isDigits(num) {
			return cat
		}
		return "unknown"
	}
	if rest, ok := strings.CutPrefix(stem, "note_"); ok {
		num, tail, found := strings.Cut(rest, "_")
		if found && isDigits(num) && strings.HasPrefix(tail, "unknown_book_chapter_") {
			return "literature"
		}
	}
	return "unknown"
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Clean drops markdown headers and the metadata lines the corpus generator
// writes, joining what is left with spaces.
func Clean(text string) string {
	var kept []string
	for line := range strings.SplitSeq(text, "\n") {
		switch {
		case strings.HasPrefix(line, "#"),
			strings.HasPrefix(line, "From:"),
			strings.HasPrefix(line, "Category:"),
			strings.HasPrefix(line, "Generated:"):
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, " "))
}

// WordSet is the set of lower-cased words of text with English stop words
// removed.
func WordSet(text string) map[string]struct{} {
	cleaned := stopwords.CleanString(text, "en", false)
	words := strings.FieldsFunc(strings.ToLower(cleaned), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Jaccard is |a∩b| / |a∪b|, 0 when either set is empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

type doc struct {
	words       map[string]struct{}
	fingerprint uint64
	empty       bool
}

// Run samples up to samples random pairs of documents listed by v. Pairs
// where either side has no text after cleaning are skipped.
func Run(ctx context.Context, ix Scorer, v vault.Vault, samples int, rng *rand.Rand) (*Report, error) {
	infos, err := v.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	r := &Report{Files: len(infos), Categories: make(map[string]int)}
	for _, info := range infos {
		r.Categories[Category(info.ID)]++
	}
	if len(infos) < 2 {
		r.Methods = summarize(nil)
		return r, nil
	}

	docs := make(map[string]*doc)
	load := func(id string) (*doc, error) {
		if d, ok := docs[id]; ok {
			return d, nil
		}
		text, err := v.Read(ctx, id)
		if err != nil {
			return nil, err
		}
		clean := Clean(text)
		d := &doc{words: WordSet(clean), fingerprint: xxhash.Sum64String(clean), empty: clean == ""}
		docs[id] = d
		return d, nil
	}

	for i := 0; i < samples; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ai := rng.Intn(len(infos))
		bi := rng.Intn(len(infos) - 1)
		if bi >= ai {
			bi++
		}
		a, b := infos[ai].ID, infos[bi].ID
		da, err := load(a)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", a, err)
		}
		db, err := load(b)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", b, err)
		}
		if da.empty || db.empty {
			continue
		}
		ca, cb := Category(a), Category(b)
		r.Pairs = append(r.Pairs, Pair{
			A:            a,
			B:            b,
			CategoryA:    ca,
			CategoryB:    cb,
			SameCategory: ca == cb,
			Duplicate:    da.fingerprint == db.fingerprint,
			Similarities: map[string]float64{
				MethodWordJaccard: Jaccard(da.words, db.words),
				MethodBloom:       ix.CalculateSimilarity(a, b),
			},
		})
	}
	r.Methods = summarize(r.Pairs)
	return r, nil
}

func summarize(pairs []Pair) []MethodReport {
	out := make([]MethodReport, 0, 2)
	for _, name := range []string{MethodWordJaccard, MethodBloom} {
		m := MethodReport{Name: name}
		var all, same, diff []float64
		for _, p := range pairs {
			s := p.Similarities[name]
			all = append(all, s)
			if p.SameCategory {
				same = append(same, s)
			} else {
				diff = append(diff, s)
			}
			m.Histogram[bin(s)]++
		}
		m.All, m.Same, m.Different = Summarize(all), Summarize(same), Summarize(diff)

		ranked := slices.Clone(pairs)
		slices.SortStableFunc(ranked, func(a, b Pair) int {
			return cmp.Compare(b.Similarities[name], a.Similarities[name])
		})
		m.Top = ranked[:min(top, len(ranked))]
		out = append(out, m)
	}
	return out
}

// bin places s in one of ten equal-width bins over [0,1]; 1.0 falls in the
// last.
func bin(s float64) int {
	return max(0, min(bins-1, int(s*bins)))
}

// Summarize computes mean, median, sample standard deviation and range.
func Summarize(xs []float64) Summary {
	if len(xs) == 0 {
		return Summary{}
	}
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	s := Summary{Count: len(xs), Min: sorted[0], Max: sorted[len(sorted)-1], Mean: stat.Mean(xs, nil)}
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		s.Median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		s.Median = sorted[mid]
	}
	if len(xs) > 1 {
		s.StdDev = stat.StdDev(xs, nil)
	}
	return s
}

// WriteText prints the report in a human readable layout.
func (r *Report) WriteText(w io.Writer) {
	same := 0
	for _, p := range r.Pairs {
		if p.SameCategory {
			same++
		}
	}
	fmt.Fprintf(w, "Files: %d\n", r.Files)
	cats := make([]string, 0, len(r.Categories))
	for c := range r.Categories {
		cats = append(cats, c)
	}
	slices.Sort(cats)
	for _, c := range cats {
		fmt.Fprintf(w, "  %s: %d files\n", c, r.Categories[c])
	}
	fmt.Fprintf(w, "\nSample size: %d pairs (%d same category, %d different)\n", len(r.Pairs), same, len(r.Pairs)-same)

	for _, m := range r.Methods {
		fmt.Fprintf(w, "\n%s\n%s\n", strings.ToUpper(m.Name), strings.Repeat("-", 40))
		writeSummary(w, "Overall", m.All, true)
		if m.Same.Count > 0 {
			writeSummary(w, "Same category", m.Same, false)
		}
		if m.Different.Count > 0 {
			writeSummary(w, "Different category", m.Different, false)
		}
		fmt.Fprintln(w, "Distribution:")
		for i, n := range m.Histogram {
			pct := 0.0
			if m.All.Count > 0 {
				pct = float64(n) / float64(m.All.Count) * 100
			}
			fmt.Fprintf(w, "  %.1f-%.1f: %4d pairs (%5.1f%%)\n", float64(i)/bins, float64(i+1)/bins, n, pct)
		}
		fmt.Fprintf(w, "Top %d pairs:\n", len(m.Top))
		for i, p := range m.Top {
			mark := "x"
			if p.SameCategory {
				mark = "="
			}
			fmt.Fprintf(w, "  %d. %.3f [%s] %s vs %s\n     %s <-> %s\n",
				i+1, p.Similarities[m.Name], mark, p.CategoryA, p.CategoryB, p.A, p.B)
		}
	}
}

func writeSummary(w io.Writer, label string, s Summary, full bool) {
	fmt.Fprintf(w, "%s: mean %.3f, median %.3f, stddev %.3f", label, s.Mean, s.Median, s.StdDev)
	if full {
		fmt.Fprintf(w, ", min %.3f, max %.3f", s.Min, s.Max)
	}
	fmt.Fprintln(w)
}
