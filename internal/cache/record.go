package cache

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/bloom"
)

// Version is the cache format version. A file with any other version is
// ignored.
const Version = 2

const bloomKeyPrefix = "bloom_"

// Params is the filter configuration a cache was written with.
type Params struct {
	NgramSizes          []int   `json:"ngramSizes"`
	BloomSizes          []int   `json:"bloomSizes"`
	HashFunctions       []int   `json:"hashFunctions"`
	SimilarityThreshold float64 `json:"similarityThreshold"`
}

// BloomSize returns the bloom size configured for ngram, or 0.
func (p Params) BloomSize(ngram int) int {
	if i := slices.Index(p.NgramSizes, ngram); i >= 0 && i < len(p.BloomSizes) {
		return p.BloomSizes[i]
	}
	return 0
}

// HashCount returns the hash count configured for ngram, or 0.
func (p Params) HashCount(ngram int) int {
	if i := slices.Index(p.NgramSizes, ngram); i >= 0 && i < len(p.HashFunctions) {
		return p.HashFunctions[i]
	}
	return 0
}

func (p Params) valid() bool {
	if len(p.NgramSizes) == 0 || len(p.BloomSizes) != len(p.NgramSizes) || len(p.HashFunctions) != len(p.NgramSizes) {
		return false
	}
	for i := range p.NgramSizes {
		if p.NgramSizes[i] <= 0 || p.BloomSizes[i] <= 0 || p.HashFunctions[i] <= 0 {
			return false
		}
	}
	return true
}

// compatibleWith reports whether a cache written with p can serve expect.
// Nil BloomSizes or HashFunctions in expect accept whatever was stored.
func (p Params) compatibleWith(expect Params) (bool, string) {
	if !slices.Equal(p.NgramSizes, expect.NgramSizes) {
		return false, fmt.Sprintf("ngram sizes %v != %v", p.NgramSizes, expect.NgramSizes)
	}
	if expect.BloomSizes != nil && !slices.Equal(p.BloomSizes, expect.BloomSizes) {
		return false, fmt.Sprintf("bloom sizes %v != %v", p.BloomSizes, expect.BloomSizes)
	}
	if expect.HashFunctions != nil && !slices.Equal(p.HashFunctions, expect.HashFunctions) {
		return false, fmt.Sprintf("hash functions %v != %v", p.HashFunctions, expect.HashFunctions)
	}
	return true, ""
}

// Stats are informational corpus statistics stored alongside the filters.
type Stats struct {
	DocumentCount  int     `json:"documentCount"`
	AverageTokens  float64 `json:"averageTokens"`
	VocabularySize int     `json:"vocabularySize"`
}

// Entry is one document's serialized filters, keyed by ngram size.
type Entry struct {
	NgramSizes []int
	Blooms     map[int][]uint32
	ModTime    time.Time
}

// MarshalJSON writes {"ngramSizes":[...],"bloom_<n>":[...],"modTime":ms}.
func (e Entry) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Blooms)+2)
	out["ngramSizes"] = e.NgramSizes
	for n, bits := range e.Blooms {
		out[bloomKeyPrefix+strconv.Itoa(n)] = bits
	}
	if !e.ModTime.IsZero() {
		out["modTime"] = e.ModTime.UnixMilli()
	}
	return json.Marshal(out)
}

// decodeEntry parses and validates one filters entry against params.
func decodeEntry(raw json.RawMessage, params Params) (Entry, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Entry{}, fmt.Errorf("entry is not an object: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(fields["ngramSizes"], &e.NgramSizes); err != nil {
		return Entry{}, fmt.Errorf("bad ngramSizes: %w", err)
	}
	if !slices.Equal(e.NgramSizes, params.NgramSizes) {
		return Entry{}, fmt.Errorf("ngram sizes %v do not match %v", e.NgramSizes, params.NgramSizes)
	}
	e.Blooms = make(map[int][]uint32, len(e.NgramSizes))
	for _, n := range e.NgramSizes {
		key := bloomKeyPrefix + strconv.Itoa(n)
		data, ok := fields[key]
		if !ok {
			return Entry{}, fmt.Errorf("missing %s", key)
		}
		var bits []uint32
		if err := json.Unmarshal(data, &bits); err != nil {
			return Entry{}, fmt.Errorf("bad %s: %w", key, err)
		}
		if want := ExpectedWords(params.BloomSize(n)); len(bits) != want {
			return Entry{}, fmt.Errorf("%s has %d words, want %d", key, len(bits), want)
		}
		e.Blooms[n] = bits
	}
	if data, ok := fields["modTime"]; ok {
		var ms int64
		if err := json.Unmarshal(data, &ms); err == nil && ms > 0 {
			e.ModTime = time.UnixMilli(ms)
		}
	}
	return e, nil
}

// ExpectedWords returns the serialized word count of a filter configured
// with sizeBits.
func ExpectedWords(sizeBits int) int {
	if sizeBits <= 0 {
		return 0
	}
	size := (sizeBits + bloom.WordBits - 1) / bloom.WordBits * bloom.WordBits
	return size / bloom.SerializedWordBits
}

// Record is the decoded content of a cache file.
type Record struct {
	Timestamp   time.Time
	Params      Params
	Stats       Stats
	Entries     map[string]Entry
	CommonWords []string
}

// Snapshot is what the index hands to Save. Clean snapshots are not written.
type Snapshot struct {
	Record
	Dirty bool
}

type wireRecord struct {
	Version     int              `json:"version"`
	Timestamp   int64            `json:"timestamp"`
	Params      Params           `json:"params"`
	Stats       Stats            `json:"stats"`
	Filters     map[string]Entry `json:"filters"`
	CommonWords []string         `json:"commonWords"`
}

var requiredKeys = []string{"version", "timestamp", "params", "stats", "filters", "commonWords"}

func encode(rec Record) ([]byte, error) {
	w := wireRecord{
		Version:     Version,
		Timestamp:   rec.Timestamp.UnixMilli(),
		Params:      rec.Params,
		Stats:       rec.Stats,
		Filters:     rec.Entries,
		CommonWords: rec.CommonWords,
	}
	if w.Filters == nil {
		w.Filters = map[string]Entry{}
	}
	if w.CommonWords == nil {
		w.CommonWords = []string{}
	}
	return json.Marshal(w)
}

// verify checks a freshly written file before it replaces the real cache.
func verify(data []byte, entries int) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return fmt.Errorf("not valid JSON: %w", err)
	}
	var missing []string
	for _, k := range requiredKeys {
		if _, ok := top[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing keys %s", strings.Join(missing, ","))
	}
	var version int
	if err := json.Unmarshal(top["version"], &version); err != nil || version != Version {
		return fmt.Errorf("version %s, want %d", top["version"], Version)
	}
	var filters map[string]json.RawMessage
	if err := json.Unmarshal(top["filters"], &filters); err != nil {
		return fmt.Errorf("bad filters: %w", err)
	}
	if len(filters) != entries {
		return fmt.Errorf("%d entries written, want %d", len(filters), entries)
	}
	return nil
}
