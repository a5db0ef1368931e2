package similarity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	mapset "github.com/deckarep/golang-set/v2"

	"submission-grader/internal/runtime"
)

// Match is one directed comparison between two files. SimA is the share of
// A's fingerprints found in B, SimB the reverse.
type Match struct {
	PathA, PathB string
	SimA, SimB   float64
}

// Comparator compares every file in a directory against every other.
type Comparator interface {
	Compare(ctx context.Context, dir string) ([]Match, error)
}

// Winnower is a token-winnowing fingerprint comparator. Noise is the k-gram
// length below which matches are ignored; every match of at least Guarantee
// tokens is detected.
type Winnower struct {
	Noise     int
	Guarantee int
}

func NewWinnower(noise, guarantee int) *Winnower {
	if noise < 1 {
		noise = 25
	}
	if guarantee < noise {
		guarantee = noise
	}
	return &Winnower{Noise: noise, Guarantee: guarantee}
}

type fingerprinted struct {
	path   string
	prints mapset.Set[uint64]
}

func (w *Winnower) Compare(ctx context.Context, dir string) ([]Match, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var files []fingerprinted
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path) // #nosec G304 -- files written by the detector
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		language := languageForSuffix(filepath.Ext(path))
		files = append(files, fingerprinted{path: path, prints: w.Fingerprints(Tokenize(string(data), language))})
	}

	var matches []Match
	for i := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := range files {
			if i == j {
				continue
			}
			a, b := files[i], files[j]
			common := float64(a.prints.Intersect(b.prints).Cardinality())
			matches = append(matches, Match{
				PathA: a.path,
				PathB: b.path,
				SimA:  ratio(common, a.prints.Cardinality()),
				SimB:  ratio(common, b.prints.Cardinality()),
			})
		}
	}
	return matches, nil
}

// Fingerprints hashes every Noise-token k-gram and keeps the rightmost
// minimum of each window of Guarantee-Noise+1 hashes. A stream shorter than
// one k-gram is fingerprinted as a whole.
func (w *Winnower) Fingerprints(tokens []string) mapset.Set[uint64] {
	prints := mapset.NewThreadUnsafeSet[uint64]()
	if len(tokens) == 0 {
		return prints
	}
	k := w.Noise
	if len(tokens) < k {
		prints.Add(xxhash.Sum64String(strings.Join(tokens, "\x00")))
		return prints
	}

	hashes := make([]uint64, len(tokens)-k+1)
	for i := range hashes {
		hashes[i] = xxhash.Sum64String(strings.Join(tokens[i:i+k], "\x00"))
	}

	window := w.Guarantee - w.Noise + 1
	if window >= len(hashes) {
		window = len(hashes)
	}
	for start := 0; start+window <= len(hashes); start++ {
		minIdx := start
		for i := start; i < start+window; i++ {
			if hashes[i] <= hashes[minIdx] {
				minIdx = i
			}
		}
		prints.Add(hashes[minIdx])
	}
	return prints
}

func ratio(common float64, total int) float64 {
	if total == 0 {
		return 0
	}
	return common / float64(total)
}

func languageForSuffix(suffix string) string {
	for _, lang := range []string{"python", "c", "java"} {
		if runtime.Suffix(lang) == suffix {
			return lang
		}
	}
	return ""
}
