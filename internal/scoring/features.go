package scoring

import (
	"hash/fnv"
	"math"
	"slices"
	"strings"

	"github.com/klyr/xssguard/internal/config"
)

const (
	defaultNgramMin = 2
	defaultNgramMax = 4
	defaultBuckets  = 1 << 16
)

// Features turns text into an L2-normalized vector of hashed character
// n-gram counts.
type Features struct {
	NgramMin  int
	NgramMax  int
	Buckets   int
	Lowercase bool
}

func FeaturesFromConfig(cfg config.FeaturesConfig) Features {
	return Features{
		NgramMin:  cfg.NgramMin,
		NgramMax:  cfg.NgramMax,
		Buckets:   cfg.Buckets,
		Lowercase: cfg.Lowercase,
	}.withDefaults()
}

func (f Features) withDefaults() Features {
	if f.NgramMin <= 0 {
		f.NgramMin = defaultNgramMin
	}
	if f.NgramMax < f.NgramMin {
		f.NgramMax = max(defaultNgramMax, f.NgramMin)
	}
	if f.Buckets <= 0 {
		f.Buckets = defaultBuckets
	}
	return f
}

// Term is one non-zero bucket of a feature vector.
type Term struct {
	Bucket int
	Weight float64
}

// Sparse returns the non-zero buckets of text ordered by bucket, so sums over
// the result are reproducible.
func (f Features) Sparse(text string) []Term {
	f = f.withDefaults()
	if f.Lowercase {
		text = strings.ToLower(text)
	}
	runes := []rune(text)

	counts := map[int]float64{}
	for n := f.NgramMin; n <= f.NgramMax; n++ {
		for i := 0; i+n <= len(runes); i++ {
			counts[f.bucket(string(runes[i:i+n]))]++
		}
	}

	terms := make([]Term, 0, len(counts))
	for bucket, count := range counts {
		terms = append(terms, Term{Bucket: bucket, Weight: count})
	}
	slices.SortFunc(terms, func(a, b Term) int { return a.Bucket - b.Bucket })

	var norm float64
	for _, term := range terms {
		norm += term.Weight * term.Weight
	}
	if norm == 0 {
		return terms
	}
	norm = math.Sqrt(norm)
	for i := range terms {
		terms[i].Weight /= norm
	}
	return terms
}

// Dense writes the feature vector into dst, which must hold Buckets values.
func (f Features) Dense(text string, dst []float32) {
	for i := range dst {
		dst[i] = 0
	}
	for _, term := range f.Sparse(text) {
		if term.Bucket < len(dst) {
			dst[term.Bucket] = float32(term.Weight)
		}
	}
}

func (f Features) bucket(gram string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(gram))
	return int(h.Sum32() % uint32(f.Buckets))
}
