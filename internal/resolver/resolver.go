// Package resolver maps free-text equipment and status references onto
// canonical entity names using fuzzy string similarity.
//
// Users rarely type the exact name stored in the plant database: "tear 1",
// "o tear jager" and "Tear 01 - Jager TP100" all mean the same loom. The
// resolver scores every canonical candidate against the input on a 0-100
// scale and the caller accepts the best match only at or above a fixed
// threshold. Below the threshold the entity is treated as unresolved and the
// caller must answer with an explicit not-found outcome instead of guessing.
package resolver

import (
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// Match is the result of resolving one free-text reference.
type Match struct {
	// Value is the canonical candidate with the highest score.
	Value string

	// Score is the similarity on a 0-100 integer scale.
	Score int
}

// Resolver scores free text against canonical candidate lists.
// Safe for concurrent use: it holds only immutable configuration.
type Resolver struct {
	threshold int
	lev       *metrics.Levenshtein
}

// New creates a Resolver with the given acceptance threshold (0-100).
func New(threshold int) *Resolver {
	lev := metrics.NewLevenshtein()
	lev.CaseSensitive = false
	return &Resolver{threshold: threshold, lev: lev}
}

// Threshold returns the configured acceptance threshold.
func (r *Resolver) Threshold() int {
	return r.threshold
}

// Resolve returns the best-scoring candidate for text and whether its score
// reaches the acceptance threshold. With an empty candidate list or blank
// input it returns a zero Match and false.
//
// Equal scores are broken by candidate-list order: the first candidate to
// reach the best score wins. The scorer is deterministic for a fixed
// candidate set.
func (r *Resolver) Resolve(text string, candidates []string) (Match, bool) {
	text = strings.TrimSpace(text)
	if text == "" || len(candidates) == 0 {
		return Match{}, false
	}

	best := Match{Score: -1}
	for _, cand := range candidates {
		score := r.score(text, cand)
		if score > best.Score {
			best = Match{Value: cand, Score: score}
		}
	}

	return best, best.Score >= r.threshold
}

// score computes the 0-100 similarity between the input and one candidate,
// taking the better of the whole-string ratio and the best same-length
// substring ratio. The substring pass is what lets a short fragment like
// "tear 1" score highly against "Tear 01 - Jager TP100".
func (r *Resolver) score(text, candidate string) int {
	a := strings.ToLower(strings.TrimSpace(text))
	b := strings.ToLower(strings.TrimSpace(candidate))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}

	ratio := strutil.Similarity(a, b, r.lev)
	if partial := r.partialRatio(a, b); partial > ratio {
		ratio = partial
	}

	return int(ratio*100 + 0.5)
}

// partialRatio slides a window the length of the shorter string over the
// longer one and returns the best window similarity.
func (r *Resolver) partialRatio(a, b string) float64 {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 || len(short) == len(long) {
		return 0
	}

	shortStr := string(short)
	best := 0.0
	for i := 0; i+len(short) <= len(long); i++ {
		window := string(long[i : i+len(short)])
		if sim := strutil.Similarity(shortStr, window, r.lev); sim > best {
			best = sim
			if best == 1.0 {
				break
			}
		}
	}
	return best
}
