// Package fuzzy implements approximate string matching over a corpus of
// candidates. Scoring is a normalized edit distance, 1 meaning identical.
// The scan is read-only and side-effect free; large corpora are
// partitioned across workers and merged deterministically, so the
// partition scheme never changes the output.
package fuzzy

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"flowforge/internal/errors"
)

// Source tags where a candidate string came from.
type Source string

const (
	SourceColumnName Source = "column_name"
	SourceCellValue  Source = "cell_value"
)

// Match is one ranked candidate.
type Match struct {
	Candidate  string  `json:"candidate"`
	Similarity float64 `json:"similarity"`
	Index      int     `json:"index"` // position in the corpus
	Source     Source  `json:"source"`
}

// Defaults for Options fields left at zero.
const (
	DefaultThreshold       = 0.75
	DefaultMaxResults      = 5
	DefaultPrefilterCutoff = 256
	DefaultParallelCutoff  = 4096
	chunkSize              = 1024

	// how many candidates a worker scores between cancellation checks
	cancelCheckInterval = 64
)

// Options configures a match scan.
type Options struct {
	Threshold       float64 // minimum similarity, default 0.75
	MaxResults      int     // default 5
	CaseInsensitive bool    // fold query and corpus before scoring
	PrefilterCutoff int     // corpus size above which the length bound prunes candidates
	ParallelCutoff  int     // corpus size above which the scan is partitioned
	Source          Source  // stamped onto every returned Match
}

func (o Options) withDefaults() Options {
	if o.Threshold == 0 {
		o.Threshold = DefaultThreshold
	}
	if o.MaxResults == 0 {
		o.MaxResults = DefaultMaxResults
	}
	if o.PrefilterCutoff == 0 {
		o.PrefilterCutoff = DefaultPrefilterCutoff
	}
	if o.ParallelCutoff == 0 {
		o.ParallelCutoff = DefaultParallelCutoff
	}
	if o.Source == "" {
		o.Source = SourceCellValue
	}
	return o
}

// FindMatches scans the corpus for near-matches of query with similarity
// at or above the threshold, ordered by descending similarity with ties
// broken by corpus order. An empty corpus or a corpus with no candidate
// above the threshold yields an empty slice. Cancelling ctx aborts the
// scan with a cancelled error; a partial list is never returned.
func FindMatches(ctx context.Context, query string, corpus []string, opts Options) ([]Match, error) {
	opts = opts.withDefaults()
	if len(corpus) == 0 {
		return []Match{}, nil
	}

	q := query
	if opts.CaseInsensitive {
		q = strings.ToLower(q)
	}
	qRunes := []rune(q)

	prefilter := len(corpus) >= opts.PrefilterCutoff
	sims := make([]float64, len(corpus))

	score := func(ctx context.Context, lo, hi int) error {
		for i := lo; i < hi; i++ {
			if i%cancelCheckInterval == 0 {
				select {
				case <-ctx.Done():
					return errors.NewCancelledError(ctx.Err())
				default:
				}
			}
			c := corpus[i]
			if opts.CaseInsensitive {
				c = strings.ToLower(c)
			}
			// Length-difference bound: distance >= |len(a)-len(b)|, so the
			// best possible similarity is 1 - diff/max. Skips the DP for
			// obviously-distant candidates on large corpora.
			if prefilter {
				cl := utf8.RuneCountInString(c)
				if best := lengthBound(len(qRunes), cl); best < opts.Threshold {
					sims[i] = -1
					continue
				}
			}
			sims[i] = Similarity(qRunes, []rune(c))
		}
		return nil
	}

	if len(corpus) >= opts.ParallelCutoff {
		g, gctx := errgroup.WithContext(ctx)
		for lo := 0; lo < len(corpus); lo += chunkSize {
			hi := lo + chunkSize
			if hi > len(corpus) {
				hi = len(corpus)
			}
			lo, hi := lo, hi
			g.Go(func() error { return score(gctx, lo, hi) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		if err := score(ctx, 0, len(corpus)); err != nil {
			return nil, err
		}
	}

	matches := make([]Match, 0, opts.MaxResults)
	for i, sim := range sims {
		if sim >= opts.Threshold {
			matches = append(matches, Match{
				Candidate:  corpus[i], // original casing
				Similarity: sim,
				Index:      i,
				Source:     opts.Source,
			})
		}
	}
	// Stable sort keeps corpus order for equal similarities.
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Similarity > matches[b].Similarity
	})
	if len(matches) > opts.MaxResults {
		matches = matches[:opts.MaxResults]
	}
	return matches, nil
}

func lengthBound(a, b int) float64 {
	max := a
	if b > max {
		max = b
	}
	if max == 0 {
		return 0
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return 1 - float64(diff)/float64(max)
}

// Similarity returns 1 - distance(a,b)/max(len(a),len(b)), operating on
// code points. Distance is edit distance with adjacent transpositions
// counted as a single edit, so a swapped-letter typo like "Nmae" still
// scores 0.75 against "Name". Two zero-length strings score 0.
func Similarity(a, b []rune) float64 {
	max := len(a)
	if len(b) > max {
		max = len(b)
	}
	if max == 0 {
		return 0
	}
	return 1 - float64(editDistance(a, b))/float64(max)
}

// editDistance computes optimal string alignment distance with a
// three-row DP over runes.
func editDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev2 := make([]int, len(b)+1)
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				if tr := prev2[j-2] + 1; tr < m {
					m = tr
				}
			}
			curr[j] = m
		}
		prev2, prev, curr = prev, curr, prev2
	}
	return prev[len(b)]
}
