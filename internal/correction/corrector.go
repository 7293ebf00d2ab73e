// Package correction proposes and applies typo corrections over column
// names and cell values, built on the fuzzy matcher. Proposal is a
// read-only scan; applying accepted decisions produces a new table
// snapshot through the regular mutation surface.
package correction

import (
	"context"
	"log/slog"

	"flowforge/internal/errors"
	"flowforge/internal/fuzzy"
	"flowforge/internal/table"
)

// DefaultLexicon holds common column names checked against when no
// caller-supplied lexicon is given alongside self-comparison.
var DefaultLexicon = []string{
	"name", "id", "date", "time", "price", "amount",
	"count", "total", "value", "description",
}

// ColumnProposal pairs a column with its ranked near-matches.
type ColumnProposal struct {
	Column  string        `json:"column"`
	Matches []fuzzy.Match `json:"matches"`
}

// Decision is a proposed replacement awaiting acceptance. A value
// decision with a nil RowIndex rewrites every cell equal to Original in
// the target column.
type Decision struct {
	Column     string  `json:"column"`
	RowIndex   *int    `json:"row_index,omitempty"`
	Original   string  `json:"original"`
	Replacement string `json:"replacement"`
	Similarity float64 `json:"similarity"`
	Frequency  int     `json:"frequency,omitempty"` // occurrences of Original
	IsColumn   bool    `json:"is_column"`
	Accepted   bool    `json:"accepted"`
}

// Corrector runs the two correction flows with a fixed matcher
// configuration.
type Corrector struct {
	opts   fuzzy.Options
	logger *slog.Logger
}

// New creates a Corrector. Zero fields in opts fall back to the matcher
// defaults.
func New(opts fuzzy.Options, logger *slog.Logger) *Corrector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Corrector{opts: opts, logger: logger.With(slog.String("component", "correction"))}
}

// ProposeColumnCorrections surfaces likely column-name typos. With a
// lexicon, each column name is matched against it; without one, columns
// are compared pairwise against each other, a column never matching
// itself. Exact lexicon members are not flagged.
func (c *Corrector) ProposeColumnCorrections(ctx context.Context, t *table.Table, lexicon []string) ([]ColumnProposal, error) {
	names := t.ColumnNames()
	opts := c.opts
	opts.Source = fuzzy.SourceColumnName

	selfCompare := len(lexicon) == 0

	proposals := make([]ColumnProposal, 0)
	for i, name := range names {
		corpus := lexicon
		if selfCompare {
			corpus = make([]string, 0, len(names)-1)
			for j, other := range names {
				if j != i {
					corpus = append(corpus, other)
				}
			}
		}
		matches, err := fuzzy.FindMatches(ctx, name, corpus, opts)
		if err != nil {
			return nil, err
		}
		// An exact hit means the name is already well-formed.
		filtered := matches[:0]
		exact := false
		for _, m := range matches {
			if m.Similarity == 1 {
				exact = true
				break
			}
			filtered = append(filtered, m)
		}
		if exact || len(filtered) == 0 {
			continue
		}
		proposals = append(proposals, ColumnProposal{Column: name, Matches: filtered})
	}

	c.logger.DebugContext(ctx, "column correction proposals",
		slog.Int("columns", len(names)),
		slog.Int("proposals", len(proposals)))
	return proposals, nil
}

// valueCount tracks one distinct value's frequency and first occurrence.
type valueCount struct {
	value string
	count int
	first int
}

// ProposeValueCorrections surfaces likely cell-value typos in a text
// column. Candidates are the column's own distinct values; a value is
// only proposed as a typo of a strictly more frequent value, and
// candidates below minFrequencyRatio of the row count are not treated as
// canonical. Returned decisions have Accepted=false.
func (c *Corrector) ProposeValueCorrections(ctx context.Context, t *table.Table, column string, minFrequencyRatio float64) ([]Decision, error) {
	col, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	if !col.Type.Textual() {
		return nil, errors.NewTypeError("value correction requires a text column, %q is %s", column, col.Type).WithParameter("column")
	}
	values, err := t.Values(column)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]*valueCount)
	order := make([]*valueCount, 0)
	nonNull := 0
	for i, v := range values {
		if v == nil {
			continue
		}
		nonNull++
		s := v.(string)
		vc, ok := counts[s]
		if !ok {
			vc = &valueCount{value: s, first: i}
			counts[s] = vc
			order = append(order, vc)
		}
		vc.count++
	}
	if nonNull == 0 {
		return []Decision{}, nil
	}

	opts := c.opts
	opts.Source = fuzzy.SourceCellValue
	opts.MaxResults = len(order) // rank locally, pick after frequency tie-break

	decisions := make([]Decision, 0)
	for _, vc := range order {
		// Canonical candidates: strictly more frequent, above the ratio
		// floor, in first-seen order.
		corpus := make([]string, 0)
		candidates := make([]*valueCount, 0)
		for _, other := range order {
			if other.count <= vc.count {
				continue
			}
			if float64(other.count)/float64(nonNull) < minFrequencyRatio {
				continue
			}
			corpus = append(corpus, other.value)
			candidates = append(candidates, other)
		}
		if len(corpus) == 0 {
			continue
		}
		matches, err := fuzzy.FindMatches(ctx, vc.value, corpus, opts)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			continue
		}
		// Equal similarity resolves to the more frequent value, then to
		// first-seen order (positions in corpus follow first-seen order).
		best := matches[0]
		for _, m := range matches[1:] {
			if m.Similarity != best.Similarity {
				break
			}
			if candidates[m.Index].count > candidates[best.Index].count {
				best = m
			}
		}
		decisions = append(decisions, Decision{
			Column:      column,
			Original:    vc.value,
			Replacement: best.Candidate,
			Similarity:  best.Similarity,
			Frequency:   vc.count,
		})
	}

	c.logger.DebugContext(ctx, "value correction proposals",
		slog.String("column", column),
		slog.Int("distinct_values", len(order)),
		slog.Int("proposals", len(decisions)))
	return decisions, nil
}

// ApplyCorrections turns accepted decisions into a new table snapshot.
// Column decisions rename; value decisions rewrite matching cells. Two
// accepted decisions steering the same name or value to different
// replacements fail with a conflict error before anything is applied.
func ApplyCorrections(t *table.Table, decisions []Decision) (*table.Table, error) {
	renames := make(map[string]string)
	rewrites := make(map[string]map[string]string) // column -> original -> replacement

	for _, d := range decisions {
		if !d.Accepted {
			continue
		}
		if d.IsColumn {
			if prev, ok := renames[d.Column]; ok && prev != d.Replacement {
				return nil, errors.NewConflictError("column %q corrected to both %q and %q", d.Column, prev, d.Replacement).WithParameter("decisions")
			}
			renames[d.Column] = d.Replacement
			continue
		}
		m, ok := rewrites[d.Column]
		if !ok {
			m = make(map[string]string)
			rewrites[d.Column] = m
		}
		if prev, ok := m[d.Original]; ok && prev != d.Replacement {
			return nil, errors.NewConflictError("value %q in column %q corrected to both %q and %q", d.Original, d.Column, prev, d.Replacement).WithParameter("decisions")
		}
		m[d.Original] = d.Replacement
	}

	out := t
	var err error
	for column, m := range rewrites {
		col, cerr := out.Column(column)
		if cerr != nil {
			return nil, cerr
		}
		if !col.Type.Textual() {
			return nil, errors.NewTypeError("value correction requires a text column, %q is %s", column, col.Type).WithParameter("decisions")
		}
		values, verr := out.Values(column)
		if verr != nil {
			return nil, verr
		}
		replaced := make([]any, len(values))
		copy(replaced, values)
		rowScoped := rowScopedDecisions(decisions, column)
		for i, v := range replaced {
			if v == nil {
				continue
			}
			s := v.(string)
			repl, ok := m[s]
			if !ok {
				continue
			}
			if rows, scoped := rowScoped[s]; scoped && !rows[i] {
				continue
			}
			replaced[i] = repl
		}
		out, err = out.WithColumnReplaced(column, replaced)
		if err != nil {
			return nil, err
		}
	}
	for oldName, newName := range renames {
		out, err = out.WithColumnRenamed(oldName, newName)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// rowScopedDecisions collects row-targeted value decisions so a decision
// carrying a RowIndex only rewrites that row.
func rowScopedDecisions(decisions []Decision, column string) map[string]map[int]bool {
	scoped := make(map[string]map[int]bool)
	for _, d := range decisions {
		if !d.Accepted || d.IsColumn || d.Column != column || d.RowIndex == nil {
			continue
		}
		if scoped[d.Original] == nil {
			scoped[d.Original] = make(map[int]bool)
		}
		scoped[d.Original][*d.RowIndex] = true
	}
	return scoped
}
