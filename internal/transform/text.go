package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"flowforge/internal/errors"
	"flowforge/internal/table"
)

// Text operations
const (
	TextUpper        = "upper"
	TextLower        = "lower"
	TextTitle        = "title"
	TextTrim         = "trim"
	TextReplace      = "replace"
	TextRegexReplace = "regex_replace"
	TextRegexExtract = "regex_extract"
)

// TextParams configures a text transformation on a string column.
type TextParams struct {
	Column       string `json:"column" validate:"required"`
	Operation    string `json:"operation" validate:"required,oneof=upper lower title trim replace regex_replace regex_extract"`
	Old          string `json:"old,omitempty"`          // replace
	New          string `json:"new,omitempty"`          // replace, regex_replace
	Pattern      string `json:"pattern,omitempty"`      // regex_replace, regex_extract
	TargetColumn string `json:"target_column,omitempty"` // regex_extract output, defaults to <column>_extracted
}

// TextOperation applies case transforms, trimming, and plain or regex
// replacement in place; regex_extract writes matches into a new column.
// An invalid pattern fails fast before any row is touched.
type TextOperation struct{}

func (o *TextOperation) Kind() string { return KindText }

var titleCaser = cases.Title(language.Und)

func (o *TextOperation) Apply(ctx context.Context, t *table.Table, raw json.RawMessage) (*table.Table, string, error) {
	var p TextParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, "", err
	}
	col, err := t.Column(p.Column)
	if err != nil {
		return nil, "", err
	}
	if !col.Type.Textual() {
		return nil, "", errors.NewTypeError("text operation requires a text column, %q is %s", p.Column, col.Type).WithParameter("column")
	}

	var re *regexp.Regexp
	if p.Operation == TextRegexReplace || p.Operation == TextRegexExtract {
		re, err = regexp.Compile(p.Pattern)
		if err != nil {
			return nil, "", errors.NewPatternError("invalid pattern %q: %s", p.Pattern, err.Error()).WithParameter("pattern")
		}
	}

	values, err := t.Values(p.Column)
	if err != nil {
		return nil, "", err
	}

	if p.Operation == TextRegexExtract {
		target := p.TargetColumn
		if target == "" {
			target = p.Column + "_extracted"
		}
		extracted := make([]any, len(values))
		for r, v := range values {
			if v == nil {
				continue
			}
			m := re.FindStringSubmatch(v.(string))
			switch {
			case m == nil:
				// no match stays null
			case len(m) > 1:
				extracted[r] = m[1]
			default:
				extracted[r] = m[0]
			}
		}
		out, err := t.WithColumnAppended(table.Column{Name: target, Type: table.TypeString}, extracted)
		if err != nil {
			return nil, "", err
		}
		return out, fmt.Sprintf("extracted pattern %q from %q into %q", p.Pattern, p.Column, target), nil
	}

	transformed := make([]any, len(values))
	for r, v := range values {
		if v == nil {
			continue
		}
		s := v.(string)
		switch p.Operation {
		case TextUpper:
			s = strings.ToUpper(s)
		case TextLower:
			s = strings.ToLower(s)
		case TextTitle:
			s = titleCaser.String(s)
		case TextTrim:
			s = strings.TrimSpace(s)
		case TextReplace:
			s = strings.ReplaceAll(s, p.Old, p.New)
		case TextRegexReplace:
			s = re.ReplaceAllString(s, p.New)
		}
		transformed[r] = s
	}

	out, err := t.WithColumnReplaced(p.Column, transformed)
	if err != nil {
		return nil, "", err
	}
	return out, fmt.Sprintf("applied %s to %q", p.Operation, p.Column), nil
}
