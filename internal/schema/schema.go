// Package schema declares the loan-application columns the preprocessing
// pipeline consumes and the fixed rank tables used for ordinal columns.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Version is bumped whenever the meaning of a Columns value changes in a way
// that invalidates previously fitted artifacts.
const Version = "v1"

// DefaultSentinel fills missing categorical values before encoding.
const DefaultSentinel = "KOSONG"

// Credit columns.
const (
	PersonAge              = "person_age"
	PersonIncome           = "person_income"
	PersonHomeOwnership    = "person_home_ownership"
	PersonEmpLength        = "person_emp_length"
	LoanIntent             = "loan_intent"
	LoanGrade              = "loan_grade"
	LoanAmount             = "loan_amnt"
	LoanIntRate            = "loan_int_rate"
	LoanPercentIncome      = "loan_percent_income"
	CBPersonDefaultOnFile  = "cb_person_default_on_file"
	CBPersonCredHistLength = "cb_person_cred_hist_length"
	LoanStatus             = "loan_status"
	CreatedAt              = "created_at"
)

// LoanGradeRanks orders loan grades best to worst, sentinel last.
var LoanGradeRanks = []string{"A", "B", "C", "D", "E", "F", "G", DefaultSentinel}

// DefaultOnFileRanks orders the historical default flag, sentinel between N and Y.
var DefaultOnFileRanks = []string{"N", DefaultSentinel, "Y"}

var ErrInvalid = errors.New("schema: invalid")

// Columns is the static declaration of how each input column is treated.
// OneHot and Ordinal partition Categorical. Ranks holds, per ordinal column,
// the total ordering of its values; rank = index + 1.
type Columns struct {
	Numeric     []string            `yaml:"numeric"`
	Categorical []string            `yaml:"categorical"`
	OneHot      []string            `yaml:"one_hot"`
	Ordinal     []string            `yaml:"ordinal"`
	Sentinel    string              `yaml:"sentinel"`
	Ranks       map[string][]string `yaml:"ranks"`
	// Strict rejects rows carrying columns the schema does not declare.
	Strict bool `yaml:"strict"`
}

// Default returns the credit-scoring schema.
func Default() Columns {
	return Columns{
		Numeric: []string{
			PersonAge, PersonIncome, PersonEmpLength,
			LoanAmount, LoanIntRate, LoanPercentIncome,
			CBPersonCredHistLength,
		},
		Categorical: []string{PersonHomeOwnership, LoanIntent, LoanGrade, CBPersonDefaultOnFile},
		OneHot:      []string{PersonHomeOwnership, LoanIntent},
		Ordinal:     []string{LoanGrade, CBPersonDefaultOnFile},
		Sentinel:    DefaultSentinel,
		Ranks: map[string][]string{
			LoanGrade:             slices.Clone(LoanGradeRanks),
			CBPersonDefaultOnFile: slices.Clone(DefaultOnFileRanks),
		},
	}
}

// Validate checks that the column groups partition cleanly and that every
// ordinal column has a rank table.
func (c Columns) Validate() error {
	if len(c.Numeric)+len(c.Categorical) == 0 {
		return fmt.Errorf("%w: no columns declared", ErrInvalid)
	}
	if c.Sentinel == "" {
		return fmt.Errorf("%w: empty sentinel", ErrInvalid)
	}
	seen := map[string]string{}
	for _, group := range []struct {
		name string
		cols []string
	}{{"numeric", c.Numeric}, {"categorical", c.Categorical}} {
		for _, col := range group.cols {
			if strings.TrimSpace(col) == "" {
				return fmt.Errorf("%w: empty %s column name", ErrInvalid, group.name)
			}
			if prev, dup := seen[col]; dup {
				return fmt.Errorf("%w: column %q declared as %s and %s", ErrInvalid, col, prev, group.name)
			}
			seen[col] = group.name
		}
	}

	split := map[string]string{}
	for _, col := range c.OneHot {
		split[col] = "one_hot"
	}
	for _, col := range c.Ordinal {
		if _, dup := split[col]; dup {
			return fmt.Errorf("%w: column %q is both one_hot and ordinal", ErrInvalid, col)
		}
		split[col] = "ordinal"
	}
	if len(split) != len(c.OneHot)+len(c.Ordinal) {
		return fmt.Errorf("%w: duplicate one_hot/ordinal column", ErrInvalid)
	}
	for col := range split {
		if seen[col] != "categorical" {
			return fmt.Errorf("%w: %q is not a categorical column", ErrInvalid, col)
		}
	}
	for _, col := range c.Categorical {
		if _, ok := split[col]; !ok {
			return fmt.Errorf("%w: categorical column %q is neither one_hot nor ordinal", ErrInvalid, col)
		}
	}

	for _, col := range c.Ordinal {
		ranks, ok := c.Ranks[col]
		if !ok || len(ranks) == 0 {
			return fmt.Errorf("%w: no rank table for ordinal column %q", ErrInvalid, col)
		}
		if !slices.Contains(ranks, c.Sentinel) {
			return fmt.Errorf("%w: rank table for %q lacks sentinel %q", ErrInvalid, col, c.Sentinel)
		}
		uniq := map[string]struct{}{}
		for _, v := range ranks {
			if _, dup := uniq[v]; dup {
				return fmt.Errorf("%w: rank table for %q repeats %q", ErrInvalid, col, v)
			}
			uniq[v] = struct{}{}
		}
	}
	for col := range c.Ranks {
		if !slices.Contains(c.Ordinal, col) {
			return fmt.Errorf("%w: rank table for non-ordinal column %q", ErrInvalid, col)
		}
	}
	return nil
}

// Rank returns the 1-indexed rank of value in the ordinal column's table.
func (c Columns) Rank(column, value string) (int, bool) {
	i := slices.Index(c.Ranks[column], value)
	if i < 0 {
		return 0, false
	}
	return i + 1, true
}

// Declared reports whether col is a numeric or categorical column.
func (c Columns) Declared(col string) bool {
	return slices.Contains(c.Numeric, col) || slices.Contains(c.Categorical, col)
}

// Fingerprint is a stable digest of everything that influences the feature
// layout. Artifacts record it so a bundle fitted under another schema is
// never applied silently.
func (c Columns) Fingerprint() string {
	h := sha256.New()
	write := func(tag string, vals []string) {
		fmt.Fprintf(h, "%s:%d:", tag, len(vals))
		for _, v := range vals {
			fmt.Fprintf(h, "%d:%s;", len(v), v)
		}
	}
	write("version", []string{Version})
	write("numeric", c.Numeric)
	write("categorical", c.Categorical)
	write("one_hot", c.OneHot)
	write("ordinal", c.Ordinal)
	write("sentinel", []string{c.Sentinel})
	for _, col := range c.Ordinal {
		write("ranks/"+col, c.Ranks[col])
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Clone returns a deep copy.
func (c Columns) Clone() Columns {
	out := c
	out.Numeric = slices.Clone(c.Numeric)
	out.Categorical = slices.Clone(c.Categorical)
	out.OneHot = slices.Clone(c.OneHot)
	out.Ordinal = slices.Clone(c.Ordinal)
	out.Ranks = make(map[string][]string, len(c.Ranks))
	for k, v := range c.Ranks {
		out.Ranks[k] = slices.Clone(v)
	}
	return out
}
