package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Valid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Len(t, c.Numeric, 7)
	assert.Equal(t, []string{PersonHomeOwnership, LoanIntent}, c.OneHot)
	assert.Equal(t, []string{LoanGrade, CBPersonDefaultOnFile}, c.Ordinal)
	assert.False(t, c.Declared(LoanStatus))
	assert.True(t, c.Declared(LoanGrade))
}

func TestRank(t *testing.T) {
	c := Default()
	cases := []struct {
		col, val string
		want     int
		ok       bool
	}{
		{LoanGrade, "A", 1, true},
		{LoanGrade, "C", 3, true},
		{LoanGrade, "G", 7, true},
		{LoanGrade, DefaultSentinel, 8, true},
		{CBPersonDefaultOnFile, "N", 1, true},
		{CBPersonDefaultOnFile, DefaultSentinel, 2, true},
		{CBPersonDefaultOnFile, "Y", 3, true},
		{LoanGrade, "c", 0, false},
		{PersonIncome, "A", 0, false},
	}
	for _, tc := range cases {
		got, ok := c.Rank(tc.col, tc.val)
		assert.Equal(t, tc.ok, ok, "%s=%s", tc.col, tc.val)
		assert.Equal(t, tc.want, got, "%s=%s", tc.col, tc.val)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(*Columns){
		"empty":               func(c *Columns) { *c = Columns{Sentinel: "X"} },
		"no sentinel":         func(c *Columns) { c.Sentinel = "" },
		"blank column":        func(c *Columns) { c.Numeric = append(c.Numeric, " ") },
		"numeric categorical": func(c *Columns) { c.Numeric = append(c.Numeric, LoanIntent) },
		"both encodings":      func(c *Columns) { c.OneHot = append(c.OneHot, LoanGrade) },
		"unpartitioned":       func(c *Columns) { c.OneHot = c.OneHot[:1] },
		"encoded numeric":     func(c *Columns) { c.OneHot = append(c.OneHot, PersonAge) },
		"missing ranks":       func(c *Columns) { delete(c.Ranks, LoanGrade) },
		"ranks lack sentinel": func(c *Columns) { c.Ranks[LoanGrade] = []string{"A", "B"} },
		"repeated rank":       func(c *Columns) { c.Ranks[LoanGrade] = []string{"A", "A", DefaultSentinel} },
		"stray ranks":         func(c *Columns) { c.Ranks[LoanIntent] = []string{DefaultSentinel} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := Default()
			mutate(&c)
			require.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := Default()
	b := Default()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint(), 16)

	b.Strict = true
	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "strict does not change the layout")

	b.Ranks[LoanGrade] = []string{"B", "A", "C", "D", "E", "F", "G", DefaultSentinel}
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	c := Default()
	c.Sentinel = "MISSING"
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestClone_IsDeep(t *testing.T) {
	a := Default()
	b := a.Clone()
	b.Numeric[0] = "changed"
	b.Ranks[LoanGrade][0] = "Z"
	assert.Equal(t, PersonAge, a.Numeric[0])
	assert.Equal(t, "A", a.Ranks[LoanGrade][0])
}
