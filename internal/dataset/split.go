// Package dataset splits labelled record sets for training.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"

	"creditscore/internal/preprocess"
)

var ErrTooFewRows = errors.New("dataset: too few rows to split")

// Part is a record set with its labels, row-aligned.
type Part struct {
	Records preprocess.RecordSet
	Labels  []int
}

func (p Part) Len() int { return len(p.Records) }

// Partition is the train/valid/test split of one extraction.
type Partition struct {
	Train, Valid, Test Part
}

// SplitStratified draws ceil(testSize*n) rows into the test side while
// keeping each label's share as close as possible on both sides. Both
// sides keep the input row order. The same seed always yields the same
// split.
func SplitStratified(labels []int, testSize float64, seed uint64) (train, test []int, err error) {
	n := len(labels)
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("dataset: test size %v outside (0,1)", testSize)
	}
	nTest := int(math.Ceil(testSize * float64(n)))
	if n < 2 || nTest >= n {
		return nil, nil, fmt.Errorf("%w: %d rows at test size %v", ErrTooFewRows, n, testSize)
	}

	byLabel := map[int][]int{}
	for i, l := range labels {
		byLabel[l] = append(byLabel[l], i)
	}
	keys := make([]int, 0, len(byLabel))
	for l := range byLabel {
		keys = append(keys, l)
	}
	slices.Sort(keys)

	// Largest-remainder allocation of nTest across labels.
	type share struct {
		label int
		take  int
		rem   float64
	}
	shares := make([]share, len(keys))
	given := 0
	for i, l := range keys {
		exact := float64(len(byLabel[l])) * float64(nTest) / float64(n)
		take := int(math.Floor(exact))
		shares[i] = share{label: l, take: take, rem: exact - float64(take)}
		given += take
	}
	order := make([]int, len(shares))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return shares[order[a]].rem > shares[order[b]].rem })
	for _, i := range order {
		if given == nTest {
			break
		}
		if shares[i].take < len(byLabel[shares[i].label]) {
			shares[i].take++
			given++
		}
	}

	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for _, s := range shares {
		rows := slices.Clone(byLabel[s.label])
		r.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		test = append(test, rows[:s.take]...)
		train = append(train, rows[s.take:]...)
	}
	slices.Sort(train)
	slices.Sort(test)
	return train, test, nil
}

// Pick returns the records and labels at idx.
func Pick(rs preprocess.RecordSet, labels []int, idx []int) Part {
	p := Part{Records: make(preprocess.RecordSet, len(idx)), Labels: make([]int, len(idx))}
	for i, j := range idx {
		p.Records[i] = rs[j]
		p.Labels[i] = labels[j]
	}
	return p
}

// ThreeWay splits rows into train and held-out sets, then the held-out rows
// into valid and test, validShare of them going to valid.
func ThreeWay(rs preprocess.RecordSet, labels []int, testSize, validShare float64, seed uint64) (Partition, error) {
	if len(rs) != len(labels) {
		return Partition{}, fmt.Errorf("dataset: %d records vs %d labels", len(rs), len(labels))
	}
	trainIdx, restIdx, err := SplitStratified(labels, testSize, seed)
	if err != nil {
		return Partition{}, fmt.Errorf("train split: %w", err)
	}
	rest := Pick(rs, labels, restIdx)
	validIdx, testIdx, err := SplitStratified(rest.Labels, 1-validShare, seed)
	if err != nil {
		return Partition{}, fmt.Errorf("valid split: %w", err)
	}
	return Partition{
		Train: Pick(rs, labels, trainIdx),
		Valid: Pick(rest.Records, rest.Labels, validIdx),
		Test:  Pick(rest.Records, rest.Labels, testIdx),
	}, nil
}
