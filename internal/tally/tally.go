// Package tally holds per-option vote counts and derives result entries.
//
// Percentages are computed per option independently with
// round-half-away-from-zero (math.Round), so they need not sum to 100.
package tally

import (
	"fmt"
	"math"

	"pollroom/pkg/types"
)

// Tally maps option index to answer count. Counts only ever increase.
type Tally []int

// New returns a zeroed tally with one slot per option
func New(options int) Tally {
	return make(Tally, options)
}

// Increment adds exactly one vote for option.
// An out-of-range index is a programming defect and panics.
func (t Tally) Increment(option int) {
	if option < 0 || option >= len(t) {
		panic(fmt.Sprintf("tally: option %d out of range [0,%d)", option, len(t)))
	}
	t[option]++
}

// Total returns the sum of all counts
func (t Tally) Total() int {
	total := 0
	for _, c := range t {
		total += c
	}
	return total
}

// Percentage returns round(100*count/total), or 0 when total is 0
func Percentage(count, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(count) * 100 / float64(total)))
}

// Aggregate derives one ResultEntry per option. It is pure: the tally is
// only read. IsCorrect is attached only when reveal is true, using the
// correct flags (which may be shorter than options; missing flags are false).
func Aggregate(options []string, counts Tally, correct []bool, reveal bool) []types.ResultEntry {
	if len(counts) != len(options) {
		panic(fmt.Sprintf("tally: %d counts for %d options", len(counts), len(options)))
	}

	total := counts.Total()
	entries := make([]types.ResultEntry, len(options))
	for i, opt := range options {
		entries[i] = types.ResultEntry{
			Option:     opt,
			Count:      counts[i],
			Percentage: Percentage(counts[i], total),
		}
		if reveal {
			isCorrect := i < len(correct) && correct[i]
			entries[i].IsCorrect = &isCorrect
		}
	}
	return entries
}
