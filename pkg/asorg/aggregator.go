package asorg

import (
	"fmt"

	"github.com/eunmann/asorg-db/pkg/snapshot"
)

// FoldStats counts what one Fold call did.
type FoldStats struct {
	Facts      int // facts offered
	Appended   int // entries inserted before compaction
	Duplicates int // facts already present verbatim
	Compacted  int // entries removed by compaction
	NewASNs    int // ASNs seen for the first time
}

func (s *FoldStats) add(o FoldStats) {
	s.Facts += o.Facts
	s.Appended += o.Appended
	s.Duplicates += o.Duplicates
	s.Compacted += o.Compacted
	s.NewASNs += o.NewASNs
}

// Aggregator folds resolved daily facts into a growing Map.
//
// Days must be folded in non-decreasing order. Folding the same day again
// is allowed and leaves the map unchanged. An Aggregator is not safe for
// concurrent use.
type Aggregator struct {
	m       Map
	lastDay string
	days    int
	total   FoldStats
}

// NewAggregator returns an aggregator over an empty map.
func NewAggregator() *Aggregator {
	return &Aggregator{m: make(Map)}
}

// NewAggregatorFrom continues from a previously built map whose newest
// folded snapshot was lastDay. Every history in m must be valid.
func NewAggregatorFrom(m Map, lastDay string) (*Aggregator, error) {
	if lastDay != "" && !snapshot.ValidDay(lastDay) {
		return nil, fmt.Errorf("invalid last day %q", lastDay)
	}
	for asn, h := range m {
		if err := h.Validate(); err != nil {
			return nil, fmt.Errorf("asn %d: %w", asn, err)
		}
	}
	if m == nil {
		m = make(Map)
	}
	return &Aggregator{m: m, lastDay: lastDay}, nil
}

// Fold merges one day's resolved facts into the map. Each fact's entry is
// skipped if already present in its ASN's history, otherwise appended, after
// which the history is re-sorted by Changed and compacted.
func (a *Aggregator) Fold(day string, facts []snapshot.DailyFact) (FoldStats, error) {
	if !snapshot.ValidDay(day) {
		return FoldStats{}, fmt.Errorf("fold: invalid day %q", day)
	}
	if day < a.lastDay {
		return FoldStats{}, fmt.Errorf("%w: %s after %s", ErrOutOfOrder, day, a.lastDay)
	}

	stats := FoldStats{Facts: len(facts)}
	for _, f := range facts {
		entry := EntryFromFact(f)

		h, known := a.m[f.ASN]
		if !known {
			stats.NewASNs++
		}
		if h.Contains(entry) {
			stats.Duplicates++
			continue
		}

		h = append(h, entry)
		sortByChanged(h)
		compacted := Compact(h)

		stats.Appended++
		stats.Compacted += len(h) - len(compacted)
		a.m[f.ASN] = compacted
	}

	a.lastDay = day
	a.days++
	a.total.add(stats)
	return stats, nil
}

// Map returns the map being built. Callers must not modify it while
// folding continues.
func (a *Aggregator) Map() Map {
	return a.m
}

// LastDay returns the newest folded day, or "" before the first fold.
func (a *Aggregator) LastDay() string {
	return a.lastDay
}

// Days returns how many Fold calls succeeded.
func (a *Aggregator) Days() int {
	return a.days
}

// Totals returns the accumulated stats of all Fold calls.
func (a *Aggregator) Totals() FoldStats {
	return a.total
}
