// Package asorg maintains the per-ASN organization ownership history built
// from daily snapshots.
package asorg

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/eunmann/asorg-db/pkg/snapshot"
)

var (
	// ErrOutOfOrder indicates a snapshot folded before an already folded day.
	ErrOutOfOrder = errors.New("snapshot day out of order")
	// ErrInvalidHistory indicates a history breaking its ordering or
	// compaction invariants.
	ErrInvalidHistory = errors.New("invalid history")
)

// HistoryEntry is one point in an ASN's ownership timeline.
// Entries are compared with == over all fields.
type HistoryEntry struct {
	OrgName string
	Country string
	Changed string
	AutName string
	Source  string
}

// EntryFromFact builds the history entry for a resolved daily fact.
func EntryFromFact(f snapshot.DailyFact) HistoryEntry {
	return HistoryEntry{
		OrgName: f.OrgName,
		Country: f.Country,
		Changed: f.Changed,
		AutName: f.AutName,
		Source:  f.Source,
	}
}

// SameOwner reports whether two entries name the same (organization, country).
func (e HistoryEntry) SameOwner(o HistoryEntry) bool {
	return e.OrgName == o.OrgName && e.Country == o.Country
}

// History is an ASN's timeline, ascending by Changed.
type History []HistoryEntry

// Contains reports whether an identical entry is present.
func (h History) Contains(e HistoryEntry) bool {
	return slices.Contains(h, e)
}

// Compact drops every entry whose owner equals the last kept entry's owner.
// The input must already be sorted by Changed. The first entry of each run
// of same-owner entries is kept, so the earliest date of every ownership
// period survives.
func Compact(h History) History {
	if len(h) == 0 {
		return h
	}
	out := make(History, 1, len(h))
	out[0] = h[0]
	last := h[0]
	for _, e := range h[1:] {
		if e.SameOwner(last) {
			continue
		}
		out = append(out, e)
		last = e
	}
	return out
}

// sortByChanged stable-sorts h in place.
func sortByChanged(h History) {
	slices.SortStableFunc(h, func(a, b HistoryEntry) int {
		return strings.Compare(a.Changed, b.Changed)
	})
}

// Validate checks that Changed is non-decreasing, no two adjacent entries
// share an owner, and no entry appears twice.
func (h History) Validate() error {
	seen := make(map[HistoryEntry]struct{}, len(h))
	for i, e := range h {
		if _, dup := seen[e]; dup {
			return fmt.Errorf("%w: entry %d duplicates an earlier entry", ErrInvalidHistory, i)
		}
		seen[e] = struct{}{}
		if i == 0 {
			continue
		}
		prev := h[i-1]
		if e.Changed < prev.Changed {
			return fmt.Errorf("%w: entry %d changed %s before %s", ErrInvalidHistory, i, e.Changed, prev.Changed)
		}
		if e.SameOwner(prev) {
			return fmt.Errorf("%w: entries %d and %d share owner %q/%s", ErrInvalidHistory, i-1, i, e.OrgName, e.Country)
		}
	}
	return nil
}

// Map holds the history of every ASN seen so far.
type Map map[uint32]History

// SortedASNs returns the map's ASNs in ascending numeric order.
func (m Map) SortedASNs() []uint32 {
	asns := make([]uint32, 0, len(m))
	for asn := range m {
		asns = append(asns, asn)
	}
	slices.Sort(asns)
	return asns
}

// EntryCount returns the total number of history entries.
func (m Map) EntryCount() int {
	n := 0
	for _, h := range m {
		n += len(h)
	}
	return n
}
