package asorg

import (
	"context"
	"errors"
	"math/rand/v2"
	"reflect"
	"strings"
	"testing"

	"github.com/eunmann/asorg-db/pkg/snapshot"
)

// resolveDay parses and resolves snapshot text for day.
func resolveDay(t *testing.T, day, text string) []snapshot.DailyFact {
	t.Helper()
	ctx := context.Background()
	snap, err := snapshot.Parse(ctx, strings.NewReader(text), day)
	if err != nil {
		t.Fatalf("Parse %s: %v", day, err)
	}
	facts, err := snapshot.Resolve(ctx, snap)
	if err != nil {
		t.Fatalf("Resolve %s: %v", day, err)
	}
	return facts
}

func mustFold(t *testing.T, a *Aggregator, day string, facts []snapshot.DailyFact) FoldStats {
	t.Helper()
	stats, err := a.Fold(day, facts)
	if err != nil {
		t.Fatalf("Fold %s: %v", day, err)
	}
	return stats
}

func TestFold_SameOwnerCollapses(t *testing.T) {
	a := NewAggregator()
	mustFold(t, a, "20200101", resolveDay(t, "20200101", "O1|x|Acme|US|ARIN\n# format:aut\n1234|20200101|ACME-AS|O1|x|ARIN\n"))
	mustFold(t, a, "20200601", resolveDay(t, "20200601", "O1|x|Acme|US|ARIN\n# format:aut\n1234|20200601|ACME-AS|O1|x|ARIN\n"))

	want := History{{OrgName: "Acme", Country: "US", Changed: "20200101", AutName: "ACME-AS", Source: "ARIN"}}
	if got := a.Map()[1234]; !reflect.DeepEqual(got, want) {
		t.Errorf("history = %+v, want %+v", got, want)
	}
}

func TestFold_OwnershipChange(t *testing.T) {
	a := NewAggregator()
	mustFold(t, a, "20200101", resolveDay(t, "20200101", "O1|x|Acme|US|ARIN\n# format:aut\n1234||ACME|O1|x|ARIN\n"))
	mustFold(t, a, "20210101", resolveDay(t, "20210101", "O2|x|Globex|US|ARIN\n# format:aut\n1234||GLOBEX|O2|x|ARIN\n"))

	h := a.Map()[1234]
	if len(h) != 2 {
		t.Fatalf("history = %+v, want 2 entries", h)
	}
	if h[0].OrgName != "Acme" || h[0].Changed != "20200101" {
		t.Errorf("h[0] = %+v", h[0])
	}
	if h[1].OrgName != "Globex" || h[1].Changed != "20210101" {
		t.Errorf("h[1] = %+v", h[1])
	}
}

func TestFold_OwnershipChangeAndBack(t *testing.T) {
	a := NewAggregator()
	days := []struct{ day, org string }{
		{"20200101", "O1|x|Acme|US|ARIN"},
		{"20200201", "O1|x|Acme|US|ARIN"},
		{"20200301", "O1|x|Globex|US|ARIN"},
		{"20200401", "O1|x|Acme|US|ARIN"},
	}
	for _, d := range days {
		mustFold(t, a, d.day, resolveDay(t, d.day, d.org+"\n# format:aut\n9||N|O1|x|ARIN\n"))
	}

	var got []string
	for _, e := range a.Map()[9] {
		got = append(got, e.OrgName+"@"+e.Changed)
	}
	want := []string{"Acme@20200101", "Globex@20200301", "Acme@20200401"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("history = %v, want %v", got, want)
	}
}

func TestFold_Idempotent(t *testing.T) {
	day1 := resolveDay(t, "20200101", "O1|x|Acme|US|ARIN\n# format:aut\n1||A|O1|x|ARIN\n2||B|O1|x|ARIN\n")
	day2 := resolveDay(t, "20200601", "O2|x|Globex|DE|RIPE\n# format:aut\n1||A|O2|x|RIPE\n2|20200101|B|O2|x|RIPE\n")

	once := NewAggregator()
	mustFold(t, once, "20200101", day1)
	mustFold(t, once, "20200601", day2)

	twice := NewAggregator()
	mustFold(t, twice, "20200101", day1)
	mustFold(t, twice, "20200101", day1)
	mustFold(t, twice, "20200601", day2)
	stats := mustFold(t, twice, "20200601", day2)

	if !reflect.DeepEqual(once.Map(), twice.Map()) {
		t.Errorf("refolding changed the map:\nonce:  %+v\ntwice: %+v", once.Map(), twice.Map())
	}
	if stats.NewASNs != 0 {
		t.Errorf("refold reported %d new ASNs", stats.NewASNs)
	}
}

func TestFold_OutOfOrderRejected(t *testing.T) {
	a := NewAggregator()
	mustFold(t, a, "20200601", nil)
	_, err := a.Fold("20200101", nil)
	if !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("err = %v, want ErrOutOfOrder", err)
	}
	if a.LastDay() != "20200601" {
		t.Errorf("LastDay = %s after rejected fold", a.LastDay())
	}
}

func TestFold_InvalidDay(t *testing.T) {
	if _, err := NewAggregator().Fold("2020-01-01", nil); err == nil {
		t.Fatal("expected error for invalid day")
	}
}

func TestFold_Stats(t *testing.T) {
	a := NewAggregator()
	s := mustFold(t, a, "20200101", resolveDay(t, "20200101", "O1|x|Acme|US|ARIN\n# format:aut\n1||A|O1|x|ARIN\n2||B|O1|x|ARIN\n"))
	if s.Facts != 2 || s.Appended != 2 || s.NewASNs != 2 || s.Compacted != 0 {
		t.Errorf("day1 stats = %+v", s)
	}

	s = mustFold(t, a, "20200201", resolveDay(t, "20200201", "O1|x|Acme|US|ARIN\n# format:aut\n1||A|O1|x|ARIN\n2|20200101|B|O1|x|ARIN\n"))
	if s.Appended != 1 || s.Compacted != 1 || s.Duplicates != 1 || s.NewASNs != 0 {
		t.Errorf("day2 stats = %+v", s)
	}
	if tot := a.Totals(); tot.Facts != 4 || a.Days() != 2 {
		t.Errorf("totals = %+v days = %d", tot, a.Days())
	}
}

func TestNewAggregatorFrom(t *testing.T) {
	base := Map{1: {{OrgName: "Acme", Country: "US", Changed: "20200101"}}}
	a, err := NewAggregatorFrom(base, "20200101")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Fold("20191231", nil); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("err = %v, want ErrOutOfOrder", err)
	}
	mustFold(t, a, "20200201", []snapshot.DailyFact{{ASN: 1, OrgName: "Globex", Country: "US", Changed: "20200201"}})
	if len(a.Map()[1]) != 2 {
		t.Errorf("history = %+v", a.Map()[1])
	}

	bad := Map{1: {{OrgName: "A", Changed: "20200101"}, {OrgName: "A", Changed: "20200201"}}}
	if _, err := NewAggregatorFrom(bad, ""); !errors.Is(err, ErrInvalidHistory) {
		t.Errorf("err = %v, want ErrInvalidHistory", err)
	}
}

// randomDays builds snapshot days with a small pool of owners so that
// ownership flips back and forth.
func randomDays(r *rand.Rand, n int) (days []string, facts [][]snapshot.DailyFact) {
	owners := []struct{ name, cc string }{{"Acme", "US"}, {"Acme", "CA"}, {"Globex", "US"}, {"Initech", "DE"}}
	for i := range n {
		day := "2020" + twoDigits(1+i/28) + twoDigits(1+i%28)
		var batch []snapshot.DailyFact
		for asn := uint32(1); asn <= 20; asn++ {
			if r.IntN(3) == 0 {
				continue
			}
			o := owners[r.IntN(len(owners))]
			changed := day
			if r.IntN(2) == 0 {
				changed = "2019" + twoDigits(1+r.IntN(12)) + "01"
			}
			batch = append(batch, snapshot.DailyFact{
				ASN: asn, OrgName: o.name, Country: o.cc, Changed: changed,
				AutName: "AS" + twoDigits(int(asn)), Source: "ARIN",
			})
		}
		days = append(days, day)
		facts = append(facts, batch)
	}
	return days, facts
}

func twoDigits(n int) string {
	return string([]byte{byte('0' + n/10), byte('0' + n%10)})
}

func TestFold_Invariants(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	days, facts := randomDays(r, 120)

	a := NewAggregator()
	observed := make(map[uint32]map[[2]string]bool)
	for i, day := range days {
		mustFold(t, a, day, facts[i])
		for _, f := range facts[i] {
			if observed[f.ASN] == nil {
				observed[f.ASN] = make(map[[2]string]bool)
			}
			observed[f.ASN][[2]string{f.OrgName, f.Country}] = true
		}
	}

	for asn, h := range a.Map() {
		if err := h.Validate(); err != nil {
			t.Errorf("asn %d: %v", asn, err)
		}
		kept := make(map[[2]string]bool)
		for _, e := range h {
			kept[[2]string{e.OrgName, e.Country}] = true
		}
		for owner := range observed[asn] {
			if !kept[owner] {
				t.Errorf("asn %d lost owner %v", asn, owner)
			}
		}
	}
}

func TestFold_SortedInputMatchesShuffledThenSorted(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	days, facts := randomDays(r, 40)

	sorted := NewAggregator()
	for i, day := range days {
		mustFold(t, sorted, day, facts[i])
	}

	idx := r.Perm(len(days))
	refs := make([]snapshot.Ref, len(idx))
	byDay := make(map[string][]snapshot.DailyFact)
	for i, j := range idx {
		refs[i] = snapshot.Ref{Day: days[j]}
		byDay[days[j]] = facts[j]
	}
	snapshot.SortRefs(refs)

	resorted := NewAggregator()
	for _, ref := range refs {
		mustFold(t, resorted, ref.Day, byDay[ref.Day])
	}

	if !reflect.DeepEqual(sorted.Map(), resorted.Map()) {
		t.Error("sorting shuffled input did not reproduce the sorted result")
	}
}
