package snapshot

import (
	"context"
	"fmt"

	"github.com/eunmann/asorg-db/internal/logctx"
)

// DailyFact is the single ownership fact kept for one ASN on one day.
type DailyFact struct {
	ASN     uint32
	OrgName string
	Country string
	Changed string
	AutName string
	Source  string
}

// Resolve joins a snapshot's facts against its organization table and keeps
// one fact per ASN, in first-seen order.
//
// An ASN may be listed by more than one registry in the same file. The fact
// with the greatest `changed` day wins and the first one seen wins a tie.
// All facts for an ASN must resolve to the same organization name.
func Resolve(ctx context.Context, snap *Snapshot) ([]DailyFact, error) {
	log := logctx.FromContext(ctx)

	resolved := make([]DailyFact, 0, len(snap.Facts))
	index := make(map[uint32]int, len(snap.Facts))
	replaced := 0

	for _, f := range snap.Facts {
		org, ok := snap.Orgs[f.OrgID]
		if !ok {
			log.Error().
				Str("day", snap.Day).
				Int("line", f.Line).
				Uint32("asn", f.ASN).
				Str("org_id", f.OrgID).
				Msg("failed to look up organization for ASN")
			return nil, &Error{Kind: ErrUnknownOrganization, Day: snap.Day, Line: f.Line, ASN: f.ASN, OrgID: f.OrgID}
		}

		candidate := DailyFact{
			ASN:     f.ASN,
			OrgName: org.Name,
			Country: org.Country,
			Changed: f.Changed,
			AutName: f.AutName,
			Source:  f.Source,
		}

		i, seen := index[f.ASN]
		if !seen {
			index[f.ASN] = len(resolved)
			resolved = append(resolved, candidate)
			continue
		}

		kept := resolved[i]
		if kept.OrgName != candidate.OrgName {
			return nil, &Error{
				Kind:   ErrConflictingOwnership,
				Day:    snap.Day,
				Line:   f.Line,
				ASN:    f.ASN,
				OrgID:  f.OrgID,
				Detail: fmt.Sprintf("%q (%s) vs %q (%s)", kept.OrgName, kept.Source, candidate.OrgName, candidate.Source),
			}
		}
		if candidate.Changed > kept.Changed {
			resolved[i] = candidate
			replaced++
		}
	}

	log.Debug().
		Str("day", snap.Day).
		Int("asns", len(resolved)).
		Int("multi_registry_replacements", replaced).
		Msg("resolved snapshot")

	return resolved, nil
}
