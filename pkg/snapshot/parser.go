// Package snapshot parses daily RIR as-organizations snapshot files and
// resolves them into one ownership fact per ASN for the snapshot's day.
package snapshot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/eunmann/asorg-db/internal/logctx"
)

// asnSectionMarker starts the ASN section; everything before it is the
// organization section.
const asnSectionMarker = "# format:aut"

const (
	minOrgFields = 4
	minASNFields = 5
)

// Organization is one line of the organization section.
type Organization struct {
	ID      string
	Name    string
	Country string
}

// Fact is one raw line of the ASN section.
type Fact struct {
	ASN     uint32
	Changed string
	AutName string
	OrgID   string
	Source  string
	Line    int
}

// Snapshot is the parsed content of one daily file.
type Snapshot struct {
	Day   string
	Orgs  map[string]Organization
	Facts []Fact
}

// Parse reads one decompressed snapshot file for the given day.
//
// Empty `changed` fields default to day. Every ASN line must reference an
// organization listed earlier in the same file.
func Parse(ctx context.Context, r io.Reader, day string) (*Snapshot, error) {
	if !ValidDay(day) {
		return nil, fmt.Errorf("parse snapshot: invalid day %q", day)
	}
	log := logctx.FromContext(ctx)

	snap := &Snapshot{
		Day:  day,
		Orgs: make(map[string]Organization),
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	inASNSection := false
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, asnSectionMarker) {
			inASNSection = true
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "|")
		if !inASNSection {
			org, err := parseOrganization(fields)
			if err != nil {
				return nil, &Error{Kind: ErrMalformedLine, Day: day, Line: lineNo, Detail: err.Error()}
			}
			if _, dup := snap.Orgs[org.ID]; dup {
				return nil, &Error{Kind: ErrDuplicateOrganization, Day: day, Line: lineNo, OrgID: org.ID}
			}
			snap.Orgs[org.ID] = org
			continue
		}

		fact, err := parseFact(fields, day)
		if err != nil {
			return nil, &Error{Kind: ErrMalformedLine, Day: day, Line: lineNo, Detail: err.Error()}
		}
		fact.Line = lineNo
		if _, ok := snap.Orgs[fact.OrgID]; !ok {
			log.Error().
				Str("day", day).
				Int("line", lineNo).
				Uint32("asn", fact.ASN).
				Str("org_id", fact.OrgID).
				Str("changed", fact.Changed).
				Str("aut_name", fact.AutName).
				Str("source", fact.Source).
				Msg("failed to look up organization for ASN")
			return nil, &Error{Kind: ErrUnknownOrganization, Day: day, Line: lineNo, ASN: fact.ASN, OrgID: fact.OrgID}
		}
		snap.Facts = append(snap.Facts, fact)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", day, err)
	}

	log.Debug().
		Str("day", day).
		Int("orgs", len(snap.Orgs)).
		Int("facts", len(snap.Facts)).
		Msg("parsed snapshot")

	return snap, nil
}

func parseOrganization(fields []string) (Organization, error) {
	if len(fields) < minOrgFields {
		return Organization{}, fmt.Errorf("organization line has %d fields, want at least %d", len(fields), minOrgFields)
	}
	return Organization{
		ID:      fields[0],
		Name:    fields[2],
		Country: fields[3],
	}, nil
}

func parseFact(fields []string, day string) (Fact, error) {
	if len(fields) < minASNFields {
		return Fact{}, fmt.Errorf("ASN line has %d fields, want at least %d", len(fields), minASNFields)
	}

	asn, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return Fact{}, fmt.Errorf("parse asn %q: %w", fields[0], err)
	}

	changed := fields[1]
	if changed == "" {
		changed = day
	} else if !ValidDay(changed) {
		return Fact{}, fmt.Errorf("invalid changed date %q", changed)
	}

	return Fact{
		ASN:     uint32(asn),
		Changed: changed,
		AutName: fields[2],
		OrgID:   fields[3],
		Source:  fields[len(fields)-1],
	}, nil
}
