package snapshot

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateOrganization indicates an org_id listed twice in one file.
	ErrDuplicateOrganization = errors.New("duplicate organization")
	// ErrUnknownOrganization indicates an ASN line referencing an org_id
	// missing from the file's organization section.
	ErrUnknownOrganization = errors.New("unknown organization")
	// ErrConflictingOwnership indicates one ASN resolving to differently
	// named organizations within a single file.
	ErrConflictingOwnership = errors.New("conflicting ownership")
	// ErrMalformedLine indicates a line with too few fields or unparsable values.
	ErrMalformedLine = errors.New("malformed line")
	// ErrDuplicateDay indicates two snapshot files for the same day.
	ErrDuplicateDay = errors.New("duplicate snapshot day")
)

// Error carries the location of a data integrity violation in a snapshot.
// It unwraps to one of the sentinel errors above.
type Error struct {
	Kind   error
	Day    string
	Line   int // 1-based, 0 when not tied to a single line
	ASN    uint32
	OrgID  string
	Detail string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	fmt.Fprintf(&b, ": day %s", e.Day)
	if e.Line > 0 {
		fmt.Fprintf(&b, " line %d", e.Line)
	}
	if e.ASN != 0 {
		fmt.Fprintf(&b, " asn %d", e.ASN)
	}
	if e.OrgID != "" {
		fmt.Fprintf(&b, " org_id %q", e.OrgID)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Kind
}
