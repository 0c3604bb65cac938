package asorg

// Owner is the organization in effect for an ASN on a given day.
type Owner struct {
	OrgName string
	Country string
	AutName string
	Changed string
}

const unknownCountry = "ZZ"

// reservedOwner returns the fixed owner of special-purpose ASN ranges.
func reservedOwner(asn uint32) (Owner, bool) {
	switch {
	// RFC 5398 and RFC 6793 documentation ranges.
	case asn >= 64496 && asn <= 64511, asn >= 65536 && asn <= 65551:
		return Owner{OrgName: "Reserved for use in documentation and sample code", Country: unknownCountry}, true
	// RFC 1930 and RFC 6996 private use.
	case asn >= 64512 && asn <= 65534, asn >= 4200000000 && asn <= 4294967294:
		return Owner{OrgName: "Reserved for private use", Country: unknownCountry}, true
	// RFC 7300 and IANA reserved.
	case asn == 65535, asn >= 65552 && asn <= 131071, asn == 4294967295:
		return Owner{OrgName: "Reserved", Country: unknownCountry}, true
	}
	return Owner{}, false
}

// Lookup returns the owner of asn as of day (YYYYMMDD): the last entry
// changed on or before day. When every entry is newer than day the oldest
// entry is returned. Unknown ASNs are reported as "Unassigned".
func Lookup(m Map, asn uint32, day string) (Owner, bool) {
	if o, ok := reservedOwner(asn); ok {
		return o, true
	}

	h := m[asn]
	if len(h) == 0 {
		return Owner{OrgName: "Unassigned", Country: unknownCountry}, false
	}

	e := h[0]
	for _, p := range h {
		if day != "" && p.Changed > day {
			break
		}
		e = p
	}
	return Owner{OrgName: e.OrgName, Country: e.Country, AutName: e.AutName, Changed: e.Changed}, true
}
