package asorg

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// entryFields is the width of a serialized entry:
// [org_name, country, changed, aut_name, source].
const entryFields = 5

// MarshalJSON renders the entry as a positional array.
func (e HistoryEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([entryFields]string{e.OrgName, e.Country, e.Changed, e.AutName, e.Source})
}

// UnmarshalJSON parses a positional array written by MarshalJSON.
func (e *HistoryEntry) UnmarshalJSON(data []byte) error {
	var fields []string
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if len(fields) != entryFields {
		return fmt.Errorf("history entry has %d fields, want %d", len(fields), entryFields)
	}
	*e = HistoryEntry{
		OrgName: fields[0],
		Country: fields[1],
		Changed: fields[2],
		AutName: fields[3],
		Source:  fields[4],
	}
	return nil
}

// WriteJSON writes m as a JSON object keyed by ASN string, with keys in
// ascending numeric ASN order. Identical maps produce identical bytes.
func WriteJSON(w io.Writer, m Map) error {
	bw := bufio.NewWriterSize(w, 1<<20)

	if err := bw.WriteByte('{'); err != nil {
		return err
	}
	for i, asn := range m.SortedASNs() {
		if i > 0 {
			bw.WriteByte(',')
		}
		bw.WriteByte('"')
		bw.WriteString(strconv.FormatUint(uint64(asn), 10))
		bw.WriteString(`":`)

		history, err := json.Marshal(m[asn])
		if err != nil {
			return fmt.Errorf("marshal asn %d: %w", asn, err)
		}
		if _, err := bw.Write(history); err != nil {
			return err
		}
	}
	bw.WriteString("}\n")

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush map: %w", err)
	}
	return nil
}

// ReadJSON loads a document written by WriteJSON and validates every history.
func ReadJSON(r io.Reader) (Map, error) {
	var raw map[string]History
	if err := json.NewDecoder(bufio.NewReader(r)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode map: %w", err)
	}

	m := make(Map, len(raw))
	for key, h := range raw {
		asn, err := strconv.ParseUint(key, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid asn key %q: %w", key, err)
		}
		if err := h.Validate(); err != nil {
			return nil, fmt.Errorf("asn %d: %w", asn, err)
		}
		m[uint32(asn)] = h
	}
	return m, nil
}
