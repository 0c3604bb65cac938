package asorg

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// Row is the flat parquet rendition of one history entry.
type Row struct {
	ASN     uint32 `parquet:"asn"`
	OrgName string `parquet:"org_name,dict"`
	Country string `parquet:"country,dict"`
	Changed string `parquet:"changed"`
	AutName string `parquet:"aut_name"`
	Source  string `parquet:"source,dict"`
}

// parquetBatchRows bounds the rows buffered before each Write call.
const parquetBatchRows = 64 * 1024

// WriteParquet writes m as a parquet table sorted by (asn, changed).
func WriteParquet(w io.Writer, m Map) error {
	pw := parquet.NewGenericWriter[Row](w)

	batch := make([]Row, 0, parquetBatchRows)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := pw.Write(batch); err != nil {
			return fmt.Errorf("write parquet rows: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for _, asn := range m.SortedASNs() {
		for _, e := range m[asn] {
			batch = append(batch, Row{
				ASN:     asn,
				OrgName: e.OrgName,
				Country: e.Country,
				Changed: e.Changed,
				AutName: e.AutName,
				Source:  e.Source,
			})
			if len(batch) == cap(batch) {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}
