// Package format describes the build output directory: the manifest that
// records what was built from which snapshots, with a checksum per file.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/eunmann/asorg-db/pkg/fileutil"
)

// ManifestVersion is the current manifest format version.
const ManifestVersion = 1

// Output file names inside the output directory.
const (
	ManifestFile = "manifest.json"
	MapFile      = "all_as_org_map.json"
	ParquetFile  = "all_as_org_map.parquet"
)

// Manifest describes one build of the AS organization map.
type Manifest struct {
	Version   int                 `json:"version"`
	CreatedAt time.Time           `json:"created_at"`
	FirstDay  string              `json:"first_day"`
	LastDay   string              `json:"last_day"`
	Snapshots int                 `json:"snapshots"`
	ASNs      int                 `json:"asns"`
	Entries   int                 `json:"entries"`
	Files     map[string]FileInfo `json:"files"`
}

// FileInfo describes a single output file.
type FileInfo struct {
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"` // SHA-256 hex
}

// WriteManifest checksums the named files in dir and writes manifest.json
// next to them. Missing files are an error.
func WriteManifest(dir string, m Manifest, files []string) error {
	m.Version = ManifestVersion
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.Files = make(map[string]FileInfo, len(files))

	for _, name := range files {
		sum, size, err := fileutil.SHA256File(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("checksum %s: %w", name, err)
		}
		m.Files[name] = FileInfo{Size: size, Checksum: sum}
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	err = fileutil.WriteTmpThenMove(dir, filepath.Join(dir, ManifestFile), func(w io.Writer) error {
		_, err := w.Write(append(data, '\n'))
		return err
	})
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest reads manifest.json from dir.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	if m.Version != ManifestVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersionMismatch, m.Version)
	}
	return &m, nil
}

// VerifyManifest checks every listed file's size and checksum.
func VerifyManifest(dir string, m *Manifest) error {
	for _, name := range m.FileNames() {
		info := m.Files[name]
		sum, size, err := fileutil.SHA256File(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("file %s: %w", name, err)
		}
		if size != info.Size {
			return fmt.Errorf("file %s: %w (got %d, want %d)", name, ErrSizeMismatch, size, info.Size)
		}
		if sum != info.Checksum {
			return fmt.Errorf("file %s: %w", name, ErrChecksumMismatch)
		}
	}
	return nil
}

// FileNames returns the manifest's file names in sorted order.
func (m *Manifest) FileNames() []string {
	names := make([]string, 0, len(m.Files))
	for name := range m.Files {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
