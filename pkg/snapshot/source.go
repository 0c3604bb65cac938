package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Ref names one snapshot file available from a Source.
type Ref struct {
	Day  string
	Name string
}

// Source yields snapshot files. List may return refs in any order; callers
// sort them by day before folding.
type Source interface {
	List(ctx context.Context) ([]Ref, error)
	// Open returns the raw (possibly compressed) file content.
	Open(ctx context.Context, ref Ref) (io.ReadCloser, error)
}

// DirSource reads snapshot files from a local directory such as
// cache_dir/as-organizations.
type DirSource struct {
	Dir string
}

// List returns every file in the directory whose name starts with a valid day.
func (s DirSource) List(ctx context.Context) ([]Ref, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("list snapshot dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		names = append(names, e.Name())
	}
	return RefsFromNames(names)
}

// Open opens the named file in the directory.
func (s DirSource) Open(_ context.Context, ref Ref) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.Dir, ref.Name))
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	return f, nil
}

// RefsFromNames turns file names into refs, skipping names without a day
// prefix. Two names for the same day are rejected.
func RefsFromNames(names []string) ([]Ref, error) {
	refs := make([]Ref, 0, len(names))
	seen := make(map[string]string, len(names))
	for _, name := range names {
		day, ok := DayFromName(name)
		if !ok {
			continue
		}
		if prev, dup := seen[day]; dup {
			return nil, fmt.Errorf("%w: %s and %s", ErrDuplicateDay, prev, name)
		}
		seen[day] = name
		refs = append(refs, Ref{Day: day, Name: name})
	}
	return refs, nil
}

// SortRefs orders refs by ascending day.
func SortRefs(refs []Ref) {
	slices.SortFunc(refs, func(a, b Ref) int {
		return strings.Compare(a.Day, b.Day)
	})
}

// FilterRefs keeps refs with since <= day <= until. Empty bounds are open.
func FilterRefs(refs []Ref, since, until string) []Ref {
	out := refs[:0]
	for _, r := range refs {
		if since != "" && r.Day < since {
			continue
		}
		if until != "" && r.Day > until {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Decompress wraps r according to the file name's extension: ".gz" is gzip,
// ".zst" is zstd, anything else is returned as is. Closing the result closes r.
func Decompress(r io.ReadCloser, name string) (io.ReadCloser, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		gzr, err := gzip.NewReader(r)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		return &stackedReader{Reader: gzr, closers: []io.Closer{gzr, r}}, nil
	case strings.HasSuffix(lower, ".zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		return &stackedReader{Reader: zr, closers: []io.Closer{zstdCloser{zr}, r}}, nil
	default:
		return r, nil
	}
}

// stackedReader closes decoder layers before the underlying stream.
type stackedReader struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedReader) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type zstdCloser struct {
	d *zstd.Decoder
}

func (z zstdCloser) Close() error {
	z.d.Close()
	return nil
}

// Load opens, decompresses, parses and resolves one snapshot.
func Load(ctx context.Context, src Source, ref Ref) ([]DailyFact, error) {
	raw, err := src.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	rc, err := Decompress(raw, ref.Name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref.Name, err)
	}
	defer rc.Close()

	snap, err := Parse(ctx, rc, ref.Day)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref.Name, err)
	}
	facts, err := Resolve(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref.Name, err)
	}
	return facts, nil
}
