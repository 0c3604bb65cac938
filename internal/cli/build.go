package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/eunmann/asorg-db/internal/config"
	"github.com/eunmann/asorg-db/pkg/asorg"
	"github.com/eunmann/asorg-db/pkg/build"
	"github.com/eunmann/asorg-db/pkg/fileutil"
	"github.com/eunmann/asorg-db/pkg/format"
	"github.com/eunmann/asorg-db/pkg/logging"
	"github.com/eunmann/asorg-db/pkg/s3fetch"
	"github.com/eunmann/asorg-db/pkg/snapshot"
)

func runBuild(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	cacheDir := fs.String("cache", cfg.CacheDir, "directory holding daily snapshot files")
	s3URI := fs.String("s3", "", "read snapshots from s3://bucket/prefix instead of --cache")
	outDir := fs.String("out", cfg.OutputDir, "output directory")
	tmpDir := fs.String("tmp", cfg.TmpDir, "directory for temporary output files")
	baseDir := fs.String("base", "", "previous output directory to continue from")
	withParquet := fs.Bool("parquet", false, "also write all_as_org_map.parquet")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "snapshots parsed in parallel")
	fs.StringVar(&cfg.Since, "since", cfg.Since, "first snapshot day to fold (YYYYMMDD)")
	fs.StringVar(&cfg.Until, "until", cfg.Until, "last snapshot day to fold (YYYYMMDD)")
	logs := addLogFlags(fs, cfg)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *outDir == "" {
		return errors.New("--out is required")
	}
	if *s3URI == "" && *cacheDir == "" {
		return errors.New("--cache or --s3 is required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logs.init()

	src, err := snapshotSource(ctx, *s3URI, *cacheDir)
	if err != nil {
		return err
	}

	var base *format.Manifest
	agg := asorg.NewAggregator()
	if *baseDir != "" {
		base, agg, err = loadBase(*baseDir)
		if err != nil {
			return err
		}
	}

	res, err := build.NewPipeline(build.Config{
		Concurrency: cfg.Concurrency,
		Since:       cfg.Since,
		Until:       cfg.Until,
	}, src, agg).Run(ctx)
	if err != nil {
		return err
	}

	files, err := writeOutputs(*tmpDir, *outDir, res.Map, *withParquet)
	if err != nil {
		return err
	}
	return format.WriteManifest(*outDir, manifestFor(base, res), files)
}

func snapshotSource(ctx context.Context, s3URI, cacheDir string) (snapshot.Source, error) {
	if s3URI == "" {
		return snapshot.DirSource{Dir: cacheDir}, nil
	}
	bucket, prefix, err := s3fetch.ParseS3URI(s3URI)
	if err != nil {
		return nil, fmt.Errorf("--s3: %w", err)
	}
	client, err := s3fetch.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return s3fetch.NewSource(client, bucket, prefix), nil
}

// loadBase reads a previous build so only newer snapshots are folded. The
// base must carry a manifest: its last_day is the only reliable record of
// the newest folded snapshot, and resuming from an earlier day would refold
// days out of order.
func loadBase(dir string) (*format.Manifest, *asorg.Aggregator, error) {
	man, err := format.ReadManifest(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("--base %s has no %s: %w", dir, format.ManifestFile, err)
		}
		return nil, nil, fmt.Errorf("base manifest: %w", err)
	}
	if err := format.VerifyManifest(dir, man); err != nil {
		return nil, nil, fmt.Errorf("base manifest: %w", err)
	}
	if man.LastDay == "" {
		return nil, nil, fmt.Errorf("base manifest in %s has no last_day", dir)
	}

	f, err := os.Open(filepath.Join(dir, format.MapFile))
	if err != nil {
		return nil, nil, fmt.Errorf("open base map: %w", err)
	}
	defer f.Close()

	m, err := asorg.ReadJSON(f)
	if err != nil {
		return nil, nil, fmt.Errorf("read base map: %w", err)
	}

	logging.L().Info().Str("dir", dir).Str("resume_after", man.LastDay).
		Int("asns", len(m)).Msg("resuming from base build")

	agg, err := asorg.NewAggregatorFrom(m, man.LastDay)
	if err != nil {
		return nil, nil, fmt.Errorf("base map: %w", err)
	}
	return man, agg, nil
}

func writeOutputs(tmpDir, outDir string, m asorg.Map, withParquet bool) ([]string, error) {
	if err := fileutil.CleanupTmpFiles(tmpDir); err != nil {
		return nil, err
	}

	err := fileutil.WriteTmpThenMove(tmpDir, filepath.Join(outDir, format.MapFile), func(w io.Writer) error {
		return asorg.WriteJSON(w, m)
	})
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", format.MapFile, err)
	}
	files := []string{format.MapFile}

	if withParquet {
		err := fileutil.WriteTmpThenMove(tmpDir, filepath.Join(outDir, format.ParquetFile), func(w io.Writer) error {
			return asorg.WriteParquet(w, m)
		})
		if err != nil {
			return nil, fmt.Errorf("write %s: %w", format.ParquetFile, err)
		}
		files = append(files, format.ParquetFile)
	}
	return files, nil
}

func manifestFor(base *format.Manifest, res *build.Result) format.Manifest {
	man := format.Manifest{
		FirstDay:  res.FirstDay,
		LastDay:   res.LastDay,
		Snapshots: res.Snapshots,
		ASNs:      len(res.Map),
		Entries:   res.Map.EntryCount(),
	}
	if base == nil {
		return man
	}

	man.FirstDay = base.FirstDay
	man.Snapshots += base.Snapshots
	// The base's last day is folded again on resume.
	if res.Snapshots > 0 && res.FirstDay == base.LastDay {
		man.Snapshots--
	}
	if man.LastDay == "" {
		man.LastDay = base.LastDay
	}
	return man
}
