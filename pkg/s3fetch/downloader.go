package s3fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/eunmann/asorg-db/pkg/fileutil"
	"github.com/eunmann/asorg-db/pkg/logging"
	"github.com/eunmann/asorg-db/pkg/snapshot"
)

// DownloaderConfig configures the S3 download manager.
type DownloaderConfig struct {
	// Files is the number of objects downloaded in parallel (default 4).
	Files int
	// PartConcurrency is the number of concurrent ranged GETs per object.
	// Default: max(2, NumCPU/2).
	PartConcurrency int
	// PartSize is the size of each download part in bytes (default 8MB).
	PartSize int64
}

// DefaultDownloaderConfig returns defaults based on the current machine.
func DefaultDownloaderConfig() DownloaderConfig {
	parts := runtime.NumCPU() / 2
	if parts < 2 {
		parts = 2
	}
	return DownloaderConfig{
		Files:           4,
		PartConcurrency: parts,
		PartSize:        8 * 1024 * 1024,
	}
}

// Downloader mirrors snapshot files from S3 into a local cache directory.
type Downloader struct {
	client  *Client
	manager *manager.Downloader
	config  DownloaderConfig
}

// NewDownloader creates a Downloader on top of client.
func NewDownloader(client *Client, cfg DownloaderConfig) *Downloader {
	def := DefaultDownloaderConfig()
	if cfg.Files <= 0 {
		cfg.Files = def.Files
	}
	if cfg.PartConcurrency <= 0 {
		cfg.PartConcurrency = def.PartConcurrency
	}
	if cfg.PartSize <= 0 {
		cfg.PartSize = def.PartSize
	}

	mgr := manager.NewDownloader(client.api, func(d *manager.Downloader) {
		d.Concurrency = cfg.PartConcurrency
		d.PartSize = cfg.PartSize
	})
	return &Downloader{client: client, manager: mgr, config: cfg}
}

// Config returns the downloader configuration.
func (d *Downloader) Config() DownloaderConfig {
	return d.config
}

// SyncResult summarizes a mirror run.
type SyncResult struct {
	Downloaded int
	Skipped    int
	Bytes      int64
	Duration   time.Duration
}

// Sync downloads every snapshot under s3://bucket/prefix into dir. Files
// already present in dir are not fetched again; snapshots are immutable
// once published.
func (d *Downloader) Sync(ctx context.Context, bucket, prefix, dir string) (*SyncResult, error) {
	start := time.Now()
	log := logging.WithPhase("sync")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if err := fileutil.CleanupTmpFiles(dir); err != nil {
		return nil, err
	}

	objects, err := d.client.List(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}

	var todo []Object
	skipped := 0
	for _, o := range objects {
		name := baseName(o.Key)
		if _, ok := snapshot.DayFromName(name); !ok {
			continue
		}
		if fileutil.Exists(filepath.Join(dir, name)) {
			skipped++
			continue
		}
		todo = append(todo, o)
	}

	log.Info().
		Int("objects", len(objects)).
		Int("to_download", len(todo)).
		Int("cached", skipped).
		Msg("starting sync")

	progress := logging.NewProgressTracker("sync", int64(len(todo)), log)
	var total atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.config.Files)
	for _, o := range todo {
		g.Go(func() error {
			t0 := time.Now()
			dest := filepath.Join(dir, baseName(o.Key))
			n, err := d.DownloadToFile(gctx, bucket, o.Key, dest)
			if err != nil {
				return err
			}
			total.Add(n)
			progress.RecordCompletion(time.Since(t0))
			logging.FileCreated(log, "sync", time.Since(t0)).
				Str("key", o.Key).
				Bytes("size", n).
				LogDebug("snapshot downloaded")
			progress.Tick("downloading snapshots")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &SyncResult{
		Downloaded: len(todo),
		Skipped:    skipped,
		Bytes:      total.Load(),
		Duration:   time.Since(start),
	}
	logging.PhaseComplete(log, "sync", res.Duration).
		Int("downloaded", res.Downloaded).
		Int("skipped", res.Skipped).
		Bytes("bytes", res.Bytes).
		Log("sync complete")
	return res, nil
}

// DownloadToFile downloads an object to destPath through a temp file in the
// same directory, so a partial download never shows up under its final name.
func (d *Downloader) DownloadToFile(ctx context.Context, bucket, key, destPath string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(destPath), filepath.Base(destPath)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := d.manager.Download(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("download s3://%s/%s: %w", bucket, key, err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("rename %s: %w", destPath, err)
	}
	return n, nil
}
