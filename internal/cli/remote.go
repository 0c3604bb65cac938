package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/eunmann/asorg-db/internal/config"
	"github.com/eunmann/asorg-db/pkg/format"
	"github.com/eunmann/asorg-db/pkg/s3fetch"
)

func runSync(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	s3URI := fs.String("s3", s3Default(cfg.S3Bucket, cfg.S3Prefix), "snapshot location s3://bucket/prefix")
	cacheDir := fs.String("cache", cfg.CacheDir, "local snapshot directory")
	files := fs.Int("files", cfg.Concurrency, "objects downloaded in parallel")
	logs := addLogFlags(fs, cfg)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *s3URI == "" {
		return errors.New("--s3 is required")
	}
	if *cacheDir == "" {
		return errors.New("--cache is required")
	}
	bucket, prefix, err := s3fetch.ParseS3URI(*s3URI)
	if err != nil {
		return fmt.Errorf("--s3: %w", err)
	}
	logs.init()

	client, err := s3fetch.NewClient(ctx)
	if err != nil {
		return err
	}
	_, err = s3fetch.NewDownloader(client, s3fetch.DownloaderConfig{Files: *files}).Sync(ctx, bucket, prefix, *cacheDir)
	return err
}

func runPublish(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	s3URI := fs.String("s3", s3Default(cfg.PublishBucket, cfg.PublishPrefix), "destination s3://bucket/prefix")
	outDir := fs.String("out", cfg.OutputDir, "build output directory")
	logs := addLogFlags(fs, cfg)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *s3URI == "" {
		return errors.New("--s3 is required")
	}
	bucket, prefix, err := s3fetch.ParseS3URI(*s3URI)
	if err != nil {
		return fmt.Errorf("--s3: %w", err)
	}
	logs.init()

	man, err := format.ReadManifest(*outDir)
	if err != nil {
		return err
	}
	if err := format.VerifyManifest(*outDir, man); err != nil {
		return fmt.Errorf("refusing to publish: %w", err)
	}

	client, err := s3fetch.NewClient(ctx)
	if err != nil {
		return err
	}
	// The manifest goes last so readers never see it ahead of its files.
	names := append(man.FileNames(), format.ManifestFile)
	_, err = s3fetch.NewUploader(client).Publish(ctx, bucket, prefix, *outDir, names)
	return err
}
