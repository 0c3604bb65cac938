package s3fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/eunmann/asorg-db/pkg/fileutil"
	"github.com/eunmann/asorg-db/pkg/logging"
)

// ChecksumMetadataKey is the user metadata key holding a file's SHA-256.
const ChecksumMetadataKey = "sha256"

// Uploader publishes build outputs to S3.
type Uploader struct {
	client  *Client
	manager *manager.Uploader
}

// NewUploader creates an Uploader on top of client.
func NewUploader(client *Client) *Uploader {
	return &Uploader{
		client:  client,
		manager: manager.NewUploader(client.api),
	}
}

// PublishResult summarizes a publish run.
type PublishResult struct {
	Uploaded  []string
	Unchanged []string
	Bytes     int64
	Duration  time.Duration
}

// Publish uploads the named files from dir to s3://bucket/prefix. A file
// whose remote sha256 metadata already matches is left alone.
func (u *Uploader) Publish(ctx context.Context, bucket, prefix, dir string, names []string) (*PublishResult, error) {
	start := time.Now()
	log := logging.WithPhase("publish")
	res := &PublishResult{}

	for _, name := range names {
		path := filepath.Join(dir, name)
		key := JoinKey(prefix, name)

		sum, size, err := fileutil.SHA256File(path)
		if err != nil {
			return nil, fmt.Errorf("checksum %s: %w", name, err)
		}

		meta, found, err := u.client.Metadata(ctx, bucket, key)
		if err != nil {
			return nil, err
		}
		if found && meta[ChecksumMetadataKey] == sum {
			log.Debug().Str("key", key).Msg("unchanged, skipping upload")
			res.Unchanged = append(res.Unchanged, name)
			continue
		}

		t0 := time.Now()
		if err := u.upload(ctx, bucket, key, path, sum); err != nil {
			return nil, err
		}
		res.Uploaded = append(res.Uploaded, name)
		res.Bytes += size
		logging.FileCreated(log, "publish", time.Since(t0)).
			Str("key", key).
			Bytes("size", size).
			Log("uploaded")
	}

	res.Duration = time.Since(start)
	logging.PhaseComplete(log, "publish", res.Duration).
		Int("uploaded", len(res.Uploaded)).
		Int("unchanged", len(res.Unchanged)).
		Bytes("bytes", res.Bytes).
		Log("publish complete")
	return res, nil
}

func (u *Uploader) upload(ctx context.Context, bucket, key, path, sum string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	_, err = u.manager.Upload(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		Body:     f,
		Metadata: map[string]string{ChecksumMetadataKey: sum},
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}
