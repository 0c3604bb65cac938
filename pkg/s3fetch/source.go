package s3fetch

import (
	"context"
	"fmt"
	"io"

	"github.com/eunmann/asorg-db/pkg/snapshot"
)

// Source streams snapshot files straight from an S3 prefix.
type Source struct {
	client *Client
	bucket string
	prefix string
}

// NewSource returns a snapshot.Source over s3://bucket/prefix.
func NewSource(client *Client, bucket, prefix string) *Source {
	return &Source{client: client, bucket: bucket, prefix: prefix}
}

// List implements snapshot.Source.
func (s *Source) List(ctx context.Context) ([]snapshot.Ref, error) {
	objects, err := s.client.List(ctx, s.bucket, s.prefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(objects))
	for i, o := range objects {
		names[i] = baseName(o.Key)
	}
	refs, err := snapshot.RefsFromNames(names)
	if err != nil {
		return nil, fmt.Errorf("s3://%s/%s: %w", s.bucket, s.prefix, err)
	}
	return refs, nil
}

// Open implements snapshot.Source.
func (s *Source) Open(ctx context.Context, ref snapshot.Ref) (io.ReadCloser, error) {
	return s.client.StreamObject(ctx, s.bucket, JoinKey(s.prefix, ref.Name))
}
