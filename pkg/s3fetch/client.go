// Package s3fetch reads daily AS organization snapshots from S3 and mirrors
// build outputs back to it.
package s3fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// API is the subset of the S3 client used by this package.
type API interface {
	s3.ListObjectsV2APIClient
	s3.HeadObjectAPIClient
	manager.DownloadAPIClient
	manager.UploadAPIClient
}

// Client provides S3 operations for snapshot files and build outputs.
type Client struct {
	api API
}

// NewClient creates a new S3 client using default AWS configuration.
func NewClient(ctx context.Context) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &Client{api: s3.NewFromConfig(cfg)}, nil
}

// NewClientWithConfig creates a new S3 client with a custom AWS config.
func NewClientWithConfig(cfg aws.Config) *Client {
	return &Client{api: s3.NewFromConfig(cfg)}
}

// NewClientWithAPI wraps an existing API implementation.
func NewClientWithAPI(api API) *Client {
	return &Client{api: api}
}

// Object is one listed S3 object.
type Object struct {
	Key  string
	Size int64
}

// List returns every object directly under prefix.
func (c *Client) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	p := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var objects []Object
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, o := range page.Contents {
			key := aws.ToString(o.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			objects = append(objects, Object{Key: key, Size: aws.ToInt64(o.Size)})
		}
	}
	return objects, nil
}

// StreamObject returns a reader for an S3 object.
func (c *Client) StreamObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	resp, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object s3://%s/%s: %w", bucket, key, err)
	}
	return resp.Body, nil
}

// Metadata returns an object's user metadata. A missing object yields
// found=false and no error.
func (c *Client) Metadata(ctx context.Context, bucket, key string) (meta map[string]string, found bool, err error) {
	resp, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("head object s3://%s/%s: %w", bucket, key, err)
	}
	return resp.Metadata, true, nil
}

// JoinKey joins a key prefix and a file name with exactly one slash.
func JoinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return strings.TrimSuffix(prefix, "/") + "/" + name
}

// baseName returns the last path element of an S3 key.
func baseName(key string) string {
	return path.Base(key)
}
