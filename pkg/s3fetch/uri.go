package s3fetch

import (
	"errors"
	"fmt"
	"strings"
)

// ParseBucketIdentifier accepts a plain bucket name ("my-bucket") or an S3
// bucket ARN ("arn:aws:s3:::my-bucket") and returns the bucket name.
func ParseBucketIdentifier(bucketOrARN string) (string, error) {
	if bucketOrARN == "" {
		return "", errors.New("empty bucket identifier")
	}
	if strings.HasPrefix(bucketOrARN, "arn:") {
		return parseBucketARN(bucketOrARN)
	}
	if strings.Contains(bucketOrARN, "://") {
		return "", fmt.Errorf("invalid bucket identifier %q: looks like a URI, use ParseS3URI instead", bucketOrARN)
	}
	return bucketOrARN, nil
}

// parseBucketARN extracts the bucket from arn:partition:s3:::bucket[/path].
func parseBucketARN(arn string) (string, error) {
	parts := strings.Split(arn, ":")
	if len(parts) < 6 {
		return "", fmt.Errorf("invalid ARN %q: expected at least 6 colon-separated parts", arn)
	}
	if parts[2] != "s3" {
		return "", fmt.Errorf("invalid S3 ARN %q: service must be 's3', got %q", arn, parts[2])
	}

	resource := strings.Join(parts[5:], ":")
	if idx := strings.Index(resource, "/"); idx >= 0 {
		resource = resource[:idx]
	}
	if resource == "" {
		return "", fmt.Errorf("invalid S3 ARN %q: missing bucket name", arn)
	}
	return resource, nil
}

// ParseS3URI parses an S3 URI (s3://bucket/prefix) into bucket and key
// components.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !strings.HasPrefix(uri, "s3://") {
		return "", "", errors.New("invalid S3 URI: must start with s3://")
	}

	bucket, key, _ = strings.Cut(strings.TrimPrefix(uri, "s3://"), "/")
	if bucket == "" {
		return "", "", errors.New("invalid S3 URI: missing bucket name")
	}
	return bucket, key, nil
}
