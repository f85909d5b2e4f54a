package store

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Archiver is an optional secondary sink for finished traces,
// separate from TraceStore: TraceStore serves replay lookups, the
// archiver is a durability/cold-storage copy. Nothing in httpapi or
// cmd/reasonctl constructs or calls it; uploads happen only where a
// caller invokes Archive directly.
type S3Archiver struct {
	client *s3.Client
	bucket string
}

// NewS3Archiver loads the default AWS config chain (environment,
// shared config file, EC2/ECS role) and returns an archiver targeting
// bucket.
func NewS3Archiver(ctx context.Context, bucket string) (*S3Archiver, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: load aws config: %w", err)
	}
	return &S3Archiver{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// Archive uploads the NDJSON trace under key "<traceID>.ndjson".
func (a *S3Archiver) Archive(ctx context.Context, traceID string, traceNDJSON []byte) error {
	key := traceID + ".ndjson"
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(traceNDJSON),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("store: archive %s to s3://%s/%s: %w", traceID, a.bucket, key, err)
	}
	return nil
}
