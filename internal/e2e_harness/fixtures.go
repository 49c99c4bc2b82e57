package e2e_harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/formedit"
	"github.com/lychee-technology/formedit/internal/transport"
)

// Credentials accepted by the S3 container.
const (
	S3AccessKey = "rustfs"
	S3SecretKey = "rustfs-secret"
	S3Bucket    = "formedit-e2e"
)

// ServerFixtures returns wire-format server records, shaped like the REST backend sends them.
func ServerFixtures() []formedit.Record {
	return []formedit.Record{
		formedit.NewRecord("itemName", "web-01", "itemOS", "linux", "itemStatus", "up", "itemCreated", "2024-01-02T03:04:05.000Z"),
		formedit.NewRecord("itemName", "db-01", "itemOS", "linux", "itemStatus", "down", "itemCreated", "2024-02-03T04:05:06.000Z"),
		formedit.NewRecord("itemName", "ci-01", "itemOS", "bsd", "itemStatus", "up", "itemCreated", "2024-03-04T05:06:07.000Z"),
	}
}

// SeedCollection creates records through tr and returns their ids in order.
func SeedCollection(ctx context.Context, tr formedit.Transport, collection string, records []formedit.Record) ([]string, error) {
	ids := make([]string, 0, len(records))
	for i, rec := range records {
		created, err := tr.CreateRecord(ctx, collection, rec)
		if err != nil {
			return nil, fmt.Errorf("seed record %d: %w", i, err)
		}
		ids = append(ids, created.ID())
	}
	return ids, nil
}

// NewS3Transport connects to the container at endpoint and makes sure the bucket exists.
func NewS3Transport(ctx context.Context, endpoint string) (*transport.S3, error) {
	cfg := formedit.S3Config{
		Bucket:       S3Bucket,
		Prefix:       "collections/",
		Region:       "us-east-1",
		Endpoint:     endpoint,
		AccessKey:    S3AccessKey,
		SecretKey:    S3SecretKey,
		UsePathStyle: true,
	}
	client, err := transport.NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// ensure bucket exists
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		if _, cerr := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(cfg.Bucket)}); cerr != nil {
			var apiErr smithy.APIError
			if errors.As(cerr, &apiErr) {
				code := apiErr.ErrorCode()
				if code != "BucketAlreadyOwnedByYou" && code != "BucketAlreadyExists" {
					return nil, fmt.Errorf("create bucket: %w", cerr)
				}
				// ignore - bucket already exists/owned
			} else {
				return nil, fmt.Errorf("create bucket: %w", cerr)
			}
		}
	}
	return transport.NewS3(client, cfg), nil
}
