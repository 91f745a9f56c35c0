package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/locustdb/locustdb/pkg/dberrors"
)

// S3BlobStore implements BlobStore against an S3 bucket, the
// object-store binding of spec.md §6's byte-range blob interface (a
// documented Non-goal internals wise, but the interface itself is in
// scope). Grounded on the teacher's S3 destination connector
// (initializeAWSClients / PutObject / DeleteObject pattern), narrowed
// to the read/write/delete-by-key operations a blob store needs.
type S3BlobStore struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3BlobStore loads AWS configuration for region and constructs a
// client and multipart uploader against bucket/prefix.
func NewS3BlobStore(ctx context.Context, bucket, prefix, region string) (*S3BlobStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.Io, "load aws config")
	}
	client := s3.NewFromConfig(cfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 8 * 1024 * 1024
		u.Concurrency = 4
	})
	return &S3BlobStore{client: client, uploader: uploader, bucket: bucket, prefix: prefix}, nil
}

func (s *S3BlobStore) key(partitionID uint64, subKey string) string {
	if s.prefix == "" {
		return fmt.Sprintf("parts/%d/%s", partitionID, subKey)
	}
	return fmt.Sprintf("%s/parts/%d/%s", s.prefix, partitionID, subKey)
}

func (s *S3BlobStore) Get(ctx context.Context, partitionID uint64, subKey string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(partitionID, subKey)),
	})
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.Io, "s3 get object").WithDetail("key", s.key(partitionID, subKey))
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.Io, "read s3 object body")
	}
	return data, nil
}

func (s *S3BlobStore) GetRange(ctx context.Context, partitionID uint64, subKey string, offset, length int64) ([]byte, error) {
	rng := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(partitionID, subKey)),
		Range:  aws.String(rng),
	})
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.Io, "s3 get object range").WithDetail("key", s.key(partitionID, subKey))
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.Io, "read s3 object range body")
	}
	return data, nil
}

func (s *S3BlobStore) Put(ctx context.Context, partitionID uint64, subKey string, data []byte) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(partitionID, subKey)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return dberrors.Wrap(err, dberrors.Io, "s3 upload object").WithDetail("key", s.key(partitionID, subKey))
	}
	return nil
}

func (s *S3BlobStore) Delete(ctx context.Context, partitionID uint64, subKey string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(partitionID, subKey)),
	})
	if err != nil {
		return dberrors.Wrap(err, dberrors.Io, "s3 delete object")
	}
	return nil
}
