// Package s3 implements an archive Store over an S3-compatible backend
// (AWS S3 or MinIO). Single bucket; keys map to object keys directly.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"unitcore/internal/archive"
)

// Compile-time contract assertion.
var _ archive.Store = (*Store)(nil)

// Store implements archive.Store backed by one S3 bucket.
type Store struct {
	client *s3.Client
	bucket string
}

// Config holds explicit construction parameters (mostly for tests). For prod
// we rely primarily on environment variables.
type Config struct {
	Region    string
	Bucket    string
	Endpoint  string // optional; enables a custom endpoint (e.g. MinIO)
	PathStyle bool
}

// Environment variables:
//   UNITCORE_ARCHIVE_S3_BUCKET=<bucket> (required)
//   UNITCORE_ARCHIVE_S3_REGION=<region> (default us-east-1)
//   UNITCORE_ARCHIVE_S3_ENDPOINT=<url> (optional, for MinIO)
//   UNITCORE_ARCHIVE_S3_PATH_STYLE=true|false (default false)
//   AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)

// New creates an S3 archive store from Config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// OpenFromEnv constructs an S3 archive store from process environment.
func OpenFromEnv(ctx context.Context) (*Store, error) {
	bucket := os.Getenv("UNITCORE_ARCHIVE_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("UNITCORE_ARCHIVE_S3_BUCKET required for s3 backend")
	}
	cfg := Config{
		Bucket:    bucket,
		Region:    os.Getenv("UNITCORE_ARCHIVE_S3_REGION"),
		Endpoint:  os.Getenv("UNITCORE_ARCHIVE_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("UNITCORE_ARCHIVE_S3_PATH_STYLE"), "true"),
	}
	return New(ctx, cfg)
}

// Backend returns the backend identifier.
func (s *Store) Backend() archive.Backend { return archive.BackendS3 }

// Put stores a new object; create-only via a Head check first.
func (s *Store) Put(ctx context.Context, key string, data []byte) (archive.Ref, error) {
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key}); err == nil {
		return archive.Ref{}, fmt.Errorf("archive object %s already exists", key)
	}
	contentType := "application/json"
	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	}); err != nil {
		return archive.Ref{}, err
	}
	return archive.Ref{Key: key, Size: int64(len(data)), StoredAt: time.Now().UTC()}, nil
}

// Get returns object metadata and contents.
func (s *Store) Get(ctx context.Context, key string) (archive.Ref, []byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return archive.Ref{}, nil, err
	}
	defer func() { _ = out.Body.Close() }()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return archive.Ref{}, nil, err
	}
	ref := archive.Ref{Key: key, Size: int64(len(data)), StoredAt: aws.ToTime(out.LastModified)}
	return ref, data, nil
}

// List returns objects matching prefix, key ascending.
func (s *Store) List(ctx context.Context, prefix string) ([]archive.Ref, error) {
	var refs []archive.Ref
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket: &s.bucket, Prefix: &prefix, ContinuationToken: token,
		})
		if err != nil {
			return nil, err
		}
		for _, obj := range out.Contents {
			var size int64
			if obj.Size != nil {
				size = *obj.Size
			}
			refs = append(refs, archive.Ref{
				Key:      aws.ToString(obj.Key),
				Size:     size,
				StoredAt: aws.ToTime(obj.LastModified),
			})
		}
		if out.IsTruncated != nil && *out.IsTruncated && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Key < refs[j].Key })
	return refs, nil
}
