// Package blob implements C7/C8's object storage concern: uploading
// rendered artifacts and minting short-lived signed download URLs.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
)

// Config describes the S3-compatible endpoint artifacts are stored in. It is
// compatible with AWS S3 as well as self-hosted stand-ins (MinIO, RustFS)
// reachable via a custom endpoint and path-style addressing.
type Config struct {
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UsePathStyle  bool
	DefaultExpiry time.Duration
}

// Store implements pipeline.BlobStore against an S3-compatible bucket.
type Store struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	defaultExpiry time.Duration
}

func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("blob: bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blob: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	expiry := cfg.DefaultExpiry
	if expiry == 0 {
		expiry = 24 * time.Hour
	}

	return &Store{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		defaultExpiry: expiry,
	}, nil
}

func extensionFor(format domain.OutputFormat) string {
	switch format {
	case domain.FormatCSV:
		return "csv"
	case domain.FormatXLSX:
		return "xlsx"
	default:
		return "pdf"
	}
}

func contentTypeFor(format domain.OutputFormat) string {
	switch format {
	case domain.FormatCSV:
		return "text/csv"
	case domain.FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/pdf"
	}
}

// Upload implements pipeline.BlobStore. The key follows §6's blob path
// convention: {tenant_id}/{execution_run_id}/report_{execution_run_id}.
// {format}. Required object metadata (tenant_id, execution_run_id,
// file_format, uploaded_at) is attached so the bucket is self-describing
// even without the database.
func (s *Store) Upload(ctx context.Context, tenantID, executionID string, data []byte, format domain.OutputFormat) (string, error) {
	ext := extensionFor(format)
	key := fmt.Sprintf("%s/%s/report_%s.%s", tenantID, executionID, executionID, ext)
	uploadedAt := time.Now().UTC().Format(time.RFC3339)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentTypeFor(format)),
		Metadata: map[string]string{
			"tenant_id":        tenantID,
			"execution_run_id": executionID,
			"file_format":      string(format),
			"uploaded_at":      uploadedAt,
		},
	})
	if err != nil {
		return "", fmt.Errorf("blob: upload %s: %w", key, err)
	}
	return key, nil
}

// SignedURL implements pipeline.BlobStore, minting a presigned GET URL.
func (s *Store) SignedURL(ctx context.Context, path string, expiry time.Duration) (string, time.Time, error) {
	if expiry <= 0 {
		expiry = s.defaultExpiry
	}

	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("blob: presign %s: %w", path, err)
	}
	return req.URL, time.Now().Add(expiry), nil
}

// Delete implements pipeline.BlobStore, used by the retention sweeper once
// an artifact's row has aged past the sweeper's retention horizon, which is
// the same for every tenant and report definition.
func (s *Store) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) || strings.Contains(err.Error(), "NoSuchKey") {
			return nil
		}
		return fmt.Errorf("blob: delete %s: %w", path, err)
	}
	return nil
}
