package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sakif/secret-santa/internal/model"
)

// S3Config points at an S3 bucket or an S3-compatible server such as MinIO.
// Endpoint and the static keys are optional; without keys the default AWS
// credential chain is used.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string // key prefix, default "rounds"
}

// putObjectAPI is the slice of *s3.Client the exporter needs.
type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Hooks for tests.
var (
	loadDefaultAWSConfig  = config.LoadDefaultConfig
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) putObjectAPI {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Exporter uploads distribution lists to object storage.
type S3Exporter struct {
	client putObjectAPI
	bucket string
	prefix string
}

// NewS3Exporter builds an S3 client from cfg.
func NewS3Exporter(ctx context.Context, cfg S3Config) (*S3Exporter, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("export: S3 bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("export: loading AWS config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "rounds"
	}
	return &S3Exporter{client: client, bucket: cfg.Bucket, prefix: prefix}, nil
}

// ExportCodes uploads the giver/code CSV for summary's round and returns the
// object key.
func (e *S3Exporter) ExportCodes(ctx context.Context, summary *model.RoundSummary) (string, error) {
	if summary == nil || summary.RoundID == "" {
		return "", errors.New("export: no round to export")
	}
	key := path.Join(e.prefix, summary.RoundID, CodesFilename)

	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(CodesCSV(summary.Pairs)),
		ContentType: aws.String("text/csv; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("export: uploading %s: %w", key, err)
	}
	return key, nil
}

// Bucket returns the target bucket name.
func (e *S3Exporter) Bucket() string {
	return e.bucket
}
