package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// objectPutter is the part of *s3.Client the sink needs.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options locate the bucket incidents are written to. Any S3-compatible
// backend (MinIO included) works through BaseEndpoint.
type S3Options struct {
	RootUser     string
	RootPassword string
	Bucket       string
	Region       string
	BaseEndpoint string
}

// S3Sink stores every incident as one JSON object under
// reconciliation/YYYY/MM/DD/<id>.json.
type S3Sink struct {
	client objectPutter
	bucket string
}

// NewS3Sink builds an S3 client from static credentials.
func NewS3Sink(ctx context.Context, opts S3Options) (*S3Sink, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.RootUser,
			opts.RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("error loading aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Sink{client: client, bucket: opts.Bucket}, nil
}

// StorageKey is the object key of an incident.
func StorageKey(in Incident) string {
	d := in.OccurredAt.UTC()
	return fmt.Sprintf("reconciliation/%04d/%02d/%02d/%s.json", d.Year(), d.Month(), d.Day(), in.ID)
}

func (s *S3Sink) Record(ctx context.Context, in Incident) error {
	if in.OccurredAt.IsZero() {
		in.OccurredAt = time.Now().UTC()
	}

	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(StorageKey(in)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("error storing incident %s: %w", in.ID, err)
	}
	return nil
}

// MultiSink records to every sink and returns the first error.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, in Incident) error {
	var first error
	for _, s := range m {
		if err := s.Record(ctx, in); err != nil && first == nil {
			first = err
		}
	}
	return first
}
