package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"mediagen/internal/domain"
)

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Options configures the S3 client. Endpoint and PathStyle allow MinIO and
// other S3 compatible services.
type S3Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// NewS3Client loads the default AWS credential chain for opts.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	}), nil
}

// S3Store keeps artifacts in a bucket under the same key layout as FileStore.
type S3Store struct {
	client S3API
	bucket string
	now    func() time.Time
}

// NewS3Store wraps client for bucket.
func NewS3Store(client S3API, bucket string) (*S3Store, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}
	if client == nil {
		return nil, errors.New("storage: s3 client is required")
	}
	return &S3Store{client: client, bucket: bucket, now: time.Now}, nil
}

// Write uploads a under a fresh key.
func (s *S3Store) Write(ctx context.Context, a domain.Artifact) (string, error) {
	if len(a.Data) == 0 {
		return "", errors.New("storage: empty artifact")
	}
	key := NewKey(a.Tag, a.Kind, a.ContentType, s.now())
	contentType := a.ContentType
	if contentType == "" {
		contentType = MIMEForKey(key)
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(a.Data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("storage: put object: %w", err)
	}
	return URI(key), nil
}

// Read downloads the artifact behind uri.
func (s *S3Store) Read(ctx context.Context, uri string) (domain.Artifact, error) {
	key, err := KeyFromURI(uri)
	if err != nil {
		return domain.Artifact{}, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return domain.Artifact{}, domain.ErrNotFound
		}
		return domain.Artifact{}, fmt.Errorf("storage: get object: %w", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("storage: read object: %w", err)
	}
	contentType := aws.ToString(out.ContentType)
	if contentType == "" {
		contentType = MIMEForKey(key)
	}
	return domain.Artifact{
		Key:         key,
		Kind:        kindForKey(key),
		Tag:         TagOf(key),
		ContentType: contentType,
		Data:        data,
		Bytes:       int64(len(data)),
		ModifiedAt:  aws.ToTime(out.LastModified).UTC(),
	}, nil
}

// Cleanup lists the tagged prefixes and deletes objects older than maxAge.
func (s *S3Store) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, tag := range []domain.ArtifactTag{domain.ArtifactGenerated, domain.ArtifactFallback} {
		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(string(tag) + "/"),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return removed, fmt.Errorf("storage: list objects: %w", err)
			}
			for _, obj := range page.Contents {
				if obj.LastModified == nil || !obj.LastModified.Before(cutoff) {
					continue
				}
				if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
					Bucket: aws.String(s.bucket),
					Key:    obj.Key,
				}); err != nil {
					return removed, fmt.Errorf("storage: delete %s: %w", aws.ToString(obj.Key), err)
				}
				removed++
			}
		}
	}
	return removed, nil
}
