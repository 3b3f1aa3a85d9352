// Package fixtures opens the files that steps upload to the server. Sources
// are either paths on disk or objects in an S3 compatible store.
package fixtures

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ONSdigital/dp-fileshare-steps/config"
	s3client "github.com/ONSdigital/dp-s3/v3"
	"github.com/ONSdigital/log.go/v2/log"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const s3Scheme = "s3://"

var (
	ErrNoObjectStore   = errors.New("s3 source requested but no object store is configured")
	ErrInvalidS3Source = errors.New("s3 source must be of the form s3://bucket/key")
)

// S3Client is the part of a dp-s3 client used to read fixture objects.
type S3Client interface {
	Get(ctx context.Context, key string) (io.ReadCloser, *int64, error)
}

// BucketClientFunc returns the client for one bucket.
type BucketClientFunc func(bucket string) S3Client

// ObjectStore hands out one S3 client per bucket and reuses it.
type ObjectStore struct {
	newClient BucketClientFunc
	clients   map[string]S3Client
}

func NewObjectStore(newClient BucketClientFunc) *ObjectStore {
	return &ObjectStore{newClient: newClient, clients: map[string]S3Client{}}
}

// Bucket returns the client for bucket, creating it on first use.
func (s *ObjectStore) Bucket(bucket string) S3Client {
	c, ok := s.clients[bucket]
	if !ok {
		c = s.newClient(bucket)
		s.clients[bucket] = c
	}
	return c
}

// Opener resolves upload sources.
type Opener struct {
	Dir   string
	Store *ObjectStore
}

// Open returns a reader for source. Relative paths are resolved against Dir.
// The caller must close the returned reader.
func (o *Opener) Open(ctx context.Context, source string) (io.ReadCloser, error) {
	if strings.HasPrefix(source, s3Scheme) {
		return o.openObject(ctx, strings.TrimPrefix(source, s3Scheme))
	}

	path := source
	if o.Dir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(o.Dir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening fixture %q: %w", source, err)
	}
	return f, nil
}

func (o *Opener) openObject(ctx context.Context, location string) (io.ReadCloser, error) {
	if o.Store == nil {
		return nil, ErrNoObjectStore
	}
	bucket, key, ok := strings.Cut(location, "/")
	if !ok || bucket == "" || key == "" {
		return nil, ErrInvalidS3Source
	}

	body, _, err := o.Store.Bucket(bucket).Get(ctx, key)
	if err != nil {
		log.Error(ctx, "failed to get fixture object", err, log.Data{"bucket": bucket, "key": key})
		return nil, fmt.Errorf("getting s3://%s/%s: %w", bucket, key, err)
	}
	return body, nil
}

// NewS3ObjectStore returns an object store backed by dp-s3 clients on
// cfg.LocalObjectStore, or nil when no object store is configured.
func NewS3ObjectStore(ctx context.Context, cfg *config.Config) (*ObjectStore, error) {
	if cfg.LocalObjectStore == "" {
		return nil, nil
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion(cfg.AwsRegion),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create aws config: %w", err)
	}

	return NewObjectStore(func(bucket string) S3Client {
		return s3client.NewClientWithConfig(bucket, awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.LocalObjectStore)
			o.UsePathStyle = true
		})
	}), nil
}

// Close closes closer and logs a failure instead of returning it.
func Close(ctx context.Context, closer io.Closer) {
	if err := closer.Close(); err != nil {
		log.Error(ctx, "error closing io.Closer", err)
	}
}
