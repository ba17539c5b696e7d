package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"tabular/internal/metrics"
)

// S3Options configures access to s3:// sources.
type S3Options struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UseSSL          bool
}

// S3Fetcher reads s3://bucket/key objects with minio-go.
type S3Fetcher struct {
	get func(ctx context.Context, bucket, key string) ([]byte, error)
}

// NewS3Fetcher builds a fetcher for an S3-compatible endpoint. The
// endpoint may be a bare host or an http(s) URL; an https URL forces TLS.
func NewS3Fetcher(opt S3Options) (*S3Fetcher, error) {
	if opt.Endpoint == "" {
		return nil, fmt.Errorf("s3: endpoint is required")
	}
	endpoint := opt.Endpoint
	useSSL := opt.UseSSL
	if u, err := url.Parse(opt.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		useSSL = useSSL || u.Scheme == "https"
	}

	var creds *credentials.Credentials
	if opt.AccessKeyID != "" || opt.SecretAccessKey != "" {
		creds = credentials.NewStaticV4(opt.AccessKeyID, opt.SecretAccessKey, "")
	} else {
		creds = credentials.NewEnvAWS()
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: useSSL,
		Region: opt.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}

	return &S3Fetcher{get: func(ctx context.Context, bucket, key string) ([]byte, error) {
		obj, err := client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return nil, err
		}
		defer obj.Close()
		return io.ReadAll(obj)
	}}, nil
}

// Fetch implements Fetcher.
func (f *S3Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := parseS3URL(location)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	b, err := f.get(ctx, bucket, key)
	if err != nil {
		metrics.RecordFetch("s3", 0, time.Since(start), 0)
		return nil, fmt.Errorf("s3 get %s/%s: %w", bucket, key, err)
	}
	metrics.RecordFetch("s3", 200, time.Since(start), len(b))
	return b, nil
}

func parseS3URL(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("parse %q: %w", location, err)
	}
	if !strings.EqualFold(u.Scheme, "s3") {
		return "", "", fmt.Errorf("not an s3 url: %q", location)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("s3 url needs a bucket and a key: %q", location)
	}
	return u.Host, key, nil
}
