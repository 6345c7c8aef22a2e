package agent

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fotad-io/fotad/pkg/options"
)

// S3Fetcher downloads artifacts whose URL uses the s3:// scheme
// (s3://bucket/key) from an S3-compatible object store.
type S3Fetcher struct {
	client *minio.Client
}

func NewS3Fetcher(opts *options.S3Options) (*S3Fetcher, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &S3Fetcher{client: client}, nil
}

func (f *S3Fetcher) Fetch(ctx context.Context, a Artifact, dest string) error {
	bucket, key, err := splitS3URL(a.URL)
	if err != nil {
		return transportErr("download %s: %w", a.Name, err)
	}
	// FGetObject downloads through a temp file and renames, so dest is
	// never left torn.
	if err := f.client.FGetObject(ctx, bucket, key, dest, minio.GetObjectOptions{}); err != nil {
		return transportErr("download %s from s3: %w", a.Name, err)
	}
	return nil
}

func splitS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("not an s3 url: %s", raw)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("s3 url missing object key: %s", raw)
	}
	return u.Host, key, nil
}

// RoutingFetcher dispatches per artifact URL scheme: s3:// goes to the
// object-store fetcher when one is configured, everything else to HTTP.
type RoutingFetcher struct {
	HTTP Fetcher
	S3   Fetcher
}

func (r *RoutingFetcher) Fetch(ctx context.Context, a Artifact, dest string) error {
	if strings.HasPrefix(a.URL, "s3://") {
		if r.S3 == nil {
			return transportErr("download %s: s3 url but no object store configured", a.Name)
		}
		return r.S3.Fetch(ctx, a, dest)
	}
	return r.HTTP.Fetch(ctx, a, dest)
}
