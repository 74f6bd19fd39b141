// Package source opens raster ids as byte streams: local paths, or
// s3://bucket/key objects served by an S3-compatible store.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrNotFound = errors.New("raster source not found")

type Opener interface {
	Open(ctx context.Context, id string) (io.ReadCloser, error)
}

type File struct{}

func (File) Open(_ context.Context, id string) (io.ReadCloser, error) {
	f, err := os.Open(id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("open %s: %w", id, err)
	}
	return f, nil
}

// ParseS3 splits "s3://bucket/key/path" into bucket and object key.
func ParseS3(id string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(id, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type S3 struct {
	cli *minio.Client
}

func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("s3 endpoint is required")
	}
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &S3{cli: cli}, nil
}

func (s *S3) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	bucket, key, ok := ParseS3(id)
	if !ok {
		return nil, fmt.Errorf("not an s3 uri: %q", id)
	}
	obj, err := s.cli.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", bucket, key, err)
	}
	// GetObject is lazy; Stat surfaces missing objects before decoding starts.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("stat object %s/%s: %w", bucket, key, err)
	}
	return obj, nil
}

// Mux routes s3:// ids to the S3 opener and everything else to files.
type Mux struct {
	Files  Opener
	Remote Opener
}

func (m Mux) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	if strings.HasPrefix(id, "s3://") {
		if m.Remote == nil {
			return nil, fmt.Errorf("no s3 source configured for %q", id)
		}
		return m.Remote.Open(ctx, id)
	}
	files := m.Files
	if files == nil {
		files = File{}
	}
	return files.Open(ctx, id)
}

// Resolve expands a comma separated raster list. Local entries holding glob
// patterns are expanded; s3 uris and plain paths pass through. The result is
// sorted and free of duplicates.
func Resolve(list string) ([]string, error) {
	var out []string
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.HasPrefix(item, "s3://") || !strings.ContainsAny(item, "*?[") {
			out = append(out, item)
			continue
		}
		matches, err := filepath.Glob(item)
		if err != nil {
			return nil, fmt.Errorf("raster glob %q: %w", item, err)
		}
		out = append(out, matches...)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
