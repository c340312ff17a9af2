// Package blob archives sequence documents in object storage. One Archive
// type runs on any Client: S3, Google Cloud Storage, Azure Blob or memory.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/felixgeelhaar/robotflow/domain/sequence"
)

// Client is the object storage surface the archive needs.
type Client interface {
	// Upload writes content to bucket/object, replacing any existing object.
	Upload(ctx context.Context, bucket, object string, content io.Reader, contentType string) error

	// Download opens bucket/object. A missing object yields ErrObjectNotFound.
	Download(ctx context.Context, bucket, object string) (io.ReadCloser, error)

	// Name identifies the provider in logs and URIs.
	Name() string
}

// ErrObjectNotFound is returned by clients when an object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ContentType is the media type of stored sequence documents.
const ContentType = "application/yaml"

// Archive implements sequence.Archive on a Client.
type Archive struct {
	client Client
	bucket string
	prefix string
}

// Config holds configuration for the archive.
type Config struct {
	Client Client
	Bucket string
	// Prefix is an optional prefix for all objects.
	Prefix string
}

// NewArchive creates an archive.
func NewArchive(cfg Config) (*Archive, error) {
	if cfg.Client == nil {
		return nil, errors.New("blob client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	return &Archive{client: cfg.Client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Put stores content under sequences/{runID}.yaml and returns its URI.
func (a *Archive) Put(ctx context.Context, runID string, content []byte) (string, error) {
	if runID == "" {
		return "", sequence.ErrInvalidRunID
	}
	key := sequence.Key(a.prefix, runID)
	if err := a.client.Upload(ctx, a.bucket, key, bytes.NewReader(content), ContentType); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return fmt.Sprintf("%s://%s/%s", a.client.Name(), a.bucket, key), nil
}

// Get returns the archived content for a run.
func (a *Archive) Get(ctx context.Context, runID string) ([]byte, error) {
	if runID == "" {
		return nil, sequence.ErrInvalidRunID
	}
	key := sequence.Key(a.prefix, runID)
	rc, err := a.client.Download(ctx, a.bucket, key)
	if errors.Is(err, ErrObjectNotFound) {
		return nil, sequence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

var _ sequence.Archive = (*Archive)(nil)
