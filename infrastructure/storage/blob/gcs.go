package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig configures the Google Cloud Storage client.
type GCSConfig struct {
	CredentialsFile string // Optional: path to service account JSON file
	// Endpoint points at an emulator. Authentication is skipped when set.
	Endpoint string
}

// GCSClient implements Client on Google Cloud Storage.
type GCSClient struct {
	client *gcs.Client
}

// NewGCSClient creates a client. Without credentials it uses Application
// Default Credentials.
func NewGCSClient(ctx context.Context, cfg GCSConfig) (*GCSClient, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSClient{client: client}, nil
}

// Name implements Client.
func (c *GCSClient) Name() string { return "gs" }

// Upload implements Client.
func (c *GCSClient) Upload(ctx context.Context, bucket, object string, content io.Reader, contentType string) error {
	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, content); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object: %w", err)
	}
	return nil
}

// Download implements Client.
func (c *GCSClient) Download(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	r, err := c.client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create object reader: %w", err)
	}
	return r, nil
}

// Close closes the GCS client.
func (c *GCSClient) Close() error {
	return c.client.Close()
}
