package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
)

// AzureConfig configures the Azure Blob Storage client.
type AzureConfig struct {
	AccountName      string // Azure Storage account name
	AccountKey       string // Optional: storage account key
	ConnectionString string // Optional: full connection string
	// If neither AccountKey nor ConnectionString is provided, uses DefaultAzureCredential
}

// AzureClient implements Client on Azure Blob Storage. Buckets map to
// containers.
type AzureClient struct {
	client *azblob.Client
}

// NewAzureClient creates a client.
func NewAzureClient(cfg AzureConfig) (*AzureClient, error) {
	if cfg.AccountName == "" && cfg.ConnectionString == "" {
		return nil, errors.New("account name or connection string is required")
	}

	if cfg.ConnectionString != "" {
		client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client from connection string: %w", err)
		}
		return &AzureClient{client: client}, nil
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	if cfg.AccountKey != "" {
		cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", err)
		}
		client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client with shared key: %w", err)
		}
		return &AzureClient{client: client}, nil
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create default credential: %w", err)
	}
	client, err := azblob.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create client with default credential: %w", err)
	}
	return &AzureClient{client: client}, nil
}

// Name implements Client.
func (c *AzureClient) Name() string { return "azblob" }

// Upload implements Client.
func (c *AzureClient) Upload(ctx context.Context, bucket, object string, content io.Reader, contentType string) error {
	bb := c.client.ServiceClient().NewContainerClient(bucket).NewBlockBlobClient(object)
	_, err := bb.UploadStream(ctx, content, &blockblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return fmt.Errorf("failed to upload blob: %w", err)
	}
	return nil
}

// Download implements Client.
func (c *AzureClient) Download(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	resp, err := c.client.DownloadStream(ctx, bucket, object, nil)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to download blob: %w", err)
	}
	return resp.Body, nil
}

func isAzureNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
