package blob

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// MemoryClient is an in-process Client for tests and dry runs.
type MemoryClient struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryClient creates an empty client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{objects: make(map[string][]byte)}
}

// Name implements Client.
func (c *MemoryClient) Name() string { return "mem" }

// Upload implements Client.
func (c *MemoryClient) Upload(ctx context.Context, bucket, object string, content io.Reader, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.objects[bucket+"/"+object] = data
	c.mu.Unlock()
	return nil
}

// Download implements Client.
func (c *MemoryClient) Download(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	data, ok := c.objects[bucket+"/"+object]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Len returns the number of stored objects.
func (c *MemoryClient) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.objects)
}
