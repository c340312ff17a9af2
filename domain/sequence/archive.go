package sequence

import (
	"context"
	"errors"
	"path"
)

// Archive stores rendered sequence documents keyed by run id.
// Implementations are in infrastructure.
type Archive interface {
	// Put stores the document content for a run.
	Put(ctx context.Context, runID string, content []byte) (string, error)

	// Get returns the stored content for a run.
	Get(ctx context.Context, runID string) ([]byte, error)
}

// Domain errors for sequence documents and archives.
var (
	// ErrInvalidDocument indicates the content is not a valid sequence document.
	ErrInvalidDocument = errors.New("invalid sequence document")

	// ErrNotFound indicates no document is archived for the run.
	ErrNotFound = errors.New("sequence not found")

	// ErrInvalidRunID indicates an empty run id.
	ErrInvalidRunID = errors.New("invalid run ID")
)

// Key returns the object key of a run's document under prefix.
func Key(prefix, runID string) string {
	return path.Join(prefix, "sequences", runID+".yaml")
}
