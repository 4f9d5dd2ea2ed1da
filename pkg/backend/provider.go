package backend

import (
	"context"
	"io"
	"time"
)

// Backend defines the two calls the conversation engine makes to the
// inference and ingestion service.
type Backend interface {
	// Ask opens a streaming answer. The caller owns the returned body and must
	// close it.
	Ask(ctx context.Context, req AskRequest) (io.ReadCloser, error)

	// Ingest uploads a document and returns the identifier it was stored under.
	Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error)
}

// Config holds connection settings for a backend.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	NResults int
}
