package session

import (
	"context"
	"errors"
	"time"

	"intentflow/internal/extract"
)

const DefaultID = "default"

var ErrNotFound = errors.New("session not found")

// Context is what survives between a clarification question and its answer.
type Context struct {
	ExtractedContent   string           `json:"extracted_content"`
	ExtractionMetadata extract.Metadata `json:"extraction_metadata"`
	Rounds             int              `json:"rounds"`
	CreatedAt          time.Time        `json:"created_at"`
}

// Store keeps session contexts. Take must be atomic per id: of two
// concurrent Takes for one id, exactly one gets the context.
type Store interface {
	Put(ctx context.Context, id string, sc Context) error
	Get(ctx context.Context, id string) (Context, error)
	Take(ctx context.Context, id string) (Context, error)
	Delete(ctx context.Context, id string) error
}

// ID returns id, or DefaultID when it is blank.
func ID(id string) string {
	if id == "" {
		return DefaultID
	}
	return id
}
