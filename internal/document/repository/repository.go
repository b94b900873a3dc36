package repository

import (
	"context"
	"errors"

	"github.com/evault/evault/internal/document"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrExists   = errors.New("document already exists")
	// ErrConflict is returned when a record kept changing underneath a
	// read-check-write cycle and the retry budget ran out.
	ErrConflict = errors.New("document was modified concurrently")
)

// MutateFunc checks and changes a document inside a transaction. Returning an
// error aborts the transaction and the error is passed through unchanged.
type MutateFunc func(d *document.Document) error

// Repository persists documents. Update and Delete run fn against the latest
// stored state and only commit if nothing else committed in between.
type Repository interface {
	Create(ctx context.Context, d *document.Document) error
	Get(ctx context.Context, id string) (*document.Document, error)
	Update(ctx context.Context, id string, fn MutateFunc) (*document.Document, error)
	Delete(ctx context.Context, id string, fn MutateFunc) (*document.Document, error)
	// List returns documents principal can read that match f, newest first.
	List(ctx context.Context, principal string, f document.Filter) ([]*document.Document, error)
	// StorageKeys returns every blob key referenced by any document version.
	StorageKeys(ctx context.Context) (map[string]struct{}, error)
}
