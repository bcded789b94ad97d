// Package execstore provides execution record persistence.
package execstore

import (
	"context"
	"errors"
	"time"

	"github.com/unicon/grader-go/pkg/types"
)

// ErrNotFound is returned when an execution does not exist.
var ErrNotFound = errors.New("execution not found")

// Store persists execution records. Implementations must be safe for
// concurrent use.
type Store interface {
	// Create persists a new record; the record's ID must be unique.
	Create(ctx context.Context, rec *types.ExecutionRecord) error

	// Get returns a copy of the record, or ErrNotFound.
	Get(ctx context.Context, id string) (*types.ExecutionRecord, error)

	// List returns the IDs of all known executions.
	List(ctx context.Context) ([]string, error)

	// Update replaces an existing record, or returns ErrNotFound.
	Update(ctx context.Context, rec *types.ExecutionRecord) error

	Close() error
}

// Config holds configuration shared by Store implementations.
type Config struct {
	// TTL for finished executions (0 = no expiry). Memory stores expire
	// lazily; redis stores use key TTLs.
	TTL time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		TTL: 7 * 24 * time.Hour,
	}
}
