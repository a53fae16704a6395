package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/BaSui01/flowstudio/workflow"
)

// Common errors
var (
	ErrNotFound     = errors.New("workflow not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQL    StoreType = "sql"
	StoreTypeMongo  StoreType = "mongo"
)

// Summary is the listing view of a stored definition.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Version   string    `json:"version,omitempty"`
	NodeCount int       `json:"nodeCount"`
	EdgeCount int       `json:"edgeCount"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ListOptions pages a listing. A Limit of zero or less returns everything
// after Offset.
type ListOptions struct {
	Limit  int
	Offset int
}

// GraphStore persists workflow definitions by id. Stored documents are
// opaque: the store never validates a definition, it only round-trips it.
type GraphStore interface {
	// Save creates or replaces the definition with the same id.
	Save(ctx context.Context, def *workflow.Definition) error

	// Get returns a copy of the stored definition or ErrNotFound.
	Get(ctx context.Context, id string) (*workflow.Definition, error)

	// List returns summaries ordered by most recently updated first.
	List(ctx context.Context, opts ListOptions) ([]Summary, error)

	// Delete removes the definition or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error

	// Close closes the store and releases resources
	Close() error
}

// prepare checks a definition before it is saved and fills missing
// timestamps. The caller's definition is not modified.
func prepare(def *workflow.Definition) (*workflow.Definition, error) {
	if def == nil || def.ID == "" {
		return nil, fmt.Errorf("%w: definition id is required", ErrInvalidInput)
	}
	out := def.Clone()
	now := time.Now().UTC()
	if out.Metadata.CreatedAt.IsZero() {
		out.Metadata.CreatedAt = now
	}
	if out.Metadata.UpdatedAt.IsZero() {
		out.Metadata.UpdatedAt = out.Metadata.CreatedAt
	}
	return out, nil
}

func summarize(def *workflow.Definition) Summary {
	return Summary{
		ID:        def.ID,
		Name:      def.Metadata.Name,
		Version:   def.Metadata.Version,
		NodeCount: len(def.Nodes),
		EdgeCount: len(def.Edges),
		UpdatedAt: def.Metadata.UpdatedAt,
	}
}

func encode(def *workflow.Definition) ([]byte, error) {
	data, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow %s: %w", def.ID, err)
	}
	return data, nil
}

func decode(data []byte) (*workflow.Definition, error) {
	return workflow.FromJSON(data)
}

// sortSummaries orders by most recent update, then by id.
func sortSummaries(out []Summary) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
}

// page applies opts to an ordered slice.
func page[T any](items []T, opts ListOptions) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return []T{}
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}
