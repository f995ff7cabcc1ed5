// Package repo defines a generic keyed repository and its Neo4j implementation.
package repo

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no entity has the requested ID.
var ErrNotFound = errors.New("repo: not found")

// Repository stores entities by ID. Put creates or replaces.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	Put(ctx context.Context, id ID, entity T) error
}
