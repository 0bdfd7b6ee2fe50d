// Package kv stores opaque values under string keys in the local database.
package kv

import (
	"context"
)

// Repository is a flat key/value table. Get returns (nil, nil) for a
// missing key.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	Clear(ctx context.Context, prefix string) error
}
