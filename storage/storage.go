// Package storage implements optional persistence adapters: getItem/setItem
// over a single checkpoint key, with Memory, File and Redis backends.
// Persistence failures are logged by the manager and never abort execute —
// these adapters just report the error up.
package storage

import "context"

// Adapter is the storage contract every backend implements. GetItem
// returns (nil, nil) for a missing key, not an error.
type Adapter interface {
	GetItem(ctx context.Context, key string) (map[string]interface{}, error)
	SetItem(ctx context.Context, key string, value map[string]interface{}) error
}
