package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/olegkotsar/ftpreconcile/config"
	"github.com/olegkotsar/ftpreconcile/model"
)

// CacheProvider is the publish manifest: one FileMeta per source key.
type CacheProvider interface {
	Set(key string, meta model.FileMeta) error
	Get(key string) (*model.FileMeta, error)
	BatchSet(entries map[string]model.FileMeta) error
	GetByPrefix(prefix string) (map[string]model.FileMeta, error)
	DumpAll() (map[string]model.FileMeta, error)
	Delete(key string) error
	Close() error
	Count() (int64, error)
	// IterateBatches streams cache entries in batches of the specified size
	IterateBatches(ctx context.Context, batchSize int) (<-chan map[string]model.FileMeta, <-chan error)
}

// OffsetStore persists calibrated clock offsets per server identity.
type OffsetStore interface {
	LoadOffset(server string) (time.Duration, bool, error)
	SaveOffset(server string, offset time.Duration) error
}

// Store is a manifest that also keeps clock offsets.
type Store interface {
	CacheProvider
	OffsetStore
	Offsets() (map[string]time.Duration, error)
}

var (
	ErrKeyNotFound    error = errors.New("key not found")
	ErrBucketNotFound error = errors.New("bucket not found")
)

func CreateCache(cfg *config.CacheConfig) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache configuration: %w", err)
	}

	switch cfg.CacheType {
	case config.CacheTypeBbolt:
		return NewBboltCache(cfg.Bbolt)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.CacheType)
	}
}
