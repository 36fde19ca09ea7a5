package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/olegkotsar/ftpreconcile/config"
	"github.com/olegkotsar/ftpreconcile/model"
)

// BboltCache keeps the manifest and the clock offsets in two buckets of one
// bbolt file.
type BboltCache struct {
	db           *bbolt.DB
	bucket       []byte
	offsetBucket []byte
}

var _ Store = (*BboltCache)(nil)

// NewBboltCache opens (or creates) the database described by cfg
func NewBboltCache(cfg *config.BboltConfig) (*BboltCache, error) {
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bbolt config: %w", err)
	}

	db, err := bbolt.Open(cfg.Path, cfg.Mode, &bbolt.Options{
		Timeout: 5 * time.Second,
		NoSync:  cfg.NoSync,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Path, err)
	}

	c := &BboltCache{
		db:           db,
		bucket:       []byte(cfg.Bucket),
		offsetBucket: []byte(cfg.OffsetBucket),
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{c.bucket, c.offsetBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return c, nil
}

func (c *BboltCache) Close() error {
	return c.db.Close()
}

func (c *BboltCache) files(tx *bbolt.Tx) (*bbolt.Bucket, error) {
	b := tx.Bucket(c.bucket)
	if b == nil {
		return nil, ErrBucketNotFound
	}
	return b, nil
}

func putMeta(b *bbolt.Bucket, key string, meta model.FileMeta) error {
	val, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), val)
}

func decodeMeta(k, v []byte) (model.FileMeta, error) {
	var meta model.FileMeta
	if err := json.Unmarshal(v, &meta); err != nil {
		return meta, fmt.Errorf("unmarshal error for key %s: %w", k, err)
	}
	return meta, nil
}

func (c *BboltCache) Set(key string, meta model.FileMeta) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		b, err := c.files(tx)
		if err != nil {
			return err
		}
		return putMeta(b, key, meta)
	})
}

func (c *BboltCache) Get(key string) (*model.FileMeta, error) {
	var meta model.FileMeta
	err := c.db.View(func(tx *bbolt.Tx) error {
		b, err := c.files(tx)
		if err != nil {
			return err
		}
		val := b.Get([]byte(key))
		if val == nil {
			return fmt.Errorf("%s: %w", key, ErrKeyNotFound)
		}
		meta, err = decodeMeta([]byte(key), val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func (c *BboltCache) BatchSet(entries map[string]model.FileMeta) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		b, err := c.files(tx)
		if err != nil {
			return err
		}
		for key, meta := range entries {
			if err := putMeta(b, key, meta); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *BboltCache) DumpAll() (map[string]model.FileMeta, error) {
	return c.GetByPrefix("")
}

func (c *BboltCache) GetByPrefix(prefix string) (map[string]model.FileMeta, error) {
	results := make(map[string]model.FileMeta)
	p := []byte(prefix)

	err := c.db.View(func(tx *bbolt.Tx) error {
		b, err := c.files(tx)
		if err != nil {
			return err
		}

		cur := b.Cursor()
		for k, v := cur.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = cur.Next() {
			meta, err := decodeMeta(k, v)
			if err != nil {
				return err
			}
			results[string(k)] = meta
		}
		return nil
	})

	return results, err
}

func (c *BboltCache) Delete(key string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		b, err := c.files(tx)
		if err != nil {
			return err
		}
		if b.Get([]byte(key)) == nil {
			return fmt.Errorf("%s: %w", key, ErrKeyNotFound)
		}
		return b.Delete([]byte(key))
	})
}

func (c *BboltCache) Count() (int64, error) {
	var count int64
	err := c.db.View(func(tx *bbolt.Tx) error {
		b, err := c.files(tx)
		if err != nil {
			return err
		}
		count = int64(b.Stats().KeyN)
		return nil
	})
	return count, err
}

// IterateBatches streams cache entries in batches of the specified size.
// Every batch is read in its own short transaction so the consumer may write
// to the manifest while iterating.
func (c *BboltCache) IterateBatches(ctx context.Context, batchSize int) (<-chan map[string]model.FileMeta, <-chan error) {
	batchCh := make(chan map[string]model.FileMeta)
	errCh := make(chan error, 1)

	if batchSize <= 0 {
		batchSize = 1
	}

	go func() {
		defer close(batchCh)
		defer close(errCh)

		var from []byte
		for {
			batch, next, err := c.readOneBatch(ctx, from, batchSize)
			if err != nil {
				errCh <- err
				return
			}
			if len(batch) == 0 {
				return
			}

			select {
			case batchCh <- batch:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}

			if next == nil {
				return
			}
			from = next
		}
	}()

	return batchCh, errCh
}

// readOneBatch returns up to batchSize entries starting at startKey and the
// key to resume from (nil at the end).
func (c *BboltCache) readOneBatch(ctx context.Context, startKey []byte, batchSize int) (map[string]model.FileMeta, []byte, error) {
	batch := make(map[string]model.FileMeta, batchSize)
	var next []byte

	err := c.db.View(func(tx *bbolt.Tx) error {
		b, err := c.files(tx)
		if err != nil {
			return err
		}

		cur := b.Cursor()
		k, v := cur.First()
		if startKey != nil {
			k, v = cur.Seek(startKey)
		}

		for ; k != nil && len(batch) < batchSize; k, v = cur.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			meta, err := decodeMeta(k, v)
			if err != nil {
				return err
			}
			batch[string(k)] = meta
		}

		// bbolt keys are only valid inside the transaction
		if k != nil {
			next = append([]byte(nil), k...)
		}
		return nil
	})

	return batch, next, err
}

// Offsets are stored as big-endian nanoseconds.

func (c *BboltCache) SaveOffset(server string, offset time.Duration) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(c.offsetBucket)
		if b == nil {
			return ErrBucketNotFound
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(offset))
		return b.Put([]byte(server), buf[:])
	})
}

func (c *BboltCache) LoadOffset(server string) (time.Duration, bool, error) {
	var (
		offset time.Duration
		found  bool
	)
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(c.offsetBucket)
		if b == nil {
			return ErrBucketNotFound
		}
		v := b.Get([]byte(server))
		if v == nil {
			return nil
		}
		if len(v) != 8 {
			return fmt.Errorf("offset for %s is corrupt (%d bytes)", server, len(v))
		}
		offset = time.Duration(binary.BigEndian.Uint64(v))
		found = true
		return nil
	})
	return offset, found, err
}

// Offsets returns every stored offset keyed by server identity.
func (c *BboltCache) Offsets() (map[string]time.Duration, error) {
	out := make(map[string]time.Duration)
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(c.offsetBucket)
		if b == nil {
			return ErrBucketNotFound
		}
		return b.ForEach(func(k, v []byte) error {
			if len(v) != 8 {
				return fmt.Errorf("offset for %s is corrupt (%d bytes)", k, len(v))
			}
			out[string(k)] = time.Duration(binary.BigEndian.Uint64(v))
			return nil
		})
	})
	return out, err
}
