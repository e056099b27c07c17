package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	assetcache "github.com/reducekit/asset-cache"
)

var bucketReductions = []byte("reductions")

// entry is the stored envelope for one reduction.
type entry struct {
	URL       string    `json:"url"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Bolt is a persistent Repository backed by bbolt, for deployments
// that want the index to survive restarts without a full rescan.
type Bolt struct {
	db     *bbolt.DB
	logger *slog.Logger
	now    func() time.Time
}

// BoltOption configures a Bolt instance.
type BoltOption func(*Bolt)

// WithLogger sets the logger for the repository.
func WithLogger(logger *slog.Logger) BoltOption {
	return func(b *Bolt) {
		b.logger = logger
	}
}

// WithNow sets the time function for testing.
func WithNow(now func() time.Time) BoltOption {
	return func(b *Bolt) {
		b.now = now
	}
}

// NewBolt creates a new Bolt repository with options.
func NewBolt(opts ...BoltOption) *Bolt {
	b := &Bolt{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open opens the database at the given path.
func (b *Bolt) Open(path string) error {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	b.db = db

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketReductions)
		return err
	})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("creating bucket: %w", err)
	}

	b.logger.Debug("opened reduction index", "path", path)
	return nil
}

// Close closes the database and releases resources.
func (b *Bolt) Close() error {
	if b.db == nil {
		return nil
	}
	b.logger.Debug("closing reduction index")
	return b.db.Close()
}

// Add records (or overwrites) the canonical URL for a key.
func (b *Bolt) Add(_ context.Context, key assetcache.Key, url string) error {
	data, err := json.Marshal(entry{URL: url, UpdatedAt: b.now()})
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}

	err = b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketReductions).Put([]byte(key.Compact()), data)
	})
	if err != nil {
		return fmt.Errorf("writing entry: %w", err)
	}
	return nil
}

// Remove deletes the entry for a key.
func (b *Bolt) Remove(_ context.Context, key assetcache.Key) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketReductions).Delete([]byte(key.Compact()))
	})
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	return nil
}

// Lookup returns the canonical URL for a key.
func (b *Bolt) Lookup(_ context.Context, key assetcache.Key) (string, bool, error) {
	var url string
	var found bool

	err := b.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(bucketReductions).Get([]byte(key.Compact()))
		if val == nil {
			return nil
		}
		var e entry
		if err := json.Unmarshal(val, &e); err != nil {
			return fmt.Errorf("decoding entry: %w", err)
		}
		url = e.URL
		found = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return url, found, nil
}

// All returns a snapshot of every entry.
func (b *Bolt) All(_ context.Context) (map[assetcache.Key]string, error) {
	out := make(map[assetcache.Key]string)

	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketReductions).ForEach(func(k, v []byte) error {
			key, err := assetcache.ParseKey(string(k))
			if err != nil {
				// Skip unparseable keys rather than failing the scan
				return nil
			}
			var e entry
			if err := json.Unmarshal(v, &e); err != nil {
				return nil
			}
			out[key] = e.URL
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scanning entries: %w", err)
	}
	return out, nil
}

// Compile-time interface check
var _ Repository = (*Bolt)(nil)
