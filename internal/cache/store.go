package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"contentweaver/internal/core"
)

// ErrInvalidKey is returned for keys that were not produced by NewKey.
var ErrInvalidKey = errors.New("invalid cache key")

// Key identifies one cached document set.
type Key string

// NewKey derives a stable key from a namespace and a cache code.
//
// The namespace separates entries that share a code but belong to different
// module positions.
func NewKey(namespace string, code int32) Key {
	d := xxhash.New()
	_, _ = d.WriteString(namespace)
	_, _ = d.Write([]byte{0})
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(code))
	_, _ = d.Write(buf[:])
	return Key(fmt.Sprintf("%016x", d.Sum64()))
}

func (k Key) String() string { return string(k) }

// Validate reports whether k has the shape produced by NewKey.
func (k Key) Validate() error {
	if len(k) != 16 {
		return fmt.Errorf("%w: %q", ErrInvalidKey, string(k))
	}
	for _, r := range k {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return fmt.Errorf("%w: %q", ErrInvalidKey, string(k))
		}
	}
	return nil
}

// Store provides storage and retrieval of document sets.
//
// Get reports ok=false on a miss; a miss is never an error.
type Store interface {
	Get(ctx context.Context, key Key) (docs []*core.Document, ok bool, err error)
	Put(ctx context.Context, key Key, docs []*core.Document) error
}

// NopStore never hits and discards every Put.
type NopStore struct{}

func (NopStore) Get(context.Context, Key) ([]*core.Document, bool, error) { return nil, false, nil }

func (NopStore) Put(context.Context, Key, []*core.Document) error { return nil }
