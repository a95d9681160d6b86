package modules

import (
	"context"
	"fmt"
	"strconv"

	"contentweaver/internal/cache"
	"contentweaver/internal/core"
)

// CacheObserver is implemented by execution contexts that want to hear about
// document cache lookups.
type CacheObserver interface {
	CacheLookup(key string, hit bool)
}

// Cache runs a child chain unless an identical input was seen before.
type Cache struct {
	store    cache.Store
	children []core.Module
	key      string
}

// CacheDocuments runs children on the working set and stores their output
// under a key derived from the input documents' cache code, the executing
// pipeline and the child chain. When the key is already stored the children
// do not run and the stored output is returned.
func CacheDocuments(store cache.Store, children ...core.Module) *Cache {
	if store == nil {
		store = cache.NopStore{}
	}
	return &Cache{store: store, children: append([]core.Module(nil), children...)}
}

// WithKey adds a caller-chosen discriminator to the cache namespace, for
// child modules whose configuration is not visible through core.CacheCoder,
// such as functions.
func (c *Cache) WithKey(key string) *Cache {
	c.key = key
	return c
}

func (*Cache) Name() string { return "CacheDocuments" }

func (c *Cache) Children() []core.Module { return c.children }

// namespace names the child chain. Children that implement core.CacheCoder
// contribute their configuration code next to their name.
func (c *Cache) namespace(ctx context.Context, pipeline string) (string, error) {
	ns := core.NormalizeName(pipeline) + "/" + c.key
	var err error
	core.WalkModules(c.children, func(m core.Module) {
		ns += "/" + core.ModuleName(m)
		coder, ok := m.(core.CacheCoder)
		if !ok || err != nil {
			return
		}
		var code int32
		if code, err = coder.CacheCode(ctx); err == nil {
			ns += ":" + strconv.FormatInt(int64(code), 10)
		}
	})
	if err != nil {
		return "", fmt.Errorf("computing module cache code: %w", err)
	}
	return ns, nil
}

func (c *Cache) Execute(ctx context.Context, ec core.ExecutionContext, inputs []*core.Document) ([]*core.Document, error) {
	pipeline := ""
	if ec != nil {
		pipeline = ec.PipelineName()
	}
	code, err := core.DocumentsCacheCode(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("computing input cache code: %w", err)
	}
	ns, err := c.namespace(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	key := cache.NewKey(ns, code)
	obs, _ := ec.(CacheObserver)

	docs, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reading cache entry %s: %w", key, err)
	}
	if ok {
		if obs != nil {
			obs.CacheLookup(key.String(), true)
		}
		return docs, nil
	}
	if obs != nil {
		obs.CacheLookup(key.String(), false)
	}

	out, err := core.ExecuteModules(ctx, ec, c.children, inputs)
	if err != nil {
		return nil, err
	}
	if err := c.store.Put(ctx, key, out); err != nil {
		return nil, fmt.Errorf("writing cache entry %s: %w", key, err)
	}
	return out, nil
}
