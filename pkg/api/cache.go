package api

import (
	"context"
	"errors"
)

var errCacheStopped = errors.New("cache stopped")

// JSONCache holds encoded API bodies for the current session version. A
// newer version drops everything cached for older ones, so a refresh or a
// filter change never serves a stale marker list. Within one version the
// number of bodies (one per viewport asked for) is capped.
type JSONCache struct {
	maxEntries int
	requests   chan cacheRequest
	quit       chan struct{}
}

type cacheRequest struct {
	ctx     context.Context
	version uint64
	key     string
	loader  func(context.Context) ([]byte, error)
	reply   chan cacheResponse
}

type cacheResponse struct {
	data []byte
	err  error
}

// NewJSONCache returns nil when maxEntries is not positive; a nil cache
// calls the loader every time.
func NewJSONCache(maxEntries int) *JSONCache {
	if maxEntries <= 0 {
		return nil
	}
	c := &JSONCache{
		maxEntries: maxEntries,
		requests:   make(chan cacheRequest),
		quit:       make(chan struct{}),
	}
	go c.loop()
	return c
}

// Close stops the cache goroutine. Safe to call more than once.
func (c *JSONCache) Close() {
	if c == nil {
		return
	}
	select {
	case <-c.quit:
	default:
		close(c.quit)
	}
}

// Get returns the body for key at version, building it with loader on a
// miss. Loader errors are not cached.
func (c *JSONCache) Get(ctx context.Context, version uint64, key string, loader func(context.Context) ([]byte, error)) ([]byte, error) {
	if c == nil {
		return loader(ctx)
	}
	req := cacheRequest{ctx: ctx, version: version, key: key, loader: loader, reply: make(chan cacheResponse, 1)}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.quit:
		return nil, errCacheStopped
	case c.requests <- req:
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-req.reply:
		if resp.err != nil {
			return nil, resp.err
		}
		out := make([]byte, len(resp.data))
		copy(out, resp.data)
		return out, nil
	}
}

func (c *JSONCache) loop() {
	var current uint64
	bodies := make(map[string][]byte)

	for {
		select {
		case <-c.quit:
			return
		case req := <-c.requests:
			if req.version > current {
				current = req.version
				bodies = make(map[string][]byte)
			}
			if req.version == current {
				if data, ok := bodies[req.key]; ok {
					req.reply <- cacheResponse{data: data}
					continue
				}
			}

			data, err := req.loader(req.ctx)
			if err != nil {
				req.reply <- cacheResponse{err: err}
				continue
			}
			// A request that raced with a refresh still gets its body, but
			// an old version is never stored.
			if req.version == current {
				if len(bodies) >= c.maxEntries {
					bodies = make(map[string][]byte)
				}
				bodies[req.key] = data
			}
			req.reply <- cacheResponse{data: data}
		}
	}
}
