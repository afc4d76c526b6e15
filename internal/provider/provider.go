// Package provider implements the LIFO, condition-variable-driven worker
// that populates the cache: StaticProvider reads from a tilestore.Store,
// DynamicProvider wraps a pluggable procedural Generator. Grounded on
// pyzui's provider.py / staticprovider.py / dynamicprovider.py.
package provider

import (
	"sync"

	"github.com/tilepyramid/engine/internal/cache"
	"github.com/tilepyramid/engine/internal/rasterimg"
	"github.com/tilepyramid/engine/internal/tileid"
)

// Loader fetches one tile's bytes from whatever backs a Provider. A nil
// *rasterimg.Tile with a nil error means "not available" — the worker
// inserts a tombstone.
type Loader interface {
	Load(id tileid.ID) (*rasterimg.Tile, error)
}

// Provider is a worker that drains a LIFO request queue into a shared
// cache. The zero value is not usable; construct with New.
type Provider struct {
	cache  *cache.Cache
	loader Loader

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []tileid.ID          // top = queue[len-1]
	queued   map[tileid.ID]bool   // dedup: already queued, not yet popped
	paused   bool
	stopping bool

	wg sync.WaitGroup
}

// New creates a Provider and starts its worker goroutine.
func New(c *cache.Cache, loader Loader) *Provider {
	p := &Provider{
		cache:  c,
		loader: loader,
		queued: make(map[tileid.ID]bool),
	}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(1)
	go p.run()
	return p
}

// Enqueue pushes id onto the top of the request queue. A duplicate
// enqueue before the existing one is popped coalesces to a single
// request.
func (p *Provider) Enqueue(id tileid.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopping || p.queued[id] {
		return
	}
	p.queue = append(p.queue, id)
	p.queued[id] = true
	p.cond.Signal()
}

// Purge drops all queued-but-not-yet-popped requests. If mediaID is
// non-empty only requests for that media are dropped; otherwise the
// entire queue is cleared. In-flight loads are unaffected — their result
// is still written to cache when they finish.
func (p *Provider) Purge(mediaID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if mediaID == "" {
		p.queue = p.queue[:0]
		p.queued = make(map[tileid.ID]bool)
		return
	}

	kept := p.queue[:0]
	for _, id := range p.queue {
		if id.MediaID == mediaID {
			delete(p.queued, id)
			continue
		}
		kept = append(kept, id)
	}
	p.queue = kept
}

// Pause suspends the worker before its next pop. An in-flight load
// already underway completes normally.
func (p *Provider) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

// Resume wakes a paused worker.
func (p *Provider) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
	p.cond.Signal()
}

// Stop signals the worker to drain and exit, and blocks until it has.
func (p *Provider) Stop() {
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()
	p.cond.Signal()
	p.wg.Wait()
}

func (p *Provider) run() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for (len(p.queue) == 0 || p.paused) && !p.stopping {
			p.cond.Wait()
		}
		if p.stopping && len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			continue
		}

		last := len(p.queue) - 1
		id := p.queue[last]
		p.queue = p.queue[:last]
		delete(p.queued, id)
		p.mu.Unlock()

		tile, err := p.loader.Load(id)
		if err != nil || tile == nil {
			p.cache.Insert(id, nil, 0)
			continue
		}
		p.cache.Insert(id, tile, 0)
	}
}
