// Package cache implements TileCache, a bounded concurrent LRU mapping
// tileid.ID to tile entries, with an eviction-class rule that makes overview
// tiles immortal. Grounded on pyzui's tilecache.py.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/tilepyramid/engine/internal/rasterimg"
	"github.com/tilepyramid/engine/internal/tileid"
)

// entry is the value stored per id. A nil Tile pointer marks a tombstone —
// a known-unavailable sentinel.
type entry struct {
	tile         *rasterimg.Tile
	insertedAt   time.Time
	lastAccess   time.Time
	accessCount  uint32
	maxAccesses  uint32 // 0 means unlimited
	listElem     *list.Element // nil for immortal entries, which never sit on the LRU list
}

// Config bounds a Cache's size and entry lifetime. Zero/negative values
// disable the corresponding limit.
type Config struct {
	MaxEntries  int
	MaxAge      time.Duration
	MaxAccesses uint32
}

// Cache is a concurrent LRU cache of tiles keyed by tileid.ID. All exported
// methods are safe for concurrent use. Unlike the Python original this
// does not require a reentrant mutex: every exported method takes the lock
// at most once per call, because eviction bookkeeping is inlined rather
// than implemented by one exported method calling another (see DESIGN.md).
type Cache struct {
	mu     sync.Mutex
	cfg    Config
	data   map[tileid.ID]*entry
	lru    *list.List // mortal entries only, front = most recently used
	listID map[*list.Element]tileid.ID
}

// New creates a Cache bounded by cfg.
func New(cfg Config) *Cache {
	return &Cache{
		cfg:    cfg,
		data:   make(map[tileid.ID]*entry),
		lru:    list.New(),
		listID: make(map[*list.Element]tileid.ID),
	}
}

func (c *Cache) touch(id tileid.ID, e *entry) {
	now := time.Now()
	e.lastAccess = now
	if e.listElem != nil {
		c.lru.MoveToFront(e.listElem)
	}
}

// insertLocked adds or replaces the entry for id. Caller holds c.mu.
func (c *Cache) insertLocked(id tileid.ID, tile *rasterimg.Tile) {
	if old, ok := c.data[id]; ok {
		if tile == nil && old.tile != nil {
			// don't replace an existing tile with a tombstone — matches
			// the source's "don't replace an existing tile with a None
			// tile" rule.
			return
		}
		c.removeLocked(id)
	}

	now := time.Now()
	e := &entry{tile: tile, insertedAt: now, lastAccess: now}

	if !id.Immortal() {
		elem := c.lru.PushFront(id)
		e.listElem = elem
		c.listID[elem] = id
	}

	c.data[id] = e
	c.evictLocked()
}

// Insert stores tile (nil for a tombstone) under id. If maxAccesses > 0 it
// overrides the cache-level Config.MaxAccesses for this entry; if it is 0
// the entry falls back to Config.MaxAccesses (itself optional — 0 there
// means unlimited).
func (c *Cache) Insert(id tileid.ID, tile *rasterimg.Tile, maxAccesses uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(id, tile)
	if maxAccesses == 0 {
		maxAccesses = c.cfg.MaxAccesses
	}
	if maxAccesses > 0 {
		if e, ok := c.data[id]; ok {
			e.maxAccesses = maxAccesses
		}
	}
}

// Get returns the tile for id (nil if id is a tombstone) and true, or
// (nil, false) if id is not present at all. It updates last-access time and
// access count, and evicts the entry if an access-count limit is reached.
func (c *Cache) Get(id tileid.ID) (*rasterimg.Tile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[id]
	if !ok {
		return nil, false
	}

	c.touch(id, e)
	e.accessCount++

	tile := e.tile
	if e.maxAccesses > 0 && e.accessCount >= e.maxAccesses {
		c.removeLocked(id)
	}

	return tile, true
}

// Contains reports whether id has any entry (including a tombstone).
func (c *Cache) Contains(id tileid.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[id]
	return ok
}

// removeLocked deletes id's entry. Caller holds c.mu.
func (c *Cache) removeLocked(id tileid.ID) {
	e, ok := c.data[id]
	if !ok {
		return
	}
	if e.listElem != nil {
		c.lru.Remove(e.listElem)
		delete(c.listID, e.listElem)
	}
	delete(c.data, id)
}

// Remove deletes id's entry, if any.
func (c *Cache) Remove(id tileid.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(id)
}

// RemoveMatching deletes every entry whose media_id equals mediaID.
func (c *Cache) RemoveMatching(mediaID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.data {
		if id.MediaID == mediaID {
			c.removeLocked(id)
		}
	}
}

// Clear removes every entry, mortal and immortal alike.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[tileid.ID]*entry)
	c.lru.Init()
	c.listID = make(map[*list.Element]tileid.ID)
}

// Len reports the number of mortal entries currently tracked for eviction
// (immortal overview entries are not counted, matching the source's rule
// that they "do not count towards the number of stored tiles").
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// evictLocked enforces MaxEntries/MaxAge by evicting the least recently
// used mortal entry until the cache is back in bounds (MaxAccesses is
// enforced per entry in Get). Caller holds c.mu.
func (c *Cache) evictLocked() {
	for {
		over := c.cfg.MaxEntries > 0 && c.lru.Len() > c.cfg.MaxEntries
		aged := c.agedLocked()
		if !over && !aged {
			return
		}
		back := c.lru.Back()
		if back == nil {
			return
		}
		id := c.listID[back]
		c.removeLocked(id)
	}
}

func (c *Cache) agedLocked() bool {
	if c.cfg.MaxAge <= 0 {
		return false
	}
	back := c.lru.Back()
	if back == nil {
		return false
	}
	id := c.listID[back]
	e := c.data[id]
	return time.Since(e.insertedAt) > c.cfg.MaxAge
}
