// Package manager implements TileManager: the process-singleton routing
// facade that owns the dual cache, dispatches requests to the right
// provider, and synthesizes missing tiles from cached ancestors. Grounded
// on pyzui's tilemanager.py.
package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/tilepyramid/engine/internal/cache"
	"github.com/tilepyramid/engine/internal/cleanup"
	"github.com/tilepyramid/engine/internal/conversion"
	"github.com/tilepyramid/engine/internal/provider"
	"github.com/tilepyramid/engine/internal/rasterimg"
	"github.com/tilepyramid/engine/internal/tileid"
	"github.com/tilepyramid/engine/internal/tiler"
	"github.com/tilepyramid/engine/internal/tilestore"
)

// Sentinel errors returned by Peek, GetMetadata and ConvertAndTile.
var (
	ErrNotTiled          = errors.New("manager: media not tiled")
	ErrNotLoaded         = errors.New("manager: tile not yet loaded")
	ErrNotAvailable      = errors.New("manager: tile not available")
	ErrConversionFailed  = errors.New("manager: conversion failed")
	ErrCancelled         = errors.New("manager: operation cancelled")
)

// Provenance records how Fetch produced a tile.
type Provenance int

const (
	Loaded Provenance = iota
	Synthesized
	Placeholder
)

func (p Provenance) String() string {
	switch p {
	case Loaded:
		return "Loaded"
	case Synthesized:
		return "Synthesized"
	case Placeholder:
		return "Placeholder"
	default:
		return "Unknown"
	}
}

// Config bounds TileManager's caches and background behavior.
type Config struct {
	CacheTotalBytes     int64
	PermanentFraction   float64 // default 0.8
	AutoCleanup         bool
	CleanupAgeDays      int
	ConversionWorkers   int
	ShutdownDrainTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PermanentFraction <= 0 {
		c.PermanentFraction = 0.8
	}
	if c.ShutdownDrainTimeout <= 0 {
		c.ShutdownDrainTimeout = 5 * time.Second
	}
	return c
}

// estimateEntries converts a byte budget into an entry-count
// budget assuming an average encoded tile size; both caches are bounded by
// entry count rather than byte accounting, matching TileCache.
const avgTileBytes = 32 * 1024

func estimateEntries(totalBytes int64, fraction float64) int {
	if totalBytes <= 0 {
		return 0 // unbounded
	}
	return int(float64(totalBytes) * fraction / avgTileBytes)
}

// ConvertOptions configures ConvertAndTile's image-normalization step.
type ConvertOptions struct {
	TileSize int
	FileExt  string
	Rotation int
	Invert   bool
	Mono     bool
}

// Manager is the process-singleton facade coordinating caches, providers,
// and on-demand synthesis.
type Manager struct {
	cfg   Config
	store *tilestore.Store

	permanent *cache.Cache
	scratch   *cache.Cache

	staticProvider *provider.Provider

	mu        sync.Mutex
	dynamics  map[string]*provider.Provider
	generators map[string]provider.Generator

	runner *conversion.Runner
}

// New creates and starts a Manager: it spawns the static provider's
// worker, registers generators as dynamic providers, and (optionally)
// schedules cleanup at Shutdown.
func New(store *tilestore.Store, runner *conversion.Runner, cfg Config) *Manager {
	cfg = cfg.withDefaults()

	permCfg := cache.Config{MaxEntries: estimateEntries(cfg.CacheTotalBytes, cfg.PermanentFraction)}
	scratchCfg := cache.Config{MaxEntries: estimateEntries(cfg.CacheTotalBytes, 1-cfg.PermanentFraction)}

	m := &Manager{
		cfg:        cfg,
		store:      store,
		permanent:  cache.New(permCfg),
		scratch:    cache.New(scratchCfg),
		dynamics:   make(map[string]*provider.Provider),
		generators: make(map[string]provider.Generator),
		runner:     runner,
	}
	m.staticProvider = provider.NewStatic(m.permanent, store)
	return m
}

// RegisterGenerator wires a dynamic generator under mediaID (which must
// carry the "dynamic:" prefix) and starts its worker goroutine.
func (m *Manager) RegisterGenerator(mediaID string, gen provider.Generator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generators[mediaID] = gen
	m.dynamics[mediaID] = provider.NewDynamic(m.permanent, gen)
}

func (m *Manager) providerFor(mediaID string) (*provider.Provider, bool) {
	if tileid.ClassifyMedia(mediaID) == tileid.KindDynamic {
		m.mu.Lock()
		p, ok := m.dynamics[mediaID]
		m.mu.Unlock()
		return p, ok
	}
	return m.staticProvider, true
}

// Shutdown signals every provider to drain and stops accepting new
// requests, then runs a cleanup pass over the store when AutoCleanup is
// set (CleanupAgeDays old, 3 days if unset). It never persists in-memory
// cache state.
func (m *Manager) Shutdown() {
	m.staticProvider.Stop()
	m.mu.Lock()
	dynamics := make([]*provider.Provider, 0, len(m.dynamics))
	for _, p := range m.dynamics {
		dynamics = append(dynamics, p)
	}
	m.mu.Unlock()
	for _, p := range dynamics {
		p.Stop()
	}
	if m.cfg.AutoCleanup {
		days := m.cfg.CleanupAgeDays
		if days <= 0 {
			days = 3
		}
		_, _ = cleanup.Run(m.store, cleanup.Options{MaxAge: time.Duration(days) * 24 * time.Hour})
	}
}

// Request enqueues id to the appropriate provider without blocking.
func (m *Manager) Request(id tileid.ID) {
	if p, ok := m.providerFor(id.MediaID); ok {
		p.Enqueue(id)
	}
}

// Peek returns id's tile straight from cache, or an error if it isn't
// resolvable yet.
func (m *Manager) Peek(id tileid.ID) (rasterimg.Tile, error) {
	if !m.IsTiled(id.MediaID) {
		return rasterimg.Tile{}, ErrNotTiled
	}
	if tile, ok := m.lookupBothCaches(id); ok {
		if tile == nil {
			return rasterimg.Tile{}, ErrNotAvailable
		}
		return *tile, nil
	}
	return rasterimg.Tile{}, ErrNotLoaded
}

func (m *Manager) lookupBothCaches(id tileid.ID) (*rasterimg.Tile, bool) {
	if tile, ok := m.permanent.Get(id); ok {
		return tile, true
	}
	if tile, ok := m.scratch.Get(id); ok {
		return tile, true
	}
	return nil, false
}

// Fetch returns id's tile, synthesizing via CutTile on a cache miss. It
// never errors for a level >= 0 request against tiled media.
func (m *Manager) Fetch(id tileid.ID) (rasterimg.Tile, Provenance) {
	if tile, err := m.Peek(id); err == nil {
		return tile, Loaded
	}
	m.Request(id)
	return m.CutTile(id)
}

// CutTile synthesizes a tile from the nearest cached ancestor, per the
// documented descent rule: negative levels downscale the overview; level
// 0 is the overview itself (immortal once loaded); level >= 1 walks up
// from the parent, cropping the matched quadrant and resizing back up to
// tile size, enqueueing the intermediate tiles it skipped so future
// requests resolve straight from cache.
func (m *Manager) CutTile(id tileid.ID) (rasterimg.Tile, Provenance) {
	meta, err := m.store.ReadMetadata(id.MediaID)
	tileSize := 256
	if err == nil {
		tileSize = meta.TileSize()
	}

	if id.Level < 0 {
		overview := tileid.ID{MediaID: id.MediaID, Level: 0, Row: 0, Col: 0}
		tile, ok := m.lookupBothCaches(overview)
		if !ok || tile == nil {
			m.Request(overview)
			return placeholderTile(tileSize), Placeholder
		}
		factor := 1 << uint(-id.Level)
		scaled := tile.Resize(tile.Width()/factor, tile.Height()/factor)
		return scaled, Synthesized
	}

	if id.Level == 0 {
		tile, ok := m.lookupBothCaches(id)
		if ok && tile != nil {
			return *tile, Loaded
		}
		m.Request(id)
		return placeholderTile(tileSize), Placeholder
	}

	// walk up from the immediate parent to level 0 looking for a cached
	// ancestor tile to crop and resize back down.
	type ancestor struct {
		id         tileid.ID
		quadRow, quadCol int
	}
	chain := make([]ancestor, 0, id.Level)
	cur := id
	for cur.Level > 0 {
		parent, ok := cur.Parent()
		if !ok {
			break
		}
		chain = append(chain, ancestor{id: parent, quadRow: cur.Row % 2, quadCol: cur.Col % 2})
		cur = parent
	}

	for i, a := range chain {
		tile, ok := m.lookupBothCaches(a.id)
		if !ok || tile == nil {
			continue
		}

		result := *tile
		// descend back down through the chain we walked past, cropping
		// the matched quadrant and upscaling at each step.
		for j := i; j >= 0; j-- {
			step := chain[j]
			half := result.Width() / 2
			x0, y0 := step.quadCol*half, step.quadRow*half
			result = result.Crop(x0, y0, x0+half, y0+half).Resize(tileSize, tileSize)
		}

		for j := i - 1; j >= 0; j-- {
			m.Request(chain[j].id)
		}
		m.scratch.Insert(id, &result, 0)
		return result, Synthesized
	}

	m.Request(tileid.ID{MediaID: id.MediaID, Level: 0, Row: 0, Col: 0})
	return placeholderTile(tileSize), Placeholder
}

func placeholderTile(tileSize int) rasterimg.Tile {
	return rasterimg.FillBlack(tileSize, tileSize)
}

// IsTiled reports whether mediaID is ready to serve: true for dynamic:
// media that has a registered generator (procedural content has no
// conversion step) and for static media whose metadata records tiled=true.
// An unregistered dynamic: media id reports false.
func (m *Manager) IsTiled(mediaID string) bool {
	if tileid.ClassifyMedia(mediaID) == tileid.KindDynamic {
		m.mu.Lock()
		_, ok := m.generators[mediaID]
		m.mu.Unlock()
		return ok
	}
	return m.store.IsTiled(mediaID)
}

// GetMetadata returns a single metadata field for mediaID: for dynamic
// media, the value is derived from the registered Generator; for static
// media, it comes from TileStore.
func (m *Manager) GetMetadata(mediaID, key string) (string, error) {
	if tileid.ClassifyMedia(mediaID) == tileid.KindDynamic {
		m.mu.Lock()
		gen, ok := m.generators[mediaID]
		m.mu.Unlock()
		if !ok {
			return "", fmt.Errorf("manager: %w: %s", ErrNotTiled, mediaID)
		}
		switch key {
		case "tilesize":
			return strconv.Itoa(gen.TileSize()), nil
		case "file_ext":
			return gen.FileExt(), nil
		case "aspect_ratio":
			return strconv.FormatFloat(gen.AspectRatio(), 'f', -1, 64), nil
		case "max_level":
			if level, ok := gen.MaxLevel(); ok {
				return strconv.Itoa(level), nil
			}
			return "", nil
		default:
			return "", fmt.Errorf("manager: unknown metadata key %q", key)
		}
	}

	meta, err := m.store.ReadMetadata(mediaID)
	if err != nil {
		return "", err
	}
	v, ok := meta.Fields[key]
	if !ok {
		return "", fmt.Errorf("manager: unknown metadata key %q", key)
	}
	return v.String(), nil
}

// Purge drops pending provider requests and cache entries for mediaID
// (all media if mediaID is empty).
func (m *Manager) Purge(mediaID string) {
	m.staticProvider.Purge(mediaID)
	m.mu.Lock()
	dynamics := make([]*provider.Provider, 0, len(m.dynamics))
	for _, p := range m.dynamics {
		dynamics = append(dynamics, p)
	}
	m.mu.Unlock()
	for _, p := range dynamics {
		p.Purge(mediaID)
	}

	if mediaID == "" {
		m.permanent.Clear()
		m.scratch.Clear()
		return
	}
	m.permanent.RemoveMatching(mediaID)
	m.scratch.RemoveMatching(mediaID)
}

// ConvertAndTile normalizes sourcePath via ConversionRunner and then runs
// a Tiler to populate mediaID's pyramid. Providers are paused around the
// filesystem-heavy tiling section since it writes directly into the same
// store they read from.
func (m *Manager) ConvertAndTile(ctx context.Context, sourcePath, mediaID string, opts ConvertOptions) error {
	if opts.TileSize <= 0 {
		opts.TileSize = 256
	}
	if opts.FileExt == "" {
		opts.FileExt = "jpg"
	}

	rasterPath := sourcePath + ".ppm.tmp"
	job := conversion.Job{
		Kind:     conversion.ConvertImage,
		In:       sourcePath,
		Out:      rasterPath,
		Rotation: opts.Rotation,
		Invert:   opts.Invert,
		Mono:     opts.Mono,
	}
	handle, err := m.runner.Submit(job)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}

	status, err := handle.Wait(0)
	if err != nil || status != conversion.Done {
		if errors.Is(err, context.Canceled) {
			return ErrCancelled
		}
		return fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}

	m.pauseAll()
	defer m.resumeAll()

	f, err := os.Open(rasterPath)
	if err != nil {
		return fmt.Errorf("manager: %w", err)
	}
	defer f.Close()
	defer os.Remove(rasterPath)

	raster, err := rasterimg.NewPPMRaster(f)
	if err != nil {
		return fmt.Errorf("manager: %w", err)
	}

	tl := tiler.New(m.store, mediaID, tiler.Options{TileSize: opts.TileSize, FileExt: opts.FileExt})
	if err := tl.Run(raster); err != nil {
		if errors.Is(err, tiler.ErrCancelled) {
			return ErrCancelled
		}
		return fmt.Errorf("manager: tiling: %w", err)
	}

	return nil
}

func (m *Manager) pauseAll() {
	m.staticProvider.Pause()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.dynamics {
		p.Pause()
	}
}

func (m *Manager) resumeAll() {
	m.staticProvider.Resume()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.dynamics {
		p.Resume()
	}
}
