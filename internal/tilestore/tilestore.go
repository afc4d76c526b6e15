// Package tilestore implements the content-addressed on-disk tile + metadata
// repository: a pure filesystem wrapper, grounded on pyzui's tilestore.py.
package tilestore

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tilepyramid/engine/internal/rasterimg"
	"github.com/tilepyramid/engine/internal/tileid"
)

// ErrMediaNotTiled is returned when metadata indicates tiling has not
// completed (or has never started) for a media_id.
var ErrMediaNotTiled = errors.New("tilestore: media not tiled")

// Stats summarizes the contents of a Store's root directory.
type Stats struct {
	MediaCount    int
	FileCount     int
	Bytes         int64
	BytesByMedia  map[string]int64
}

// Store is a filesystem-backed tile + metadata repository rooted at one
// directory. All writes (tile saves, metadata writes, media deletion) are
// serialized against each other by a single process-wide mutex; reads are
// concurrent with each other and only block behind an in-flight write.
type Store struct {
	root string

	diskMu sync.RWMutex

	metaMu   sync.Mutex
	metaCache map[string]Metadata
}

// New creates a Store rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("tilestore: %w", err)
	}
	return &Store{root: root, metaCache: make(map[string]Metadata)}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// mediaHash returns the stable, content-free hash of a media_id used as its
// on-disk directory name.
func mediaHash(mediaID string) string {
	sum := sha1.Sum([]byte(mediaID))
	return hex.EncodeToString(sum[:])
}

// MediaPath returns the directory holding tiles and metadata for mediaID.
func (s *Store) MediaPath(mediaID string) string {
	return filepath.Join(s.root, mediaHash(mediaID))
}

// TilePath returns the path a tile file for id would live at, given its
// file extension.
func (s *Store) TilePath(id tileid.ID, ext string) string {
	dir := filepath.Join(s.MediaPath(id.MediaID), fmt.Sprintf("%02d", id.Level))
	return filepath.Join(dir, fmt.Sprintf("%02d_%06d_%06d.%s", id.Level, id.Row, id.Col, ext))
}

func (s *Store) metadataPath(mediaID string) string {
	return filepath.Join(s.MediaPath(mediaID), "metadata")
}

// ReadMetadata loads and parses the metadata record for mediaID.
func (s *Store) ReadMetadata(mediaID string) (Metadata, error) {
	s.diskMu.RLock()
	defer s.diskMu.RUnlock()

	f, err := os.Open(s.metadataPath(mediaID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Metadata{}, ErrMediaNotTiled
		}
		return Metadata{}, fmt.Errorf("tilestore: %w", err)
	}
	defer f.Close()

	meta, err := parseMetadata(f)
	if err != nil {
		return Metadata{}, err
	}

	s.metaMu.Lock()
	s.metaCache[mediaID] = meta
	s.metaMu.Unlock()

	return meta, nil
}

// WriteMetadata persists fields for mediaID, preserving any existing keys
// not present in fields, via an atomic write-then-rename.
func (s *Store) WriteMetadata(mediaID string, fields map[string]MetaValue) error {
	s.diskMu.Lock()
	defer s.diskMu.Unlock()

	if err := os.MkdirAll(s.MediaPath(mediaID), 0o755); err != nil {
		return fmt.Errorf("tilestore: %w", err)
	}

	merged := newMetadata()
	if existing, err := os.Open(s.metadataPath(mediaID)); err == nil {
		if old, perr := parseMetadata(existing); perr == nil {
			merged = old
		}
		existing.Close()
	}
	for k, v := range fields {
		merged.Fields[k] = v
	}

	if err := atomicWriteMetadata(s.metadataPath(mediaID), merged); err != nil {
		return err
	}

	s.metaMu.Lock()
	s.metaCache[mediaID] = merged
	s.metaMu.Unlock()
	return nil
}

// WriteMetadataFields is a typed convenience wrapper over WriteMetadata for
// the fields the Tiler writes on completion.
func (s *Store) WriteMetadataFields(mediaID, fileExt string, tileSize, maxLevel, width, height int, tiled bool) error {
	fields := map[string]MetaValue{
		"file_ext":  strValue(fileExt),
		"tilesize":  intValue(int64(tileSize)),
		"max_level": intValue(int64(maxLevel)),
		"width":     intValue(int64(width)),
		"height":    intValue(int64(height)),
		"tiled":     boolValue(tiled),
	}
	if height > 0 {
		fields["aspect_ratio"] = floatValue(float64(width) / float64(height))
	}
	return s.WriteMetadata(mediaID, fields)
}

// IsTiled reports whether mediaID has a complete on-disk pyramid: both the
// metadata file and the (0,0,0) tile must exist, and metadata must assert
// tiled=true.
func (s *Store) IsTiled(mediaID string) bool {
	meta, err := s.ReadMetadata(mediaID)
	if err != nil {
		return false
	}
	if !meta.Tiled() {
		return false
	}
	overview := tileid.ID{MediaID: mediaID, Level: 0, Row: 0, Col: 0}
	path := s.TilePath(overview, meta.FileExt())

	s.diskMu.RLock()
	defer s.diskMu.RUnlock()
	_, err = os.Stat(path)
	return err == nil
}

// SaveTile encodes and writes tile to disk at the path for id, creating
// parent directories as needed.
func (s *Store) SaveTile(id tileid.ID, tile rasterimg.Tile, ext string) error {
	s.diskMu.Lock()
	defer s.diskMu.Unlock()

	path := s.TilePath(id, ext)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("tilestore: %w", err)
	}
	if err := tile.Save(path, ext); err != nil {
		return err
	}
	return nil
}

// LoadTile decodes and returns the tile stored at id's path. Returns
// ErrMediaNotTiled if the media has no metadata at all, or a wrapped
// fs.ErrNotExist-based error if the specific tile file is absent.
// provider.StaticLoader does not tell the two apart: both become a
// tombstone.
func (s *Store) LoadTile(id tileid.ID) (rasterimg.Tile, error) {
	meta, err := s.ReadMetadata(id.MediaID)
	if err != nil {
		return rasterimg.Tile{}, err
	}
	if !meta.Tiled() {
		return rasterimg.Tile{}, ErrMediaNotTiled
	}

	path := s.TilePath(id, meta.FileExt())

	s.diskMu.RLock()
	defer s.diskMu.RUnlock()

	tile, err := rasterimg.Load(path, meta.FileExt())
	if err != nil {
		return rasterimg.Tile{}, err
	}
	return tile, nil
}

// WriteTileBytes writes already-encoded tile bytes directly to id's path,
// skipping the Tile encode step. Used by archive importers that already
// hold a tile in its on-wire format.
func (s *Store) WriteTileBytes(id tileid.ID, data []byte, ext string) error {
	s.diskMu.Lock()
	defer s.diskMu.Unlock()

	path := s.TilePath(id, ext)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("tilestore: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("tilestore: %w", err)
	}
	return nil
}

// LoadTileRaw decodes and returns the tile file at id's path without
// consulting metadata. Used by Tiler while building a pyramid, before the
// tiled=true flag is written, when the public LoadTile gate would
// otherwise refuse to read tiles it just wrote.
func (s *Store) LoadTileRaw(id tileid.ID, ext string) (rasterimg.Tile, error) {
	s.diskMu.RLock()
	defer s.diskMu.RUnlock()

	tile, err := rasterimg.Load(s.TilePath(id, ext), ext)
	if err != nil {
		return rasterimg.Tile{}, err
	}
	return tile, nil
}

// DeleteMedia removes mediaID's entire on-disk directory.
func (s *Store) DeleteMedia(mediaID string) error {
	s.diskMu.Lock()
	defer s.diskMu.Unlock()

	if err := os.RemoveAll(s.MediaPath(mediaID)); err != nil {
		return fmt.Errorf("tilestore: %w", err)
	}

	s.metaMu.Lock()
	delete(s.metaCache, mediaID)
	s.metaMu.Unlock()
	return nil
}

// Stats walks the store root and reports aggregate + per-media disk usage.
func (s *Store) Stats() (Stats, error) {
	s.diskMu.RLock()
	defer s.diskMu.RUnlock()

	stats := Stats{BytesByMedia: make(map[string]int64)}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return stats, nil
		}
		return stats, fmt.Errorf("tilestore: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		stats.MediaCount++
		mediaDir := filepath.Join(s.root, entry.Name())
		var size int64
		err := filepath.WalkDir(mediaDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			stats.FileCount++
			size += info.Size()
			return nil
		})
		if err != nil {
			return stats, fmt.Errorf("tilestore: %w", err)
		}
		stats.Bytes += size
		stats.BytesByMedia[entry.Name()] = size
	}

	return stats, nil
}

// fileAccessTime is the later of a file's mtime and atime — a tile file
// that is only ever read (panned/zoomed, never rewritten) must not look
// stale just because its content hasn't changed since it was written.
func fileAccessTime(info fs.FileInfo) time.Time {
	latest := info.ModTime()
	if atime := atimeOf(info); atime.After(latest) {
		latest = atime
	}
	return latest
}

// MostRecentAccess returns the most recent access or modification time
// among all files under mediaID's directory, used by the cleanup subsystem
// to judge a media directory's age.
func (s *Store) MostRecentAccess(mediaID string) (time.Time, error) {
	s.diskMu.RLock()
	defer s.diskMu.RUnlock()

	var latest time.Time
	err := filepath.WalkDir(s.MediaPath(mediaID), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if t := fileAccessTime(info); t.After(latest) {
			latest = t
		}
		return nil
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("tilestore: %w", err)
	}
	return latest, nil
}

// MostRecentAccessHash is MostRecentAccess addressed by on-disk hash
// directly, for callers (the cleanup subsystem) that enumerate media via
// MediaHashes without knowing the original media_id strings.
func (s *Store) MostRecentAccessHash(hash string) (time.Time, error) {
	s.diskMu.RLock()
	defer s.diskMu.RUnlock()

	var latest time.Time
	err := filepath.WalkDir(filepath.Join(s.root, hash), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if t := fileAccessTime(info); t.After(latest) {
			latest = t
		}
		return nil
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("tilestore: %w", err)
	}
	return latest, nil
}

// MediaHashes lists the on-disk media directory names (content hashes),
// used by the cleanup subsystem to enumerate candidates without needing to
// know original media_id strings.
func (s *Store) MediaHashes() ([]string, error) {
	s.diskMu.RLock()
	defer s.diskMu.RUnlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("tilestore: %w", err)
	}
	var hashes []string
	for _, entry := range entries {
		if entry.IsDir() {
			hashes = append(hashes, entry.Name())
		}
	}
	return hashes, nil
}

// DeleteMediaHash removes a media directory identified by its on-disk hash
// directly, used by cleanup when the original media_id is not known.
func (s *Store) DeleteMediaHash(hash string) error {
	s.diskMu.Lock()
	defer s.diskMu.Unlock()
	if err := os.RemoveAll(filepath.Join(s.root, hash)); err != nil {
		return fmt.Errorf("tilestore: %w", err)
	}
	return nil
}

// DirSize reports the total size in bytes of a media directory by hash.
func (s *Store) DirSize(hash string) (int64, error) {
	s.diskMu.RLock()
	defer s.diskMu.RUnlock()

	var size int64
	err := filepath.WalkDir(filepath.Join(s.root, hash), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("tilestore: %w", err)
	}
	return size, nil
}

// DefaultRoot returns the platform-specific default tilestore directory,
// $HOME/.<app>/tilestore on Unix and %APPDATA%\<app>\tilestore on Windows.
func DefaultRoot(app string) string {
	if appdata := os.Getenv("APPDATA"); appdata != "" {
		return filepath.Join(appdata, app, "tilestore")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, "."+app, "tilestore")
}
