// Package config enumerates the tile pyramid engine's external
// configuration surface for an embedder constructing a manager.Manager
// directly. The cmd/tilepyramid subcommands parse their own flags and do
// not use this package.
package config

import (
	"time"

	"github.com/tilepyramid/engine/internal/manager"
)

// Config bounds cache sizing and background behavior. WithDefaults replaces
// zero values of PermanentFraction, CleanupAgeDays and ShutdownDrainTimeout
// with their defaults; every other field is used as given.
type Config struct {
	// CacheTotalBytes is the total memory budget for both the permanent
	// and scratch caches combined. Zero means unbounded.
	CacheTotalBytes int64

	// PermanentFraction is the share of CacheTotalBytes given to the
	// permanent cache; the remainder goes to the scratch cache used for
	// synthesized tiles. Default 0.8.
	PermanentFraction float64

	// AutoCleanup schedules a cleanup pass at shutdown.
	AutoCleanup bool
	// CleanupAgeDays is the age threshold cleanup uses, in days.
	CleanupAgeDays int
	// CleanupOnShutdown records whether cleanup runs at shutdown. Default
	// true. It is not carried into manager.Config; Manager.Shutdown runs
	// cleanup only when AutoCleanup is set.
	CleanupOnShutdown bool
	// CollectCleanupStats computes before/after tilestore.Stats as part
	// of a cleanup Report.
	CollectCleanupStats bool

	// ConversionWorkers bounds the ConversionRunner pool size. Zero uses
	// min(NumCPU, 4).
	ConversionWorkers int

	// RootDir overrides the tilestore root directory for this session.
	// Empty uses the platform default.
	RootDir string

	ShutdownDrainTimeout time.Duration
}

// Defaults returns the documented default configuration.
func Defaults() Config {
	return Config{
		PermanentFraction:    0.8,
		CleanupAgeDays:       3,
		CleanupOnShutdown:    true,
		CollectCleanupStats:  false,
		ShutdownDrainTimeout: 5 * time.Second,
	}
}

// WithDefaults fills PermanentFraction, CleanupAgeDays and
// ShutdownDrainTimeout with their defaults when they are zero or negative.
// Other fields, including CleanupOnShutdown, keep their values.
func (c Config) WithDefaults() Config {
	d := Defaults()
	if c.PermanentFraction <= 0 {
		c.PermanentFraction = d.PermanentFraction
	}
	if c.CleanupAgeDays <= 0 {
		c.CleanupAgeDays = d.CleanupAgeDays
	}
	if c.ShutdownDrainTimeout <= 0 {
		c.ShutdownDrainTimeout = d.ShutdownDrainTimeout
	}
	return c
}

// CleanupMaxAge converts CleanupAgeDays into a time.Duration.
func (c Config) CleanupMaxAge() time.Duration {
	return time.Duration(c.CleanupAgeDays) * 24 * time.Hour
}

// ToManagerConfig projects the fields manager.Manager actually needs out
// of the broader Config. RootDir, CleanupOnShutdown, and
// CollectCleanupStats have no equivalent on manager.Config, so they are
// not carried over.
func (c Config) ToManagerConfig() manager.Config {
	return manager.Config{
		CacheTotalBytes:      c.CacheTotalBytes,
		PermanentFraction:    c.PermanentFraction,
		AutoCleanup:          c.AutoCleanup,
		CleanupAgeDays:       c.CleanupAgeDays,
		ConversionWorkers:    c.ConversionWorkers,
		ShutdownDrainTimeout: c.ShutdownDrainTimeout,
	}
}
