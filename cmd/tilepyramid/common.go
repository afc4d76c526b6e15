package main

import (
	"time"

	"github.com/tilepyramid/engine/internal/tilestore"
)

const appName = "tilepyramid"

// openStore resolves root (DefaultRoot(appName) when empty) and opens a
// tilestore.Store there.
func openStore(root string) (*tilestore.Store, error) {
	if root == "" {
		root = tilestore.DefaultRoot(appName)
	}
	return tilestore.New(root)
}

func daysToDuration(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}
