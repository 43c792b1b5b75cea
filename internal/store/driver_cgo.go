//go:build !titan_nocgo

package store

import (
	_ "github.com/mattn/go-sqlite3" // registers "sqlite3"
)

// driverName is the database/sql driver used to open the embedded store.
// The default build uses the CGO-backed mattn/go-sqlite3 driver; pass
// -tags titan_nocgo to switch to the pure-Go modernc.org/sqlite driver for
// cross-compiled or CGO-free builds (see driver_nocgo.go).
const driverName = "sqlite3"
