//go:build titan_nocgo

package store

import (
	_ "modernc.org/sqlite" // registers "sqlite"
)

// driverName is the database/sql driver used to open the embedded store.
const driverName = "sqlite"
