//go:build libsql

package store

import (
	_ "github.com/tursodatabase/go-libsql"
)

// DriverLibSQL opens the database through libSQL. Requires cgo.
const DriverLibSQL = "libsql"

func init() {
	drivers[DriverLibSQL] = driverSpec{
		name: "libsql",
		dsn: func(path string) string {
			return "file:" + path
		},
		// libSQL ignores DSN pragmas.
		pragmas: []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
			"PRAGMA foreign_keys=ON",
		},
	}
}
