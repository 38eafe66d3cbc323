// Package dbmigrations exposes embedded SQL migrations for the tracker binary.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations applied at startup.
//
//go:embed *.sql
var Files embed.FS
