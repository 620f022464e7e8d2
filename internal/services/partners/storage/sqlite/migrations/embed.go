package migrations

import "embed"

// FS contains embedded SQLite migrations for partners storage.
//
//go:embed *.sql
var FS embed.FS
