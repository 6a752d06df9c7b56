// Package migrations embeds the SQLite schema for the wheel and team store.
package migrations

import "embed"

// FS contains the embedded migrations.
//
//go:embed *.sql
var FS embed.FS
