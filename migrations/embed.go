// Package migrations embeds the SQL migration files applied to every tenant database.
package migrations

import "embed"

// FS holds the embedded SQL migration files.
//
//go:embed *.sql
var FS embed.FS
