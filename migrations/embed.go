// Package migrations embeds the PostgreSQL schema for the user-record and
// catalog stores.
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql files.
//
//go:embed *.sql
var FS embed.FS
