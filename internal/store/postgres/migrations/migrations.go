// Package migrations embeds the SQL schema for the Postgres store.
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql files in this directory.
//
//go:embed *.sql
var FS embed.FS
