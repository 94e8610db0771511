// Package migrations embeds the schema migration files so the binary can
// apply them at startup regardless of working directory.
package migrations

import "embed"

// FS holds every .sql file in this directory, applied in lexical order by
// the storage migrations runner.
//
//go:embed *.sql
var FS embed.FS
