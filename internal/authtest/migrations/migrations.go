// Package migrations embeds the schema migration files for the in-process
// Kombuchalyzer test server so they ship inside the test binary.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
