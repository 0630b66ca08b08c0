// Package migrations embeds the SQL migration files so integration tests
// can bring a fresh database to the current schema without shelling out
// to the migrate CLI.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
