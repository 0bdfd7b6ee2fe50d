// Package migrations embeds the schema of the shared Postgres row store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
