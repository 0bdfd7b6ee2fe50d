// Package migrations embeds the schema of the local override store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
