// Package migrations embeds the user directory schema for golang-migrate.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
