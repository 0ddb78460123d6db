// Package migrations embeds the SQL migration files applied at startup.
package migrations

import "embed"

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
