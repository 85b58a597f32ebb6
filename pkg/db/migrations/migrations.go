// Package migrations holds the bun migration set for the jobs database.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
