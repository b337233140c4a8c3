// Package migrations holds the metrics catalog schema history.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
