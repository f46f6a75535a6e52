// Package db embeds the SQL schema migrations.
package db

import "embed"

// MigrationsDir is the directory inside Migrations holding the SQL files.
const MigrationsDir = "migrations"

// Migrations holds the golang-migrate source files.
//
//go:embed migrations/*.sql
var Migrations embed.FS
