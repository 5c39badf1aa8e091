// Package db provides the embedded migration files and seed data.
package db

import "embed"

// Migrations holds the golang-migrate up/down files.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Products is the sample catalog loaded by the seeder.
//
//go:embed seed/products.json
var Products []byte
