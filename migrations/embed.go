// Package migrations embeds SQL migration files for use at runtime.
// Migrations are embedded so they work regardless of working directory.
package migrations

import "embed"

// FS is the embedded migrations filesystem, holding every .sql file in
// this directory in forward-only numeric order.
//
//go:embed *.sql
var FS embed.FS
