package migrations

import "embed"

// Postgres contains the embedded postgres schema.
//
//go:embed postgres/*.sql
var Postgres embed.FS

// SQLite contains the embedded sqlite schema.
//
//go:embed sqlite/*.sql
var SQLite embed.FS
