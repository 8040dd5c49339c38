package storage

import "embed"

// MigrationFS embeds the secondary-index schema so the binary never needs
// migration files on disk. Grounded on joestump-claude-ops's
// internal/db/embed.go.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
