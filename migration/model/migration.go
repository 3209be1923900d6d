package model

import "time"

const (
	// HistoryTypeSQL type recorded for SQL migration scripts
	HistoryTypeSQL = "SQL"
)

// MigrationRecord a row of the migration history table. One row is written
// per attempted migration file and rows are never updated.
type MigrationRecord struct {
	InstalledRank int
	Version       string
	Description   string
	Type          string
	Script        string
	Checksum      int32
	InstalledBy   string
	InstalledOn   time.Time
	ExecutionTime int // milliseconds
	Success       bool
}
