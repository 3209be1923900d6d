package model

import "time"

// RollbackLogEntry a row of the rollback log. Every entry written by one run
// shares the same BatchID.
type RollbackLogEntry struct {
	ID               int
	MigrationVersion string
	AppliedAt        time.Time
	BatchID          int
}

// Result the outcome of a journal run. BatchID is nil when no migration ran.
type Result struct {
	MigrationRan bool
	BatchID      *int
	Versions     []string
}
