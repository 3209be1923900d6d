package migration

import "context"

const (
	// RunnerNative applies migrations with the built in Migrator
	RunnerNative = "native"
	// RunnerFlyway applies migrations with the Flyway CLI
	RunnerFlyway = "flyway"
)

// Runner applies all pending migrations. Running it again with no new
// migration files must be a no-op.
type Runner interface {
	Migrate(ctx context.Context) error
}
