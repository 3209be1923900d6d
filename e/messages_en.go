package e

// This defines reusable error messages

const (
	MsgUnknownInternalServerError = "Unknown Internal Server Error"

	// migrations
	MsgMigrationFileNameInvalid  = "Invalid migration file name"
	MsgMigrationChecksumMismatch = "Migration checksum mismatch"
	MsgMigrationFailed           = "Migration failed"
	MsgMigrationRunnerFailed     = "Migration runner failed"

	// journal
	MsgJournalPartialBatch = "Rollback journal batch was not recorded"
	MsgJournalNotInstalled = "Rollback journal not installed"

	// setup
	MsgParametersNotFound = "No parameters found for path"
	MsgArtifactURIInvalid = "Invalid artifact URI"
	MsgArtifactKeyInvalid = "Invalid artifact key"
	MsgConfigInvalid      = "Invalid configuration"
)
