package e

import (
	"errors"

	"github.com/lib/pq"
)

// Postgres SQLSTATE codes the runners and the journal react to
const (
	// PQErr42601SyntaxError a migration script does not parse
	PQErr42601SyntaxError = "42601"
	// PQErr42P01UndefinedTable relation "<name>" does not exist
	PQErr42P01UndefinedTable = "42P01"
	// PQErr55P03LockNotAvailable the journal lock could not be taken
	PQErr55P03LockNotAvailable = "55P03"
	// PQErr57014QueryCanceled the statement was cancelled, i.e. on SIGTERM
	PQErr57014QueryCanceled = "57014"
	// PQErr58030IOError Postgres code for i/o error ("could not write to temporary file")
	PQErr58030IOError = "58030"
)

// PQCode returns the SQLSTATE of the Postgres error wrapped in err, or an
// empty string if err does not come from Postgres
func PQCode(err error) string {
	var pqerr *pq.Error
	if !errors.As(err, &pqerr) {
		return ""
	}

	return string(pqerr.Code)
}

// IsPQError checks if the passed error is the specified Postgres error code
func IsPQError(err error, errorCode string) bool {
	code := PQCode(err)
	return code != "" && code == errorCode
}

// IsAnyPQError checks if the passed error is a Postgres error
func IsAnyPQError(err error) bool {
	return PQCode(err) != ""
}
