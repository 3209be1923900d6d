package sql

import (
	"database/sql"

	"github.com/Skyrin/go-deploy/e"
)

const (
	ECode010201 = e.Code0102 + "01"
	ECode010202 = e.Code0102 + "02"
)

// Row wraps *sql.Row so scan errors carry a code and the statement
type Row struct {
	row   *sql.Row
	query string
}

// Scan copies the columns into dest. A missing row is returned as an error
// wrapping sql.ErrNoRows.
func (r *Row) Scan(dest ...interface{}) error {
	if err := r.row.Scan(dest...); err != nil {
		return e.W(err, ECode010201, queryDebug(r.query))
	}

	return nil
}

// Err returns the error of the query, if any
func (r *Row) Err() error {
	if err := r.row.Err(); err != nil {
		return e.W(err, ECode010202, queryDebug(r.query))
	}

	return nil
}

// queryDebug the debug message attached to query errors
func queryDebug(query string) string {
	return "query: " + truncate(query)
}
