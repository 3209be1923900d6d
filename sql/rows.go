package sql

import (
	"database/sql"

	"github.com/Skyrin/go-deploy/e"
)

const (
	ECode010301 = e.Code0103 + "01"
	ECode010302 = e.Code0103 + "02"
	ECode010303 = e.Code0103 + "03"
)

// Rows wraps *sql.Rows so errors carry a code and the statement
type Rows struct {
	rows  *sql.Rows
	query string
}

// Next prepares the next row for Scan
func (r *Rows) Next() bool {
	return r.rows.Next()
}

// Scan copies the columns of the current row into dest
func (r *Rows) Scan(dest ...interface{}) error {
	if err := r.rows.Scan(dest...); err != nil {
		return e.W(err, ECode010301, queryDebug(r.query))
	}

	return nil
}

// Err returns the error hit while iterating, if any
func (r *Rows) Err() error {
	if err := r.rows.Err(); err != nil {
		return e.W(err, ECode010302, queryDebug(r.query))
	}

	return nil
}

// Close closes the rows. Safe to call more than once.
func (r *Rows) Close() error {
	if err := r.rows.Close(); err != nil {
		return e.W(err, ECode010303, queryDebug(r.query))
	}

	return nil
}
