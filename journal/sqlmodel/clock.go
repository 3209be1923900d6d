package sqlmodel

import (
	"context"
	"time"

	"github.com/Skyrin/go-deploy/e"
	"github.com/Skyrin/go-deploy/sql"
)

const (
	ECode030401 = e.Code0304 + "01"
)

// DBNow returns the database's now(). Migration history timestamps are
// written with the database clock, so comparisons must use it too.
func DBNow(ctx context.Context, db *sql.Connection) (t time.Time, err error) {
	if err := db.QueryRow(ctx, "SELECT now()").Scan(&t); err != nil {
		return time.Time{}, e.W(err, ECode030401)
	}

	return t, nil
}
