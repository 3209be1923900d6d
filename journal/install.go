package journal

import (
	"context"
	_ "embed"
	"strings"

	"github.com/Skyrin/go-deploy/e"
	"github.com/lib/pq"
)

//go:embed db/install.sql
var installSQL string

const (
	ECode030501 = e.Code0305 + "01"
)

// installStatement returns the install script for the store's tables
func (s *SQLStore) installStatement() string {
	stmt := strings.NewReplacer(
		"{{table}}", s.logTable,
		"{{index}}", s.logIndex,
	).Replace(installSQL)

	if s.schema != "" {
		stmt = "CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(s.schema) + ";\n\n" + stmt
	}

	return stmt
}

// Install creates the schema, the rollback log table and its batch index if
// they do not exist. It is safe to call on every run.
func (s *SQLStore) Install(ctx context.Context) (err error) {
	if _, err := s.db.Exec(ctx, s.installStatement()); err != nil {
		return e.WWM(err, ECode030501, e.MsgJournalNotInstalled)
	}

	return nil
}
