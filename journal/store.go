package journal

import (
	"context"
	"time"

	"github.com/Skyrin/go-deploy/e"
	jmodel "github.com/Skyrin/go-deploy/journal/model"
	jsqlmodel "github.com/Skyrin/go-deploy/journal/sqlmodel"
	"github.com/Skyrin/go-deploy/migration/model"
	msqlmodel "github.com/Skyrin/go-deploy/migration/sqlmodel"
	"github.com/Skyrin/go-deploy/sql"
)

const (
	ECode030201 = e.Code0302 + "01"
	ECode030202 = e.Code0302 + "02"
	ECode030203 = e.Code0302 + "03"
	ECode030204 = e.Code0302 + "04"
	ECode030205 = e.Code0302 + "05"
	ECode030206 = e.Code0302 + "06"
	ECode030207 = e.Code0302 + "07"
	ECode030208 = e.Code0302 + "08"
	ECode030209 = e.Code0302 + "09"
)

// Store the state the journal reads and writes: the database clock, the
// migration runner's history and the rollback log itself
type Store interface {
	Now(ctx context.Context) (time.Time, error)
	AppliedSince(ctx context.Context, since time.Time) ([]*model.MigrationRecord, error)
	// InTxn runs f with exclusive write access to the rollback log. If f
	// returns an error, nothing f appended is kept.
	InTxn(ctx context.Context, f func(tx Txn) error) error
	LatestBatchID(ctx context.Context) (*int, error)
	ListBatch(ctx context.Context, batchID int) ([]*jmodel.RollbackLogEntry, error)
}

// Txn rollback log writes available inside Store.InTxn
type Txn interface {
	MaxBatchID(ctx context.Context) (int, error)
	Append(ctx context.Context, version string, batchID int) error
}

// StoreParam settings for NewSQLStore
type StoreParam struct {
	Schema       string
	HistoryTable string // defaults to the Flyway history table
	LogTable     string // defaults to rollback_log
}

// SQLStore the Postgres backed Store
type SQLStore struct {
	db           *sql.Connection
	schema       string
	historyTable string
	logTable     string
	logIndex     string
}

// NewSQLStore initializes a new store. Both tables live in the same schema.
func NewSQLStore(db *sql.Connection, p StoreParam) (s *SQLStore) {
	if p.HistoryTable == "" {
		p.HistoryTable = msqlmodel.HistoryDefaultTableName
	}
	if p.LogTable == "" {
		p.LogTable = jsqlmodel.RollbackLogDefaultTableName
	}

	return &SQLStore{
		db:           db,
		schema:       p.Schema,
		historyTable: sql.QualifiedName(p.Schema, p.HistoryTable),
		logTable:     sql.QualifiedName(p.Schema, p.LogTable),
		logIndex:     sql.QualifiedName("", p.LogTable+"_batch_id_idx"),
	}
}

// Now returns the database clock
func (s *SQLStore) Now(ctx context.Context) (t time.Time, err error) {
	t, err = jsqlmodel.DBNow(ctx, s.db)
	if err != nil {
		return time.Time{}, e.W(err, ECode030201)
	}

	return t, nil
}

// AppliedSince returns the successful history rows installed after since
func (s *SQLStore) AppliedSince(ctx context.Context,
	since time.Time) (mList []*model.MigrationRecord, err error) {

	mList, err = msqlmodel.HistoryGetAppliedSince(ctx, s.db, s.historyTable, since)
	if err != nil {
		return nil, e.W(err, ECode030202)
	}

	return mList, nil
}

// InTxn begins a txn, locks the rollback log and runs f. The txn is
// committed if f succeeds and rolled back otherwise.
func (s *SQLStore) InTxn(ctx context.Context, f func(tx Txn) error) (err error) {
	if err := s.db.Begin(ctx); err != nil {
		return e.W(err, ECode030203)
	}
	defer s.db.RollbackIfInTxn()

	if err := jsqlmodel.RollbackLogLock(ctx, s.db, s.logTable); err != nil {
		return e.W(err, ECode030204)
	}

	if err := f(&sqlTxn{s: s}); err != nil {
		return e.W(err, ECode030205)
	}

	if err := s.db.Commit(); err != nil {
		return e.W(err, ECode030206)
	}

	return nil
}

// LatestBatchID returns the highest batch id, nil if the log is empty or
// has not been installed yet
func (s *SQLStore) LatestBatchID(ctx context.Context) (id *int, err error) {
	max, err := jsqlmodel.RollbackLogMaxBatchID(ctx, s.db, s.logTable)
	if err != nil {
		if e.IsPQError(err, e.PQErr42P01UndefinedTable) {
			return nil, nil
		}
		return nil, e.W(err, ECode030207)
	}

	if max == 0 {
		return nil, nil
	}

	return &max, nil
}

// ListBatch returns the entries of the batch in insertion order
func (s *SQLStore) ListBatch(ctx context.Context,
	batchID int) (eList []*jmodel.RollbackLogEntry, err error) {

	eList, err = jsqlmodel.RollbackLogGet(ctx, s.db, s.logTable, &jsqlmodel.RollbackLogGetParam{
		BatchID: &batchID,
	})
	if err != nil {
		return nil, e.W(err, ECode030208)
	}

	return eList, nil
}

// sqlTxn runs on the store's connection, which holds the open txn
type sqlTxn struct {
	s *SQLStore
}

func (t *sqlTxn) MaxBatchID(ctx context.Context) (id int, err error) {
	return jsqlmodel.RollbackLogMaxBatchID(ctx, t.s.db, t.s.logTable)
}

func (t *sqlTxn) Append(ctx context.Context, version string, batchID int) (err error) {
	if err := jsqlmodel.RollbackLogInsert(ctx, t.s.db, t.s.logTable,
		&jsqlmodel.RollbackLogInsertParam{
			MigrationVersion: version,
			BatchID:          batchID,
		}); err != nil {
		return e.W(err, ECode030209)
	}

	return nil
}
