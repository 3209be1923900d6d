package sqlmodel

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/Skyrin/go-deploy/e"
	"github.com/Skyrin/go-deploy/journal/model"
	"github.com/Skyrin/go-deploy/sql"
)

const (
	// RollbackLogDefaultTableName the journal table
	RollbackLogDefaultTableName = "rollback_log"

	ECode030301 = e.Code0303 + "01"
	ECode030302 = e.Code0303 + "02"
	ECode030303 = e.Code0303 + "03"
	ECode030304 = e.Code0303 + "04"
	ECode030305 = e.Code0303 + "05"
	ECode030306 = e.Code0303 + "06"
	ECode030307 = e.Code0303 + "07"
	ECode030308 = e.Code0303 + "08"
)

// RollbackLogGetParam get params
type RollbackLogGetParam struct {
	Limit         uint64
	BatchID       *int
	OrderByIDDesc bool
}

// RollbackLogInsertParam insert params
type RollbackLogInsertParam struct {
	MigrationVersion string
	BatchID          int
}

// RollbackLogLock locks the table against concurrent writers until the
// current txn ends. Readers are not blocked.
func RollbackLogLock(ctx context.Context, db *sql.Connection, table string) (err error) {
	if !db.InTxn() {
		return e.N(ECode030301, "lock requires a txn")
	}

	if _, err := db.Exec(ctx, fmt.Sprintf("LOCK TABLE %s IN SHARE ROW EXCLUSIVE MODE", table)); err != nil {
		return e.W(err, ECode030302, table)
	}

	return nil
}

// RollbackLogMaxBatchID returns the highest batch id, or 0 if the table is empty
func RollbackLogMaxBatchID(ctx context.Context, db *sql.Connection, table string) (id int, err error) {
	sb := db.Select("COALESCE(MAX(batch_id), 0)").From(table)

	row, err := db.ToSQLAndQueryRow(ctx, sb)
	if err != nil {
		return 0, e.W(err, ECode030303)
	}

	if err := row.Scan(&id); err != nil {
		return 0, e.W(err, ECode030304)
	}

	return id, nil
}

// RollbackLogInsert performs insert. applied_at uses clock_timestamp(), so
// each row gets the time it was written rather than the txn start.
func RollbackLogInsert(ctx context.Context, db *sql.Connection, table string,
	ip *RollbackLogInsertParam) (err error) {

	ib := db.Insert(table).
		Columns("migration_version,applied_at,batch_id").
		Values(ip.MigrationVersion, sq.Expr("clock_timestamp()"), ip.BatchID)

	if err := db.ExecInsert(ctx, ib); err != nil {
		return e.W(err, ECode030305,
			fmt.Sprintf("params: %s, %d", ip.MigrationVersion, ip.BatchID))
	}

	return nil
}

// RollbackLogGet performs select
func RollbackLogGet(ctx context.Context, db *sql.Connection, table string,
	p *RollbackLogGetParam) (eList []*model.RollbackLogEntry, err error) {

	sb := db.Select("rollback_log_id,migration_version,applied_at,batch_id").
		From(table)

	if p.Limit > 0 {
		sb = sb.Limit(p.Limit)
	}

	if p.BatchID != nil {
		sb = sb.Where("batch_id=?", *p.BatchID)
	}

	if p.OrderByIDDesc {
		sb = sb.OrderBy("rollback_log_id DESC")
	} else {
		sb = sb.OrderBy("rollback_log_id ASC")
	}

	rows, err := db.ToSQLAndQuery(ctx, sb)
	if err != nil {
		return nil, e.W(err, ECode030306)
	}
	defer rows.Close()

	for rows.Next() {
		entry := &model.RollbackLogEntry{}
		if err := rows.Scan(&entry.ID, &entry.MigrationVersion, &entry.AppliedAt,
			&entry.BatchID); err != nil {
			return nil, e.W(err, ECode030307)
		}

		eList = append(eList, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, e.W(err, ECode030308)
	}

	return eList, nil
}
