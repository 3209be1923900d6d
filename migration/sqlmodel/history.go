package sqlmodel

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/Skyrin/go-deploy/e"
	"github.com/Skyrin/go-deploy/migration/model"
	"github.com/Skyrin/go-deploy/sql"
)

const (
	// HistoryDefaultTableName the Flyway compatible history table
	HistoryDefaultTableName = "flyway_schema_history"

	ECode020401 = e.Code0204 + "01"
	ECode020402 = e.Code0204 + "02"
	ECode020403 = e.Code0204 + "03"
	ECode020404 = e.Code0204 + "04"
	ECode020405 = e.Code0204 + "05"
	ECode020406 = e.Code0204 + "06"
	ECode020407 = e.Code0204 + "07"
)

// HistoryGetParam get params
type HistoryGetParam struct {
	Limit          uint64
	Version        *string
	Success        *bool
	InstalledAfter *time.Time
	OrderAsc       bool
}

// HistoryInsertParam insert params
type HistoryInsertParam struct {
	Version       string
	Description   string
	Script        string
	Checksum      int32
	ExecutionTime int
	Success       bool
}

// HistoryCreateTable creates the history table if it does not exist. The
// layout matches the table Flyway maintains, so either runner's history can
// be read the same way.
func HistoryCreateTable(ctx context.Context, db *sql.Connection, table string) (err error) {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	installed_rank INT NOT NULL PRIMARY KEY,
	version VARCHAR(50),
	description VARCHAR(200) NOT NULL,
	type VARCHAR(20) NOT NULL,
	script VARCHAR(1000) NOT NULL,
	checksum INT,
	installed_by VARCHAR(100) NOT NULL,
	installed_on TIMESTAMP NOT NULL DEFAULT now(),
	execution_time INT NOT NULL,
	success BOOLEAN NOT NULL
)`, table)

	if _, err := db.Exec(ctx, stmt); err != nil {
		return e.W(err, ECode020401, table)
	}

	return nil
}

// HistoryInsert performs insert. installed_on is set by the database, so it
// shares the clock T0 is read from.
func HistoryInsert(ctx context.Context, db *sql.Connection, table string,
	ip *HistoryInsertParam) (err error) {

	ib := db.Insert(table).
		Columns(`installed_rank,version,description,type,script,checksum,
		installed_by,installed_on,execution_time,success`).
		Values(
			sq.Expr(fmt.Sprintf("(SELECT COALESCE(MAX(installed_rank), 0) + 1 FROM %s)", table)),
			ip.Version, ip.Description, model.HistoryTypeSQL, ip.Script, ip.Checksum,
			sq.Expr("current_user"), sq.Expr("now()"), ip.ExecutionTime, ip.Success,
		)

	if err := db.ExecInsert(ctx, ib); err != nil {
		return e.W(err, ECode020402,
			fmt.Sprintf("params: %s, %s, %v", ip.Version, ip.Script, ip.Success))
	}

	return nil
}

// HistoryGet performs select
func HistoryGet(ctx context.Context, db *sql.Connection, table string,
	p *HistoryGetParam) (mList []*model.MigrationRecord, err error) {

	sb := db.Select(`installed_rank,version,description,type,script,
	COALESCE(checksum, 0),installed_by,installed_on,execution_time,success`).
		From(table)

	if p.Limit > 0 {
		sb = sb.Limit(p.Limit)
	}

	if p.Version != nil {
		sb = sb.Where("version=?", *p.Version)
	}

	if p.Success != nil {
		sb = sb.Where("success=?", *p.Success)
	}

	if p.InstalledAfter != nil {
		// installed_on holds UTC wall time without a zone
		sb = sb.Where("installed_on>(?::timestamptz AT TIME ZONE 'UTC')", *p.InstalledAfter)
	}

	if p.OrderAsc {
		sb = sb.OrderBy("installed_on ASC", "installed_rank ASC")
	} else {
		sb = sb.OrderBy("installed_on DESC", "installed_rank DESC")
	}

	rows, err := db.ToSQLAndQuery(ctx, sb)
	if err != nil {
		return nil, e.W(err, ECode020403)
	}
	defer rows.Close()

	for rows.Next() {
		m := &model.MigrationRecord{}
		var version *string
		if err := rows.Scan(&m.InstalledRank, &version, &m.Description, &m.Type,
			&m.Script, &m.Checksum, &m.InstalledBy, &m.InstalledOn,
			&m.ExecutionTime, &m.Success); err != nil {
			return nil, e.W(err, ECode020404)
		}
		// Flyway writes rows without a version (i.e. schema creation markers)
		if version != nil {
			m.Version = *version
		}

		mList = append(mList, m)
	}

	if err := rows.Err(); err != nil {
		return nil, e.W(err, ECode020405)
	}

	return mList, nil
}

// HistoryGetSuccessByVersion returns the successful history record for the
// version, or nil if the version has not been applied successfully
func HistoryGetSuccessByVersion(ctx context.Context, db *sql.Connection, table,
	version string) (m *model.MigrationRecord, err error) {
	success := true

	mList, err := HistoryGet(ctx, db, table, &HistoryGetParam{
		Limit:   1,
		Version: &version,
		Success: &success,
	})
	if err != nil {
		return nil, e.W(err, ECode020406, version)
	}

	if len(mList) == 0 {
		return nil, nil
	}

	return mList[0], nil
}

// HistoryGetAppliedSince returns the versions successfully applied after the
// passed time, ordered by installed_on ascending
func HistoryGetAppliedSince(ctx context.Context, db *sql.Connection, table string,
	since time.Time) (mList []*model.MigrationRecord, err error) {
	success := true

	mList, err = HistoryGet(ctx, db, table, &HistoryGetParam{
		Success:        &success,
		InstalledAfter: &since,
		OrderAsc:       true,
	})
	if err != nil {
		return nil, e.W(err, ECode020407)
	}

	// Skip rows without a version, they are not migrations
	out := mList[:0]
	for _, m := range mList {
		if m.Version != "" {
			out = append(out, m)
		}
	}

	return out, nil
}
