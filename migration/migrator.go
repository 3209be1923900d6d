// Package migration provides the migration runners that apply versioned SQL
// scripts to a schema and record every attempt in a history table.
//
// Basic usage:
//
//	m := migration.NewMigrator(db, migration.NewDirList("/opt/app/migrations"),
//		migration.MigratorParam{Schema: "app"})
//	if err := m.Migrate(ctx); err != nil {
//		// the failing version has a success=false history row
//	}
package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/Skyrin/go-deploy/e"
	"github.com/Skyrin/go-deploy/migration/sqlmodel"
	"github.com/Skyrin/go-deploy/sql"
	"github.com/rs/zerolog/log"
)

const (
	ECode020101 = e.Code0201 + "01"
	ECode020102 = e.Code0201 + "02"
	ECode020103 = e.Code0201 + "03"
	ECode020104 = e.Code0201 + "04"
	ECode020105 = e.Code0201 + "05"
	ECode020106 = e.Code0201 + "06"
	ECode020107 = e.Code0201 + "07"
	ECode020108 = e.Code0201 + "08"
	ECode020109 = e.Code0201 + "09"
	ECode02010A = e.Code0201 + "0A"
	ECode02010B = e.Code0201 + "0B"
	ECode02010C = e.Code0201 + "0C"
)

// MigratorParam optional settings for NewMigrator
type MigratorParam struct {
	Schema       string
	HistoryTable string // defaults to sqlmodel.HistoryDefaultTableName
}

// Migrator the native runner. It applies each pending file of its list in a
// transaction and records the attempt in the history table.
type Migrator struct {
	db    *sql.Connection
	list  *List
	table string
}

// NewMigrator initializes a new migrator
func NewMigrator(db *sql.Connection, l *List, p MigratorParam) (m *Migrator) {
	if p.HistoryTable == "" {
		p.HistoryTable = sqlmodel.HistoryDefaultTableName
	}

	return &Migrator{
		db:    db,
		list:  l,
		table: sql.QualifiedName(p.Schema, p.HistoryTable),
	}
}

// install creates the history table if needed
func (m *Migrator) install(ctx context.Context) (err error) {
	if err := sqlmodel.HistoryCreateTable(ctx, m.db, m.table); err != nil {
		return e.W(err, ECode020101)
	}

	return nil
}

// Migrate runs all pending migration files in version order. It stops at
// the first failing file.
func (m *Migrator) Migrate(ctx context.Context) (err error) {
	if err := m.install(ctx); err != nil {
		return e.W(err, ECode020102)
	}

	files, err := m.list.GetFiles()
	if err != nil {
		return e.W(err, ECode020103)
	}

	applied := 0
	for _, f := range files {
		run, err := m.checkShouldRunFile(ctx, f)
		if err != nil {
			return e.W(err, ECode020104)
		}
		if !run {
			continue
		}

		if err := m.processFile(ctx, f); err != nil {
			return e.W(err, ECode020105)
		}
		applied++
	}

	if applied == 0 {
		log.Info().Msgf("schema %s is up to date, %d migration files checked", m.table, len(files))
	}

	return nil
}

// checkShouldRunFile verifies if the file should be processed or not. If a
// successful history row exists for the version, the file is skipped, unless
// its checksum changed since it was applied, which is an error.
func (m *Migrator) checkShouldRunFile(ctx context.Context, f *File) (shouldRun bool, err error) {
	mm, err := sqlmodel.HistoryGetSuccessByVersion(ctx, m.db, m.table, f.Version)
	if err != nil {
		return false, e.W(err, ECode020106)
	}

	if mm == nil {
		return true, nil
	}

	if mm.Checksum != f.Checksum {
		return false, e.WWM(nil, ECode020107, e.MsgMigrationChecksumMismatch,
			fmt.Sprintf("version: %s, applied: %d, file: %d", f.Version, mm.Checksum, f.Checksum))
	}

	return false, nil
}

// processFile attempts to run the migration file. The script and its
// success row are committed together. On failure, the txn is rolled back and
// a failed row is recorded outside of it.
func (m *Migrator) processFile(ctx context.Context, f *File) (err error) {
	start := time.Now()

	if err := m.db.Begin(ctx); err != nil {
		return e.W(err, ECode020108)
	}
	defer m.db.RollbackIfInTxn()

	ip := &sqlmodel.HistoryInsertParam{
		Version:     f.Version,
		Description: f.Description,
		Script:      f.Name,
		Checksum:    f.Checksum,
		Success:     true,
	}

	if _, err := m.db.Exec(ctx, string(f.SQL)); err != nil {
		m.db.Rollback()

		ip.Success = false
		ip.ExecutionTime = int(time.Since(start).Milliseconds())
		if err2 := sqlmodel.HistoryInsert(ctx, m.db, m.table, ip); err2 != nil {
			log.Error().Err(err2).Msgf("[%s] failed to record failed migration %s",
				ECode02010B, f.Version)
		}

		debug := []string{f.Name}
		if code := e.PQCode(err); code != "" {
			debug = append(debug, "sqlstate: "+code)
		}
		return e.WWM(err, ECode020109, e.MsgMigrationFailed, debug...)
	}

	ip.ExecutionTime = int(time.Since(start).Milliseconds())
	if err := sqlmodel.HistoryInsert(ctx, m.db, m.table, ip); err != nil {
		return e.W(err, ECode02010A)
	}

	if err := m.db.Commit(); err != nil {
		return e.W(err, ECode02010C)
	}

	log.Info().Msgf("successfully migrated %s to version: %s (%s)",
		m.table, f.Version, f.Description)

	return nil
}
