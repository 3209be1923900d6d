// Package deploy sequences a deployment run: it reads the DB credentials
// from the parameter store, downloads the migrations and the release
// artifact, applies the migrations through the journal and reports the
// outcome in the result file and, optionally, on Kafka.
package deploy

import (
	"context"
	"time"

	"github.com/Skyrin/go-deploy/artifact"
	"github.com/Skyrin/go-deploy/e"
	"github.com/Skyrin/go-deploy/journal"
	"github.com/Skyrin/go-deploy/journal/model"
	"github.com/Skyrin/go-deploy/kafka"
	"github.com/Skyrin/go-deploy/migration"
	"github.com/Skyrin/go-deploy/paramstore"
	"github.com/Skyrin/go-deploy/sql"
	"github.com/rs/zerolog/log"
)

const (
	ECode070101 = e.Code0701 + "01"
	ECode070102 = e.Code0701 + "02"
	ECode070103 = e.Code0701 + "03"
	ECode070104 = e.Code0701 + "04"
	ECode070105 = e.Code0701 + "05"
	ECode070106 = e.Code0701 + "06"
	ECode070107 = e.Code0701 + "07"
	ECode070108 = e.Code0701 + "08"
	ECode070109 = e.Code0701 + "09"
	ECode07010A = e.Code0701 + "0A"
	ECode07010B = e.Code0701 + "0B"
	ECode07010C = e.Code0701 + "0C"
	ECode07010D = e.Code0701 + "0D"
	ECode07010E = e.Code0701 + "0E"
	ECode07010F = e.Code0701 + "0F"

	logCode = "deploy"
)

// ParamProvider fetches parameters by path
type ParamProvider interface {
	GetByPath(ctx context.Context, path string) ([]*paramstore.Parameter, error)
}

// ArtifactStore downloads artifacts
type ArtifactStore interface {
	Sync(ctx context.Context, src, dstDir string, opts artifact.SyncOptions) (*artifact.SyncResult, error)
	Copy(ctx context.Context, src, dstPath string) error
}

// EventPublisher publishes the outcome of a run
type EventPublisher interface {
	Publish(ctx context.Context, ev *kafka.Event) error
}

// DeployerParam the collaborators of a deployer. Params and Artifacts are
// required when the config uses them, Publisher is optional.
type DeployerParam struct {
	Config    *Config
	Environ   map[string]string
	Params    ParamProvider
	Artifacts ArtifactStore
	Publisher EventPublisher
}

// Deployer runs deployments
type Deployer struct {
	cfg       *Config
	environ   map[string]string
	params    ParamProvider
	artifacts ArtifactStore
	publisher EventPublisher

	openDB  func(ctx context.Context, cp *sql.ConnParam) (*sql.Connection, error)
	migrate func(ctx context.Context, cp *sql.ConnParam) (*model.Result, error)
	now     func() time.Time
}

// NewDeployer initializes a new deployer
func NewDeployer(p DeployerParam) (d *Deployer) {
	d = &Deployer{
		cfg:       p.Config,
		environ:   p.Environ,
		params:    p.Params,
		artifacts: p.Artifacts,
		publisher: p.Publisher,
		openDB:    sql.NewPostgresConn,
		now:       time.Now,
	}
	d.migrate = d.migrateDB

	return d
}

// Run performs a deployment run. The result file is written whatever the
// outcome. If the run failed before any migration was applied, it reports
// that no migration ran.
func (d *Deployer) Run(ctx context.Context) (res *model.Result, err error) {
	sl := NewStepLogger(logCode)

	res, runErr := d.run(ctx, sl)
	if runErr != nil {
		res = failedResult(runErr)
		sl.Error(runErr, "deployment failed")
	}

	sl.Step("write result to " + d.cfg.ResultPath)
	if err := WriteResult(d.cfg.ResultPath, res); err != nil {
		if runErr == nil {
			runErr = e.W(err, ECode070101)
		} else {
			log.Error().Err(err).Msgf("[%s] failed to write result", ECode070102)
		}
	}
	sl.Done()

	d.publish(ctx, sl, res, runErr)

	if runErr != nil {
		return res, runErr
	}

	sl.Info("deployment finished, migration ran: %t", res.MigrationRan)

	return res, nil
}

// failedResult the result reported for a failed run. A journal failure after
// the runner applied migrations still reports that migrations ran, without a
// batch id.
func failedResult(err error) (res *model.Result) {
	res = &model.Result{}
	if e.Contains(journal.ECode030104, err) {
		res.MigrationRan = true
	}
	return res
}

// run executes the steps
func (d *Deployer) run(ctx context.Context, sl *StepLogger) (res *model.Result, err error) {
	if d.cfg.ParamPath != "" {
		sl.Step("fetch parameters from " + d.cfg.ParamPath)
	}
	cp, err := d.connParam(ctx)
	if err != nil {
		return nil, e.W(err, ECode070103)
	}
	sl.Done()

	if d.cfg.MigrationSource != "" {
		sl.Step("sync migrations from " + d.cfg.MigrationSource)
		if d.artifacts == nil {
			return nil, e.WWM(nil, ECode070106, e.MsgConfigInvalid, "no artifact store")
		}
		if _, err := d.artifacts.Sync(ctx, d.cfg.MigrationSource, d.cfg.MigrationDir,
			artifact.SyncOptions{Delete: d.cfg.MigrationSyncDelete}); err != nil {
			return nil, e.W(err, ECode070107)
		}
		sl.Done()
	}

	if d.cfg.ArtifactSource != "" {
		sl.Step("copy artifact from " + d.cfg.ArtifactSource)
		if d.artifacts == nil {
			return nil, e.WWM(nil, ECode070108, e.MsgConfigInvalid, "no artifact store")
		}
		if err := d.artifacts.Copy(ctx, d.cfg.ArtifactSource, d.cfg.ArtifactPath); err != nil {
			return nil, e.W(err, ECode070109)
		}
		sl.Done()
	}

	sl.Step("migrate " + d.cfg.SchemaName() + " with the " + d.cfg.Runner + " runner")
	res, err = d.migrate(ctx, cp)
	if err != nil {
		return nil, e.W(err, ECode07010A)
	}
	sl.Done()

	return res, nil
}

// connParam reads the connection params from the environment, with the
// parameters under the configured path applied on top
func (d *Deployer) connParam(ctx context.Context) (cp *sql.ConnParam, err error) {
	environ := d.environ
	if d.cfg.ParamPath != "" {
		if d.params == nil {
			return nil, e.WWM(nil, ECode070104, e.MsgConfigInvalid, "no parameter provider")
		}
		pList, err := d.params.GetByPath(ctx, d.cfg.ParamPath)
		if err != nil {
			return nil, e.W(err, ECode070105)
		}
		environ = paramstore.Overlay(environ, paramstore.ToEnv(pList))
	}

	cp, err = sql.GetConnParamFromEnv(environ)
	if err != nil {
		return nil, e.W(err, ECode07010F)
	}

	return cp, nil
}

// migrateDB opens the database, installs the journal and runs the
// migrations through it. The connection is held for the whole run.
func (d *Deployer) migrateDB(ctx context.Context, cp *sql.ConnParam) (res *model.Result, err error) {
	db, err := d.openDB(ctx, cp)
	if err != nil {
		return nil, e.W(err, ECode07010B)
	}
	defer db.Close()

	store := d.newStore(db)
	if err := store.Install(ctx); err != nil {
		return nil, e.W(err, ECode07010C)
	}

	res, err = journal.New(store).Run(ctx, d.newRunner(db, cp))
	if err != nil {
		return nil, e.W(err, ECode07010D)
	}

	return res, nil
}

func (d *Deployer) newStore(db *sql.Connection) *journal.SQLStore {
	return journal.NewSQLStore(db, journal.StoreParam{
		Schema:       d.cfg.Schema,
		HistoryTable: d.cfg.HistoryTable,
		LogTable:     d.cfg.JournalTable,
	})
}

// newRunner returns the configured migration runner
func (d *Deployer) newRunner(db *sql.Connection, cp *sql.ConnParam) migration.Runner {
	if d.cfg.Runner == migration.RunnerFlyway {
		return migration.NewFlyway(migration.FlywayParam{
			Bin:          d.cfg.FlywayBin,
			Conn:         cp,
			Schema:       d.cfg.Schema,
			HistoryTable: d.cfg.HistoryTable,
			Dir:          d.cfg.MigrationDir,
		})
	}

	return migration.NewMigrator(db, migration.NewDirList(d.cfg.MigrationDir),
		migration.MigratorParam{
			Schema:       d.cfg.Schema,
			HistoryTable: d.cfg.HistoryTable,
		})
}

// publish sends the run's event. A failure is only logged.
func (d *Deployer) publish(ctx context.Context, sl *StepLogger, res *model.Result, runErr error) {
	if d.publisher == nil {
		return
	}

	ev := &kafka.Event{
		Schema:       d.cfg.SchemaName(),
		MigrationRan: res.MigrationRan,
		BatchID:      res.BatchID,
		Versions:     res.Versions,
		Status:       kafka.StatusSuccess,
		FinishedOn:   d.now().UTC(),
	}
	if runErr != nil {
		ev.Status = kafka.StatusFailed
		ev.Error = runErr.Error()
		if ee := e.AsExtendedError(runErr); ee != nil {
			ev.Error = ee.Message
		}
	}

	if err := d.publisher.Publish(ctx, ev); err != nil {
		sl.Warn("[%s] failed to publish the result event: %s", ECode07010E, err)
	}
}
