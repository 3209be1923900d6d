// Package journal records which migrations each deployment run applied.
//
// The migration runner's history table says whether a version was applied,
// but not which run applied it. The journal groups the versions a run
// applied into one numbered batch in the rollback log, by reading the
// history rows written between the start of the run and now.
//
// One run against a schema at a time is assumed: the time window read from
// the history cannot tell two concurrent runs apart. Batch numbering itself
// is safe, it happens under a table lock.
package journal

import (
	"context"
	"strings"

	"github.com/Skyrin/go-deploy/e"
	"github.com/Skyrin/go-deploy/journal/model"
	"github.com/rs/zerolog/log"
)

const (
	ECode030101 = e.Code0301 + "01"
	ECode030102 = e.Code0301 + "02"
	ECode030103 = e.Code0301 + "03"
	ECode030104 = e.Code0301 + "04"
	ECode030105 = e.Code0301 + "05"
	ECode030106 = e.Code0301 + "06"
	ECode030107 = e.Code0301 + "07"
	ECode030108 = e.Code0301 + "08"
	ECode030109 = e.Code0301 + "09"
)

// Runner applies pending migrations
type Runner interface {
	Migrate(ctx context.Context) error
}

// Journal the rollback journal
type Journal struct {
	store Store
}

// New initializes a new journal
func New(store Store) (j *Journal) {
	return &Journal{
		store: store,
	}
}

// Run captures the database clock, runs the migrations and records every
// version applied since then as one new batch. If the runner fails, nothing
// is recorded and its error is returned. If no version was applied, the
// result reports that no migration ran and no batch id is allocated.
func (j *Journal) Run(ctx context.Context, r Runner) (res *model.Result, err error) {
	t0, err := j.store.Now(ctx)
	if err != nil {
		return nil, e.W(err, ECode030101)
	}

	if err := r.Migrate(ctx); err != nil {
		return nil, e.WWM(err, ECode030102, e.MsgMigrationRunnerFailed)
	}

	applied, err := j.store.AppliedSince(ctx, t0)
	if err != nil {
		return nil, e.W(err, ECode030103)
	}

	res = &model.Result{}
	if len(applied) == 0 {
		log.Info().Msg("no new migrations were applied, nothing to journal")
		return res, nil
	}

	versions := make([]string, 0, len(applied))
	for _, m := range applied {
		versions = append(versions, m.Version)
	}

	batchID, err := j.appendBatch(ctx, versions)
	if err != nil {
		// The schema changed but the batch was rolled back, so it has to be
		// recorded by hand
		log.Error().Err(err).Msgf("[%s] partial batch: migrations applied but not journaled: %s",
			ECode030104, strings.Join(versions, ", "))
		return nil, e.WWM(err, ECode030104, e.MsgJournalPartialBatch,
			strings.Join(versions, ","))
	}

	log.Info().Msgf("journaled batch %d: %s", batchID, strings.Join(versions, ", "))

	res.MigrationRan = true
	res.BatchID = &batchID
	res.Versions = versions

	return res, nil
}

// appendBatch allocates the next batch id and appends one entry per version,
// in order, as a single unit
func (j *Journal) appendBatch(ctx context.Context, versions []string) (batchID int, err error) {
	if err := j.store.InTxn(ctx, func(tx Txn) error {
		max, err := tx.MaxBatchID(ctx)
		if err != nil {
			return e.W(err, ECode030105)
		}
		batchID = max + 1

		for _, v := range versions {
			if err := tx.Append(ctx, v, batchID); err != nil {
				return e.W(err, ECode030106, v)
			}
		}

		return nil
	}); err != nil {
		return 0, err
	}

	return batchID, nil
}

// LatestBatch returns the most recent batch id and its entries. The id is
// nil when the journal is empty.
func (j *Journal) LatestBatch(ctx context.Context) (batchID *int,
	eList []*model.RollbackLogEntry, err error) {

	batchID, err = j.store.LatestBatchID(ctx)
	if err != nil {
		return nil, nil, e.W(err, ECode030107)
	}

	if batchID == nil {
		return nil, nil, nil
	}

	eList, err = j.store.ListBatch(ctx, *batchID)
	if err != nil {
		return nil, nil, e.W(err, ECode030108)
	}

	return batchID, eList, nil
}

// Batch returns the entries of the batch
func (j *Journal) Batch(ctx context.Context, batchID int) (eList []*model.RollbackLogEntry, err error) {
	eList, err = j.store.ListBatch(ctx, batchID)
	if err != nil {
		return nil, e.W(err, ECode030109)
	}

	return eList, nil
}
