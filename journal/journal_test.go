package journal

import (
	"context"
	"testing"
	"time"

	"github.com/Skyrin/go-deploy/migration/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal() (*Journal, *fakeDB, *fakeRunner) {
	db := newFakeDB()
	return New(db), db, &fakeRunner{db: db}
}

func TestRunScenario(t *testing.T) {
	ctx := context.Background()
	j, db, r := newTestJournal()

	r.add("1__init", "2__add_table")
	res, err := j.Run(ctx, r)
	require.NoError(t, err)
	assert.True(t, res.MigrationRan)
	require.NotNil(t, res.BatchID)
	assert.Equal(t, 1, *res.BatchID)
	assert.Equal(t, []string{"1__init", "2__add_table"}, res.Versions)
	assert.Equal(t, []int{1, 1}, db.batchIDs())

	r.add("3__add_column")
	res, err = j.Run(ctx, r)
	require.NoError(t, err)
	require.NotNil(t, res.BatchID)
	assert.Equal(t, 2, *res.BatchID)
	assert.Equal(t, []int{1, 1, 2}, db.batchIDs())
	assert.Equal(t, []string{"1__init", "2__add_table", "3__add_column"}, db.versions())
}

func TestRunNothingApplied(t *testing.T) {
	j, db, r := newTestJournal()

	res, err := j.Run(context.Background(), r)
	require.NoError(t, err)
	assert.False(t, res.MigrationRan)
	assert.Nil(t, res.BatchID)
	assert.Empty(t, res.Versions)
	assert.Empty(t, db.log)
	assert.Equal(t, 1, r.calls)
	// no batch id is allocated when nothing ran
	assert.Equal(t, 0, db.txnCount)
}

func TestRunIdempotent(t *testing.T) {
	ctx := context.Background()
	j, db, r := newTestJournal()

	r.add("1", "2")
	_, err := j.Run(ctx, r)
	require.NoError(t, err)
	rows := len(db.log)

	res, err := j.Run(ctx, r)
	require.NoError(t, err)
	assert.False(t, res.MigrationRan)
	assert.Nil(t, res.BatchID)
	assert.Len(t, db.log, rows)
}

func TestRunIgnoresHistoryBeforeRun(t *testing.T) {
	ctx := context.Background()
	j, db, r := newTestJournal()

	// applied by an earlier deployment that was never journaled
	db.history = append(db.history, &model.MigrationRecord{
		InstalledRank: 1, Version: "1", InstalledOn: db.tick(), Success: true,
	})

	r.add("2")
	res, err := j.Run(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, res.Versions)
	assert.Equal(t, []string{"2"}, db.versions())
}

func TestRunOrdersByInstalledOn(t *testing.T) {
	ctx := context.Background()
	j, db, r := newTestJournal()

	t0 := db.clock
	// history rows stored out of installed_on order
	db.history = append(db.history,
		&model.MigrationRecord{InstalledRank: 2, Version: "b", InstalledOn: t0.Add(3 * time.Second), Success: true},
		&model.MigrationRecord{InstalledRank: 1, Version: "a", InstalledOn: t0.Add(2 * time.Second), Success: true},
		&model.MigrationRecord{InstalledRank: 3, Version: "c", InstalledOn: t0.Add(4 * time.Second), Success: true},
	)

	res, err := j.Run(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, res.Versions)
	assert.Equal(t, []string{"a", "b", "c"}, db.versions())
}

func TestRunSkipsFailedHistory(t *testing.T) {
	ctx := context.Background()
	j, db, _ := newTestJournal()

	t0 := db.clock
	db.history = append(db.history,
		&model.MigrationRecord{InstalledRank: 1, Version: "1", InstalledOn: t0.Add(time.Second), Success: false},
		&model.MigrationRecord{InstalledRank: 2, Version: "1", InstalledOn: t0.Add(2 * time.Second), Success: true},
	)

	res, err := j.Run(ctx, &fakeRunner{db: db})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, res.Versions)
}

func TestRunMonotonicBatchIDs(t *testing.T) {
	ctx := context.Background()
	j, _, r := newTestJournal()

	var got []int
	for i := 0; i < 5; i++ {
		r.add(string(rune('a' + i)))
		res, err := j.Run(ctx, r)
		require.NoError(t, err)
		require.NotNil(t, res.BatchID)
		got = append(got, *res.BatchID)
	}

	assert.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

func TestRunBatchSharedAcrossRows(t *testing.T) {
	ctx := context.Background()
	j, db, r := newTestJournal()

	r.add("1")
	_, err := j.Run(ctx, r)
	require.NoError(t, err)

	r.add("2", "3", "4")
	res, err := j.Run(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, 2, *res.BatchID)

	batch, err := j.Batch(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	for _, entry := range batch {
		assert.Equal(t, 2, entry.BatchID)
	}
	assert.Len(t, db.log, 4)
}

func TestRunRunnerFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	j, db, r := newTestJournal()

	r.add("1", "2", "3")
	r.failOn = "2"

	res, err := j.Run(ctx, r)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "migration 2 failed")
	assert.Contains(t, err.Error(), ECode030102)
	assert.Empty(t, db.log)
}

func TestRunAppendFailureRollsBackBatch(t *testing.T) {
	ctx := context.Background()
	j, db, r := newTestJournal()

	r.add("1")
	_, err := j.Run(ctx, r)
	require.NoError(t, err)

	r.add("2", "3", "4")
	db.failAppend = 2

	res, err := j.Run(ctx, r)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), ECode030104)
	assert.Contains(t, err.Error(), "connection reset")

	// no partial batch is left behind
	assert.Equal(t, []int{1}, db.batchIDs())

	// the next successful batch reuses the id the failed one would have had
	db.failAppend = 0
	r.add("5")
	res, err = j.Run(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, 2, *res.BatchID)
}

func TestLatestBatch(t *testing.T) {
	ctx := context.Background()
	j, _, r := newTestJournal()

	id, eList, err := j.LatestBatch(ctx)
	require.NoError(t, err)
	assert.Nil(t, id)
	assert.Nil(t, eList)

	r.add("1")
	_, err = j.Run(ctx, r)
	require.NoError(t, err)
	r.add("2", "3")
	_, err = j.Run(ctx, r)
	require.NoError(t, err)

	id, eList, err = j.LatestBatch(ctx)
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, 2, *id)
	require.Len(t, eList, 2)
	assert.Equal(t, "2", eList[0].MigrationVersion)
	assert.Equal(t, "3", eList[1].MigrationVersion)
}
