package journal

import (
	"context"
	"errors"
	"sort"
	"time"

	jmodel "github.com/Skyrin/go-deploy/journal/model"
	"github.com/Skyrin/go-deploy/migration/model"
)

// fakeDB an in-memory history table and rollback log sharing one clock
type fakeDB struct {
	clock   time.Time
	history []*model.MigrationRecord
	log     []*jmodel.RollbackLogEntry

	// failAppend makes the nth append of the next txn fail (1 based)
	failAppend int
	txnCount   int
}

func newFakeDB() *fakeDB {
	return &fakeDB{clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeDB) tick() time.Time {
	f.clock = f.clock.Add(time.Millisecond)
	return f.clock
}

func (f *fakeDB) Now(ctx context.Context) (time.Time, error) {
	return f.tick(), nil
}

func (f *fakeDB) AppliedSince(ctx context.Context, since time.Time) ([]*model.MigrationRecord, error) {
	var out []*model.MigrationRecord
	for _, m := range f.history {
		if m.Success && m.InstalledOn.After(since) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].InstalledOn.Equal(out[j].InstalledOn) {
			return out[i].InstalledRank < out[j].InstalledRank
		}
		return out[i].InstalledOn.Before(out[j].InstalledOn)
	})
	return out, nil
}

func (f *fakeDB) InTxn(ctx context.Context, fn func(tx Txn) error) error {
	f.txnCount++
	snapshot := len(f.log)
	tx := &fakeTxn{db: f}
	if err := fn(tx); err != nil {
		f.log = f.log[:snapshot]
		return err
	}
	return nil
}

func (f *fakeDB) LatestBatchID(ctx context.Context) (*int, error) {
	max := 0
	for _, entry := range f.log {
		if entry.BatchID > max {
			max = entry.BatchID
		}
	}
	if max == 0 {
		return nil, nil
	}
	return &max, nil
}

func (f *fakeDB) ListBatch(ctx context.Context, batchID int) ([]*jmodel.RollbackLogEntry, error) {
	var out []*jmodel.RollbackLogEntry
	for _, entry := range f.log {
		if entry.BatchID == batchID {
			out = append(out, entry)
		}
	}
	return out, nil
}

// batchIDs returns the batch id of every log row, in insertion order
func (f *fakeDB) batchIDs() (ids []int) {
	for _, entry := range f.log {
		ids = append(ids, entry.BatchID)
	}
	return ids
}

func (f *fakeDB) versions() (vList []string) {
	for _, entry := range f.log {
		vList = append(vList, entry.MigrationVersion)
	}
	return vList
}

type fakeTxn struct {
	db      *fakeDB
	appends int
}

func (t *fakeTxn) MaxBatchID(ctx context.Context) (int, error) {
	id, _ := t.db.LatestBatchID(ctx)
	if id == nil {
		return 0, nil
	}
	return *id, nil
}

func (t *fakeTxn) Append(ctx context.Context, version string, batchID int) error {
	t.appends++
	if t.db.failAppend == t.appends {
		return errors.New("connection reset")
	}
	t.db.log = append(t.db.log, &jmodel.RollbackLogEntry{
		ID:               len(t.db.log) + 1,
		MigrationVersion: version,
		AppliedAt:        t.db.tick(),
		BatchID:          batchID,
	})
	return nil
}

// fakeRunner applies its pending versions by writing history rows
type fakeRunner struct {
	db      *fakeDB
	pending []string
	failOn  string
	calls   int
}

func (r *fakeRunner) add(versions ...string) {
	r.pending = append(r.pending, versions...)
}

func (r *fakeRunner) Migrate(ctx context.Context) error {
	r.calls++
	pending := r.pending
	r.pending = nil

	for _, v := range pending {
		rec := &model.MigrationRecord{
			InstalledRank: len(r.db.history) + 1,
			Version:       v,
			InstalledOn:   r.db.tick(),
			Success:       v != r.failOn,
		}
		r.db.history = append(r.db.history, rec)
		if !rec.Success {
			return errors.New("migration " + v + " failed")
		}
	}
	return nil
}
