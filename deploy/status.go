package deploy

import (
	"context"
	"strings"
	"time"

	"github.com/Skyrin/go-deploy/e"
	"github.com/Skyrin/go-deploy/journal"
	"github.com/rs/zerolog/log"
)

const (
	ECode070401 = e.Code0704 + "01"
	ECode070402 = e.Code0704 + "02"
	ECode070403 = e.Code0704 + "03"
)

// Status logs the latest journaled batch and the last recorded result
func (d *Deployer) Status(ctx context.Context) (err error) {
	cp, err := d.connParam(ctx)
	if err != nil {
		return e.W(err, ECode070401)
	}

	db, err := d.openDB(ctx, cp)
	if err != nil {
		return e.W(err, ECode070402)
	}
	defer db.Close()

	batchID, eList, err := journal.New(d.newStore(db)).LatestBatch(ctx)
	if err != nil {
		return e.W(err, ECode070403)
	}

	if batchID == nil || len(eList) == 0 {
		log.Info().Msgf("no batch journaled for schema %s", d.cfg.SchemaName())
	} else {
		versions := make([]string, 0, len(eList))
		for _, le := range eList {
			versions = append(versions, le.MigrationVersion)
		}
		log.Info().Msgf("latest batch for schema %s: %d, applied at %s: %s",
			d.cfg.SchemaName(), *batchID, eList[0].AppliedAt.Format(time.RFC3339),
			strings.Join(versions, ", "))
	}

	if res, err := ReadResult(d.cfg.ResultPath); err == nil {
		log.Info().Msgf("last result in %s: %s", d.cfg.ResultPath,
			strings.ReplaceAll(strings.TrimSpace(FormatResult(res)), "\n", ", "))
	}

	return nil
}
