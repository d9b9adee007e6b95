package store

import (
	"context"

	"github.com/petlife-ingest/pet-crawler/internal/pet"
	"github.com/petlife-ingest/pet-crawler/internal/retry"
)

type upserter interface {
	Upsert(ctx context.Context, p pet.Pet) (bool, error)
}

// saveMany runs the batch entry point shared by store implementations.
// Each upsert gets the fail-fast storage retry budget; a failing item is
// recorded and the batch continues.
func saveMany(ctx context.Context, s upserter, pets []pet.Pet) pet.SaveReport {
	report := pet.SaveReport{}
	cfg := retry.StorageConfig()
	for _, p := range pets {
		created, err := retry.DoValue(ctx, cfg, func(ctx context.Context) (bool, error) {
			return s.Upsert(ctx, p)
		})
		if err != nil {
			persistErr := &pet.PersistenceError{ID: p.ID, Err: err}
			report.Errors = append(report.Errors, persistErr.Error())
			continue
		}
		if created {
			report.NewCount++
		} else {
			report.UpdatedCount++
		}
	}
	return report
}
