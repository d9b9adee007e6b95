package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/petlife-ingest/pet-crawler/internal/pet"
)

func samplePet(id string) pet.Pet {
	return pet.Pet{
		ID:        id,
		Type:      pet.TypeDog,
		Name:      "ポチ",
		Breed:     "柴犬",
		AgeYears:  2,
		Gender:    pet.GenderMale,
		Source:    "petlife",
		CrawledAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestMemoryStore_UpsertIsIdempotent(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.Upsert(ctx, samplePet("petlife_1"))
	require.NoError(t, err)
	require.True(t, created)

	created, err = s.Upsert(ctx, samplePet("petlife_1"))
	require.NoError(t, err)
	require.False(t, created)

	require.Equal(t, 1, s.Len())
}

func TestMemoryStore_Exists(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	ok, err := s.Exists(ctx, "petlife_1")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.Upsert(ctx, samplePet("petlife_1"))
	require.NoError(t, err)

	ok, err = s.Exists(ctx, "petlife_1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSaveMany_PartialFailure(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	s.FailIDs = map[string]error{"petlife_3": errors.New("unique constraint violation")}

	var batch []pet.Pet
	for i := 1; i <= 5; i++ {
		batch = append(batch, samplePet(fmt.Sprintf("petlife_%d", i)))
	}

	report := s.SaveMany(context.Background(), batch)
	require.Equal(t, 4, report.NewCount)
	require.Equal(t, 0, report.UpdatedCount)
	require.Len(t, report.Errors, 1)
	require.Contains(t, report.Errors[0], "petlife_3")
}

func TestSaveMany_CountsUpdates(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	_, err := s.Upsert(ctx, samplePet("petlife_1"))
	require.NoError(t, err)

	report := s.SaveMany(ctx, []pet.Pet{samplePet("petlife_1"), samplePet("petlife_2")})
	require.Equal(t, 1, report.NewCount)
	require.Equal(t, 1, report.UpdatedCount)
	require.Empty(t, report.Errors)
}

func TestPostgresStore_UpsertReportsCreated(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostgresStoreWithPool(mock)
	require.NoError(t, err)

	p := samplePet("petlife_1")
	mock.ExpectQuery("INSERT INTO pets").
		WithArgs(
			p.ID, "dog", p.Name, p.Breed, p.AgeYears, "male",
			p.Prefecture, p.City, p.Description, p.Personality,
			p.ImageURL, p.SourceURL, p.AdoptionFee, p.Vaccinated, p.Neutered,
			p.OriginalID, p.Source, p.CrawledAt,
		).
		WillReturnRows(pgxmock.NewRows([]string{"created"}).AddRow(true))

	created, err := s.Upsert(context.Background(), p)
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Exists(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostgresStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("petlife_1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.Exists(context.Background(), "petlife_1")
	require.NoError(t, err)
	require.True(t, ok)
}
