// Package store persists canonical pet records. Upserts are idempotent on
// the namespaced id: re-crawling the same native item updates in place and
// never duplicates.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petlife-ingest/pet-crawler/internal/pet"
)

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements pet.Store on Postgres.
type PostgresStore struct {
	pool pgxPool
}

// NewPostgresStore connects a pet store to Postgres.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewPostgresStoreWithPool(pool pgxPool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Exists reports whether a record with the id is already stored.
func (s *PostgresStore) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pets WHERE id = $1);`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pet exists: %w", err)
	}
	return exists, nil
}

// Upsert creates or updates a record. The second call for the same id
// touches updated_at only where values are unchanged; created reports
// whether a new row was inserted.
func (s *PostgresStore) Upsert(ctx context.Context, p pet.Pet) (bool, error) {
	query := `
		INSERT INTO pets (
			id, pet_type, name, breed, age_years, gender,
			prefecture, city, description, personality,
			image_url, source_url, adoption_fee, vaccinated, neutered,
			original_id, source, crawled_at, created_at, updated_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,now(),now()
		)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			breed = EXCLUDED.breed,
			age_years = EXCLUDED.age_years,
			gender = EXCLUDED.gender,
			prefecture = EXCLUDED.prefecture,
			city = EXCLUDED.city,
			description = EXCLUDED.description,
			personality = EXCLUDED.personality,
			image_url = EXCLUDED.image_url,
			source_url = EXCLUDED.source_url,
			adoption_fee = EXCLUDED.adoption_fee,
			vaccinated = EXCLUDED.vaccinated,
			neutered = EXCLUDED.neutered,
			crawled_at = EXCLUDED.crawled_at,
			updated_at = now()
		RETURNING (xmax = 0) AS created;
	`
	var created bool
	err := s.pool.QueryRow(ctx, query,
		p.ID, string(p.Type), p.Name, p.Breed, p.AgeYears, string(p.Gender),
		p.Prefecture, p.City, p.Description, p.Personality,
		p.ImageURL, p.SourceURL, p.AdoptionFee, p.Vaccinated, p.Neutered,
		p.OriginalID, p.Source, p.CrawledAt,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upsert pet: %w", err)
	}
	return created, nil
}

// SaveMany upserts a batch with partial-failure semantics.
func (s *PostgresStore) SaveMany(ctx context.Context, pets []pet.Pet) pet.SaveReport {
	return saveMany(ctx, s, pets)
}
