// Package checkpoint persists per-(source, pet type) crawl resumption
// markers. The marker body is stored as a JSON blob beside indexed
// source/type/progress columns so source-specific metadata needs no schema
// change.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

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

// PostgresStore implements pet.CheckpointStore on Postgres.
type PostgresStore struct {
	pool pgxPool
}

// blob is the JSON checkpoint body persisted in the checkpoint column.
type blob struct {
	LastItemID    string            `json:"lastItemId"`
	RecentItemIDs []string          `json:"recentItemIds"`
	LastCrawlAt   time.Time         `json:"lastCrawlAt"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewPostgresStore connects a checkpoint store to Postgres.
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

// Get loads the checkpoint for a (source, type) key, or nil when the pair
// has never completed a crawl.
func (s *PostgresStore) Get(ctx context.Context, sourceID string, petType pet.Type) (*pet.Checkpoint, error) {
	query := `
		SELECT checkpoint, total_processed, updated_at
		FROM crawl_checkpoints
		WHERE source_id = $1 AND pet_type = $2;
	`
	var (
		raw            []byte
		totalProcessed int64
		updatedAt      time.Time
	)
	err := s.pool.QueryRow(ctx, query, sourceID, string(petType)).Scan(&raw, &totalProcessed, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return decodeRow(sourceID, petType, raw, totalProcessed, updatedAt)
}

// Put upserts the checkpoint, keyed uniquely on (source_id, pet_type).
// Last writer wins; concurrent writers for the same key must be serialized
// by the caller.
func (s *PostgresStore) Put(ctx context.Context, cp pet.Checkpoint) error {
	body, err := json.Marshal(blob{
		LastItemID:    cp.LastItemID,
		RecentItemIDs: cp.RecentItemIDs,
		LastCrawlAt:   cp.LastCrawlAt,
		Metadata:      cp.Metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	query := `
		INSERT INTO crawl_checkpoints (source_id, pet_type, checkpoint, total_processed, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (source_id, pet_type) DO UPDATE
		SET checkpoint = EXCLUDED.checkpoint,
		    total_processed = EXCLUDED.total_processed,
		    updated_at = now();
	`
	if _, err := s.pool.Exec(ctx, query, cp.SourceID, string(cp.PetType), body, cp.TotalProcessed); err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}

// List returns checkpoints filtered by source and type; empty filters
// match everything.
func (s *PostgresStore) List(ctx context.Context, sourceID string, petType pet.Type) ([]pet.Checkpoint, error) {
	query := `
		SELECT source_id, pet_type, checkpoint, total_processed, updated_at
		FROM crawl_checkpoints
		WHERE ($1 = '' OR source_id = $1)
		  AND ($2 = '' OR pet_type = $2)
		ORDER BY source_id, pet_type;
	`
	rows, err := s.pool.Query(ctx, query, sourceID, string(petType))
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []pet.Checkpoint
	for rows.Next() {
		var (
			srcID          string
			typeStr        string
			raw            []byte
			totalProcessed int64
			updatedAt      time.Time
		)
		if err := rows.Scan(&srcID, &typeStr, &raw, &totalProcessed, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint row: %w", err)
		}
		cp, err := decodeRow(srcID, pet.Type(typeStr), raw, totalProcessed, updatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, *cp)
	}
	return out, nil
}

func decodeRow(sourceID string, petType pet.Type, raw []byte, totalProcessed int64, updatedAt time.Time) (*pet.Checkpoint, error) {
	var body blob
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode checkpoint blob: %w", err)
	}
	return &pet.Checkpoint{
		SourceID:       sourceID,
		PetType:        petType,
		LastItemID:     body.LastItemID,
		RecentItemIDs:  body.RecentItemIDs,
		TotalProcessed: totalProcessed,
		LastCrawlAt:    body.LastCrawlAt,
		Metadata:       body.Metadata,
		UpdatedAt:      updatedAt,
	}, nil
}
