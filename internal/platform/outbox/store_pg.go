package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store claims unpublished records and persists the outcome of handling them.
type Store interface {
	// Claim locks up to limit unpublished records with fewer than maxAttempts
	// attempts, calls handle for each in id order and records the result.
	// Records locked by a concurrent relay are skipped.
	Claim(ctx context.Context, limit, maxAttempts int, handle func(context.Context, Record) error) (published, failed int, err error)
	Pending(ctx context.Context, maxAttempts int) (int, error)
}

// PgStore is the Postgres Store.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore returns a Store on pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Claim(ctx context.Context, limit, maxAttempts int, handle func(context.Context, Record) error) (int, int, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, 0, fmt.Errorf("outbox: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload, headers, created_at, attempts
		FROM outbox_events
		WHERE published_at IS NULL AND attempts < $1
		ORDER BY id
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, maxAttempts, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("outbox: claim: %w", err)
	}
	var batch []Record
	for rows.Next() {
		var (
			r       Record
			headers []byte
		)
		if err := rows.Scan(&r.ID, &r.EventID, &r.AggregateType, &r.AggregateID, &r.EventType,
			&r.Payload, &headers, &r.CreatedAt, &r.Attempts); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("outbox: scan: %w", err)
		}
		if len(headers) > 0 {
			_ = json.Unmarshal(headers, &r.Headers)
		}
		batch = append(batch, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("outbox: claim rows: %w", err)
	}

	var published, failed int
	for _, r := range batch {
		if herr := handle(ctx, r); herr != nil {
			failed++
			if _, err := tx.Exec(ctx,
				`UPDATE outbox_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1`,
				r.ID, herr.Error()); err != nil {
				return 0, 0, fmt.Errorf("outbox: record failure: %w", err)
			}
			continue
		}
		published++
		if _, err := tx.Exec(ctx,
			`UPDATE outbox_events SET published_at = NOW(), attempts = attempts + 1, last_error = NULL WHERE id = $1`,
			r.ID); err != nil {
			return 0, 0, fmt.Errorf("outbox: mark published: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("outbox: commit: %w", err)
	}
	return published, failed, nil
}

func (s *PgStore) Pending(ctx context.Context, maxAttempts int) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox_events WHERE published_at IS NULL AND attempts < $1`,
		maxAttempts).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("outbox: pending: %w", err)
	}
	return n, nil
}
