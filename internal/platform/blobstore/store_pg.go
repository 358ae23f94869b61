package blobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthstore/healthstore/internal/platform/db"
)

const metaCols = `id, file_name, content_type, size, sha256, owner_id, patient_id, created_at`

// PgStore keeps files in the files table.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Save(ctx context.Context, m *Metadata, content []byte) error {
	_, err := db.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO files (`+metaCols+`, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.FileName, m.ContentType, m.Size, m.SHA256, m.OwnerID, m.PatientID, m.CreatedAt, content)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func scanMeta(row pgx.Row, extra ...any) (*Metadata, error) {
	var m Metadata
	dest := append([]any{&m.ID, &m.FileName, &m.ContentType, &m.Size, &m.SHA256, &m.OwnerID, &m.PatientID, &m.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *PgStore) Get(ctx context.Context, id uuid.UUID) (*Metadata, []byte, error) {
	var content []byte
	m, err := scanMeta(db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+metaCols+`, content FROM files WHERE id = $1`, id), &content)
	if err != nil {
		return nil, nil, err
	}
	return m, content, nil
}

func (s *PgStore) GetMetadata(ctx context.Context, id uuid.UUID) (*Metadata, error) {
	return scanMeta(db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+metaCols+` FROM files WHERE id = $1`, id))
}

func (s *PgStore) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM files WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}
