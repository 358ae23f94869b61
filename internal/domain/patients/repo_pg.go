package patients

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthstore/healthstore/internal/platform/db"
)

type directoryPG struct{ pool *pgxpool.Pool }

func NewDirectoryPG(pool *pgxpool.Pool) Directory {
	return &directoryPG{pool: pool}
}

const patientCols = `id, name, email, COALESCE(phone, ''), COALESCE(address, ''), is_active, created_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.Address, &p.IsActive, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (d *directoryPG) List(ctx context.Context, f PatientFilter) ([]*Patient, int, error) {
	clause := ` WHERE role = 'patient' AND is_active`
	var args []interface{}
	idx := 1
	if f.Search != "" {
		clause += fmt.Sprintf(` AND (name ILIKE $%d OR email ILIKE $%d OR phone ILIKE $%d)`, idx, idx, idx)
		args = append(args, "%"+db.EscapeLike(f.Search)+"%")
		idx++
	}
	q := db.Conn(ctx, d.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM users`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, f.Limit, f.Offset)
	rows, err := q.Query(ctx, `SELECT `+patientCols+` FROM users`+clause+
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (d *directoryPG) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(db.Conn(ctx, d.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM users WHERE id = $1 AND role = 'patient'`, id))
}

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

const recordCols = `id, patient_id, doctor_id, record_date, COALESCE(diagnosis, ''), COALESCE(symptoms, ''),
	COALESCE(treatment, ''), prescription, COALESCE(notes, ''), follow_up_date, attachments, created_at, updated_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.PatientID, &r.DoctorID, &r.Date, &r.Diagnosis, &r.Symptoms,
		&r.Treatment, &r.Prescription, &r.Notes, &r.FollowUpDate, &r.Attachments, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *recordRepoPG) Create(ctx context.Context, r *Record) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return db.Conn(ctx, s.pool).QueryRow(ctx, `
		INSERT INTO patient_records (id, patient_id, doctor_id, record_date, diagnosis, symptoms,
			treatment, prescription, notes, follow_up_date, attachments)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		r.ID, r.PatientID, r.DoctorID, r.Date, r.Diagnosis, r.Symptoms,
		r.Treatment, r.Prescription, r.Notes, r.FollowUpDate, r.Attachments,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
}

func (s *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return scanRecord(db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+recordCols+` FROM patient_records WHERE id = $1`, id))
}

func (s *recordRepoPG) Update(ctx context.Context, r *Record) error {
	err := db.Conn(ctx, s.pool).QueryRow(ctx, `
		UPDATE patient_records SET record_date=$2, diagnosis=$3, symptoms=$4, treatment=$5,
			prescription=$6, notes=$7, follow_up_date=$8, attachments=$9, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		r.ID, r.Date, r.Diagnosis, r.Symptoms, r.Treatment,
		r.Prescription, r.Notes, r.FollowUpDate, r.Attachments,
	).Scan(&r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrRecordNotFound
	}
	return err
}

func (s *recordRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Record, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx,
		`SELECT `+recordCols+` FROM patient_records WHERE patient_id = $1 ORDER BY record_date DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}
