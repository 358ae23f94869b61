package vitals

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthstore/healthstore/internal/platform/db"
)

type vitalRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &vitalRepoPG{pool: pool}
}

const vitalCols = `id, patient_id, recorded_by, recorded_at,
	heart_rate, heart_rate_unit, heart_rate_status,
	bp_systolic, bp_diastolic, bp_unit, bp_status,
	temperature, temperature_unit, temperature_status,
	oxygen_level, oxygen_unit, oxygen_status,
	weight, weight_unit, height, height_unit,
	is_critical, notes, created_at, updated_at`

// flatVital mirrors one health_vitals row.
type flatVital struct {
	hr, sys, dia, temp, oxy, weight, height                   *float64
	hrUnit, bpUnit, tempUnit, oxyUnit, weightUnit, heightUnit *string
	hrStatus, bpStatus, tempStatus, oxyStatus                 *string
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (f flatVital) apply(v *VitalRecord) {
	if f.hr != nil {
		v.HeartRate = &Reading{Value: f.hr, Unit: str(f.hrUnit), Status: Status(str(f.hrStatus))}
	}
	if f.sys != nil || f.dia != nil {
		v.BloodPressure = &BloodPressure{Systolic: f.sys, Diastolic: f.dia, Unit: str(f.bpUnit), Status: Status(str(f.bpStatus))}
	}
	if f.temp != nil {
		v.Temperature = &Reading{Value: f.temp, Unit: str(f.tempUnit), Status: Status(str(f.tempStatus))}
	}
	if f.oxy != nil {
		v.OxygenLevel = &Reading{Value: f.oxy, Unit: str(f.oxyUnit), Status: Status(str(f.oxyStatus))}
	}
	if f.weight != nil {
		v.Weight = &Quantity{Value: f.weight, Unit: str(f.weightUnit)}
	}
	if f.height != nil {
		v.Height = &Quantity{Value: f.height, Unit: str(f.heightUnit)}
	}
}

func flatten(v *VitalRecord) flatVital {
	var f flatVital
	if r := v.HeartRate; r != nil {
		f.hr, f.hrUnit, f.hrStatus = r.Value, nullable(r.Unit), nullable(string(r.Status))
	}
	if b := v.BloodPressure; b != nil {
		f.sys, f.dia, f.bpUnit, f.bpStatus = b.Systolic, b.Diastolic, nullable(b.Unit), nullable(string(b.Status))
	}
	if r := v.Temperature; r != nil {
		f.temp, f.tempUnit, f.tempStatus = r.Value, nullable(r.Unit), nullable(string(r.Status))
	}
	if r := v.OxygenLevel; r != nil {
		f.oxy, f.oxyUnit, f.oxyStatus = r.Value, nullable(r.Unit), nullable(string(r.Status))
	}
	if q := v.Weight; q != nil {
		f.weight, f.weightUnit = q.Value, nullable(q.Unit)
	}
	if q := v.Height; q != nil {
		f.height, f.heightUnit = q.Value, nullable(q.Unit)
	}
	return f
}

func scanVital(row pgx.Row) (*VitalRecord, error) {
	var (
		v VitalRecord
		f flatVital
	)
	err := row.Scan(&v.ID, &v.PatientID, &v.RecordedBy, &v.Date,
		&f.hr, &f.hrUnit, &f.hrStatus,
		&f.sys, &f.dia, &f.bpUnit, &f.bpStatus,
		&f.temp, &f.tempUnit, &f.tempStatus,
		&f.oxy, &f.oxyUnit, &f.oxyStatus,
		&f.weight, &f.weightUnit, &f.height, &f.heightUnit,
		&v.IsCritical, &v.Notes, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVitalNotFound
		}
		return nil, err
	}
	f.apply(&v)
	return &v, nil
}

func (r *vitalRepoPG) Create(ctx context.Context, v *VitalRecord) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	f := flatten(v)
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO health_vitals (id, patient_id, recorded_by, recorded_at,
			heart_rate, heart_rate_unit, heart_rate_status,
			bp_systolic, bp_diastolic, bp_unit, bp_status,
			temperature, temperature_unit, temperature_status,
			oxygen_level, oxygen_unit, oxygen_status,
			weight, weight_unit, height, height_unit,
			is_critical, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
		RETURNING created_at, updated_at`,
		v.ID, v.PatientID, v.RecordedBy, v.Date,
		f.hr, f.hrUnit, f.hrStatus,
		f.sys, f.dia, f.bpUnit, f.bpStatus,
		f.temp, f.tempUnit, f.tempStatus,
		f.oxy, f.oxyUnit, f.oxyStatus,
		f.weight, f.weightUnit, f.height, f.heightUnit,
		v.IsCritical, v.Notes).Scan(&v.CreatedAt, &v.UpdatedAt)
}

func (r *vitalRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*VitalRecord, error) {
	return scanVital(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+vitalCols+` FROM health_vitals WHERE id = $1`, id))
}

func (r *vitalRepoPG) Update(ctx context.Context, v *VitalRecord) error {
	f := flatten(v)
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE health_vitals SET recorded_at=$2,
			heart_rate=$3, heart_rate_unit=$4, heart_rate_status=$5,
			bp_systolic=$6, bp_diastolic=$7, bp_unit=$8, bp_status=$9,
			temperature=$10, temperature_unit=$11, temperature_status=$12,
			oxygen_level=$13, oxygen_unit=$14, oxygen_status=$15,
			weight=$16, weight_unit=$17, height=$18, height_unit=$19,
			is_critical=$20, notes=$21, updated_at=NOW()
		WHERE id = $1`,
		v.ID, v.Date,
		f.hr, f.hrUnit, f.hrStatus,
		f.sys, f.dia, f.bpUnit, f.bpStatus,
		f.temp, f.tempUnit, f.tempStatus,
		f.oxy, f.oxyUnit, f.oxyStatus,
		f.weight, f.weightUnit, f.height, f.heightUnit,
		v.IsCritical, v.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVitalNotFound
	}
	return nil
}

func (r *vitalRepoPG) List(ctx context.Context, f ListFilter) ([]*VitalRecord, int, error) {
	var (
		where []string
		args  []interface{}
		idx   = 1
	)
	if f.PatientID != nil {
		where = append(where, fmt.Sprintf("patient_id = $%d", idx))
		args = append(args, *f.PatientID)
		idx++
	}
	if f.CriticalOnly {
		where = append(where, "is_critical")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM health_vitals`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + vitalCols + ` FROM health_vitals` + clause +
		fmt.Sprintf(` ORDER BY recorded_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, f.Limit, f.Offset)
	items, err := r.query(ctx, query, args...)
	return items, total, err
}

func (r *vitalRepoPG) RecentCritical(ctx context.Context, limit int) ([]*VitalRecord, error) {
	return r.query(ctx, `SELECT `+vitalCols+` FROM health_vitals WHERE is_critical ORDER BY recorded_at DESC LIMIT $1`, limit)
}

func (r *vitalRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*VitalRecord, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*VitalRecord{}
	for rows.Next() {
		v, err := scanVital(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}
