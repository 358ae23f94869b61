package dashboard

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthstore/healthstore/internal/platform/db"
)

type statsPG struct{ pool *pgxpool.Pool }

func NewStatsPG(pool *pgxpool.Pool) Stats {
	return &statsPG{pool: pool}
}

type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) and(cond string) { w.conds = append(w.conds, cond) }

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// next returns the placeholder for an extra trailing argument.
func (w *where) next(arg interface{}) string {
	w.args = append(w.args, arg)
	return fmt.Sprintf("$%d", len(w.args))
}

func (s *statsPG) count(ctx context.Context, sql string, args ...interface{}) (int, error) {
	var n int
	err := db.Conn(ctx, s.pool).QueryRow(ctx, sql, args...).Scan(&n)
	return n, err
}

func (s *statsPG) CountActiveUsers(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM users WHERE is_active`)
}

func (s *statsPG) CountActivePatients(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM users WHERE is_active AND role = 'patient'`)
}

func (s *statsPG) UsersByRole(ctx context.Context) (map[string]int, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx,
		`SELECT role, COUNT(*) FROM users WHERE is_active GROUP BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		out[role] = n
	}
	return out, rows.Err()
}

func (s *statsPG) CountActiveMedicines(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM medicines WHERE is_active`)
}

func (s *statsPG) CountLowStock(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM medicines WHERE is_active AND stock <= min_stock_level`)
}

func (s *statsPG) LowStockMedicines(ctx context.Context, limit int) ([]MedicineSummary, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT id, name, category, stock, min_stock_level, unit FROM medicines
		WHERE is_active AND stock <= min_stock_level
		ORDER BY stock ASC, name ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (MedicineSummary, error) {
		var m MedicineSummary
		err := row.Scan(&m.ID, &m.Name, &m.Category, &m.Stock, &m.MinStockLevel, &m.Unit)
		return m, err
	})
}

func (s *statsPG) TopMedicines(ctx context.Context, limit int) ([]TopMedicine, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT i.medicine_id, MIN(i.name), SUM(i.quantity), SUM(i.total)
		FROM order_items i JOIN orders o ON o.id = i.order_id
		WHERE o.status <> 'cancelled'
		GROUP BY i.medicine_id
		ORDER BY SUM(i.quantity) DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TopMedicine, error) {
		var t TopMedicine
		err := row.Scan(&t.MedicineID, &t.Name, &t.TotalSold, &t.Revenue)
		return t, err
	})
}

func orderWhere(f OrderFilter) *where {
	w := &where{}
	if f.PatientID != nil {
		w.add("o.patient_id = $%d", *f.PatientID)
	}
	if f.Status != "" {
		w.add("o.status = $%d", f.Status)
	}
	if f.PaidOnly {
		w.and("o.payment_status = 'paid'")
	}
	if f.Since != nil {
		w.add("o.created_at >= $%d", *f.Since)
	}
	return w
}

func (s *statsPG) CountOrders(ctx context.Context, f OrderFilter) (int, error) {
	w := orderWhere(f)
	return s.count(ctx, `SELECT COUNT(*) FROM orders o`+w.String(), w.args...)
}

func (s *statsPG) Revenue(ctx context.Context, f OrderFilter) (float64, error) {
	f.PaidOnly = true
	w := orderWhere(f)
	var total float64
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT COALESCE(SUM(o.total), 0) FROM orders o`+w.String(), w.args...).Scan(&total)
	return total, err
}

func (s *statsPG) RecentOrders(ctx context.Context, f OrderFilter, limit int) ([]OrderSummary, error) {
	w := orderWhere(f)
	clause := w.String()
	limitArg := w.next(limit)
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT o.id, o.patient_id, u.name,
			(SELECT COUNT(*) FROM order_items i WHERE i.order_id = o.id),
			o.total, o.status, o.payment_status, o.created_at
		FROM orders o JOIN users u ON u.id = o.patient_id`+clause+`
		ORDER BY o.created_at DESC LIMIT `+limitArg, w.args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (OrderSummary, error) {
		var o OrderSummary
		err := row.Scan(&o.ID, &o.PatientID, &o.PatientName, &o.Lines,
			&o.Total, &o.Status, &o.PaymentStatus, &o.CreatedAt)
		return o, err
	})
}

func recordWhere(f RecordFilter) *where {
	w := &where{}
	if f.PatientID != nil {
		w.add("r.patient_id = $%d", *f.PatientID)
	}
	if f.DoctorID != nil {
		w.add("r.doctor_id = $%d", *f.DoctorID)
	}
	return w
}

func (s *statsPG) CountRecords(ctx context.Context, f RecordFilter) (int, error) {
	w := recordWhere(f)
	return s.count(ctx, `SELECT COUNT(*) FROM patient_records r`+w.String(), w.args...)
}

func (s *statsPG) RecentRecords(ctx context.Context, f RecordFilter, limit int) ([]RecordSummary, error) {
	w := recordWhere(f)
	clause := w.String()
	limitArg := w.next(limit)
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT r.id, r.patient_id, p.name, r.doctor_id, d.name, r.record_date, COALESCE(r.diagnosis, '')
		FROM patient_records r
		JOIN users p ON p.id = r.patient_id
		JOIN users d ON d.id = r.doctor_id`+clause+`
		ORDER BY r.record_date DESC LIMIT `+limitArg, w.args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (RecordSummary, error) {
		var r RecordSummary
		err := row.Scan(&r.ID, &r.PatientID, &r.PatientName, &r.DoctorID, &r.DoctorName, &r.Date, &r.Diagnosis)
		return r, err
	})
}

func vitalWhere(f VitalFilter) *where {
	w := &where{}
	if f.PatientID != nil {
		w.add("v.patient_id = $%d", *f.PatientID)
	}
	if f.CriticalOnly {
		w.and("v.is_critical")
	}
	return w
}

func (s *statsPG) CountVitals(ctx context.Context, f VitalFilter) (int, error) {
	w := vitalWhere(f)
	return s.count(ctx, `SELECT COUNT(*) FROM health_vitals v`+w.String(), w.args...)
}

func (s *statsPG) RecentVitals(ctx context.Context, f VitalFilter, limit int) ([]VitalSummary, error) {
	w := vitalWhere(f)
	clause := w.String()
	limitArg := w.next(limit)
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT v.id, v.patient_id, u.name, v.recorded_at, v.heart_rate, v.bp_systolic,
			v.bp_diastolic, v.temperature, v.oxygen_level, v.is_critical
		FROM health_vitals v JOIN users u ON u.id = v.patient_id`+clause+`
		ORDER BY v.recorded_at DESC LIMIT `+limitArg, w.args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (VitalSummary, error) {
		var v VitalSummary
		err := row.Scan(&v.ID, &v.PatientID, &v.PatientName, &v.Date, &v.HeartRate, &v.Systolic,
			&v.Diastolic, &v.Temperature, &v.OxygenLevel, &v.IsCritical)
		return v, err
	})
}
