package inventory

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

type medicineRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &medicineRepoPG{pool: pool}
}

const medicineCols = `id, name, COALESCE(description, ''), category, COALESCE(manufacturer, ''),
	COALESCE(batch_number, ''), expiry_date, price, stock, min_stock_level, unit,
	prescription_required, is_active, added_by, created_at, updated_at`

func scanMedicine(row pgx.Row) (*Medicine, error) {
	var m Medicine
	err := row.Scan(&m.ID, &m.Name, &m.Description, &m.Category, &m.Manufacturer,
		&m.BatchNumber, &m.ExpiryDate.Time, &m.Price, &m.Stock, &m.MinStockLevel, &m.Unit,
		&m.PrescriptionRequired, &m.IsActive, &m.AddedBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMedicineNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *medicineRepoPG) Create(ctx context.Context, m *Medicine) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO medicines (id, name, description, category, manufacturer, batch_number,
			expiry_date, price, stock, min_stock_level, unit, prescription_required, is_active, added_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at, updated_at`,
		m.ID, m.Name, m.Description, m.Category, m.Manufacturer, m.BatchNumber,
		m.ExpiryDate.Time, m.Price, m.Stock, m.MinStockLevel, m.Unit, m.PrescriptionRequired,
		m.IsActive, m.AddedBy).Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *medicineRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	return scanMedicine(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+medicineCols+` FROM medicines WHERE id = $1`, id))
}

func (r *medicineRepoPG) Update(ctx context.Context, m *Medicine) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE medicines SET name=$2, description=$3, category=$4, manufacturer=$5, batch_number=$6,
			expiry_date=$7, price=$8, stock=$9, min_stock_level=$10, unit=$11,
			prescription_required=$12, is_active=$13, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		m.ID, m.Name, m.Description, m.Category, m.Manufacturer, m.BatchNumber,
		m.ExpiryDate.Time, m.Price, m.Stock, m.MinStockLevel, m.Unit,
		m.PrescriptionRequired, m.IsActive).Scan(&m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrMedicineNotFound
	}
	return err
}

func (r *medicineRepoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE medicines SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMedicineNotFound
	}
	return nil
}

func (r *medicineRepoPG) List(ctx context.Context, f ListFilter) ([]*Medicine, int, error) {
	where := []string{"is_active"}
	var args []interface{}
	idx := 1

	if f.Search != "" {
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d OR manufacturer ILIKE $%d)", idx, idx, idx))
		args = append(args, "%"+db.EscapeLike(f.Search)+"%")
		idx++
	}
	if f.Category != "" {
		where = append(where, fmt.Sprintf("category = $%d", idx))
		args = append(args, f.Category)
		idx++
	}
	if f.LowStock {
		where = append(where, "stock <= min_stock_level")
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM medicines`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + medicineCols + ` FROM medicines` + clause +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, f.Limit, f.Offset)
	items, err := r.query(ctx, query, args...)
	return items, total, err
}

func (r *medicineRepoPG) LowStock(ctx context.Context) ([]*Medicine, error) {
	return r.query(ctx, `SELECT `+medicineCols+` FROM medicines
		WHERE is_active AND stock <= min_stock_level ORDER BY stock ASC, name`)
}

func (r *medicineRepoPG) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	q := db.Conn(ctx, r.pool)
	var stock int
	err := q.QueryRow(ctx, `
		UPDATE medicines SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1 AND stock + $2 >= 0 AND (is_active OR $2 >= 0)
		RETURNING stock`, id, delta).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	// No row matched: the medicine is missing, inactive, or the adjustment
	// would take stock below zero.
	var active bool
	err = q.QueryRow(ctx, `SELECT stock, is_active FROM medicines WHERE id = $1`, id).Scan(&stock, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrMedicineNotFound
	}
	if err != nil {
		return 0, err
	}
	if !active {
		return stock, ErrMedicineInactive
	}
	return stock, ErrInsufficientStock
}

func (r *medicineRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Medicine, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*Medicine{}
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}
