package orders

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

type orderRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &orderRepoPG{pool: pool}
}

const orderCols = `id, patient_id, placed_by, subtotal, tax, discount, total, status,
	payment_status, payment_method, prescription_required, prescription_file,
	COALESCE(notes, ''), processed_by, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.PatientID, &o.PlacedBy, &o.Subtotal, &o.Tax, &o.Discount, &o.Total,
		&o.Status, &o.PaymentStatus, &o.PaymentMethod, &o.PrescriptionRequired, &o.PrescriptionFile,
		&o.Notes, &o.ProcessedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *orderRepoPG) Create(ctx context.Context, o *Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	q := db.Conn(ctx, r.pool)
	err := q.QueryRow(ctx, `
		INSERT INTO orders (id, patient_id, placed_by, subtotal, tax, discount, total, status,
			payment_status, payment_method, prescription_required, prescription_file, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at, updated_at`,
		o.ID, o.PatientID, o.PlacedBy, o.Subtotal, o.Tax, o.Discount, o.Total, o.Status,
		o.PaymentStatus, o.PaymentMethod, o.PrescriptionRequired, o.PrescriptionFile, o.Notes,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(`
			INSERT INTO order_items (order_id, line_no, medicine_id, name, quantity, price, total)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			o.ID, i+1, it.MedicineID, it.Name, it.Quantity, it.Price, it.Total)
	}
	br := q.SendBatch(ctx, batch)
	defer br.Close()
	for range o.Items {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.get(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`, id)
}

func (r *orderRepoPG) Lock(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.get(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *orderRepoPG) get(ctx context.Context, sql string, id uuid.UUID) (*Order, error) {
	o, err := scanOrder(db.Conn(ctx, r.pool).QueryRow(ctx, sql, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepoPG) UpdateStatus(ctx context.Context, o *Order) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE orders SET status=$2, payment_status=$3, processed_by=$4, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		o.ID, o.Status, o.PaymentStatus, o.ProcessedBy).Scan(&o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOrderNotFound
	}
	return err
}

func (r *orderRepoPG) List(ctx context.Context, f ListFilter) ([]*Order, int, error) {
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
	if f.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", idx))
		args = append(args, f.Status)
		idx++
	}
	if f.PaymentStatus != "" {
		where = append(where, fmt.Sprintf("payment_status = $%d", idx))
		args = append(args, f.PaymentStatus)
		idx++
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + orderCols + ` FROM orders` + clause +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, f.Limit, f.Offset)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []*Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()
	if err := r.loadItems(ctx, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *orderRepoPG) loadItems(ctx context.Context, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(orders))
	byID := make(map[uuid.UUID]*Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		o.Items = []Item{}
		byID[o.ID] = o
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT order_id, medicine_id, name, quantity, price, total
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, line_no`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID uuid.UUID
			it      Item
		)
		if err := rows.Scan(&orderID, &it.MedicineID, &it.Name, &it.Quantity, &it.Price, &it.Total); err != nil {
			return err
		}
		byID[orderID].Items = append(byID[orderID].Items, it)
	}
	return rows.Err()
}
