package dashboard

import (
	"context"
)

// Stats is the read-only query surface the dashboards aggregate.
type Stats interface {
	CountActiveUsers(ctx context.Context) (int, error)
	UsersByRole(ctx context.Context) (map[string]int, error)
	CountActivePatients(ctx context.Context) (int, error)

	CountActiveMedicines(ctx context.Context) (int, error)
	CountLowStock(ctx context.Context) (int, error)
	LowStockMedicines(ctx context.Context, limit int) ([]MedicineSummary, error)
	TopMedicines(ctx context.Context, limit int) ([]TopMedicine, error)

	CountOrders(ctx context.Context, f OrderFilter) (int, error)
	Revenue(ctx context.Context, f OrderFilter) (float64, error)
	RecentOrders(ctx context.Context, f OrderFilter, limit int) ([]OrderSummary, error)

	CountRecords(ctx context.Context, f RecordFilter) (int, error)
	RecentRecords(ctx context.Context, f RecordFilter, limit int) ([]RecordSummary, error)

	CountVitals(ctx context.Context, f VitalFilter) (int, error)
	RecentVitals(ctx context.Context, f VitalFilter, limit int) ([]VitalSummary, error)
}
