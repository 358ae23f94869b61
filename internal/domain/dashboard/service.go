package dashboard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/healthstore/healthstore/internal/platform/cache"
)

const cacheName = "dashboard"

type Service struct {
	stats  Stats
	cache  *cache.Cache
	logger zerolog.Logger
	now    func() time.Time
}

// NewService builds the dashboards over stats. A nil cache queries every time.
func NewService(stats Stats, c *cache.Cache, logger zerolog.Logger) *Service {
	return &Service{
		stats:  stats,
		cache:  c,
		logger: logger.With().Str("component", "dashboard").Logger(),
		now:    time.Now,
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

func (s *Service) Admin(ctx context.Context) (*Admin, error) {
	return cache.GetOrLoad(ctx, s.cache, cacheName, "dashboard:admin", s.loadAdmin)
}

func (s *Service) loadAdmin(ctx context.Context) (*Admin, error) {
	d := &Admin{}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { d.Overview.TotalUsers, err = s.stats.CountActiveUsers(ctx); return })
	g.Go(func() (err error) { d.Overview.TotalMedicines, err = s.stats.CountActiveMedicines(ctx); return })
	g.Go(func() (err error) { d.Overview.TotalOrders, err = s.stats.CountOrders(ctx, OrderFilter{}); return })
	g.Go(func() (err error) { d.Overview.LowStockCount, err = s.stats.CountLowStock(ctx); return })
	g.Go(func() (err error) { d.Overview.TotalRevenue, err = s.stats.Revenue(ctx, OrderFilter{}); return })
	g.Go(func() (err error) { d.UsersByRole, err = s.stats.UsersByRole(ctx); return })
	g.Go(func() (err error) {
		d.RecentOrders, err = s.stats.RecentOrders(ctx, OrderFilter{}, RecentLimit)
		return
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) Store(ctx context.Context) (*Store, error) {
	return cache.GetOrLoad(ctx, s.cache, cacheName, "dashboard:store", s.loadStore)
}

func (s *Service) loadStore(ctx context.Context) (*Store, error) {
	now := s.now()
	today, month := startOfDay(now), startOfMonth(now)
	d := &Store{}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { d.Overview.TotalMedicines, err = s.stats.CountActiveMedicines(ctx); return })
	g.Go(func() (err error) { d.Overview.LowStockCount, err = s.stats.CountLowStock(ctx); return })
	g.Go(func() (err error) { d.Overview.TotalOrders, err = s.stats.CountOrders(ctx, OrderFilter{}); return })
	g.Go(func() (err error) {
		d.Overview.PendingOrders, err = s.stats.CountOrders(ctx, OrderFilter{Status: "pending"})
		return
	})
	g.Go(func() (err error) {
		d.Overview.TodayOrders, err = s.stats.CountOrders(ctx, OrderFilter{Since: &today})
		return
	})
	g.Go(func() (err error) {
		d.Overview.TodayRevenue, err = s.stats.Revenue(ctx, OrderFilter{Since: &today})
		return
	})
	g.Go(func() (err error) {
		d.Overview.MonthlyRevenue, err = s.stats.Revenue(ctx, OrderFilter{Since: &month})
		return
	})
	g.Go(func() (err error) { d.LowStockMedicines, err = s.stats.LowStockMedicines(ctx, RecentLimit); return })
	g.Go(func() (err error) { d.TopMedicines, err = s.stats.TopMedicines(ctx, RecentLimit); return })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) Doctor(ctx context.Context, doctorID uuid.UUID) (*Doctor, error) {
	return cache.GetOrLoad(ctx, s.cache, cacheName, "dashboard:doctor:"+doctorID.String(),
		func(ctx context.Context) (*Doctor, error) { return s.loadDoctor(ctx, doctorID) })
}

func (s *Service) loadDoctor(ctx context.Context, doctorID uuid.UUID) (*Doctor, error) {
	own := RecordFilter{DoctorID: &doctorID}
	critical := VitalFilter{CriticalOnly: true}
	d := &Doctor{}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { d.Overview.TotalPatients, err = s.stats.CountActivePatients(ctx); return })
	g.Go(func() (err error) { d.Overview.TotalRecords, err = s.stats.CountRecords(ctx, own); return })
	g.Go(func() (err error) { d.Overview.CriticalVitalsCount, err = s.stats.CountVitals(ctx, critical); return })
	g.Go(func() (err error) { d.RecentRecords, err = s.stats.RecentRecords(ctx, own, RecentLimit); return })
	g.Go(func() (err error) { d.CriticalVitals, err = s.stats.RecentVitals(ctx, critical, RecentLimit); return })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) Patient(ctx context.Context, patientID uuid.UUID) (*Patient, error) {
	return cache.GetOrLoad(ctx, s.cache, cacheName, "dashboard:patient:"+patientID.String(),
		func(ctx context.Context) (*Patient, error) { return s.loadPatient(ctx, patientID) })
}

func (s *Service) loadPatient(ctx context.Context, patientID uuid.UUID) (*Patient, error) {
	orders := OrderFilter{PatientID: &patientID}
	records := RecordFilter{PatientID: &patientID}
	vitals := VitalFilter{PatientID: &patientID}
	critical := VitalFilter{PatientID: &patientID, CriticalOnly: true}
	d := &Patient{}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { d.Overview.TotalOrders, err = s.stats.CountOrders(ctx, orders); return })
	g.Go(func() (err error) { d.Overview.TotalRecords, err = s.stats.CountRecords(ctx, records); return })
	g.Go(func() (err error) { d.Overview.CriticalVitalsCount, err = s.stats.CountVitals(ctx, critical); return })
	g.Go(func() (err error) {
		d.RecentOrders, err = s.stats.RecentOrders(ctx, orders, PatientRecentLimit)
		return
	})
	g.Go(func() (err error) {
		d.RecentRecords, err = s.stats.RecentRecords(ctx, records, PatientRecentLimit)
		return
	})
	g.Go(func() (err error) {
		d.RecentVitals, err = s.stats.RecentVitals(ctx, vitals, PatientRecentLimit)
		return
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}
