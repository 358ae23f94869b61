package orders

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/healthstore/healthstore/internal/domain/inventory"
	"github.com/healthstore/healthstore/internal/platform/auth"
	"github.com/healthstore/healthstore/internal/platform/outbox"
	"github.com/healthstore/healthstore/internal/platform/telemetry"
)

// -- Test doubles --

type recordedEvents struct {
	mu     sync.Mutex
	events []outbox.Event
}

func (r *recordedEvents) Write(_ context.Context, e outbox.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordedEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

type directory map[uuid.UUID]bool

func (d directory) IsActivePatient(_ context.Context, id uuid.UUID) (bool, error) {
	return d[id], nil
}

type lowStockLog struct {
	mu    sync.Mutex
	stock map[uuid.UUID]int
}

func (l *lowStockLog) NotifyIfLow(_ context.Context, m *inventory.Medicine) {
	if !m.IsLowStock() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stock == nil {
		l.stock = make(map[uuid.UUID]int)
	}
	l.stock[m.ID] = m.Stock
}

type fixture struct {
	ledger  *Ledger
	store   *memStore
	events  *recordedEvents
	low     *lowStockLog
	metrics *telemetry.Metrics
	patient auth.Principal
}

func newFixture() *fixture {
	patient := auth.Principal{UserID: uuid.New(), Role: auth.RolePatient}
	fx := &fixture{
		store:   newMemStore(),
		events:  &recordedEvents{},
		low:     &lowStockLog{},
		metrics: telemetry.NewMetrics(prometheus.NewRegistry()),
		patient: patient,
	}
	fx.ledger = NewLedger(memOrders{fx.store}, memCatalog{fx.store}, fx.store,
		directory{patient.UserID: true}, zerolog.New(io.Discard))
	fx.ledger.SetEvents(fx.events)
	fx.ledger.SetLowStockNotifier(fx.low)
	fx.ledger.SetMetrics(fx.metrics)
	return fx
}

var (
	manager = auth.Principal{UserID: uuid.New(), Role: auth.RoleStoreManager}
	doctor  = auth.Principal{UserID: uuid.New(), Role: auth.RoleDoctor}
)

func cart(lines ...CartItem) PlaceOrderRequest {
	return PlaceOrderRequest{Items: lines}
}

func line(m *inventory.Medicine, qty int) CartItem {
	return CartItem{MedicineID: m.ID, Quantity: qty}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func (fx *fixture) place(t *testing.T, req PlaceOrderRequest) *Order {
	t.Helper()
	o, err := fx.ledger.PlaceOrder(context.Background(), fx.patient, req)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	return o
}

// -- PlaceOrder --

func TestPlaceOrder_PricingAndStock(t *testing.T) {
	fx := newFixture()
	a := fx.store.addMedicine("Paracetamol", 5.99, 10, 2, false)

	o := fx.place(t, cart(line(a, 2)))

	if !approx(o.Subtotal, 11.98) || !approx(o.Tax, 1.198) || !approx(o.Total, 13.178) || o.Discount != 0 {
		t.Errorf("totals: subtotal=%v tax=%v total=%v discount=%v", o.Subtotal, o.Tax, o.Total, o.Discount)
	}
	if got := fx.store.stock(a.ID); got != 8 {
		t.Errorf("stock = %d, want 8", got)
	}
	if o.Status != StatusPending || o.PaymentStatus != PaymentPending || o.PaymentMethod != DefaultPaymentMethod {
		t.Errorf("defaults: %s %s %s", o.Status, o.PaymentStatus, o.PaymentMethod)
	}
	if o.PatientID != fx.patient.UserID || o.PlacedBy != fx.patient.UserID {
		t.Errorf("patient buyer not the subject")
	}
	it := o.Items[0]
	if it.Name != "Paracetamol" || it.Price != 5.99 || it.Quantity != 2 || !approx(it.Total, 11.98) {
		t.Errorf("line snapshot %+v", it)
	}
	if got := fx.events.types(); len(got) != 1 || got[0] != EventPlaced {
		t.Errorf("events = %v", got)
	}
	stored, err := fx.ledger.Get(context.Background(), fx.patient, o.ID)
	if err != nil || len(stored.Items) != 1 {
		t.Fatalf("order not readable after placement: %v", err)
	}
	if v := testutil.ToFloat64(fx.metrics.OrderOperations.WithLabelValues("place", "success")); v != 1 {
		t.Errorf("place success counter = %v", v)
	}
}

func TestPlaceOrder_SnapshotIgnoresLaterPriceChange(t *testing.T) {
	fx := newFixture()
	a := fx.store.addMedicine("Ibuprofen", 4, 10, 2, false)
	o := fx.place(t, cart(line(a, 1)))

	fx.store.mu.Lock()
	fx.store.medicines[a.ID].Price = 40
	fx.store.mu.Unlock()

	stored, _ := fx.ledger.Get(context.Background(), fx.patient, o.ID)
	if stored.Items[0].Price != 4 || stored.Total != o.Total {
		t.Errorf("snapshot followed catalogue edit: %+v", stored.Items[0])
	}
}

func TestPlaceOrder_AllOrNothing(t *testing.T) {
	fx := newFixture()
	a := fx.store.addMedicine("A", 1, 10, 0, false)
	b := fx.store.addMedicine("B", 1, 3, 0, false)

	_, err := fx.ledger.PlaceOrder(context.Background(), fx.patient, cart(line(a, 1), line(b, 5)))
	var se *StockError
	if !errors.As(err, &se) || !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if se.ProductID != b.ID || se.Available != 3 {
		t.Errorf("error = %+v", se)
	}
	if d := se.Details(); d["product"] != b.ID || d["available"] != 3 {
		t.Errorf("details = %v", d)
	}
	if fx.store.stock(a.ID) != 10 || fx.store.stock(b.ID) != 3 {
		t.Errorf("stock changed: a=%d b=%d", fx.store.stock(a.ID), fx.store.stock(b.ID))
	}
	if fx.store.orderCount() != 0 || len(fx.events.types()) != 0 {
		t.Error("rejected order left state behind")
	}
	if v := testutil.ToFloat64(fx.metrics.OrderOperations.WithLabelValues("place", "rejected")); v != 1 {
		t.Errorf("place rejected counter = %v", v)
	}
}

func TestPlaceOrder_CommitTimeRecheckRollsBack(t *testing.T) {
	fx := newFixture()
	a := fx.store.addMedicine("A", 2, 10, 0, false)
	b := fx.store.addMedicine("B", 3, 5, 0, false)

	// Another buyer drains B between validation and the decrement.
	fx.store.beforeAdjust = func(id uuid.UUID) {
		if id == b.ID {
			fx.store.mu.Lock()
			fx.store.medicines[b.ID].Stock = 1
			fx.store.mu.Unlock()
		}
	}
	_, err := fx.ledger.PlaceOrder(context.Background(), fx.patient, cart(line(a, 4), line(b, 2)))
	var se *StockError
	if !errors.As(err, &se) || se.Kind != StockInsufficient || se.Available != 1 {
		t.Fatalf("expected insufficient stock with available 1, got %v", err)
	}
	if got := fx.store.stock(a.ID); got != 10 {
		t.Errorf("decrement of A not rolled back: %d", got)
	}
	if fx.store.orderCount() != 0 {
		t.Error("order persisted despite failed decrement")
	}
	if fx.store.rollbacks != 1 {
		t.Errorf("rollbacks = %d", fx.store.rollbacks)
	}
}

func TestPlaceOrder_DeactivatedBeforeDecrement(t *testing.T) {
	fx := newFixture()
	a := fx.store.addMedicine("A", 2, 10, 0, false)
	b := fx.store.addMedicine("B", 3, 10, 0, false)

	// B is retired between validation and the decrement.
	fx.store.beforeAdjust = func(id uuid.UUID) {
		if id == b.ID {
			fx.store.mu.Lock()
			fx.store.medicines[b.ID].IsActive = false
			fx.store.mu.Unlock()
		}
	}
	_, err := fx.ledger.PlaceOrder(context.Background(), fx.patient, cart(line(a, 1), line(b, 1)))
	var se *StockError
	if !errors.As(err, &se) || se.Kind != StockInactive || se.ProductID != b.ID {
		t.Fatalf("expected inactive StockError for B, got %v", err)
	}
	if !errors.Is(err, ErrProductUnavailable) {
		t.Errorf("%v does not unwrap to ErrProductUnavailable", err)
	}
	if fx.store.stock(a.ID) != 10 || fx.store.stock(b.ID) != 10 {
		t.Errorf("stock changed: a=%d b=%d", fx.store.stock(a.ID), fx.store.stock(b.ID))
	}
	if fx.store.orderCount() != 0 {
		t.Error("order persisted against an inactive medicine")
	}
}

func TestPlaceOrder_UnavailableProducts(t *testing.T) {
	fx := newFixture()
	inactive := fx.store.addMedicine("Old", 1, 10, 0, false)
	inactive.IsActive = false

	_, err := fx.ledger.PlaceOrder(context.Background(), fx.patient, cart(line(inactive, 1)))
	var se *StockError
	if !errors.As(err, &se) || se.Kind != StockInactive || !errors.Is(err, ErrProductUnavailable) {
		t.Errorf("inactive: %v", err)
	}
	if _, ok := se.Details()["available"]; ok {
		t.Error("unavailable product reported an available quantity")
	}

	missing := uuid.New()
	_, err = fx.ledger.PlaceOrder(context.Background(), fx.patient, cart(CartItem{MedicineID: missing, Quantity: 1}))
	if !errors.As(err, &se) || se.Kind != StockNotFound || se.ProductID != missing {
		t.Errorf("missing: %v", err)
	}
}

func TestPlaceOrder_DuplicateLinesShareStock(t *testing.T) {
	fx := newFixture()
	a := fx.store.addMedicine("A", 1, 5, 0, false)

	_, err := fx.ledger.PlaceOrder(context.Background(), fx.patient, cart(line(a, 3), line(a, 3)))
	var se *StockError
	if !errors.As(err, &se) || se.Available != 2 {
		t.Fatalf("expected available 2 for the second line, got %v", err)
	}

	o := fx.place(t, cart(line(a, 2), line(a, 3)))
	if len(o.Items) != 2 || fx.store.stock(a.ID) != 0 {
		t.Errorf("lines=%d stock=%d", len(o.Items), fx.store.stock(a.ID))
	}
}

func TestPlaceOrder_Validation(t *testing.T) {
	fx := newFixture()
	a := fx.store.addMedicine("A", 1, 5, 0, false)
	ctx := context.Background()

	cases := map[string]PlaceOrderRequest{
		"empty cart":    cart(),
		"zero quantity": cart(line(a, 0)),
		"no medicine":   cart(CartItem{Quantity: 1}),
	}
	for name, req := range cases {
		if _, err := fx.ledger.PlaceOrder(ctx, fx.patient, req); !errors.Is(err, ErrInvalidOrder) {
			t.Errorf("%s: expected ErrInvalidOrder, got %v", name, err)
		}
	}

	if _, err := fx.ledger.PlaceOrder(ctx, manager, cart(line(a, 1))); !errors.Is(err, ErrPatientRequired) {
		t.Errorf("staff without patient: %v", err)
	}
	stranger := uuid.New()
	req := cart(line(a, 1))
	req.Patient = &stranger
	if _, err := fx.ledger.PlaceOrder(ctx, doctor, req); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("unknown patient: %v", err)
	}
	if fx.store.stock(a.ID) != 5 {
		t.Error("rejected requests changed stock")
	}
}

func TestPlaceOrder_StaffOnBehalfOfPatient(t *testing.T) {
	fx := newFixture()
	a := fx.store.addMedicine("A", 1, 5, 0, false)
	req := cart(line(a, 1))
	req.Patient = &fx.patient.UserID
	req.PaymentMethod = "card"

	o, err := fx.ledger.PlaceOrder(context.Background(), manager, req)
	if err != nil {
		t.Fatal(err)
	}
	if o.PatientID != fx.patient.UserID || o.PlacedBy != manager.UserID || o.PaymentMethod != "card" {
		t.Errorf("order %+v", o)
	}
}

func TestPlaceOrder_PrescriptionRequired(t *testing.T) {
	fx := newFixture()
	otc := fx.store.addMedicine("OTC", 1, 5, 0, false)
	rx := fx.store.addMedicine("Rx", 1, 5, 0, true)

	if o := fx.place(t, cart(line(otc, 1))); o.PrescriptionRequired {
		t.Error("otc-only order flagged")
	}
	if o := fx.place(t, cart(line(otc, 1), line(rx, 1))); !o.PrescriptionRequired {
		t.Error("order with a prescription medicine not flagged")
	}
}

type fileSet map[uuid.UUID]bool

func (f fileSet) Exists(_ context.Context, id uuid.UUID) (bool, error) { return f[id], nil }

func TestPlaceOrder_PrescriptionFile(t *testing.T) {
	fx := newFixture()
	stored := uuid.New()
	fx.ledger.SetFiles(fileSet{stored: true})
	rx := fx.store.addMedicine("Rx", 4, 5, 0, true)

	req := cart(line(rx, 1))
	missing := uuid.New()
	req.PrescriptionFile = &missing
	if _, err := fx.ledger.PlaceOrder(context.Background(), fx.patient, req); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("unknown file: expected ErrInvalidOrder, got %v", err)
	}
	if got := fx.store.stock(rx.ID); got != 5 {
		t.Errorf("rejected order moved stock to %d", got)
	}

	req.PrescriptionFile = &stored
	o, err := fx.ledger.PlaceOrder(context.Background(), fx.patient, req)
	if err != nil {
		t.Fatal(err)
	}
	if o.PrescriptionFile == nil || *o.PrescriptionFile != stored {
		t.Errorf("prescription file = %v", o.PrescriptionFile)
	}
}

func TestPlaceOrder_ConcurrentLastUnit(t *testing.T) {
	fx := newFixture()
	a := fx.store.addMedicine("Last", 9.5, 1, 0, false)

	const buyers = 8
	var ok, short atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := fx.ledger.PlaceOrder(context.Background(), fx.patient, cart(line(a, 1)))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrInsufficientStock):
				short.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if ok.Load() != 1 || short.Load() != buyers-1 {
		t.Errorf("ok=%d insufficient=%d", ok.Load(), short.Load())
	}
	if got := fx.store.stock(a.ID); got != 0 {
		t.Errorf("final stock = %d", got)
	}
	if fx.store.orderCount() != 1 {
		t.Errorf("orders = %d", fx.store.orderCount())
	}
}

func TestStockDeltas_NetAndOrdered(t *testing.T) {
	ids := []uuid.UUID{
		uuid.MustParse("00000000-0000-0000-0000-000000000003"),
		uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		uuid.MustParse("00000000-0000-0000-0000-000000000002"),
	}
	items := []Item{
		{MedicineID: ids[0], Quantity: 1},
		{MedicineID: ids[1], Quantity: 2},
		{MedicineID: ids[0], Quantity: 4},
		{MedicineID: ids[2], Quantity: 3},
	}
	got := stockDeltas(items, -1)
	want := []stockDelta{{ids[1], -2}, {ids[2], -3}, {ids[0], -5}}
	if len(got) != len(want) {
		t.Fatalf("deltas = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delta %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestPlaceOrder_ReversedCartsConcurrently(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	a := fx.store.addMedicine("A", 1, 100, 0, false)
	b := fx.store.addMedicine("B", 1, 100, 0, false)
	earlier := fx.place(t, cart(line(b, 3), line(a, 2)))

	const rounds = 20
	var wg sync.WaitGroup
	errs := make(chan error, 2*rounds+1)
	run := func(fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- fn()
		}()
	}
	run(func() error {
		_, err := fx.ledger.CancelOrder(ctx, earlier.ID, fx.patient)
		return err
	})
	for i := 0; i < rounds; i++ {
		run(func() error {
			_, err := fx.ledger.PlaceOrder(ctx, fx.patient, cart(line(a, 1), line(b, 1)))
			return err
		})
		run(func() error {
			_, err := fx.ledger.PlaceOrder(ctx, fx.patient, cart(line(b, 2), line(a, 1), line(b, 1)))
			return err
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent orders over the same medicines never finished")
	}
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if v := fx.store.lockOrderViolations(); v != 0 {
		t.Errorf("%d medicine locks taken out of id order", v)
	}
	if fx.store.stock(a.ID) != 60 || fx.store.stock(b.ID) != 20 {
		t.Errorf("final stock a=%d b=%d, want 60 and 20", fx.store.stock(a.ID), fx.store.stock(b.ID))
	}
}

func TestPlaceOrder_LowStockNotified(t *testing.T) {
	fx := newFixture()
	a := fx.store.addMedicine("A", 1, 12, 10, false)
	b := fx.store.addMedicine("B", 1, 50, 10, false)
	fx.place(t, cart(line(a, 2), line(b, 2)))

	if got, ok := fx.low.stock[a.ID]; !ok || got != 10 {
		t.Errorf("A at minimum not reported: %v", fx.low.stock)
	}
	if _, ok := fx.low.stock[b.ID]; ok {
		t.Error("well-stocked B reported")
	}
}

// -- CancelOrder --

func TestCancelOrder_RestoresStock(t *testing.T) {
	fx := newFixture()
	a := fx.store.addMedicine("A", 1, 10, 0, false)
	b := fx.store.addMedicine("B", 1, 10, 0, false)
	o := fx.place(t, cart(line(a, 2), line(b, 3), line(a, 1)))

	got, err := fx.ledger.CancelOrder(context.Background(), o.ID, fx.patient)
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("status = %s", got.Status)
	}
	if fx.store.stock(a.ID) != 10 || fx.store.stock(b.ID) != 10 {
		t.Errorf("stock not restored: a=%d b=%d", fx.store.stock(a.ID), fx.store.stock(b.ID))
	}
	if ev := fx.events.types(); ev[len(ev)-1] != EventCancelled {
		t.Errorf("events = %v", ev)
	}
}

func TestCancelOrder_TerminalStates(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	a := fx.store.addMedicine("A", 1, 10, 0, false)

	done := fx.place(t, cart(line(a, 2)))
	for _, s := range []Status{StatusProcessing, StatusCompleted} {
		st := s
		if _, err := fx.ledger.SetStatus(ctx, done.ID, StatusUpdate{Status: &st}, manager); err != nil {
			t.Fatalf("advance to %s: %v", s, err)
		}
	}
	_, err := fx.ledger.CancelOrder(ctx, done.ID, manager)
	var te *TransitionError
	if !errors.As(err, &te) || te.From != StatusCompleted {
		t.Fatalf("cancel completed: %v", err)
	}
	if err.Error() != "cannot cancel a completed order" {
		t.Errorf("message = %q", err.Error())
	}
	if fx.store.stock(a.ID) != 8 {
		t.Errorf("cancel of completed order changed stock: %d", fx.store.stock(a.ID))
	}

	o := fx.place(t, cart(line(a, 3)))
	if _, err := fx.ledger.CancelOrder(ctx, o.ID, fx.patient); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.ledger.CancelOrder(ctx, o.ID, fx.patient); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second cancel: %v", err)
	}
	if got := fx.store.stock(a.ID); got != 8 {
		t.Errorf("stock restored twice: %d", got)
	}
}

func TestCancelOrder_Authorization(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	a := fx.store.addMedicine("A", 1, 10, 0, false)
	o := fx.place(t, cart(line(a, 1)))

	other := auth.Principal{UserID: uuid.New(), Role: auth.RolePatient}
	if _, err := fx.ledger.CancelOrder(ctx, o.ID, other); !errors.Is(err, ErrForbidden) {
		t.Errorf("other patient: %v", err)
	}
	if _, err := fx.ledger.CancelOrder(ctx, o.ID, doctor); !errors.Is(err, ErrForbidden) {
		t.Errorf("unrelated doctor: %v", err)
	}
	if fx.store.stock(a.ID) != 9 {
		t.Error("forbidden cancel changed stock")
	}
	if _, err := fx.ledger.CancelOrder(ctx, uuid.New(), manager); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("missing order: %v", err)
	}
	if _, err := fx.ledger.CancelOrder(ctx, o.ID, manager); err != nil {
		t.Errorf("staff cancel: %v", err)
	}
}

func TestCancelOrder_ConcurrentRestoresOnce(t *testing.T) {
	fx := newFixture()
	a := fx.store.addMedicine("A", 1, 10, 0, false)
	o := fx.place(t, cart(line(a, 4)))

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := fx.ledger.CancelOrder(context.Background(), o.ID, manager); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	if ok.Load() != 1 {
		t.Errorf("successful cancels = %d", ok.Load())
	}
	if got := fx.store.stock(a.ID); got != 10 {
		t.Errorf("stock = %d, want 10", got)
	}
}

func TestCancelOrder_NotifiesAfterReload(t *testing.T) {
	fx := newFixture()
	a := fx.store.addMedicine("A", 1, 5, 10, false)
	o := fx.place(t, cart(line(a, 2)))
	fx.low.stock = nil

	if _, err := fx.ledger.CancelOrder(context.Background(), o.ID, fx.patient); err != nil {
		t.Fatal(err)
	}
	if got, ok := fx.low.stock[a.ID]; !ok || got != 5 {
		t.Errorf("restored but still low medicine not reported: %v", fx.low.stock)
	}
}

// -- SetStatus --

func status(s Status) *Status                { return &s }
func payment(p PaymentStatus) *PaymentStatus { return &p }

func TestSetStatus_TransitionTable(t *testing.T) {
	all := []Status{StatusPending, StatusProcessing, StatusCompleted, StatusCancelled}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusProcessing}:   true,
		{StatusPending, StatusCancelled}:    true,
		{StatusProcessing, StatusCompleted}: true,
		{StatusProcessing, StatusCancelled}: true,
	}
	for _, from := range all {
		for _, to := range all {
			if got := CanTransition(from, to); got != allowed[[2]Status{from, to}] {
				t.Errorf("%s -> %s: %v", from, to, got)
			}
		}
	}
}

func TestSetStatus_AdvanceRecordsProcessor(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	a := fx.store.addMedicine("A", 1, 10, 0, false)
	o := fx.place(t, cart(line(a, 1)))

	got, err := fx.ledger.SetStatus(ctx, o.ID, StatusUpdate{Status: status(StatusProcessing)}, manager)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusProcessing || got.ProcessedBy == nil || *got.ProcessedBy != manager.UserID {
		t.Errorf("processing: %+v", got)
	}

	admin := auth.Principal{UserID: uuid.New(), Role: auth.RoleAdmin}
	got, err = fx.ledger.SetStatus(ctx, o.ID, StatusUpdate{Status: status(StatusCompleted), PaymentStatus: payment(PaymentPaid)}, admin)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCompleted || got.PaymentStatus != PaymentPaid || *got.ProcessedBy != admin.UserID {
		t.Errorf("completed: %+v", got)
	}
	if ev := fx.events.types(); len(ev) != 3 || ev[1] != EventStatusChanged || ev[2] != EventStatusChanged {
		t.Errorf("events = %v", ev)
	}

	_, err = fx.ledger.SetStatus(ctx, o.ID, StatusUpdate{Status: status(StatusPending)}, manager)
	var te *TransitionError
	if !errors.As(err, &te) || te.From != StatusCompleted || te.To != StatusPending {
		t.Errorf("completed -> pending: %v", err)
	}
}

func TestSetStatus_PaymentOnlyAndNoop(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	a := fx.store.addMedicine("A", 1, 10, 0, false)
	o := fx.place(t, cart(line(a, 1)))

	got, err := fx.ledger.SetStatus(ctx, o.ID, StatusUpdate{PaymentStatus: payment(PaymentPaid)}, manager)
	if err != nil {
		t.Fatal(err)
	}
	if got.PaymentStatus != PaymentPaid || got.Status != StatusPending || got.ProcessedBy != nil {
		t.Errorf("payment only: %+v", got)
	}
	before := len(fx.events.types())
	if _, err := fx.ledger.SetStatus(ctx, o.ID, StatusUpdate{Status: status(StatusPending), PaymentStatus: payment(PaymentPaid)}, manager); err != nil {
		t.Fatalf("same status: %v", err)
	}
	if len(fx.events.types()) != before {
		t.Error("no-op update wrote an event")
	}
}

func TestSetStatus_CancelRestoresStock(t *testing.T) {
	fx := newFixture()
	a := fx.store.addMedicine("A", 1, 10, 0, false)
	o := fx.place(t, cart(line(a, 6)))

	got, err := fx.ledger.SetStatus(context.Background(), o.ID, StatusUpdate{Status: status(StatusCancelled)}, manager)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCancelled || fx.store.stock(a.ID) != 10 {
		t.Errorf("status=%s stock=%d", got.Status, fx.store.stock(a.ID))
	}
	if ev := fx.events.types(); ev[len(ev)-1] != EventCancelled {
		t.Errorf("events = %v", ev)
	}
}

func TestSetStatus_Rejections(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	a := fx.store.addMedicine("A", 1, 10, 0, false)
	o := fx.place(t, cart(line(a, 1)))

	if _, err := fx.ledger.SetStatus(ctx, o.ID, StatusUpdate{Status: status(StatusProcessing)}, fx.patient); !errors.Is(err, ErrForbidden) {
		t.Errorf("patient: %v", err)
	}
	if _, err := fx.ledger.SetStatus(ctx, o.ID, StatusUpdate{Status: status(StatusProcessing)}, doctor); !errors.Is(err, ErrForbidden) {
		t.Errorf("doctor: %v", err)
	}
	if _, err := fx.ledger.SetStatus(ctx, o.ID, StatusUpdate{}, manager); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("empty update: %v", err)
	}
	if _, err := fx.ledger.SetStatus(ctx, o.ID, StatusUpdate{Status: status("shipped")}, manager); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("unknown status: %v", err)
	}
	if _, err := fx.ledger.SetStatus(ctx, o.ID, StatusUpdate{PaymentStatus: payment("refunded")}, manager); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("unknown payment status: %v", err)
	}
	if _, err := fx.ledger.SetStatus(ctx, o.ID, StatusUpdate{Status: status(StatusCompleted)}, manager); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("pending -> completed: %v", err)
	}
	if _, err := fx.ledger.SetStatus(ctx, uuid.New(), StatusUpdate{Status: status(StatusProcessing)}, manager); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("missing order: %v", err)
	}
}

// -- Reads --

func TestGetAndList_PatientScope(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	a := fx.store.addMedicine("A", 1, 10, 0, false)
	mine := fx.place(t, cart(line(a, 1)))

	other := auth.Principal{UserID: uuid.New(), Role: auth.RolePatient}
	if _, err := fx.ledger.PlaceOrder(ctx, other, cart(line(a, 1))); err != nil {
		t.Fatal(err)
	}

	if _, err := fx.ledger.Get(ctx, other, mine.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign get: %v", err)
	}
	if _, err := fx.ledger.Get(ctx, doctor, mine.ID); err != nil {
		t.Errorf("doctor get: %v", err)
	}
	items, total, _ := fx.ledger.List(ctx, fx.patient, ListFilter{PatientID: &other.UserID, Limit: 10})
	if total != 1 || items[0].ID != mine.ID {
		t.Errorf("patient list not scoped to self: total=%d", total)
	}
	if _, total, _ := fx.ledger.List(ctx, manager, ListFilter{Limit: 10}); total != 2 {
		t.Errorf("staff list total = %d", total)
	}
}
