package payment

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sekolah/internal/audit"
	"github.com/noah-isme/backend-sekolah/internal/catalog"
	"github.com/noah-isme/backend-sekolah/internal/events"
	"github.com/noah-isme/backend-sekolah/internal/lock"
	"github.com/noah-isme/backend-sekolah/internal/money"
	"github.com/noah-isme/backend-sekolah/internal/settlement"
)

func feeItem(id string, category catalog.Category, amount string) catalog.FeeLineItem {
	return catalog.FeeLineItem{ID: id, Category: category, Label: id, OriginalAmount: money.MustParse(amount)}
}

func sampleCatalog() []catalog.FeeLineItem {
	term := 1
	month := "2026-07"
	tuition := feeItem("tuition-1", catalog.CategoryTuitionFee, "1000.00")
	tuition.TermNumber = &term
	bus := feeItem("bus-jul", catalog.CategoryTransportFee, "833.33")
	bus.PaymentMonth = &month
	return []catalog.FeeLineItem{
		feeItem("book", catalog.CategoryBookFee, "500.00"),
		tuition,
		bus,
	}
}

type fakeCatalog struct {
	mu    sync.Mutex
	items []catalog.FeeLineItem
	err   error
}

func (f *fakeCatalog) FetchFeeItems(_ context.Context, _, enrollmentID string) ([]catalog.FeeLineItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if enrollmentID == "" {
		return nil, catalog.ErrEnrollmentRequired
	}
	if f.err != nil {
		return nil, f.err
	}
	return append([]catalog.FeeLineItem(nil), f.items...), nil
}

func (f *fakeCatalog) setAmount(id, amount string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].OriginalAmount = money.MustParse(amount)
		}
	}
}

type fakeSubmitter struct {
	mu      sync.Mutex
	calls   []Submission
	err     error
	receipt Receipt
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeSubmitter) Submit(ctx context.Context, sub Submission) (Receipt, error) {
	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sub)
	if f.err != nil {
		return Receipt{}, f.err
	}
	r := f.receipt
	if r.Ref == "" {
		r.Ref = "RCPT-20260601-0000000A"
		r.DocumentHandle = DocumentHandle(sub.BranchID, r.Ref, sub.GatewayRef)
		r.SettledAt = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
		r.Total = sub.Request.Total
	}
	return r, nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingAuditor struct {
	mu      sync.Mutex
	actions []string
}

func (r *recordingAuditor) Record(_ context.Context, _ audit.Source, _, action, _, _ string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []events.Event
}

func (r *recordingPublisher) Emit(_ context.Context, topic, branchID, aggregateID string, payload any) (events.Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return events.Event{}, err
	}
	e := events.Event{Topic: topic, BranchID: branchID, AggregateID: aggregateID, Payload: raw}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.events = append(r.events, e)
	return e, nil
}

type memLister struct {
	records []Record
}

func (m memLister) ListSettlements(_ context.Context, _, enrollmentID string, limit, offset int) ([]Record, error) {
	var out []Record
	for _, r := range m.records {
		if r.EnrollmentID == enrollmentID {
			out = append(out, r)
		}
	}
	if offset >= len(out) {
		return []Record{}, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type serviceFixture struct {
	svc       *Service
	catalog   *fakeCatalog
	submitter *fakeSubmitter
	audit     *recordingAuditor
	events    *recordingPublisher
	redis     *miniredis.Miniredis
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := serviceFixture{
		catalog:   &fakeCatalog{items: sampleCatalog()},
		submitter: &fakeSubmitter{},
		audit:     &recordingAuditor{},
		events:    &recordingPublisher{},
		redis:     mr,
	}
	f.svc = &Service{
		Catalog:     f.catalog,
		Composer:    settlement.NewComposer(nil),
		Submitter:   f.submitter,
		Settlements: memLister{},
		Locker:      lock.Locker{R: client},
		LockTTL:     time.Minute,
		Audit:       f.audit,
		Events:      f.events,
		Locale:      "en-IN",
		Logger:      zerolog.Nop(),
	}
	return f
}

func strPtr(s string) *string { return &s }
