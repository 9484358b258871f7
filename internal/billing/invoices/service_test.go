package invoices

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paintdesk/paintdesk/internal/billing/money"
	"github.com/paintdesk/paintdesk/internal/shared"
)

type fakeEstimate struct {
	snap   EstimateSnapshot
	status string
}

type memoryRepo struct {
	mu        sync.Mutex
	nextID    int64
	seq       int64
	allocs    int
	invoices  map[int64]*Invoice
	areas     map[int64][]InvoiceArea
	estimates map[int64]*fakeEstimate
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		seq:       1000,
		invoices:  map[int64]*Invoice{},
		areas:     map[int64][]InvoiceArea{},
		estimates: map[int64]*fakeEstimate{},
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) AllocateNumber(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.allocs++
	return fmt.Sprintf("INV-%04d", m.seq), nil
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	out := *inv
	out.Areas = append([]InvoiceArea(nil), m.areas[id]...)
	return &out, nil
}

func (m *memoryRepo) List(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Invoice
	for _, inv := range m.invoices {
		out = append(out, *inv)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Create(ctx context.Context, inv Invoice) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	inv.ID = m.nextID
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	m.invoices[inv.ID] = &inv
	return inv.ID, nil
}

func (m *memoryRepo) InsertArea(ctx context.Context, area InvoiceArea) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	area.ID = m.nextID
	m.areas[area.InvoiceID] = append(m.areas[area.InvoiceID], area)
	return area.ID, nil
}

func (m *memoryRepo) DeleteAreas(ctx context.Context, invoiceID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.areas, invoiceID)
	return nil
}

func (m *memoryRepo) UpdateDraft(ctx context.Context, id int64, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return shared.ErrNotFound
	}
	if inv.Status != StatusDraft {
		return fmt.Errorf("invoice %d is %s, expected draft: %w", id, inv.Status, shared.ErrInvalidTransition)
	}
	for col, v := range updates {
		switch col {
		case "title":
			inv.Title = v.(string)
		case "description":
			s := v.(string)
			inv.Description = &s
		case "total_amount":
			inv.TotalAmount = money.Cents(v.(int64))
		case "due_date":
			d := v.(time.Time)
			inv.DueDate = &d
		case "payment_terms":
			s := v.(string)
			inv.PaymentTerms = &s
		}
	}
	inv.UpdatedAt = time.Now()
	return nil
}

func (m *memoryRepo) AssignNumber(ctx context.Context, id int64, number string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return shared.ErrNotFound
	}
	if inv.InvoiceNumber != nil {
		return fmt.Errorf("invoice %d already numbered: %w", id, shared.ErrConflict)
	}
	inv.InvoiceNumber = &number
	return nil
}

func (m *memoryRepo) UpdateStatus(ctx context.Context, id int64, from, to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return shared.ErrNotFound
	}
	if inv.Status != from {
		return fmt.Errorf("invoice %d is %s, expected %s: %w", id, inv.Status, from, shared.ErrInvalidTransition)
	}
	inv.Status = to
	return nil
}

func (m *memoryRepo) Void(ctx context.Context, id int64, from Status, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return shared.ErrNotFound
	}
	if inv.Status != from {
		return fmt.Errorf("invoice %d is %s, expected %s: %w", id, inv.Status, from, shared.ErrInvalidTransition)
	}
	inv.Status = StatusVoid
	inv.VoidReason = &reason
	inv.VoidedAt = &at
	return nil
}

func (m *memoryRepo) LockEstimateForConversion(ctx context.Context, estimateID int64) (*EstimateSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.estimates[estimateID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	snap := e.snap
	snap.Status = e.status
	snap.Areas = append([]InvoiceArea(nil), e.snap.Areas...)
	return &snap, nil
}

func (m *memoryRepo) MarkEstimateConverted(ctx context.Context, estimateID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.estimates[estimateID]
	if !ok || e.status != "approved" {
		return fmt.Errorf("estimate %d no longer approved: %w", estimateID, shared.ErrInvalidState)
	}
	e.status = "converted"
	return nil
}

func (m *memoryRepo) RevertEstimateToApproved(ctx context.Context, estimateID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.estimates[estimateID]; ok && e.status == "converted" {
		e.status = "approved"
	}
	return nil
}

func (m *memoryRepo) seedEstimate(id int64, status string, total money.Cents) {
	terms := "Net 30"
	m.estimates[id] = &fakeEstimate{
		status: status,
		snap: EstimateSnapshot{
			ID:            id,
			ClientID:      1,
			Title:         "Exterior repaint",
			TotalAmount:   total,
			TermsAndNotes: &terms,
			Areas: []InvoiceArea{
				{Name: "Front facade", LaborCost: money.FromParts(1000, 0), MaterialCost: money.FromParts(200, 0), AreaOrder: 1},
				{Name: "Rear facade", LaborCost: money.FromParts(800, 0), MaterialCost: money.FromParts(150, 0), AreaOrder: 2},
			},
		},
	}
}

func newTestService() (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	return NewService(repo, nil, nil), repo
}

func str(s string) *string { return &s }

func f64(f float64) *float64 { return &f }

func TestConvertCopiesEstimateByValue(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	repo.seedEstimate(7, "approved", money.FromParts(2472, 50))

	inv, err := svc.ConvertEstimate(ctx, ConvertEstimateRequest{EstimateID: 7})
	require.NoError(t, err)

	require.Equal(t, StatusDraft, inv.Status)
	require.Nil(t, inv.InvoiceNumber)
	require.NotNil(t, inv.EstimateID)
	require.Equal(t, int64(7), *inv.EstimateID)
	require.Equal(t, money.FromParts(2472, 50), inv.TotalAmount)
	require.Equal(t, money.Cents(0), inv.PaidAmount)
	require.Len(t, inv.Areas, 2)
	require.NotNil(t, inv.PaymentTerms)
	require.Equal(t, "Net 30", *inv.PaymentTerms)
	require.Equal(t, "converted", repo.estimates[7].status)
}

func TestConvertRequiresApprovedEstimate(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	repo.seedEstimate(7, "sent", money.FromParts(2472, 50))

	_, err := svc.ConvertEstimate(ctx, ConvertEstimateRequest{EstimateID: 7})
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Equal(t, "sent", repo.estimates[7].status)
}

func TestConvertEstimateOnlyOnce(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	repo.seedEstimate(7, "approved", money.FromParts(500, 0))

	_, err := svc.ConvertEstimate(ctx, ConvertEstimateRequest{EstimateID: 7})
	require.NoError(t, err)

	_, err = svc.ConvertEstimate(ctx, ConvertEstimateRequest{EstimateID: 7})
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestTransitionAssignsNumberExactlyOnce(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	inv, err := svc.CreateDraft(ctx, 1, UpdateDraftRequest{Title: str("Touch-up work"), TotalAmount: f64(500)})
	require.NoError(t, err)
	require.Nil(t, inv.InvoiceNumber)

	inv, err = svc.Transition(ctx, inv.ID, TransitionInvoiceRequest{Status: StatusSent})
	require.NoError(t, err)
	require.NotNil(t, inv.InvoiceNumber)
	require.Equal(t, "INV-1001", *inv.InvoiceNumber)

	inv, err = svc.Transition(ctx, inv.ID, TransitionInvoiceRequest{Status: StatusPaid})
	require.NoError(t, err)
	inv, err = svc.Transition(ctx, inv.ID, TransitionInvoiceRequest{Status: StatusSent})
	require.NoError(t, err)

	require.Equal(t, "INV-1001", *inv.InvoiceNumber)
	require.Equal(t, 1, repo.allocs)
}

func TestVoidRequiresReason(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	inv, err := svc.CreateDraft(ctx, 1, UpdateDraftRequest{Title: str("Touch-up work"), TotalAmount: f64(500)})
	require.NoError(t, err)

	_, err = svc.Transition(ctx, inv.ID, TransitionInvoiceRequest{Status: StatusVoid})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Transition(ctx, inv.ID, TransitionInvoiceRequest{Status: StatusVoid, VoidReason: str("  ")})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestVoidReleasesSourceEstimate(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	repo.seedEstimate(7, "approved", money.FromParts(500, 0))

	inv, err := svc.ConvertEstimate(ctx, ConvertEstimateRequest{EstimateID: 7})
	require.NoError(t, err)
	require.Equal(t, "converted", repo.estimates[7].status)

	inv, err = svc.Transition(ctx, inv.ID, TransitionInvoiceRequest{Status: StatusVoid, VoidReason: str("client cancelled")})
	require.NoError(t, err)
	require.Equal(t, StatusVoid, inv.Status)
	require.NotNil(t, inv.VoidReason)
	require.Equal(t, "client cancelled", *inv.VoidReason)
	require.NotNil(t, inv.VoidedAt)
	require.Equal(t, "approved", repo.estimates[7].status)
}

func TestPaidInvoiceCannotBeVoided(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	inv, err := svc.CreateDraft(ctx, 1, UpdateDraftRequest{Title: str("Touch-up work"), TotalAmount: f64(500)})
	require.NoError(t, err)
	_, err = svc.Transition(ctx, inv.ID, TransitionInvoiceRequest{Status: StatusSent})
	require.NoError(t, err)
	_, err = svc.Transition(ctx, inv.ID, TransitionInvoiceRequest{Status: StatusPaid})
	require.NoError(t, err)

	_, err = svc.Transition(ctx, inv.ID, TransitionInvoiceRequest{Status: StatusVoid, VoidReason: str("mistake")})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestOverdueIsNotSettable(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	inv, err := svc.CreateDraft(ctx, 1, UpdateDraftRequest{Title: str("Touch-up work"), TotalAmount: f64(500)})
	require.NoError(t, err)

	_, err = svc.Transition(ctx, inv.ID, TransitionInvoiceRequest{Status: StatusOverdue})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateDraftFrozenAfterSend(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	inv, err := svc.CreateDraft(ctx, 1, UpdateDraftRequest{Title: str("Touch-up work"), TotalAmount: f64(500)})
	require.NoError(t, err)

	inv, err = svc.UpdateDraft(ctx, inv.ID, UpdateDraftRequest{TotalAmount: f64(750)})
	require.NoError(t, err)
	require.Equal(t, money.FromParts(750, 0), inv.TotalAmount)

	_, err = svc.Transition(ctx, inv.ID, TransitionInvoiceRequest{Status: StatusSent})
	require.NoError(t, err)

	_, err = svc.UpdateDraft(ctx, inv.ID, UpdateDraftRequest{TotalAmount: f64(900)})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestCreateDraftValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateDraft(ctx, 1, UpdateDraftRequest{TotalAmount: f64(500)})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateDraft(ctx, 1, UpdateDraftRequest{Title: str("No amount")})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateDraft(ctx, 1, UpdateDraftRequest{Title: str("Zero"), TotalAmount: f64(0)})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestEffectiveStatusDerivesOverdue(t *testing.T) {
	now := time.Now()
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)

	sentPastDue := Invoice{Status: StatusSent, DueDate: &past}
	require.Equal(t, StatusOverdue, sentPastDue.EffectiveStatus(now))

	sentNotDue := Invoice{Status: StatusSent, DueDate: &future}
	require.Equal(t, StatusSent, sentNotDue.EffectiveStatus(now))

	sentNoDue := Invoice{Status: StatusSent}
	require.Equal(t, StatusSent, sentNoDue.EffectiveStatus(now))

	paidPastDue := Invoice{Status: StatusPaid, DueDate: &past}
	require.Equal(t, StatusPaid, paidPastDue.EffectiveStatus(now))

	voidPastDue := Invoice{Status: StatusVoid, DueDate: &past}
	require.Equal(t, StatusVoid, voidPastDue.EffectiveStatus(now))
}

func TestOutstanding(t *testing.T) {
	inv := Invoice{TotalAmount: money.FromParts(2472, 50), PaidAmount: money.FromParts(1000, 0)}
	require.Equal(t, money.FromParts(1472, 50), inv.Outstanding())
}
