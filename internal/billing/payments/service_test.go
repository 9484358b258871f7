package payments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paintdesk/paintdesk/internal/billing/invoices"
	"github.com/paintdesk/paintdesk/internal/billing/money"
	"github.com/paintdesk/paintdesk/internal/shared"
)

type ledgerRepo struct {
	mu       sync.Mutex
	nextID   int64
	payments map[int64]*Payment
	invoices map[int64]*invoices.Invoice
}

func newLedgerRepo() *ledgerRepo {
	return &ledgerRepo{
		payments: map[int64]*Payment{},
		invoices: map[int64]*invoices.Invoice{},
	}
}

func (m *ledgerRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *ledgerRepo) Get(ctx context.Context, id int64) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (m *ledgerRepo) ListByInvoice(ctx context.Context, invoiceID int64) ([]Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Payment
	for _, p := range m.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *ledgerRepo) Insert(ctx context.Context, p Payment) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.payments[p.ID] = &p
	return p.ID, nil
}

func (m *ledgerRepo) Update(ctx context.Context, p Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.ID]; !ok {
		return shared.ErrNotFound
	}
	m.payments[p.ID] = &p
	return nil
}

func (m *ledgerRepo) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.payments, id)
	return nil
}

func (m *ledgerRepo) LockInvoice(ctx context.Context, invoiceID int64) (*InvoiceBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[invoiceID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &InvoiceBalance{
		ID:          inv.ID,
		Status:      string(inv.Status),
		TotalAmount: inv.TotalAmount,
		PaidAmount:  inv.PaidAmount,
	}, nil
}

func (m *ledgerRepo) SumForInvoice(ctx context.Context, invoiceID int64) (money.Cents, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum money.Cents
	for _, p := range m.payments {
		if p.InvoiceID == invoiceID {
			sum += p.Amount
		}
	}
	return sum, nil
}

func (m *ledgerRepo) SetInvoiceBalance(ctx context.Context, invoiceID int64, paid money.Cents, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[invoiceID]
	if !ok {
		return shared.ErrNotFound
	}
	inv.PaidAmount = paid
	inv.Status = invoices.Status(status)
	return nil
}

func (m *ledgerRepo) seedInvoice(id int64, status invoices.Status, total money.Cents) {
	m.invoices[id] = &invoices.Invoice{
		ID:          id,
		ClientID:    1,
		Title:       "Exterior repaint",
		Status:      status,
		TotalAmount: total,
	}
}

type invReader struct {
	repo *ledgerRepo
}

func (r *invReader) Get(ctx context.Context, id int64) (*invoices.Invoice, error) {
	r.repo.mu.Lock()
	defer r.repo.mu.Unlock()
	inv, ok := r.repo.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	out := *inv
	return &out, nil
}

func newTestService() (*Service, *ledgerRepo) {
	repo := newLedgerRepo()
	svc := NewService(repo, &invReader{repo: repo}, nil, nil, nil)
	return svc, repo
}

func TestRecordPartialPaymentKeepsSent(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	repo.seedInvoice(1, invoices.StatusSent, money.FromParts(2472, 50))

	inv, err := svc.Record(ctx, RecordPaymentRequest{InvoiceID: 1, Amount: 1000, Method: MethodCheck})
	require.NoError(t, err)

	require.Equal(t, invoices.StatusSent, inv.Status)
	require.Equal(t, money.FromParts(1000, 0), inv.PaidAmount)
	require.Equal(t, money.FromParts(1472, 50), inv.Outstanding())
}

func TestRecordFullPaymentFlipsToPaid(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	repo.seedInvoice(1, invoices.StatusSent, money.FromParts(2472, 50))

	_, err := svc.Record(ctx, RecordPaymentRequest{InvoiceID: 1, Amount: 1000, Method: MethodCheck})
	require.NoError(t, err)

	inv, err := svc.Record(ctx, RecordPaymentRequest{InvoiceID: 1, Amount: 1472.50, Method: MethodBankTransfer})
	require.NoError(t, err)

	require.Equal(t, invoices.StatusPaid, inv.Status)
	require.Equal(t, money.FromParts(2472, 50), inv.PaidAmount)
	require.Equal(t, money.Cents(0), inv.Outstanding())
}

func TestRecordRejectsOverpayment(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	repo.seedInvoice(1, invoices.StatusSent, money.FromParts(2472, 50))

	_, err := svc.Record(ctx, RecordPaymentRequest{InvoiceID: 1, Amount: 2000, Method: MethodCash})
	require.NoError(t, err)

	_, err = svc.Record(ctx, RecordPaymentRequest{InvoiceID: 1, Amount: 500, Method: MethodCash})
	require.ErrorIs(t, err, shared.ErrValidation)

	require.Equal(t, money.FromParts(2000, 0), repo.invoices[1].PaidAmount)
	require.Len(t, repo.payments, 1)
}

func TestRecordRejectsVoidInvoice(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	repo.seedInvoice(1, invoices.StatusVoid, money.FromParts(500, 0))

	_, err := svc.Record(ctx, RecordPaymentRequest{InvoiceID: 1, Amount: 100, Method: MethodCash})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Empty(t, repo.payments)
}

func TestRecordValidatesInput(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	repo.seedInvoice(1, invoices.StatusSent, money.FromParts(500, 0))

	_, err := svc.Record(ctx, RecordPaymentRequest{InvoiceID: 1, Amount: 0, Method: MethodCash})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Record(ctx, RecordPaymentRequest{InvoiceID: 1, Amount: 100, Method: Method("iou")})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDeletePaymentDemotesPaidInvoice(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	repo.seedInvoice(1, invoices.StatusSent, money.FromParts(500, 0))

	_, err := svc.Record(ctx, RecordPaymentRequest{InvoiceID: 1, Amount: 300, Method: MethodCash})
	require.NoError(t, err)
	inv, err := svc.Record(ctx, RecordPaymentRequest{InvoiceID: 1, Amount: 200, Method: MethodCheck})
	require.NoError(t, err)
	require.Equal(t, invoices.StatusPaid, inv.Status)

	var lastID int64
	for id := range repo.payments {
		if id > lastID {
			lastID = id
		}
	}
	inv, err = svc.DeletePayment(ctx, lastID)
	require.NoError(t, err)

	require.Equal(t, invoices.StatusSent, inv.Status)
	require.Equal(t, money.FromParts(300, 0), inv.PaidAmount)
}

func TestUpdatePaymentRecomputesBalance(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	repo.seedInvoice(1, invoices.StatusSent, money.FromParts(500, 0))

	inv, err := svc.Record(ctx, RecordPaymentRequest{InvoiceID: 1, Amount: 500, Method: MethodCash})
	require.NoError(t, err)
	require.Equal(t, invoices.StatusPaid, inv.Status)

	amount := 400.0
	inv, err = svc.UpdatePayment(ctx, 1, UpdatePaymentRequest{Amount: &amount})
	require.NoError(t, err)

	require.Equal(t, invoices.StatusSent, inv.Status)
	require.Equal(t, money.FromParts(400, 0), inv.PaidAmount)
}

func TestUpdatePaymentRejectsOverCorrection(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	repo.seedInvoice(1, invoices.StatusSent, money.FromParts(500, 0))

	_, err := svc.Record(ctx, RecordPaymentRequest{InvoiceID: 1, Amount: 300, Method: MethodCash})
	require.NoError(t, err)
	_, err = svc.Record(ctx, RecordPaymentRequest{InvoiceID: 1, Amount: 100, Method: MethodCheck})
	require.NoError(t, err)

	amount := 250.0
	_, err = svc.UpdatePayment(ctx, 2, UpdatePaymentRequest{Amount: &amount})
	require.ErrorIs(t, err, shared.ErrValidation)

	require.Equal(t, money.FromParts(400, 0), repo.invoices[1].PaidAmount)
	require.Equal(t, money.FromParts(100, 0), repo.payments[2].Amount)
}

func TestRecordOnDraftKeepsDraftStatus(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	repo.seedInvoice(1, invoices.StatusDraft, money.FromParts(500, 0))

	inv, err := svc.Record(ctx, RecordPaymentRequest{InvoiceID: 1, Amount: 500, Method: MethodCash})
	require.NoError(t, err)

	require.Equal(t, invoices.StatusDraft, inv.Status)
	require.Equal(t, money.FromParts(500, 0), inv.PaidAmount)
}
