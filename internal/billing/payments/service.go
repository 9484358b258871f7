package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/paintdesk/paintdesk/internal/billing/invoices"
	"github.com/paintdesk/paintdesk/internal/billing/money"
	"github.com/paintdesk/paintdesk/internal/shared"
)

// invoiceReader fetches the refreshed invoice returned from every ledger
// operation.
type invoiceReader interface {
	Get(ctx context.Context, id int64) (*invoices.Invoice, error)
}

// Service is the payment ledger. It is the only writer of an invoice's
// paid_amount, always recomputing it from the full sum of the surviving
// payment rows inside the same transaction as the ledger change.
type Service struct {
	repo     Repository
	invoices invoiceReader
	idem     *shared.IdempotencyStore
	audit    shared.AuditRecorder
	cache    shared.CacheInvalidator
}

// NewService builds a Service instance. idem and cache may be nil when
// retried submissions and report caching are not a concern.
func NewService(repo Repository, inv invoiceReader, idem *shared.IdempotencyStore, audit shared.AuditRecorder, cache shared.CacheInvalidator) *Service {
	if audit == nil {
		audit = shared.NopAuditRecorder{}
	}
	return &Service{repo: repo, invoices: inv, idem: idem, audit: audit, cache: cache}
}

func (s *Service) invalidateCache(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx)
	}
}

func (s *Service) Get(ctx context.Context, id int64) (*Payment, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByInvoice(ctx context.Context, invoiceID int64) ([]Payment, error) {
	return s.repo.ListByInvoice(ctx, invoiceID)
}

// Record inserts a payment against an invoice. The ceiling check runs
// against the balance read under lock in the same transaction, so a stale
// caller view can never overpay.
func (s *Service) Record(ctx context.Context, req RecordPaymentRequest) (*invoices.Invoice, error) {
	amount := money.FromFloat(req.Amount)
	if amount <= 0 {
		return nil, fmt.Errorf("payment amount must be positive: %w", shared.ErrValidation)
	}
	if !req.Method.Valid() {
		return nil, fmt.Errorf("unknown payment method %q: %w", req.Method, shared.ErrValidation)
	}
	paymentDate := time.Now()
	if req.PaymentDate != nil {
		paymentDate = *req.PaymentDate
	}

	if req.IdempotencyKey != nil && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, *req.IdempotencyKey, "payments"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return nil, fmt.Errorf("payment already recorded: %w", shared.ErrConflict)
			}
			return nil, err
		}
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		bal, err := tx.LockInvoice(ctx, req.InvoiceID)
		if err != nil {
			return fmt.Errorf("load invoice %d: %w", req.InvoiceID, err)
		}
		if bal.Status == string(invoices.StatusVoid) {
			return fmt.Errorf("invoice %d is void: %w", req.InvoiceID, shared.ErrConflict)
		}
		outstanding := bal.TotalAmount - bal.PaidAmount
		if amount > outstanding {
			return fmt.Errorf("payment %s exceeds outstanding balance %s: %w",
				amount, outstanding, shared.ErrValidation)
		}

		_, err = tx.Insert(ctx, Payment{
			InvoiceID:       req.InvoiceID,
			Amount:          amount,
			Method:          req.Method,
			PaymentDate:     paymentDate,
			ReferenceNumber: req.ReferenceNumber,
			Notes:           req.Notes,
		})
		if err != nil {
			return err
		}
		return s.rebalance(ctx, tx, bal)
	})
	if err != nil {
		if req.IdempotencyKey != nil && s.idem != nil && !errors.Is(err, shared.ErrConflict) {
			_ = s.idem.Delete(ctx, *req.IdempotencyKey)
		}
		return nil, fmt.Errorf("record payment: %w", err)
	}

	s.invalidateCache(ctx)
	s.recordAudit(ctx, req.InvoiceID, "paid_amount", amount.String(), "payment recorded")
	return s.invoices.Get(ctx, req.InvoiceID)
}

// UpdatePayment corrects a recorded payment and recomputes the invoice
// balance from scratch.
func (s *Service) UpdatePayment(ctx context.Context, id int64, req UpdatePaymentRequest) (*invoices.Invoice, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get payment %d: %w", id, err)
	}

	next := *existing
	if req.Amount != nil {
		amount := money.FromFloat(*req.Amount)
		if amount <= 0 {
			return nil, fmt.Errorf("payment amount must be positive: %w", shared.ErrValidation)
		}
		next.Amount = amount
	}
	if req.Method != nil {
		if !req.Method.Valid() {
			return nil, fmt.Errorf("unknown payment method %q: %w", *req.Method, shared.ErrValidation)
		}
		next.Method = *req.Method
	}
	if req.PaymentDate != nil {
		next.PaymentDate = *req.PaymentDate
	}
	if req.ReferenceNumber != nil {
		next.ReferenceNumber = req.ReferenceNumber
	}
	if req.Notes != nil {
		next.Notes = req.Notes
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		bal, err := tx.LockInvoice(ctx, existing.InvoiceID)
		if err != nil {
			return fmt.Errorf("load invoice %d: %w", existing.InvoiceID, err)
		}
		// The corrected amount still has to fit under the total alongside
		// the other payments.
		others := bal.PaidAmount - existing.Amount
		if others+next.Amount > bal.TotalAmount {
			return fmt.Errorf("corrected payment %s exceeds outstanding balance %s: %w",
				next.Amount, bal.TotalAmount-others, shared.ErrValidation)
		}
		if err := tx.Update(ctx, next); err != nil {
			return err
		}
		return s.rebalance(ctx, tx, bal)
	})
	if err != nil {
		return nil, fmt.Errorf("update payment %d: %w", id, err)
	}

	s.invalidateCache(ctx)
	s.recordAudit(ctx, existing.InvoiceID, "paid_amount", next.Amount.String(), "payment corrected")
	return s.invoices.Get(ctx, existing.InvoiceID)
}

// DeletePayment removes a ledger entry and recomputes the invoice balance,
// demoting paid back to sent when the sum drops below the total.
func (s *Service) DeletePayment(ctx context.Context, id int64) (*invoices.Invoice, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get payment %d: %w", id, err)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		bal, err := tx.LockInvoice(ctx, existing.InvoiceID)
		if err != nil {
			return fmt.Errorf("load invoice %d: %w", existing.InvoiceID, err)
		}
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		return s.rebalance(ctx, tx, bal)
	})
	if err != nil {
		return nil, fmt.Errorf("delete payment %d: %w", id, err)
	}

	s.invalidateCache(ctx)
	s.recordAudit(ctx, existing.InvoiceID, "paid_amount", existing.Amount.String(), "payment deleted")
	return s.invoices.Get(ctx, existing.InvoiceID)
}

// rebalance recomputes paid_amount from the surviving rows and re-derives
// status: a fully covered sent invoice flips to paid, an overcorrected
// paid invoice drops back to sent. Draft and void rows keep their status.
func (s *Service) rebalance(ctx context.Context, tx Repository, bal *InvoiceBalance) error {
	paid, err := tx.SumForInvoice(ctx, bal.ID)
	if err != nil {
		return err
	}
	status := bal.Status
	switch {
	case paid >= bal.TotalAmount && status == string(invoices.StatusSent):
		status = string(invoices.StatusPaid)
	case paid < bal.TotalAmount && status == string(invoices.StatusPaid):
		status = string(invoices.StatusSent)
	}
	return tx.SetInvoiceBalance(ctx, bal.ID, paid, status)
}

func (s *Service) recordAudit(ctx context.Context, invoiceID int64, field, value, note string) {
	_ = s.audit.Record(ctx, shared.AuditEvent{
		Entity:   "invoice",
		EntityID: strconv.FormatInt(invoiceID, 10),
		Field:    field,
		NewValue: value,
		Note:     note,
		At:       time.Now(),
	})
}
