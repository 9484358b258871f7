package invoices

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paintdesk/paintdesk/internal/billing/money"
	"github.com/paintdesk/paintdesk/internal/shared"
)

// Service handles invoice business logic: standalone drafts, the
// estimate-to-invoice conversion pipeline, the status machine, and the
// exactly-once number assignment.
type Service struct {
	repo  Repository
	audit shared.AuditRecorder
	cache shared.CacheInvalidator
}

// NewService builds a Service instance. cache may be nil.
func NewService(repo Repository, audit shared.AuditRecorder, cache shared.CacheInvalidator) *Service {
	if audit == nil {
		audit = shared.NopAuditRecorder{}
	}
	return &Service{repo: repo, audit: audit, cache: cache}
}

func (s *Service) invalidateCache(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx)
	}
}

func (s *Service) Get(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get invoice %d: %w", id, err)
	}
	return inv, nil
}

func (s *Service) List(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	return s.repo.List(ctx, req)
}

// CreateDraft creates a standalone draft invoice not backed by an estimate.
// The number stays null until the invoice leaves draft.
func (s *Service) CreateDraft(ctx context.Context, clientID int64, req UpdateDraftRequest) (*Invoice, error) {
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		return nil, fmt.Errorf("title required: %w", shared.ErrValidation)
	}
	if req.TotalAmount == nil {
		return nil, fmt.Errorf("total_amount required: %w", shared.ErrValidation)
	}
	total := money.FromFloat(*req.TotalAmount)
	if total <= 0 {
		return nil, fmt.Errorf("total_amount must be positive: %w", shared.ErrValidation)
	}

	inv := Invoice{
		ClientID:     clientID,
		Title:        strings.TrimSpace(*req.Title),
		Description:  req.Description,
		Status:       StatusDraft,
		TotalAmount:  total,
		DueDate:      req.DueDate,
		PaymentTerms: req.PaymentTerms,
	}

	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		var err error
		id, err = tx.Create(ctx, inv)
		if err != nil {
			return err
		}
		if req.Areas != nil {
			for i, a := range *req.Areas {
				area := areaFromUpdate(id, a)
				if area.AreaOrder == 0 {
					area.AreaOrder = i
				}
				if _, err := tx.InsertArea(ctx, area); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create draft invoice: %w", err)
	}

	s.invalidateCache(ctx)
	s.recordAudit(ctx, id, "status", "", string(StatusDraft), "draft invoice created")
	return s.repo.Get(ctx, id)
}

// ConvertEstimate turns an approved estimate into a draft invoice. The
// estimate row is locked, its commercial fields and areas are copied by
// value, and the estimate is marked converted in the same transaction. An
// estimate converts at most once.
func (s *Service) ConvertEstimate(ctx context.Context, req ConvertEstimateRequest) (*Invoice, error) {
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		snap, err := tx.LockEstimateForConversion(ctx, req.EstimateID)
		if err != nil {
			return fmt.Errorf("load estimate %d: %w", req.EstimateID, err)
		}
		if snap.Status != "approved" {
			return fmt.Errorf("estimate %d is %s, only approved estimates convert: %w",
				req.EstimateID, snap.Status, shared.ErrInvalidState)
		}

		estimateID := snap.ID
		inv := Invoice{
			EstimateID:   &estimateID,
			ClientID:     snap.ClientID,
			Title:        snap.Title,
			Description:  snap.Description,
			Status:       StatusDraft,
			TotalAmount:  snap.TotalAmount,
			DueDate:      req.DueDate,
			PaymentTerms: req.PaymentTerms,
		}
		if inv.PaymentTerms == nil {
			inv.PaymentTerms = snap.TermsAndNotes
		}

		id, err = tx.Create(ctx, inv)
		if err != nil {
			return err
		}
		for _, a := range snap.Areas {
			a.InvoiceID = id
			if _, err := tx.InsertArea(ctx, a); err != nil {
				return err
			}
		}
		return tx.MarkEstimateConverted(ctx, estimateID)
	})
	if err != nil {
		return nil, fmt.Errorf("convert estimate: %w", err)
	}

	s.invalidateCache(ctx)
	s.recordAudit(ctx, id, "status", "", string(StatusDraft),
		fmt.Sprintf("converted from estimate %d", req.EstimateID))
	return s.repo.Get(ctx, id)
}

// UpdateDraft edits commercial fields on a draft invoice. Anything past
// draft is frozen except through the payment ledger.
func (s *Service) UpdateDraft(ctx context.Context, id int64, req UpdateDraftRequest) (*Invoice, error) {
	updates := map[string]interface{}{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, fmt.Errorf("title cannot be blank: %w", shared.ErrValidation)
		}
		updates["title"] = title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.TotalAmount != nil {
		total := money.FromFloat(*req.TotalAmount)
		if total <= 0 {
			return nil, fmt.Errorf("total_amount must be positive: %w", shared.ErrValidation)
		}
		updates["total_amount"] = int64(total)
	}
	if req.DueDate != nil {
		updates["due_date"] = *req.DueDate
	}
	if req.PaymentTerms != nil {
		updates["payment_terms"] = *req.PaymentTerms
	}
	if len(updates) == 0 && req.Areas == nil {
		return nil, fmt.Errorf("no fields to update: %w", shared.ErrValidation)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if len(updates) > 0 {
			if err := tx.UpdateDraft(ctx, id, updates); err != nil {
				return err
			}
		} else {
			// Area-only edit still needs the draft guard.
			if err := tx.UpdateDraft(ctx, id, map[string]interface{}{}); err != nil {
				return err
			}
		}
		if req.Areas != nil {
			if err := tx.DeleteAreas(ctx, id); err != nil {
				return err
			}
			for i, a := range *req.Areas {
				area := areaFromUpdate(id, a)
				if area.AreaOrder == 0 {
					area.AreaOrder = i
				}
				if _, err := tx.InsertArea(ctx, area); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update draft invoice %d: %w", id, err)
	}
	return s.repo.Get(ctx, id)
}

// Transition moves an invoice through its status machine. Leaving draft
// assigns the invoice number exactly once. Voiding requires a reason and,
// for converted invoices, releases the source estimate back to approved in
// the same transaction. A paid invoice cannot be voided.
func (s *Service) Transition(ctx context.Context, id int64, req TransitionInvoiceRequest) (*Invoice, error) {
	if !req.Status.Settable() {
		return nil, fmt.Errorf("status %q is not settable: %w", req.Status, shared.ErrValidation)
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get invoice %d: %w", id, err)
	}
	from := current.Status
	to := req.Status

	if !CanTransition(from, to) {
		return nil, fmt.Errorf("invoice cannot move %s -> %s: %w", from, to, shared.ErrInvalidTransition)
	}
	if to == StatusVoid {
		if req.VoidReason == nil || strings.TrimSpace(*req.VoidReason) == "" {
			return nil, fmt.Errorf("void requires a reason: %w", shared.ErrValidation)
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		switch to {
		case StatusSent:
			if from == StatusDraft && current.InvoiceNumber == nil {
				number, err := tx.AllocateNumber(ctx)
				if err != nil {
					return fmt.Errorf("allocate invoice number: %w", err)
				}
				if err := tx.AssignNumber(ctx, id, number); err != nil {
					return err
				}
			}
			return tx.UpdateStatus(ctx, id, from, StatusSent)
		case StatusPaid:
			return tx.UpdateStatus(ctx, id, from, StatusPaid)
		case StatusVoid:
			reason := strings.TrimSpace(*req.VoidReason)
			if err := tx.Void(ctx, id, from, reason, time.Now()); err != nil {
				return err
			}
			if current.EstimateID != nil {
				return tx.RevertEstimateToApproved(ctx, *current.EstimateID)
			}
			return nil
		default:
			return fmt.Errorf("status %q is not settable: %w", to, shared.ErrValidation)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("transition invoice %d: %w", id, err)
	}

	note := ""
	if to == StatusVoid {
		note = strings.TrimSpace(*req.VoidReason)
	}
	s.invalidateCache(ctx)
	s.recordAudit(ctx, id, "status", string(from), string(to), note)
	return s.repo.Get(ctx, id)
}

func areaFromUpdate(invoiceID int64, a AreaUpdate) InvoiceArea {
	return InvoiceArea{
		InvoiceID:    invoiceID,
		Name:         strings.TrimSpace(a.Name),
		Description:  a.Description,
		LaborCost:    money.FromFloat(a.LaborCost),
		MaterialCost: money.FromFloat(a.MaterialCost),
		AreaOrder:    a.AreaOrder,
	}
}

func (s *Service) recordAudit(ctx context.Context, id int64, field, oldValue, newValue, note string) {
	_ = s.audit.Record(ctx, shared.AuditEvent{
		Entity:   "invoice",
		EntityID: strconv.FormatInt(id, 10),
		Field:    field,
		OldValue: oldValue,
		NewValue: newValue,
		Note:     note,
		At:       time.Now(),
	})
}
