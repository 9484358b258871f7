package estimates

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paintdesk/paintdesk/internal/billing/clients"
	"github.com/paintdesk/paintdesk/internal/billing/money"
	"github.com/paintdesk/paintdesk/internal/shared"
)

// Service owns the estimate state machine and the revision ledger.
type Service struct {
	repo       Repository
	clientRepo clients.Repository
	audit      shared.AuditRecorder
}

// NewService builds a Service instance.
func NewService(repo Repository, clientRepo clients.Repository, audit shared.AuditRecorder) *Service {
	if audit == nil {
		audit = shared.NopAuditRecorder{}
	}
	return &Service{repo: repo, clientRepo: clientRepo, audit: audit}
}

// markupBasis converts a percent from an API payload to the internal
// two-decimal fixed-point scale.
func markupBasis(pct float64) int64 {
	return int64(money.FromFloat(pct))
}

func validateMarkup(basis int64) error {
	if basis < 0 || basis > 10000 {
		return fmt.Errorf("markup percentage must be between 0 and 100: %w", shared.ErrValidation)
	}
	return nil
}

func areasFromRequest(reqs []AreaRequest) ([]ProjectArea, error) {
	areas := make([]ProjectArea, 0, len(reqs))
	for i, a := range reqs {
		if strings.TrimSpace(a.Name) == "" {
			return nil, fmt.Errorf("area %d: name required: %w", i+1, shared.ErrValidation)
		}
		if a.LaborCost < 0 || a.MaterialCost < 0 {
			return nil, fmt.Errorf("area %q: costs must not be negative: %w", a.Name, shared.ErrValidation)
		}
		order := a.AreaOrder
		if order == 0 {
			order = i + 1
		}
		areas = append(areas, ProjectArea{
			Name:         strings.TrimSpace(a.Name),
			Description:  a.Description,
			LaborCost:    money.FromFloat(a.LaborCost),
			MaterialCost: money.FromFloat(a.MaterialCost),
			AreaOrder:    order,
		})
	}
	return areas, nil
}

// Create builds a new draft estimate. The estimate number is allocated and
// the row plus its areas inserted in one transaction.
func (s *Service) Create(ctx context.Context, req CreateEstimateRequest) (*Estimate, error) {
	basis := markupBasis(req.MarkupPercent)
	if err := validateMarkup(basis); err != nil {
		return nil, err
	}
	if _, err := s.clientRepo.Get(ctx, req.ClientID); err != nil {
		return nil, fmt.Errorf("verify client: %w", err)
	}
	areas, err := areasFromRequest(req.Areas)
	if err != nil {
		return nil, err
	}
	labor, material, total := ComputeTotals(areas, basis)

	estimate := Estimate{
		ClientID:         req.ClientID,
		Title:            req.Title,
		Description:      req.Description,
		Status:           StatusDraft,
		LaborCost:        labor,
		MaterialCost:     material,
		MarkupBasis:      basis,
		TotalAmount:      total,
		RevisionNumber:   1,
		VersionGroupID:   uuid.New(),
		IsCurrentVersion: true,
		TermsAndNotes:    req.TermsAndNotes,
	}

	var estimateID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		number, err := repo.AllocateNumber(ctx)
		if err != nil {
			return err
		}
		estimate.EstimateNumber = number

		id, err := repo.Create(ctx, estimate)
		if err != nil {
			return fmt.Errorf("create estimate: %w", err)
		}
		estimateID = id

		for _, area := range areas {
			area.EstimateID = id
			if _, err := repo.InsertArea(ctx, area); err != nil {
				return fmt.Errorf("insert area: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, estimateID, "status", "", string(StatusDraft), "estimate created")
	return s.repo.Get(ctx, estimateID)
}

func (s *Service) Get(ctx context.Context, id int64) (*Estimate, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListEstimatesRequest) ([]Estimate, int, error) {
	return s.repo.List(ctx, req)
}

// Update edits commercial fields in place. Only draft estimates may be
// edited this way; anything later is a revision.
func (s *Service) Update(ctx context.Context, id int64, req UpdateEstimateRequest) (*Estimate, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get estimate: %w", err)
	}
	if !existing.IsCurrentVersion {
		return nil, fmt.Errorf("estimate %d is superseded: %w", id, shared.ErrConflict)
	}
	if existing.Status != StatusDraft {
		return nil, fmt.Errorf("only draft estimates can be edited directly: %w", shared.ErrInvalidState)
	}

	basis := existing.MarkupBasis
	if req.MarkupPercent != nil {
		basis = markupBasis(*req.MarkupPercent)
		if err := validateMarkup(basis); err != nil {
			return nil, err
		}
	}

	areas := existing.Areas
	if req.Areas != nil {
		areas, err = areasFromRequest(*req.Areas)
		if err != nil {
			return nil, err
		}
	}
	labor, material, total := ComputeTotals(areas, basis)

	updates := map[string]interface{}{
		"labor_cost":    int64(labor),
		"material_cost": int64(material),
		"markup_basis":  basis,
		"total_amount":  int64(total),
	}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.TermsAndNotes != nil {
		updates["terms_and_notes"] = *req.TermsAndNotes
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.UpdateDraft(ctx, id, updates); err != nil {
			return err
		}
		if req.Areas != nil {
			if err := repo.DeleteAreas(ctx, id); err != nil {
				return err
			}
			for _, area := range areas {
				area.EstimateID = id
				if _, err := repo.InsertArea(ctx, area); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update estimate: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Transition moves the estimate along the status graph. Illegal targets
// fail with ErrInvalidTransition and leave the row untouched.
func (s *Service) Transition(ctx context.Context, id int64, target Status, note *string) (*Estimate, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", target, shared.ErrValidation)
	}
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get estimate: %w", err)
	}
	if !CanTransition(existing.Status, target) {
		return nil, fmt.Errorf("estimate %d: %s -> %s: %w", id, existing.Status, target, shared.ErrInvalidTransition)
	}
	if err := s.repo.UpdateStatus(ctx, id, existing.Status, target); err != nil {
		return nil, fmt.Errorf("transition estimate: %w", err)
	}

	auditNote := ""
	if note != nil {
		auditNote = *note
	}
	s.recordAudit(ctx, id, "status", string(existing.Status), string(target), auditNote)
	return s.repo.Get(ctx, id)
}

// Delete removes a draft estimate. Anything that has been sent is part of
// the audit trail and can only be rejected, not deleted.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, id, "deleted", string(StatusDraft), "", "")
	return nil
}

// Revise applies a commercial change to a sent or approved estimate by
// inserting a new immutable row into the version chain and recording the
// change in the revision ledger. The old row keeps its status; only its
// version-currency flips.
func (s *Service) Revise(ctx context.Context, id int64, req ReviseEstimateRequest) (*Estimate, error) {
	if !req.RevisionType.Valid() {
		return nil, fmt.Errorf("unknown revision type %q: %w", req.RevisionType, shared.ErrValidation)
	}
	if strings.TrimSpace(req.ChangeSummary) == "" {
		return nil, fmt.Errorf("change summary required: %w", shared.ErrValidation)
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get estimate: %w", err)
	}
	if !current.IsCurrentVersion {
		return nil, fmt.Errorf("estimate %d is superseded: %w", id, shared.ErrConflict)
	}
	if current.Status != StatusSent && current.Status != StatusApproved {
		return nil, fmt.Errorf("revisions require a sent or approved estimate, got %s: %w", current.Status, shared.ErrInvalidState)
	}

	basis := current.MarkupBasis
	if req.MarkupPercent != nil {
		basis = markupBasis(*req.MarkupPercent)
		if err := validateMarkup(basis); err != nil {
			return nil, err
		}
	}

	areas := current.Areas
	if req.Areas != nil {
		areas, err = areasFromRequest(*req.Areas)
		if err != nil {
			return nil, err
		}
	}
	labor, material, total := ComputeTotals(areas, basis)

	next := Estimate{
		EstimateNumber:   current.EstimateNumber,
		ClientID:         current.ClientID,
		Title:            current.Title,
		Description:      current.Description,
		Status:           current.Status,
		LaborCost:        labor,
		MaterialCost:     material,
		MarkupBasis:      basis,
		TotalAmount:      total,
		RevisionNumber:   current.RevisionNumber + 1,
		VersionGroupID:   current.VersionGroupID,
		IsCurrentVersion: true,
		ParentEstimateID: &current.ID,
		TermsAndNotes:    current.TermsAndNotes,
	}

	var newID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, err := repo.Create(ctx, next)
		if err != nil {
			return fmt.Errorf("create revision row: %w", err)
		}
		newID = id

		for _, area := range areas {
			area.EstimateID = newID
			area.ID = 0
			if _, err := repo.InsertArea(ctx, area); err != nil {
				return fmt.Errorf("copy area: %w", err)
			}
		}

		if err := repo.Supersede(ctx, current.ID, newID); err != nil {
			return err
		}

		rev := Revision{
			VersionGroupID:   current.VersionGroupID,
			EstimateID:       newID,
			RevisionNumber:   next.RevisionNumber,
			RevisionType:     req.RevisionType,
			ChangeSummary:    strings.TrimSpace(req.ChangeSummary),
			ApprovalStatus:   ApprovalApproved,
			PreviousLabor:    current.LaborCost,
			PreviousMaterial: current.MaterialCost,
			PreviousMarkup:   current.MarkupBasis,
			PreviousTotal:    current.TotalAmount,
			Diff: BuildDiff(
				current.LaborCost, labor,
				current.MaterialCost, material,
				current.MarkupBasis, basis,
				current.TotalAmount, total,
			),
		}
		if _, err := repo.InsertRevision(ctx, rev); err != nil {
			return fmt.Errorf("record revision: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, newID, "total_amount", current.TotalAmount.String(), total.String(), req.ChangeSummary)
	return s.repo.Get(ctx, newID)
}

// History returns every row of the estimate's version chain, oldest first.
func (s *Service) History(ctx context.Context, id int64) ([]Estimate, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.repo.History(ctx, e.VersionGroupID)
}

// Timeline reconstructs the commercial history from the revision ledger.
func (s *Service) Timeline(ctx context.Context, id int64) ([]TimelineEntry, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	revisions, err := s.repo.ListRevisions(ctx, e.VersionGroupID)
	if err != nil {
		return nil, err
	}
	if len(revisions) == 0 {
		// No revisions yet: the timeline is the single current state.
		return []TimelineEntry{{
			RevisionNumber: e.RevisionNumber,
			LaborCost:      e.LaborCost,
			MaterialCost:   e.MaterialCost,
			MarkupBasis:    e.MarkupBasis,
			TotalAmount:    e.TotalAmount,
			At:             e.CreatedAt,
		}}, nil
	}
	return ReplayTimeline(revisions)
}

func (s *Service) recordAudit(ctx context.Context, estimateID int64, field, oldValue, newValue, note string) {
	_ = s.audit.Record(ctx, shared.AuditEvent{
		Entity:   "estimate",
		EntityID: strconv.FormatInt(estimateID, 10),
		Field:    field,
		OldValue: oldValue,
		NewValue: newValue,
		Note:     note,
		At:       time.Now(),
	})
}
