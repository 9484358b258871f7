package estimates

import (
	"time"

	"github.com/google/uuid"

	"github.com/paintdesk/paintdesk/internal/billing/money"
)

// Status enumerates estimate lifecycle states.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusConverted Status = "converted"
)

// transitions is the legal-successor table for caller-driven transitions.
// approved->converted happens only through the conversion pipeline and
// converted->approved only through invoice voiding; both are guarded store
// updates, not caller-selectable targets.
var transitions = map[Status][]Status{
	StatusDraft: {StatusSent},
	StatusSent:  {StatusApproved, StatusRejected},
}

// CanTransition reports whether to is a legal successor of from.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusApproved, StatusRejected, StatusConverted:
		return true
	}
	return false
}

// ProjectArea is a line item (room or surface) carrying the labor and
// material cost inputs, owned by exactly one estimate row.
type ProjectArea struct {
	ID           int64       `json:"id"`
	EstimateID   int64       `json:"estimate_id"`
	Name         string      `json:"name"`
	Description  *string     `json:"description,omitempty"`
	LaborCost    money.Cents `json:"labor_cost"`
	MaterialCost money.Cents `json:"material_cost"`
	AreaOrder    int         `json:"area_order"`
}

// Estimate is one immutable row in a version chain. Accepted revisions
// insert a new row and flip is_current_version; rows are never edited in
// place once they leave draft.
type Estimate struct {
	ID               int64         `json:"id"`
	EstimateNumber   string        `json:"estimate_number"`
	ClientID         int64         `json:"client_id"`
	Title            string        `json:"title"`
	Description      *string       `json:"description,omitempty"`
	Status           Status        `json:"status"`
	LaborCost        money.Cents   `json:"labor_cost"`
	MaterialCost     money.Cents   `json:"material_cost"`
	MarkupBasis      int64         `json:"markup_basis"` // percent with two decimals: 1550 == 15.50%
	TotalAmount      money.Cents   `json:"total_amount"`
	RevisionNumber   int           `json:"revision_number"`
	VersionGroupID   uuid.UUID     `json:"version_group_id"`
	IsCurrentVersion bool          `json:"is_current_version"`
	ParentEstimateID *int64        `json:"parent_estimate_id,omitempty"`
	SupersededBy     *int64        `json:"superseded_by,omitempty"`
	SupersededAt     *time.Time    `json:"superseded_at,omitempty"`
	TermsAndNotes    *string       `json:"terms_and_notes,omitempty"`
	Areas            []ProjectArea `json:"areas,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// ComputeTotals derives the commercial totals from project areas and the
// markup. The engine is the sole writer of this derivation; caller-supplied
// totals are never trusted.
func ComputeTotals(areas []ProjectArea, markupBasis int64) (labor, material, total money.Cents) {
	for _, a := range areas {
		labor += a.LaborCost
		material += a.MaterialCost
	}
	total = (labor + material).ApplyPercent(markupBasis)
	return labor, material, total
}
