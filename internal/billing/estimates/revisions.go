package estimates

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/paintdesk/paintdesk/internal/billing/money"
)

// RevisionType classifies why an estimate changed after leaving draft.
type RevisionType string

const (
	RevisionPriceAdjustment RevisionType = "price_adjustment"
	RevisionScopeChange     RevisionType = "scope_change"
	RevisionClientRequest   RevisionType = "client_request"
	RevisionCorrection      RevisionType = "correction"
)

// Valid reports whether t is a known revision type.
func (t RevisionType) Valid() bool {
	switch t {
	case RevisionPriceAdjustment, RevisionScopeChange, RevisionClientRequest, RevisionCorrection:
		return true
	}
	return false
}

// ApprovalStatus of a revision record.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// FieldChange is one entry in a revision diff.
type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// Diff field keys.
const (
	FieldLaborCost     = "labor_cost"
	FieldMaterialCost  = "material_cost"
	FieldMarkupPercent = "markup_percent"
	FieldTotalAmount   = "total_amount"
)

// Revision is an append-only audit record of one accepted commercial change.
// Revisions are never mutated or deleted after creation.
type Revision struct {
	ID               int64                  `json:"id"`
	VersionGroupID   uuid.UUID              `json:"version_group_id"`
	EstimateID       int64                  `json:"estimate_id"` // the row this revision created
	RevisionNumber   int                    `json:"revision_number"`
	RevisionType     RevisionType           `json:"revision_type"`
	ChangeSummary    string                 `json:"change_summary"`
	ApprovalStatus   ApprovalStatus         `json:"approval_status"`
	PreviousLabor    money.Cents            `json:"previous_labor_cost"`
	PreviousMaterial money.Cents            `json:"previous_material_cost"`
	PreviousMarkup   int64                  `json:"previous_markup_basis"`
	PreviousTotal    money.Cents            `json:"previous_total_amount"`
	Diff             map[string]FieldChange `json:"diff"`
	CreatedAt        time.Time              `json:"created_at"`
}

// TimelineEntry is one reconstructed point in an estimate's version history.
type TimelineEntry struct {
	RevisionNumber int          `json:"revision_number"`
	LaborCost      money.Cents  `json:"labor_cost"`
	MaterialCost   money.Cents  `json:"material_cost"`
	MarkupBasis    int64        `json:"markup_basis"`
	TotalAmount    money.Cents  `json:"total_amount"`
	DeltaTotal     money.Cents  `json:"delta_total"`
	RevisionType   RevisionType `json:"revision_type,omitempty"`
	ChangeSummary  string       `json:"change_summary,omitempty"`
	At             time.Time    `json:"at,omitempty"`
}

// ReplayTimeline reconstructs the full version history from revision records
// in revision_number order. The baseline is the first revision's previous
// snapshot; each step applies only the fields present in that revision's
// diff, carrying the prior value forward for anything the diff omits.
func ReplayTimeline(revisions []Revision) ([]TimelineEntry, error) {
	if len(revisions) == 0 {
		return nil, nil
	}
	first := revisions[0]
	state := TimelineEntry{
		RevisionNumber: first.RevisionNumber - 1,
		LaborCost:      first.PreviousLabor,
		MaterialCost:   first.PreviousMaterial,
		MarkupBasis:    first.PreviousMarkup,
		TotalAmount:    first.PreviousTotal,
	}
	entries := make([]TimelineEntry, 0, len(revisions)+1)
	entries = append(entries, state)

	prev := first.RevisionNumber - 1
	for _, rev := range revisions {
		if rev.RevisionNumber <= prev {
			return nil, fmt.Errorf("revision %d out of order after %d", rev.RevisionNumber, prev)
		}
		prev = rev.RevisionNumber

		before := state.TotalAmount
		if err := applyDiff(&state, rev.Diff); err != nil {
			return nil, fmt.Errorf("revision %d: %w", rev.RevisionNumber, err)
		}
		state.RevisionNumber = rev.RevisionNumber
		state.DeltaTotal = state.TotalAmount - before
		state.RevisionType = rev.RevisionType
		state.ChangeSummary = rev.ChangeSummary
		state.At = rev.CreatedAt
		entries = append(entries, state)
	}
	return entries, nil
}

func applyDiff(state *TimelineEntry, diff map[string]FieldChange) error {
	for field, change := range diff {
		v, err := money.Parse(change.New)
		if err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		switch field {
		case FieldLaborCost:
			state.LaborCost = v
		case FieldMaterialCost:
			state.MaterialCost = v
		case FieldMarkupPercent:
			// Percent with two decimals parses on the same scale as cents.
			state.MarkupBasis = int64(v)
		case FieldTotalAmount:
			state.TotalAmount = v
		default:
			return fmt.Errorf("unknown diff field %q", field)
		}
	}
	return nil
}

// BuildDiff records only the fields that changed between two commercial
// states. An empty map means nothing changed.
func BuildDiff(prevLabor, newLabor, prevMaterial, newMaterial money.Cents, prevMarkup, newMarkup int64, prevTotal, newTotal money.Cents) map[string]FieldChange {
	diff := make(map[string]FieldChange)
	if prevLabor != newLabor {
		diff[FieldLaborCost] = FieldChange{Old: prevLabor.String(), New: newLabor.String()}
	}
	if prevMaterial != newMaterial {
		diff[FieldMaterialCost] = FieldChange{Old: prevMaterial.String(), New: newMaterial.String()}
	}
	if prevMarkup != newMarkup {
		diff[FieldMarkupPercent] = FieldChange{Old: money.Cents(prevMarkup).String(), New: money.Cents(newMarkup).String()}
	}
	if prevTotal != newTotal {
		diff[FieldTotalAmount] = FieldChange{Old: prevTotal.String(), New: newTotal.String()}
	}
	return diff
}
