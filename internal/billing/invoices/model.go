package invoices

import (
	"time"

	"github.com/paintdesk/paintdesk/internal/billing/money"
)

// Status enumerates invoice lifecycle states. Overdue is derived on read,
// never stored: a sent invoice past its due date reports overdue.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusSent    Status = "sent"
	StatusPaid    Status = "paid"
	StatusVoid    Status = "void"
	StatusOverdue Status = "overdue" // derived, not directly settable
)

// transitions is the legal-successor table for caller-driven transitions.
// sent<->paid is reversible so a mis-marked invoice can be corrected; void
// is terminal and reachable only before payment completes.
var transitions = map[Status][]Status{
	StatusDraft: {StatusSent, StatusVoid},
	StatusSent:  {StatusPaid, StatusVoid},
	StatusPaid:  {StatusSent},
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

// Settable reports whether s is a status a caller may request.
func (s Status) Settable() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPaid, StatusVoid:
		return true
	}
	return false
}

// InvoiceArea is a line item copied by value from the source estimate at
// conversion time. Later edits to either document never affect the other.
type InvoiceArea struct {
	ID           int64       `json:"id"`
	InvoiceID    int64       `json:"invoice_id"`
	Name         string      `json:"name"`
	Description  *string     `json:"description,omitempty"`
	LaborCost    money.Cents `json:"labor_cost"`
	MaterialCost money.Cents `json:"material_cost"`
	AreaOrder    int         `json:"area_order"`
}

// Invoice is a billable document, optionally derived from an approved
// estimate. InvoiceNumber is null while draft and assigned exactly once on
// the first transition out of draft. PaidAmount is written only by the
// payment ledger.
type Invoice struct {
	ID            int64         `json:"id"`
	InvoiceNumber *string       `json:"invoice_number,omitempty"`
	EstimateID    *int64        `json:"estimate_id,omitempty"`
	ClientID      int64         `json:"client_id"`
	Title         string        `json:"title"`
	Description   *string       `json:"description,omitempty"`
	Status        Status        `json:"status"`
	TotalAmount   money.Cents   `json:"total_amount"`
	PaidAmount    money.Cents   `json:"paid_amount"`
	DueDate       *time.Time    `json:"due_date,omitempty"`
	PaymentTerms  *string       `json:"payment_terms,omitempty"`
	VoidedAt      *time.Time    `json:"voided_at,omitempty"`
	VoidReason    *string       `json:"void_reason,omitempty"`
	Areas         []InvoiceArea `json:"areas,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// EffectiveStatus derives the read-time status: sent invoices past due
// report overdue. No scheduler flips rows in the store.
func (i *Invoice) EffectiveStatus(now time.Time) Status {
	if i.Status == StatusSent && i.DueDate != nil && i.DueDate.Before(now) {
		return StatusOverdue
	}
	return i.Status
}

// Outstanding is the unpaid remainder.
func (i *Invoice) Outstanding() money.Cents {
	return i.TotalAmount - i.PaidAmount
}
