package payments

import (
	"time"

	"github.com/paintdesk/paintdesk/internal/billing/money"
)

// Method enumerates accepted payment instruments.
type Method string

const (
	MethodCash         Method = "cash"
	MethodCheck        Method = "check"
	MethodCreditCard   Method = "credit_card"
	MethodBankTransfer Method = "bank_transfer"
	MethodOther        Method = "other"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodCheck, MethodCreditCard, MethodBankTransfer, MethodOther:
		return true
	}
	return false
}

// Payment is a ledger entry against an invoice. Every create, correction,
// and deletion triggers a full recompute of the parent invoice's paid
// amount from the surviving rows.
type Payment struct {
	ID              int64       `json:"id"`
	InvoiceID       int64       `json:"invoice_id"`
	Amount          money.Cents `json:"amount"`
	Method          Method      `json:"payment_method"`
	PaymentDate     time.Time   `json:"payment_date"`
	ReferenceNumber *string     `json:"reference_number,omitempty"`
	Notes           *string     `json:"notes,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}
