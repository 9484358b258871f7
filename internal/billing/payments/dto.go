package payments

import "time"

type RecordPaymentRequest struct {
	InvoiceID       int64      `json:"invoice_id" validate:"required,gt=0"`
	Amount          float64    `json:"amount" validate:"required,gt=0"`
	Method          Method     `json:"payment_method" validate:"required,oneof=cash check credit_card bank_transfer other"`
	PaymentDate     *time.Time `json:"payment_date,omitempty"`
	ReferenceNumber *string    `json:"reference_number,omitempty" validate:"omitempty,max=100"`
	Notes           *string    `json:"notes,omitempty" validate:"omitempty,max=1000"`
	IdempotencyKey  *string    `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
}

// UpdatePaymentRequest corrects a recorded payment. Nil fields keep their
// current value.
type UpdatePaymentRequest struct {
	Amount          *float64   `json:"amount,omitempty" validate:"omitempty,gt=0"`
	Method          *Method    `json:"payment_method,omitempty" validate:"omitempty,oneof=cash check credit_card bank_transfer other"`
	PaymentDate     *time.Time `json:"payment_date,omitempty"`
	ReferenceNumber *string    `json:"reference_number,omitempty" validate:"omitempty,max=100"`
	Notes           *string    `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

type ListPaymentsRequest struct {
	InvoiceID int64 `json:"invoice_id" validate:"required,gt=0"`
}
