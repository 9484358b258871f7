package invoices

import "time"

type ConvertEstimateRequest struct {
	EstimateID   int64      `json:"estimate_id" validate:"required,gt=0"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	PaymentTerms *string    `json:"payment_terms,omitempty" validate:"omitempty,max=2000"`
}

type TransitionInvoiceRequest struct {
	Status     Status  `json:"status" validate:"required"`
	VoidReason *string `json:"void_reason,omitempty" validate:"omitempty,max=500"`
}

// UpdateDraftRequest edits commercial fields. Permitted only while the
// invoice is still draft; TotalAmount is frozen the moment the invoice
// leaves draft.
type UpdateDraftRequest struct {
	Title        *string       `json:"title,omitempty" validate:"omitempty,max=200"`
	Description  *string       `json:"description,omitempty" validate:"omitempty,max=2000"`
	TotalAmount  *float64      `json:"total_amount,omitempty" validate:"omitempty,gt=0"`
	DueDate      *time.Time    `json:"due_date,omitempty"`
	PaymentTerms *string       `json:"payment_terms,omitempty" validate:"omitempty,max=2000"`
	Areas        *[]AreaUpdate `json:"areas,omitempty" validate:"omitempty,min=1,dive"`
}

type AreaUpdate struct {
	Name         string  `json:"name" validate:"required,max=120"`
	Description  *string `json:"description,omitempty" validate:"omitempty,max=500"`
	LaborCost    float64 `json:"labor_cost" validate:"gte=0"`
	MaterialCost float64 `json:"material_cost" validate:"gte=0"`
	AreaOrder    int     `json:"area_order" validate:"gte=0"`
}

type ListInvoicesRequest struct {
	ClientID *int64     `json:"client_id,omitempty"`
	Status   *Status    `json:"status,omitempty"`
	DueFrom  *time.Time `json:"due_from,omitempty"`
	DueTo    *time.Time `json:"due_to,omitempty"`
	Limit    int        `json:"limit" validate:"gte=0,lte=1000"`
	Offset   int        `json:"offset" validate:"gte=0"`
}
