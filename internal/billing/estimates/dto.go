package estimates

import "time"

type AreaRequest struct {
	Name         string  `json:"name" validate:"required,max=120"`
	Description  *string `json:"description,omitempty" validate:"omitempty,max=500"`
	LaborCost    float64 `json:"labor_cost" validate:"gte=0"`
	MaterialCost float64 `json:"material_cost" validate:"gte=0"`
	AreaOrder    int     `json:"area_order" validate:"gte=0"`
}

type CreateEstimateRequest struct {
	ClientID      int64         `json:"client_id" validate:"required,gt=0"`
	Title         string        `json:"title" validate:"required,max=200"`
	Description   *string       `json:"description,omitempty" validate:"omitempty,max=2000"`
	MarkupPercent float64       `json:"markup_percent" validate:"gte=0,lte=100"`
	TermsAndNotes *string       `json:"terms_and_notes,omitempty" validate:"omitempty,max=2000"`
	Areas         []AreaRequest `json:"areas" validate:"required,min=1,dive"`
}

// UpdateEstimateRequest edits commercial fields. Permitted only while the
// estimate is still draft; later edits go through ReviseEstimateRequest.
type UpdateEstimateRequest struct {
	Title         *string        `json:"title,omitempty" validate:"omitempty,max=200"`
	Description   *string        `json:"description,omitempty" validate:"omitempty,max=2000"`
	MarkupPercent *float64       `json:"markup_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
	TermsAndNotes *string        `json:"terms_and_notes,omitempty" validate:"omitempty,max=2000"`
	Areas         *[]AreaRequest `json:"areas,omitempty" validate:"omitempty,min=1,dive"`
}

type ReviseEstimateRequest struct {
	RevisionType  RevisionType   `json:"revision_type" validate:"required,oneof=price_adjustment scope_change client_request correction"`
	ChangeSummary string         `json:"change_summary" validate:"required,max=500"`
	MarkupPercent *float64       `json:"markup_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
	Areas         *[]AreaRequest `json:"areas,omitempty" validate:"omitempty,min=1,dive"`
}

type TransitionEstimateRequest struct {
	Status Status  `json:"status" validate:"required"`
	Note   *string `json:"note,omitempty" validate:"omitempty,max=500"`
}

type ListEstimatesRequest struct {
	ClientID    *int64     `json:"client_id,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	CurrentOnly bool       `json:"current_only"`
	DateFrom    *time.Time `json:"date_from,omitempty"`
	DateTo      *time.Time `json:"date_to,omitempty"`
	Limit       int        `json:"limit" validate:"gte=0,lte=1000"`
	Offset      int        `json:"offset" validate:"gte=0"`
}
