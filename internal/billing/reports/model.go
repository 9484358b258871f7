package reports

import (
	"time"

	"github.com/paintdesk/paintdesk/internal/billing/money"
)

// OutstandingInvoice is one unpaid invoice row in the receivables report.
type OutstandingInvoice struct {
	ID            int64       `json:"id"`
	InvoiceNumber *string     `json:"invoice_number,omitempty"`
	ClientID      int64       `json:"client_id"`
	ClientName    string      `json:"client_name"`
	Outstanding   money.Cents `json:"outstanding"`
	DueDate       *time.Time  `json:"due_date,omitempty"`
}

// AgingBucket groups outstanding balances by days past due.
type AgingBucket struct {
	Current    money.Cents `json:"current"`
	Days30     money.Cents `json:"days_30"`
	Days60     money.Cents `json:"days_60"`
	Days90     money.Cents `json:"days_90"`
	Days90Plus money.Cents `json:"days_90_plus"`
}

// Total sums all buckets.
func (b AgingBucket) Total() money.Cents {
	return b.Current + b.Days30 + b.Days60 + b.Days90 + b.Days90Plus
}

// StatusCounts tallies invoices by effective status.
type StatusCounts struct {
	Draft   int `json:"draft"`
	Sent    int `json:"sent"`
	Overdue int `json:"overdue"`
	Paid    int `json:"paid"`
	Void    int `json:"void"`
}

// Dashboard is the back-office landing summary: status tallies, aging
// buckets, and the open receivables list, assembled concurrently.
type Dashboard struct {
	AsOf             time.Time            `json:"as_of"`
	Statuses         StatusCounts         `json:"statuses"`
	Aging            AgingBucket          `json:"aging"`
	TotalOutstanding money.Cents          `json:"total_outstanding"`
	OutstandingPrint string               `json:"total_outstanding_display"`
	Outstanding      []OutstandingInvoice `json:"outstanding"`
}
