package pos

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/pos-tracker/internal/scanning"
)

// Outlet is a registered point of sale. It is never modified after creation.
type Outlet struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Location         string          `json:"location"`
	Country          string          `json:"country"`
	Currency         string          `json:"currency"`
	BaseExchangeRate decimal.Decimal `json:"baseExchangeRate"` // units of Currency per unit of the reporting currency
	CreatedAt        time.Time       `json:"createdAt"`
}

// EntrySource records how a sales entry was filled in
type EntrySource string

const (
	SourceManual EntrySource = "manual"
	SourceAI     EntrySource = "ai"
)

// SalesEntry is a submitted, validated day of sales for an outlet
type SalesEntry struct {
	ID              string          `json:"id"`
	OutletID        string          `json:"outletId"`
	Date            string          `json:"date"` // YYYY-MM-DD
	TotalSales      decimal.Decimal `json:"totalSales"`
	Cash            decimal.Decimal `json:"cash"`
	UPI             decimal.Decimal `json:"upi"`
	Card            decimal.Decimal `json:"card"`
	Source          EntrySource     `json:"source"`
	ConfidenceScore *float64        `json:"confidenceScore,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// BillStatus is the approval state of a vendor bill
type BillStatus string

const (
	BillPending  BillStatus = "pending"
	BillApproved BillStatus = "approved"
	BillRejected BillStatus = "rejected"
)

// Bill is a vendor bill under review. The extracted fields are editable only while pending.
type Bill struct {
	ID       string `json:"id"`
	OutletID string `json:"outlet_id"`
	scanning.ExtractedBill
	Status         BillStatus `json:"status"`
	Filename       string     `json:"filename,omitempty"`
	ContentType    string     `json:"content_type"`
	UploadedByRole string     `json:"uploaded_by_role"`
	RejectReason   string     `json:"reject_reason,omitempty"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ExpenseDate is the day the bill counts against: its bill date, or the upload day
func (b *Bill) ExpenseDate() string {
	if b.BillDate != "" {
		return b.BillDate
	}
	return b.CreatedAt.Format(dateLayout)
}

const dateLayout = "2006-01-02"
