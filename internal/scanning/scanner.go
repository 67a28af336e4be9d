package scanning

import (
	"context"

	"github.com/shopspring/decimal"
)

// Image is an uploaded document as raw bytes plus its MIME type
type Image struct {
	Data     []byte
	MIMEType string
}

// Item is a single line on a sales receipt
type Item struct {
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"quantity" validate:"gt=0"`
	Price    decimal.Decimal `json:"price" validate:"gte=0" jsonschema_description:"Unit price"`
}

// ExtractedReceipt contains the fields read from one sales document
type ExtractedReceipt struct {
	Date          string          `json:"date" validate:"omitempty,datetime=2006-01-02" jsonschema_description:"Transaction date in YYYY-MM-DD format"`
	TotalAmount   decimal.Decimal `json:"totalAmount" validate:"gte=0" jsonschema_description:"Total amount paid"`
	Items         []Item          `json:"items" validate:"dive"`
	PaymentMethod string          `json:"paymentMethod" jsonschema:"enum=Cash,enum=Card,enum=UPI,enum=Other"`
	Notes         string          `json:"notes,omitempty"`
}

// PaymentMode is how a vendor bill was settled
type PaymentMode string

const (
	PaymentCash         PaymentMode = "cash"
	PaymentCard         PaymentMode = "card"
	PaymentUPI          PaymentMode = "upi"
	PaymentBankTransfer PaymentMode = "bank_transfer"
	PaymentUnknown      PaymentMode = "unknown"
)

// ExpenseCategory classifies a vendor bill
type ExpenseCategory string

const (
	CategoryRawMaterial ExpenseCategory = "raw_material"
	CategoryUtility     ExpenseCategory = "utility"
	CategoryRent        ExpenseCategory = "rent"
	CategoryMaintenance ExpenseCategory = "maintenance"
	CategoryPackaging   ExpenseCategory = "packaging"
	CategoryOthers      ExpenseCategory = "others"
)

// ExtractedBill contains the fields read from a vendor bill
type ExtractedBill struct {
	VendorName             string           `json:"vendor_name" validate:"required"`
	BillNumber             string           `json:"bill_number,omitempty"`
	BillDate               string           `json:"bill_date,omitempty" validate:"omitempty,datetime=2006-01-02" jsonschema_description:"Bill date in YYYY-MM-DD format"`
	TotalAmount            decimal.Decimal  `json:"total_amount" validate:"gte=0"`
	TaxAmount              *decimal.Decimal `json:"tax_amount,omitempty" validate:"omitempty,gte=0"`
	Currency               string           `json:"currency,omitempty" validate:"omitempty,iso4217" jsonschema_description:"ISO 4217 currency code"`
	PaymentMode            PaymentMode      `json:"payment_mode" validate:"oneof=cash card upi bank_transfer unknown" jsonschema:"enum=cash,enum=card,enum=upi,enum=bank_transfer,enum=unknown"`
	ExpenseCategory        ExpenseCategory  `json:"expense_category" validate:"oneof=raw_material utility rent maintenance packaging others" jsonschema:"enum=raw_material,enum=utility,enum=rent,enum=maintenance,enum=packaging,enum=others"`
	SourceDocumentRequired bool             `json:"source_document_required"`
	ConfidenceScore        float64          `json:"confidence_score" validate:"gte=0,lte=1" jsonschema:"-"`
}

// Scanner extracts structured documents from images.
// A nil result means the document yielded no usable data.
type Scanner interface {
	// ScanReceipt reads a sales receipt or payment breakdown
	ScanReceipt(ctx context.Context, img Image) *ExtractedReceipt
	// ScanBill reads a vendor bill
	ScanBill(ctx context.Context, img Image) *ExtractedBill
	// Close closes the scanner and releases resources
	Close() error
}

// Model is a multimodal text generation backend
type Model interface {
	// Generate sends the prompt and image and returns the raw text completion
	Generate(ctx context.Context, prompt string, img Image) (string, error)
	Close() error
}
