package scanning

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyCompletion is returned when the model produced no text
	ErrEmptyCompletion = errors.New("empty completion")
	// ErrNoJSON is returned when no JSON object can be located in the completion
	ErrNoJSON = errors.New("no JSON object found in completion")
	// ErrTaxExceedsTotal is returned when a bill's tax amount is larger than its total
	ErrTaxExceedsTotal = errors.New("tax amount exceeds total amount")
)

var (
	fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	braceJSONPattern  = regexp.MustCompile(`(?s)\{.*\}`)
)

// dateLayouts are tried in order when the model ignores the requested format
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// locateJSON finds the JSON payload in a completion: a ```json fenced block
// first, then everything from the first { to the last }.
func locateJSON(text string) (string, error) {
	if m := fencedJSONPattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), nil
	}
	if m := braceJSONPattern.FindString(text); m != "" {
		return m, nil
	}
	return "", ErrNoJSON
}

// NewValidator returns a validator that compares decimals as floats
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// normalizeDate rewrites a date into YYYY-MM-DD, or returns "" when it cannot be read
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return ""
}

// parseReceipt locates, decodes, normalizes and validates a receipt completion
func parseReceipt(v *validator.Validate, text string) (*ExtractedReceipt, error) {
	payload, err := locateJSON(text)
	if err != nil {
		return nil, err
	}

	var receipt ExtractedReceipt
	if err := json.Unmarshal([]byte(payload), &receipt); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	receipt.Date = normalizeDate(receipt.Date)
	receipt.PaymentMethod = strings.TrimSpace(receipt.PaymentMethod)
	receipt.Notes = strings.TrimSpace(receipt.Notes)
	for i := range receipt.Items {
		item := &receipt.Items[i]
		item.Name = strings.TrimSpace(item.Name)
		// a missing quantity decodes as zero
		if item.Quantity.IsZero() {
			item.Quantity = decimal.NewFromInt(1)
		}
	}
	if receipt.Items == nil {
		receipt.Items = []Item{}
	}

	if err := v.Struct(&receipt); err != nil {
		return nil, fmt.Errorf("validating receipt: %w", err)
	}
	return &receipt, nil
}

// parseBill locates, decodes, normalizes and validates a bill completion
func parseBill(v *validator.Validate, text string) (*ExtractedBill, error) {
	payload, err := locateJSON(text)
	if err != nil {
		return nil, err
	}

	var bill ExtractedBill
	if err := json.Unmarshal([]byte(payload), &bill); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	normalizeBill(&bill)

	if err := ValidateBill(v, &bill); err != nil {
		return nil, err
	}
	return &bill, nil
}

func normalizeBill(bill *ExtractedBill) {
	bill.VendorName = strings.TrimSpace(bill.VendorName)
	bill.BillNumber = strings.TrimSpace(bill.BillNumber)
	bill.BillDate = normalizeDate(bill.BillDate)
	bill.Currency = strings.ToUpper(strings.TrimSpace(bill.Currency))
	bill.PaymentMode = PaymentMode(enumKey(string(bill.PaymentMode)))
	switch bill.PaymentMode {
	case PaymentCash, PaymentCard, PaymentUPI, PaymentBankTransfer:
	default:
		bill.PaymentMode = PaymentUnknown
	}
	bill.ExpenseCategory = ExpenseCategory(enumKey(string(bill.ExpenseCategory)))
	switch bill.ExpenseCategory {
	case CategoryRawMaterial, CategoryUtility, CategoryRent, CategoryMaintenance, CategoryPackaging:
	default:
		bill.ExpenseCategory = CategoryOthers
	}
}

// enumKey turns "Bank Transfer" or "raw-material" into "bank_transfer" / "raw_material"
func enumKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// ValidateBill checks field constraints and that tax does not exceed the total
func ValidateBill(v *validator.Validate, bill *ExtractedBill) error {
	if err := v.Struct(bill); err != nil {
		return fmt.Errorf("validating bill: %w", err)
	}
	if bill.TaxAmount != nil && bill.TaxAmount.GreaterThan(bill.TotalAmount) {
		return fmt.Errorf("validating bill: %w: %s > %s", ErrTaxExceedsTotal, bill.TaxAmount, bill.TotalAmount)
	}
	return nil
}
