package sales

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// tolerance is the largest accepted gap between the declared total and the payment breakdown
var tolerance = decimal.New(1, -2)

// FieldErrors maps a draft field (or "payment" for the breakdown as a whole) to a message
type FieldErrors map[string]string

// ValidationResult is the outcome of checking a draft
type ValidationResult struct {
	Valid      bool            `json:"valid"`
	Errors     FieldErrors     `json:"errors,omitempty"`
	Total      decimal.Decimal `json:"total"`
	PaymentSum decimal.Decimal `json:"payment_sum"`
	Difference decimal.Decimal `json:"difference"`
}

// ValidationError carries a failed ValidationResult through error returns
type ValidationError struct {
	Result ValidationResult
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Result.Errors))
	for k := range e.Result.Errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Result.Errors[k])
	}
	return "invalid sales entry: " + strings.Join(msgs, "; ")
}

// Validate checks that the draft has a numeric total and that cash + UPI + card
// matches it within 0.01. Amounts in messages use currency's symbol.
func Validate(d Draft, currency string) ValidationResult {
	errs := FieldErrors{}

	total := decimal.Zero
	if strings.TrimSpace(d.TotalSales) == "" {
		errs["totalSales"] = "Total sales is required"
	} else if v, err := decimal.NewFromString(strings.TrimSpace(d.TotalSales)); err != nil {
		errs["totalSales"] = "Total sales must be a number"
	} else {
		total = v
	}

	sum := decimal.Zero
	for _, c := range []struct{ field, label, value string }{
		{"cash", "Cash", d.Cash},
		{"upi", "UPI", d.UPI},
		{"card", "Card", d.Card},
	} {
		amount, msg := parseComponent(c.label, c.value)
		if msg != "" {
			errs[c.field] = msg
			continue
		}
		sum = sum.Add(amount)
	}

	diff := total.Sub(sum).Abs()
	if diff.GreaterThan(tolerance) {
		errs["payment"] = fmt.Sprintf("Payment breakdown (%s) must equal total sales (%s)",
			FormatMoney(currency, sum), FormatMoney(currency, total))
	}

	result := ValidationResult{
		Valid:      len(errs) == 0,
		Total:      total,
		PaymentSum: sum,
		Difference: diff,
	}
	if !result.Valid {
		result.Errors = errs
	}
	return result
}

// parseComponent reads one payment amount; blank means zero
func parseComponent(label, value string) (decimal.Decimal, string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, ""
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, label + " must be a number"
	}
	if amount.IsNegative() {
		return decimal.Zero, label + " must not be negative"
	}
	return amount, ""
}

var currencySymbols = map[string]string{
	"USD": "$", "INR": "₹", "GBP": "£", "EUR": "€", "CAD": "CA$", "AUD": "A$",
	"JPY": "¥", "CNY": "CN¥", "CHF": "CHF ", "NZD": "NZ$", "SGD": "S$", "HKD": "HK$",
	"KRW": "₩", "SEK": "SEK ", "NOK": "NOK ", "MXN": "MX$", "BRL": "R$", "RUB": "₽",
	"ZAR": "R", "TRY": "₺", "SAR": "SAR ", "AED": "AED ", "THB": "฿", "MYR": "RM",
	"IDR": "Rp", "VND": "₫", "PHP": "₱",
}

// FormatMoney renders an amount with the currency symbol and digit grouping, e.g. ₹1,000.00
func FormatMoney(currency string, amount decimal.Decimal) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	symbol, ok := currencySymbols[code]
	if !ok && code != "" {
		symbol = code + " "
	}
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Abs()
	}
	rounded := amount.Round(2)
	fixed := rounded.StringFixed(2)
	return sign + symbol + humanize.BigComma(rounded.Truncate(0).BigInt()) + fixed[strings.IndexByte(fixed, '.'):]
}
