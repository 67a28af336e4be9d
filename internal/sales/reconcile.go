// Package sales turns extracted documents into sales entry drafts and checks drafts before submission.
package sales

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zombor/pos-tracker/internal/scanning"
)

// ErrIncompleteExtraction is returned when one or both documents yielded no data
var ErrIncompleteExtraction = errors.New("could not extract data from one or both documents")

// Draft is the editable form state of one sales entry. Amounts are decimal strings.
type Draft struct {
	Outlet     string `json:"outlet"`
	Date       string `json:"date"`
	TotalSales string `json:"totalSales"`
	Cash       string `json:"cash"`
	UPI        string `json:"upi"`
	Card       string `json:"card"`
}

// Reconciliation is a draft built from an items document and a payment document
type Reconciliation struct {
	Draft      Draft               `json:"draft"`
	Confidence scanning.Confidence `json:"confidence"`
	Score      float64             `json:"confidence_score"`
	Warnings   []string            `json:"warnings,omitempty"`
}

// Reconcile merges an itemised sales document and a payment breakdown document.
// Both must have been extracted; otherwise ErrIncompleteExtraction is returned with low confidence.
func Reconcile(itemsDoc, paymentDoc *scanning.ExtractedReceipt, defaultDate string) (Reconciliation, error) {
	if itemsDoc == nil || paymentDoc == nil {
		return Reconciliation{
			Draft:      Draft{Date: defaultDate},
			Confidence: scanning.ConfidenceLow,
			Score:      scanning.ConfidenceLow.Score(),
		}, ErrIncompleteExtraction
	}

	var warnings []string

	cash, upi, card := decimal.Zero, decimal.Zero, decimal.Zero
	switch strings.ToLower(strings.TrimSpace(paymentDoc.PaymentMethod)) {
	case "cash":
		cash = paymentDoc.TotalAmount
	case "upi":
		upi = paymentDoc.TotalAmount
	case "card":
		card = paymentDoc.TotalAmount
	default:
		warnings = append(warnings, fmt.Sprintf(
			"Payment method %q could not be mapped to cash, UPI or card. Enter the payment breakdown manually.",
			paymentDoc.PaymentMethod,
		))
	}

	date := defaultDate
	switch {
	case itemsDoc.Date != "":
		date = itemsDoc.Date
	case paymentDoc.Date != "":
		date = paymentDoc.Date
	}

	confidence := scanning.ConfidenceMedium
	if itemsDoc.TotalAmount.IsPositive() && paymentDoc.TotalAmount.IsPositive() {
		confidence = scanning.ConfidenceHigh
	}

	return Reconciliation{
		Draft: Draft{
			Date:       date,
			TotalSales: ItemsTotal(itemsDoc).String(),
			Cash:       cash.String(),
			UPI:        upi.String(),
			Card:       card.String(),
		},
		Confidence: confidence,
		Score:      confidence.Score(),
		Warnings:   warnings,
	}, nil
}

// ItemsTotal sums price × quantity over the items, falling back to the stated
// total when there are no items or they sum to zero.
func ItemsTotal(doc *scanning.ExtractedReceipt) decimal.Decimal {
	total := decimal.Zero
	for _, item := range doc.Items {
		total = total.Add(item.Price.Mul(item.Quantity))
	}
	if total.IsZero() {
		return doc.TotalAmount
	}
	return total
}
