package pos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/pos-tracker/internal/sales"
	"github.com/zombor/pos-tracker/internal/scanning"
)

var errNoData = errors.New("no data extracted")

// SalesSubmission is a reviewed draft ready to be stored
type SalesSubmission struct {
	RequestID       string      `json:"request_id"`
	Draft           sales.Draft `json:"draft"`
	Source          EntrySource `json:"source"`
	ConfidenceScore *float64    `json:"confidence_score,omitempty"`
}

// ScanSalesDocuments extracts the items document and the payment document concurrently
// and reconciles them into a draft for outletID. Both extractions finish before reconciling.
// When either yields nothing, the low confidence result is returned with sales.ErrIncompleteExtraction.
func (s *Service) ScanSalesDocuments(ctx context.Context, outletID string, items, payment scanning.Image, defaultDate string) (sales.Reconciliation, error) {
	if _, err := s.db.GetOutlet(outletID); err != nil {
		return sales.Reconciliation{}, fmt.Errorf("getting outlet: %w", err)
	}
	if defaultDate == "" {
		defaultDate = s.today()
	}

	var itemsDoc, paymentDoc *scanning.ExtractedReceipt
	var g errgroup.Group
	g.Go(func() error {
		if itemsDoc = s.scanner.ScanReceipt(ctx, items); itemsDoc == nil {
			return fmt.Errorf("items document: %w", errNoData)
		}
		return nil
	})
	g.Go(func() error {
		if paymentDoc = s.scanner.ScanReceipt(ctx, payment); paymentDoc == nil {
			return fmt.Errorf("payment document: %w", errNoData)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		slog.Warn("Sales document extraction incomplete", "outlet_id", outletID, "error", err)
	}

	result, err := sales.Reconcile(itemsDoc, paymentDoc, defaultDate)
	result.Draft.Outlet = outletID
	if err != nil {
		return result, err
	}
	for _, w := range result.Warnings {
		slog.Warn("Sales reconciliation needs review", "outlet_id", outletID, "warning", w)
	}
	return result, nil
}

// SubmitSalesEntry validates a draft against its outlet's currency and stores it.
// A failed check returns *sales.ValidationError and stores nothing.
func (s *Service) SubmitSalesEntry(ctx context.Context, sub SalesSubmission) (*SalesEntry, error) {
	draft := sub.Draft
	if strings.TrimSpace(draft.Outlet) == "" {
		return nil, fieldError("outlet", "Outlet is required")
	}
	outlet, err := s.db.GetOutlet(draft.Outlet)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fieldError("outlet", "Outlet does not exist")
		}
		return nil, fmt.Errorf("getting outlet: %w", err)
	}

	draft.Date = strings.TrimSpace(draft.Date)
	if draft.Date == "" {
		draft.Date = s.today()
	} else if _, err := time.Parse(dateLayout, draft.Date); err != nil {
		return nil, fieldError("date", "Date must be in YYYY-MM-DD format")
	}

	result := sales.Validate(draft, outlet.Currency)
	if !result.Valid {
		return nil, &sales.ValidationError{Result: result}
	}

	source := sub.Source
	if source != SourceAI {
		source = SourceManual
	}

	entry := &SalesEntry{
		ID:              s.idGenerator.Generate(),
		OutletID:        outlet.ID,
		Date:            draft.Date,
		TotalSales:      result.Total,
		Cash:            amountOrZero(draft.Cash),
		UPI:             amountOrZero(draft.UPI),
		Card:            amountOrZero(draft.Card),
		Source:          source,
		ConfidenceScore: sub.ConfidenceScore,
		CreatedAt:       s.timeSource.Now(),
	}

	var stored *SalesEntry
	err = s.write(ctx, "sales_entry", func(ctx context.Context) error {
		var err error
		stored, err = s.db.CreateSalesEntry(ctx, sub.RequestID, entry)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("submitting sales entry: %w", err)
	}
	return stored, nil
}

// ListSalesEntries returns an outlet's sales entries, newest date first
func (s *Service) ListSalesEntries(outletID string) ([]*SalesEntry, error) {
	if _, err := s.db.GetOutlet(outletID); err != nil {
		return nil, fmt.Errorf("getting outlet: %w", err)
	}
	entries, err := s.db.ListSalesEntries(outletID)
	if err != nil {
		return nil, fmt.Errorf("listing sales entries: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Date != entries[j].Date {
			return entries[i].Date > entries[j].Date
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

// amountOrZero parses an already validated decimal string; blank is zero
func amountOrZero(s string) decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return v
}
