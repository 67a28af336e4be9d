package pos

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zombor/pos-tracker/internal/scanning"
)

// BillUpload is a vendor bill document submitted for review
type BillUpload struct {
	OutletID       string
	Filename       string
	Data           []byte
	ContentType    string
	UploadedByRole string
}

// BillFilter narrows ListBills; a zero Status matches every bill
type BillFilter struct {
	Status BillStatus
}

// VendorStats summarises the bills of one outlet
type VendorStats struct {
	Pending       int             `json:"pending"`
	Approved      int             `json:"approved"`
	Rejected      int             `json:"rejected"`
	ApprovedTotal decimal.Decimal `json:"approved_total"`
}

// UploadBill stores the document, extracts the bill and saves it as pending.
// The stored document is removed again when extraction or saving fails.
func (s *Service) UploadBill(ctx context.Context, up BillUpload) (*Bill, error) {
	outlet, err := s.db.GetOutlet(up.OutletID)
	if err != nil {
		return nil, fmt.Errorf("getting outlet: %w", err)
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedName, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(up.Filename)), up.Data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	extracted := s.scanner.ScanBill(ctx, scanning.Image{Data: up.Data, MIMEType: up.ContentType})
	if extracted == nil {
		s.removeDocument(savedName)
		return nil, ErrExtractionFailed
	}
	if extracted.Currency == "" {
		extracted.Currency = outlet.Currency
	}

	role := strings.TrimSpace(up.UploadedByRole)
	if role == "" {
		role = "vendor"
	}

	bill := &Bill{
		ID:             id,
		OutletID:       outlet.ID,
		ExtractedBill:  *extracted,
		Status:         BillPending,
		Filename:       savedName,
		ContentType:    up.ContentType,
		UploadedByRole: role,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.saveBill(ctx, bill); err != nil {
		s.removeDocument(savedName)
		return nil, fmt.Errorf("saving bill: %w", err)
	}

	slog.Info("Bill uploaded",
		"bill_id", bill.ID,
		"outlet_id", outlet.ID,
		"vendor", bill.VendorName,
		"confidence", bill.ConfidenceScore,
	)
	return bill, nil
}

// GetBill retrieves a bill by ID
func (s *Service) GetBill(id string) (*Bill, error) {
	bill, err := s.db.GetBill(id)
	if err != nil {
		return nil, fmt.Errorf("getting bill: %w", err)
	}
	return bill, nil
}

// GetBillFile retrieves the source document of a bill
func (s *Service) GetBillFile(id string) ([]byte, string, error) {
	bill, err := s.db.GetBill(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting bill: %w", err)
	}
	if bill.Filename == "" {
		return nil, "", fmt.Errorf("bill %s document: %w", id, ErrNotFound)
	}

	data, err := s.storage.Get(bill.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting bill file: %w", err)
	}
	return data, bill.ContentType, nil
}

// ListBills returns an outlet's bills, newest first
func (s *Service) ListBills(outletID string, filter BillFilter) ([]*Bill, error) {
	if _, err := s.db.GetOutlet(outletID); err != nil {
		return nil, fmt.Errorf("getting outlet: %w", err)
	}
	all, err := s.db.ListBills(outletID)
	if err != nil {
		return nil, fmt.Errorf("listing bills: %w", err)
	}

	bills := make([]*Bill, 0, len(all))
	for _, b := range all {
		if filter.Status == "" || b.Status == filter.Status {
			bills = append(bills, b)
		}
	}
	sort.SliceStable(bills, func(i, j int) bool {
		return bills[i].CreatedAt.After(bills[j].CreatedAt)
	})
	return bills, nil
}

// UpdateBill replaces the extracted fields of a pending bill with reviewer edits.
// The heuristic confidence score of the extraction is kept.
func (s *Service) UpdateBill(ctx context.Context, id string, edit scanning.ExtractedBill) (*Bill, error) {
	edit.VendorName = strings.TrimSpace(edit.VendorName)
	edit.BillNumber = strings.TrimSpace(edit.BillNumber)
	edit.Currency = strings.ToUpper(strings.TrimSpace(edit.Currency))

	bill, err := s.decide(ctx, id, func(bill *Bill) error {
		if edit.Currency == "" {
			edit.Currency = bill.Currency
		}
		edit.ConfidenceScore = bill.ConfidenceScore
		if err := scanning.ValidateBill(s.validate, &edit); err != nil {
			return requestErrors(err)
		}
		bill.ExtractedBill = edit
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("updating bill: %w", err)
	}
	return bill, nil
}

// ApproveBill marks a pending bill approved; approved bills count as expenses
func (s *Service) ApproveBill(ctx context.Context, id string) (*Bill, error) {
	bill, err := s.decide(ctx, id, func(bill *Bill) error {
		bill.Status = BillApproved
		decided := bill.UpdatedAt
		bill.DecidedAt = &decided
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("approving bill: %w", err)
	}

	billDecisions.WithLabelValues(string(BillApproved)).Inc()
	slog.Info("Bill approved", "bill_id", bill.ID, "total", bill.TotalAmount)
	return bill, nil
}

// RejectBill marks a pending bill rejected. A reason is required. The source
// document is deleted unless the bill is flagged as needing it kept.
func (s *Service) RejectBill(ctx context.Context, id, reason string) (*Bill, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fieldError("reason", "A reason is required to reject a bill")
	}

	var document string
	bill, err := s.decide(ctx, id, func(bill *Bill) error {
		bill.Status = BillRejected
		bill.RejectReason = reason
		decided := bill.UpdatedAt
		bill.DecidedAt = &decided
		document = ""
		if !bill.SourceDocumentRequired {
			document, bill.Filename = bill.Filename, ""
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rejecting bill: %w", err)
	}
	if document != "" {
		s.removeDocument(document)
	}

	billDecisions.WithLabelValues(string(BillRejected)).Inc()
	slog.Info("Bill rejected", "bill_id", bill.ID, "reason", reason)
	return bill, nil
}

// VendorStats counts an outlet's bills by status and totals the approved ones
func (s *Service) VendorStats(outletID string) (*VendorStats, error) {
	bills, err := s.ListBills(outletID, BillFilter{})
	if err != nil {
		return nil, err
	}

	stats := &VendorStats{ApprovedTotal: decimal.Zero}
	for _, b := range bills {
		switch b.Status {
		case BillPending:
			stats.Pending++
		case BillApproved:
			stats.Approved++
			stats.ApprovedTotal = stats.ApprovedTotal.Add(b.TotalAmount)
		case BillRejected:
			stats.Rejected++
		}
	}
	return stats, nil
}

// decide applies change to a bill that is still pending. The status check and
// the write share one transaction, so a decided bill is never changed again.
func (s *Service) decide(ctx context.Context, id string, change func(*Bill) error) (*Bill, error) {
	now := s.timeSource.Now()
	var bill *Bill
	err := s.write(ctx, "bill", func(ctx context.Context) error {
		var err error
		bill, err = s.db.UpdateBill(ctx, id, func(b *Bill) error {
			if b.Status != BillPending {
				return fmt.Errorf("bill %s is %s: %w", id, b.Status, ErrAlreadyDecided)
			}
			b.UpdatedAt = now
			return change(b)
		})
		return err
	})
	return bill, err
}

func (s *Service) saveBill(ctx context.Context, bill *Bill) error {
	return s.write(ctx, "bill", func(ctx context.Context) error {
		return s.db.SaveBill(ctx, bill)
	})
}

func (s *Service) removeDocument(name string) {
	if err := s.storage.Delete(name); err != nil {
		slog.Warn("Failed to delete file", "filename", name, "error", err)
	}
}
