package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Extractor implements Scanner on top of a multimodal Model
type Extractor struct {
	model    Model
	validate *validator.Validate
	timeout  time.Duration
}

// NewExtractor creates an Extractor. A zero timeout leaves the model call unbounded
// apart from the caller's context.
func NewExtractor(model Model, timeout time.Duration) *Extractor {
	return &Extractor{
		model:    model,
		validate: NewValidator(),
		timeout:  timeout,
	}
}

// ScanReceipt extracts a sales receipt. Every failure is logged and reported as nil.
func (e *Extractor) ScanReceipt(ctx context.Context, img Image) *ExtractedReceipt {
	start := time.Now()
	receipt, err := e.extractReceipt(ctx, img)
	observeExtraction(documentReceipt, start, err)
	if err != nil {
		slog.Error("Failed to extract receipt",
			"content_type", img.MIMEType,
			"file_size", len(img.Data),
			"error", err,
		)
		return nil
	}
	return receipt
}

// ScanBill extracts a vendor bill and grades it. Every failure is logged and reported as nil.
func (e *Extractor) ScanBill(ctx context.Context, img Image) *ExtractedBill {
	start := time.Now()
	bill, err := e.extractBill(ctx, img)
	observeExtraction(documentBill, start, err)
	if err != nil {
		slog.Error("Failed to extract bill",
			"content_type", img.MIMEType,
			"file_size", len(img.Data),
			"error", err,
		)
		return nil
	}
	bill.ConfidenceScore = BillConfidence(bill).Score()
	return bill
}

func (e *Extractor) extractReceipt(ctx context.Context, img Image) (*ExtractedReceipt, error) {
	text, err := e.complete(ctx, receiptPrompt, img)
	if err != nil {
		return nil, err
	}
	receipt, err := parseReceipt(e.validate, text)
	if err != nil {
		return nil, fmt.Errorf("parsing receipt data: %w", err)
	}
	return receipt, nil
}

func (e *Extractor) extractBill(ctx context.Context, img Image) (*ExtractedBill, error) {
	text, err := e.complete(ctx, billPrompt, img)
	if err != nil {
		return nil, err
	}
	bill, err := parseBill(e.validate, text)
	if err != nil {
		return nil, fmt.Errorf("parsing bill data: %w", err)
	}
	return bill, nil
}

// complete prepares the image and returns the model's non-empty completion
func (e *Extractor) complete(ctx context.Context, prompt string, img Image) (string, error) {
	prepared, err := normalizeImage(img)
	if err != nil {
		return "", fmt.Errorf("preparing image: %w", err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	text, err := e.model.Generate(ctx, prompt, prepared)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// Close closes the underlying model
func (e *Extractor) Close() error {
	return e.model.Close()
}
