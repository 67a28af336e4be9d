package scanning

// Confidence is a coarse three-level reliability signal for an extraction.
// It is not a calibrated probability.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

// Score returns the legacy numeric value shown to reviewers
func (c Confidence) Score() float64 {
	switch c {
	case ConfidenceHigh:
		return 0.92
	case ConfidenceMedium:
		return 0.75
	default:
		return 0.5
	}
}

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	default:
		return "low"
	}
}

// MarshalText encodes the level as its name
func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// BillConfidence grades a single extracted bill: a positive total is high, anything else medium
func BillConfidence(bill *ExtractedBill) Confidence {
	if bill == nil {
		return ConfidenceLow
	}
	if bill.TotalAmount.IsPositive() {
		return ConfidenceHigh
	}
	return ConfidenceMedium
}
