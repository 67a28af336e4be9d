package scanning

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Document kinds used as metric labels
const (
	documentReceipt = "receipt"
	documentBill    = "bill"
)

var (
	extractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_tracker_extractions_total",
		Help: "Document extractions by document kind and result.",
	}, []string{"document", "result"})

	extractionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pos_tracker_extraction_duration_seconds",
		Help:    "Time spent extracting a document, including the model call.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
	}, []string{"document"})
)

func observeExtraction(document string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "no_data"
	}
	extractionsTotal.WithLabelValues(document, result).Inc()
	extractionDuration.WithLabelValues(document).Observe(time.Since(start).Seconds())
}
