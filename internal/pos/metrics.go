package pos

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_tracker_store_writes_total",
		Help: "Persistence writes by record kind and result.",
	}, []string{"record", "result"})

	storeWriteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pos_tracker_store_write_duration_seconds",
		Help:    "Time spent in persistence writes.",
		Buckets: prometheus.DefBuckets,
	}, []string{"record"})

	billDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_tracker_bill_decisions_total",
		Help: "Bill review decisions by outcome.",
	}, []string{"status"})
)

func observeWrite(record string, start time.Time, err error) {
	storeWriteDuration.WithLabelValues(record).Observe(time.Since(start).Seconds())
	result := "ok"
	switch {
	case errors.Is(err, ErrWriteTimeout):
		result = "timeout"
	case err != nil:
		result = "error"
	}
	storeWrites.WithLabelValues(record, result).Inc()
}
