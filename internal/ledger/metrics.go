package ledger

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	provAnchorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prov_anchors_total",
		Help: "Total anchor attempts by result.",
	}, []string{"result"})

	provRetrievalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prov_retrievals_total",
		Help: "Total anchor record retrievals by result.",
	}, []string{"result"})

	provVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prov_verifications_total",
		Help: "Total integrity verifications by outcome.",
	}, []string{"outcome"})

	provConfirmationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "prov_confirmation_seconds",
		Help:    "Time from transaction submission to confirmation.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	provLedgerConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "prov_ledger_connected",
		Help: "1 if the ledger network was reachable at the last probe.",
	})
)

// ObserveConfirmation records how long a submitted transaction took to
// confirm. Called by the chain adapter.
func ObserveConfirmation(d time.Duration) {
	provConfirmationSeconds.Observe(d.Seconds())
}

// RecordConnectivity records the result of a connectivity probe.
func RecordConnectivity(connected bool) {
	if connected {
		provLedgerConnected.Set(1)
	} else {
		provLedgerConnected.Set(0)
	}
}

func recordAnchor(err error) {
	provAnchorsTotal.WithLabelValues(resultLabel(err)).Inc()
}

func recordRetrieval(err error) {
	provRetrievalsTotal.WithLabelValues(resultLabel(err)).Inc()
}

func recordVerification(outcome Outcome) {
	provVerificationsTotal.WithLabelValues(string(outcome)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNoSigner):
		return "no_signer"
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	case errors.Is(err, ErrConfirmationTimeout):
		return "confirmation_timeout"
	case errors.Is(err, ErrTransactionFailed):
		return "transaction_failed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDecode):
		return "decode_error"
	default:
		return "error"
	}
}
