package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Labels stay bounded: instruction names come from the program bindings and the
// outcome is a SubmissionStatus.
var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "royale_ledger_submissions_total",
		Help: "Submitted instructions by outcome",
	}, []string{"instruction", "outcome"})

	confirmationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "royale_ledger_confirmation_seconds",
		Help:    "Time from broadcast until the requested commitment was observed",
		Buckets: []float64{0.4, 0.8, 1.6, 3.2, 6.4, 12.8, 25.6, 51.2},
	}, []string{"instruction"})

	accountFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "royale_ledger_account_fetches_total",
		Help: "Account reads by result",
	}, []string{"result"})
)
