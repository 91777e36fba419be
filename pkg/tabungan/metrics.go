package tabungan

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tabungan",
			Name:      "transactions_submitted_total",
			Help:      "Transactions accepted into pending, by type.",
		},
		[]string{"type"},
	)

	resolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tabungan",
			Name:      "transactions_resolved_total",
			Help:      "Verification attempts by decision and outcome.",
		},
		[]string{"decision", "outcome"},
	)

	balanceDriftAccounts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tabungan",
			Name:      "balance_drift_accounts",
			Help:      "Accounts whose saldo differs from the verified ledger at the last reconciliation.",
		},
	)
)

// outcome reduces an error to a low-cardinality label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "error"
	}
}
