package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics
var (
	redemptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warikan_redemptions_total",
		Help: "Confirmation token redemptions by outcome",
	}, []string{"outcome"})

	allocationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warikan_allocations_total",
		Help: "Bill allocations applied by confirmed payments",
	})

	allocatedAmountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warikan_allocated_amount_total",
		Help: "Minor units applied to bills by confirmed payments",
	})

	leftoverAmountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warikan_leftover_amount_total",
		Help: "Minor units of confirmed payments that matched no outstanding debt",
	})

	billsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warikan_bills_created_total",
		Help: "Bills recorded",
	})

	balancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warikan_balances_total",
		Help: "Debt balancing runs by outcome",
	}, []string{"outcome"})
)

// outcome label values
const (
	outcomeConfirmed   = "confirmed"
	outcomeRejected    = "rejected"
	outcomeAlreadyUsed = "already_used"
	outcomeReplayed    = "replayed"
	outcomeError       = "error"
	outcomeBalanced    = "balanced"
	outcomeNothing     = "nothing_to_balance"
)
