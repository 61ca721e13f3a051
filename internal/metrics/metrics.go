package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SalesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motormods_sales_total",
		Help: "Completed sale transactions.",
	})

	SalesRevenueCents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motormods_sales_revenue_cents_total",
		Help: "Revenue of completed sales, in cents.",
	})

	ReturnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motormods_returns_total",
		Help: "Completed sales returns.",
	})

	ReturnCancellationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motormods_return_cancellations_total",
		Help: "Cancelled sales returns.",
	})

	StockAdjustmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "motormods_stock_adjustments_total",
		Help: "Ledger rows appended, by adjustment type.",
	}, []string{"type"})

	MirrorPushFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motormods_mirror_push_failures_total",
		Help: "Cloud mirror pushes that failed after retries.",
	})

	InsufficientStockRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motormods_insufficient_stock_rejections_total",
		Help: "Sales rejected because a line exceeded available stock.",
	})
)
