package metrics

import (
	"math/big"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type EscrowMetrics struct {
	ordersCreated   *prometheus.CounterVec
	ordersCompleted prometheus.Counter
	ordersCancelled prometheus.Counter
	ordersRefunded  prometheus.Counter
	rejectedOps     *prometheus.CounterVec
	custodyBalance  *prometheus.GaugeVec
	assetsTotal     prometheus.Gauge
}

var (
	escrowOnce     sync.Once
	escrowRegistry *EscrowMetrics
)

func Escrow() *EscrowMetrics {
	escrowOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "escrow_orders_created_total",
				Help: "Count of escrow orders created by kind.",
			}, []string{"kind"}),
			ordersCompleted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "escrow_orders_completed_total",
				Help: "Count of escrow orders atomically settled.",
			}),
			ordersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "escrow_orders_cancelled_total",
				Help: "Count of escrow orders cancelled by their creator.",
			}),
			ordersRefunded: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "escrow_orders_refunded_total",
				Help: "Count of escrow orders refunded after timeout.",
			}),
			rejectedOps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "escrow_rejected_operations_total",
				Help: "Count of rejected state machine operations by reason.",
			}, []string{"op", "reason"}),
			custodyBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "escrow_custody_balance",
				Help: "Tracked custody amount per asset index.",
			}, []string{"asset"}),
			assetsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "escrow_registered_assets",
				Help: "Number of assets in the registry.",
			}),
		}
		prometheus.MustRegister(
			escrowRegistry.ordersCreated,
			escrowRegistry.ordersCompleted,
			escrowRegistry.ordersCancelled,
			escrowRegistry.ordersRefunded,
			escrowRegistry.rejectedOps,
			escrowRegistry.custodyBalance,
			escrowRegistry.assetsTotal,
		)
	})
	return escrowRegistry
}

func (m *EscrowMetrics) OrderCreated(kind string) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(kind).Inc()
}

func (m *EscrowMetrics) OrderCompleted() {
	if m == nil {
		return
	}
	m.ordersCompleted.Inc()
}

func (m *EscrowMetrics) OrderCancelled() {
	if m == nil {
		return
	}
	m.ordersCancelled.Inc()
}

func (m *EscrowMetrics) OrderRefunded() {
	if m == nil {
		return
	}
	m.ordersRefunded.Inc()
}

func (m *EscrowMetrics) OperationRejected(op, reason string) {
	if m == nil {
		return
	}
	m.rejectedOps.WithLabelValues(op, reason).Inc()
}

// SetCustody records the custody gauge for an asset index. Amounts are
// reported as floats; precision loss only affects the metric, never custody
// accounting itself.
func (m *EscrowMetrics) SetCustody(asset int32, amount *big.Int) {
	if m == nil || amount == nil {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.custodyBalance.WithLabelValues(strconv.FormatInt(int64(asset), 10)).Set(value)
}

func (m *EscrowMetrics) SetRegisteredAssets(count int32) {
	if m == nil {
		return
	}
	m.assetsTotal.Set(float64(count))
}
