package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuoteTotal counts cart pricing computations by outcome.
	QuoteTotal *prometheus.CounterVec
	// QuoteDuration records cart pricing latency in milliseconds.
	QuoteDuration prometheus.Histogram
	// DiscountApplyTotal counts discount application attempts by outcome.
	DiscountApplyTotal *prometheus.CounterVec
	// CartSweepTotal counts expired carts removed by the background sweeper.
	CartSweepTotal prometheus.Counter
	// TaxCacheWarmTotal counts tax rates loaded during cache warm runs.
	TaxCacheWarmTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers pricing-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_quote_total",
			Help:      "Count of cart pricing computations by outcome.",
		}, []string{"result"})
		QuoteDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cart_quote_duration_ms",
			Help:      "Latency of cart pricing computations in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		})
		DiscountApplyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_apply_total",
			Help:      "Count of discount application attempts by outcome.",
		}, []string{"result"})
		CartSweepTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_sweep_removed_total",
			Help:      "Number of expired carts removed by the sweeper.",
		})
		TaxCacheWarmTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tax_cache_warm_total",
			Help:      "Number of tax rates loaded into cache during warm runs.",
		})

		mustRegisterCollector(reg, QuoteTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QuoteTotal = v
			}
		})
		mustRegisterCollector(reg, QuoteDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				QuoteDuration = v
			}
		})
		mustRegisterCollector(reg, DiscountApplyTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DiscountApplyTotal = v
			}
		})
		mustRegisterCollector(reg, CartSweepTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				CartSweepTotal = v
			}
		})
		mustRegisterCollector(reg, TaxCacheWarmTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				TaxCacheWarmTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
