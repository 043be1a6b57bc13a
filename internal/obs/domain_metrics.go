package obs

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SalesTotal counts sale confirmations by channel (pos, wholesale) and result.
	SalesTotal *prometheus.CounterVec
	// SaleCommitLatency records store commit latency in milliseconds.
	SaleCommitLatency *prometheus.HistogramVec
	// CartRejectionsTotal counts refused cart mutations by reason.
	CartRejectionsTotal *prometheus.CounterVec
	// DiscountCatalogFallbackTotal counts catalog reloads that degraded to the
	// sentinel-only list.
	DiscountCatalogFallbackTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SalesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_total",
			Help:      "Count of sale confirmation outcomes.",
		}, []string{"channel", "result"})
		SaleCommitLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sale_commit_duration_ms",
			Help:      "Latency of sale commits in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"channel"})
		CartRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_rejections_total",
			Help:      "Count of rejected cart mutations by reason.",
		}, []string{"reason"})
		DiscountCatalogFallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_catalog_fallback_total",
			Help:      "Number of discount catalog loads served without store data.",
		})

		mustRegisterCollector(reg, SalesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SalesTotal = v
			}
		})
		mustRegisterCollector(reg, SaleCommitLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				SaleCommitLatency = v
			}
		})
		mustRegisterCollector(reg, CartRejectionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CartRejectionsTotal = v
			}
		})
		mustRegisterCollector(reg, DiscountCatalogFallbackTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				DiscountCatalogFallbackTotal = v
			}
		})
	})
}

// RecordSale increments SalesTotal when metrics are registered.
func RecordSale(channel, result string) {
	if SalesTotal == nil {
		return
	}
	SalesTotal.WithLabelValues(channel, result).Inc()
}

// ObserveSaleCommit records commit latency when metrics are registered.
func ObserveSaleCommit(channel string, d time.Duration) {
	if SaleCommitLatency == nil {
		return
	}
	SaleCommitLatency.WithLabelValues(channel).Observe(DurationMillis(d))
}

// RecordCartRejection increments CartRejectionsTotal when metrics are registered.
func RecordCartRejection(reason string) {
	if CartRejectionsTotal == nil {
		return
	}
	CartRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordDiscountFallback increments DiscountCatalogFallbackTotal when metrics are registered.
func RecordDiscountFallback() {
	if DiscountCatalogFallbackTotal == nil {
		return
	}
	DiscountCatalogFallbackTotal.Inc()
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
