package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapgate_settlements_total",
		Help: "The total number of settlement calls processed",
	}, []string{"status"})

	FillsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapgate_fills_total",
		Help: "The total number of executed fills",
	})

	BidRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapgate_bid_rejects_total",
		Help: "Total bids rejected during settlement, by reason code",
	}, []string{"reason"})

	OffersOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swapgate_offers_open",
		Help: "Number of currently open offers",
	})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "swapgate_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
