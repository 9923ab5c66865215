package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TripsCreatedTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_dispatch", Name: "trips_created_total", Help: "Total trips created"})
	OffersSentTotal     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_dispatch", Name: "offers_sent_total", Help: "Total offers sent to drivers"})
	OffersAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_dispatch", Name: "offers_accepted_total", Help: "Total offers accepted"})
	OffersRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_dispatch", Name: "offers_rejected_total", Help: "Total offers rejected by drivers"})
	OffersExpiredTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_dispatch", Name: "offers_expired_total", Help: "Total offers that hit the response deadline"})
	TripsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_dispatch", Name: "trips_cancelled_total", Help: "Total trips cancelled"})

	LocationUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_dispatch", Name: "location_updates_total", Help: "Total driver location updates persisted"})
	ConnectionsLive      = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "trip_dispatch", Name: "connections_live", Help: "Live websocket connections"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "trip_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trip_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
