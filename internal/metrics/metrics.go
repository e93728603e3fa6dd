package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RankRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parker_rank_requests_total",
		Help: "Total number of closest-parking-lots requests",
	})
	RankedRows = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "parker_ranked_rows",
		Help:    "Number of joined rows returned per ranking request",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 200, 500},
	})
	AssignmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parker_status_assignments_total",
		Help: "Status reports by outcome (changed, unchanged, not_found, error)",
	}, []string{"outcome"})
	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parker_push_notifications_total",
		Help: "Push notifications by result (sent, expired, failed, dropped)",
	}, []string{"result"})
	ImportedLotsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parker_imported_lots_total",
		Help: "Total parking lot records received from the feed",
	})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "parker_request_duration_ms",
		Help:    "HTTP request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"route", "status"})
)

func init() {
	prometheus.MustRegister(RankRequestsTotal)
	prometheus.MustRegister(RankedRows)
	prometheus.MustRegister(AssignmentsTotal)
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(ImportedLotsTotal)
	prometheus.MustRegister(RequestDurationMs)
}

// Handler exposes the registered collectors for scraping.
func Handler() http.Handler { return promhttp.Handler() }
