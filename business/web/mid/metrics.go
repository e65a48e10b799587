package mid

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/utxochain/foundation/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Set of metrics shared by every route of the service.
var (
	requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "utxochain",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of API requests.",
		},
		[]string{"method", "status"},
	)

	duration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "utxochain",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method"},
	)

	panics = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "utxochain",
			Subsystem: "api",
			Name:      "panics_total",
			Help:      "Total number of recovered handler panics.",
		},
	)
)

// Metrics updates program counters.
func Metrics() web.Middleware {

	// This is the actual middleware function to be executed.
	m := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			// Call the next handler.
			err := handler(ctx, w, r)

			status := http.StatusInternalServerError
			if v, verr := web.GetValues(ctx); verr == nil {
				duration.WithLabelValues(r.Method).Observe(time.Since(v.Now).Seconds())
				if v.StatusCode != 0 {
					status = v.StatusCode
				}
			}

			requests.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return m
}
