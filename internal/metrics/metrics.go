// Package metrics exposes Prometheus collectors for the storage gateway.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storage_gateway"

var (
	// proxyResponses counts streaming proxy responses by method and status.
	proxyResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "responses_total",
			Help:      "Streaming proxy responses by HTTP method and status code",
		},
		[]string{"method", "status"},
	)

	// proxyBytes counts body bytes relayed from the store to clients.
	proxyBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "bytes_total",
			Help:      "Object bytes streamed to clients",
		},
	)

	// uploads counts objects stored, by the path that stored them.
	uploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Objects written through the gateway by strategy (server)",
		},
		[]string{"strategy"},
	)

	// presignGrants counts presigned PUT URLs issued.
	presignGrants = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presign_grants_total",
			Help:      "Presigned upload grants issued",
		},
	)

	// storeErrors counts failed store calls by operation and error kind.
	storeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Failed object store calls by operation and error kind",
		},
		[]string{"op", "kind"},
	)
)

func init() {
	prometheus.MustRegister(
		proxyResponses,
		proxyBytes,
		uploads,
		presignGrants,
		storeErrors,
	)
}

// ObserveProxyResponse records one streaming proxy response.
func ObserveProxyResponse(method string, status int, bytes int64) {
	proxyResponses.WithLabelValues(method, strconv.Itoa(status)).Inc()
	if bytes > 0 {
		proxyBytes.Add(float64(bytes))
	}
}

// IncUpload records an object stored via the given strategy.
func IncUpload(strategy string) {
	uploads.WithLabelValues(strategy).Inc()
}

// IncPresignGrant records an issued presigned URL.
func IncPresignGrant() {
	presignGrants.Inc()
}

// IncStoreError records a failed store call.
func IncStoreError(op, kind string) {
	storeErrors.WithLabelValues(op, kind).Inc()
}
