package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the conference focus (5.1 [AMBIENT] Observability and
// resilience: "Every outbound RPC boundary ... is instrumented with a
// request counter, latency histogram, and a circuit-breaker state gauge").
//
// Naming convention: namespace_subsystem_name
// - namespace: focus (application-level grouping)
// - subsystem: conference, bridge, iqrouter, reservation, jwks, redis, rate_limit
// - name: specific metric (conferences_active, events_total, etc.)
var (
	// ActiveRooms tracks the number of conferences currently running (Gauge).
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "focus",
		Subsystem: "conference",
		Name:      "conferences_active",
		Help:      "Current number of active conferences",
	})

	// RoomParticipants tracks the number of participants in each conference
	// (GaugeVec keyed by room — current state, not a historical distribution).
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "focus",
		Subsystem: "conference",
		Name:      "participants_count",
		Help:      "Number of participants in each conference",
	}, []string{"room_id"})

	// StanzaEvents tracks the total number of signaling stanzas processed by
	// the IqRouter (CounterVec).
	StanzaEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "focus",
		Subsystem: "iqrouter",
		Name:      "requests_total",
		Help:      "Total signaling requests routed",
	}, []string{"element", "status"})

	// StanzaProcessingDuration tracks time spent computing a reply to one
	// routed request (HistogramVec).
	StanzaProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "focus",
		Subsystem: "iqrouter",
		Name:      "request_duration_seconds",
		Help:      "Time spent computing a reply to a routed request",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"element"})

	// BridgeAllocationAttempts tracks bridge allocate/modify/expire RPC
	// attempts (CounterVec).
	BridgeAllocationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "focus",
		Subsystem: "bridge",
		Name:      "rpc_attempts_total",
		Help:      "Total bridge RPC attempts",
	}, []string{"op", "status"})

	// CircuitBreakerState tracks the current state of a circuit breaker
	// (GaugeVec). 0: Closed (Healthy), 1: Open (Failure), 2: Half-Open (Recovering)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "focus",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures tracks the total number of requests rejected by
	// a circuit breaker (CounterVec).
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "focus",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	// RateLimitExceeded tracks the total number of requests that exceeded the
	// rate limit (CounterVec).
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "focus",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	// RateLimitRequests tracks the total number of requests checked against
	// the rate limiter (CounterVec).
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "focus",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})

	// RedisOperationsTotal tracks the total number of Redis pub/sub operations
	// (CounterVec).
	RedisOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "focus",
		Subsystem: "redis",
		Name:      "operations_total",
		Help:      "Total number of Redis operations",
	}, []string{"operation", "status"})

	// RedisOperationDuration tracks the duration of Redis operations
	// (HistogramVec).
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "focus",
		Subsystem: "redis",
		Name:      "operation_duration_seconds",
		Help:      "Duration of Redis operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// ReservationRequests tracks reservation REST calls (CounterVec), the
	// reservation-REST outbound RPC boundary from 5.1.
	ReservationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "focus",
		Subsystem: "reservation",
		Name:      "requests_total",
		Help:      "Total reservation REST requests",
	}, []string{"op", "status"})

	// ReservationRequestDuration tracks reservation REST call latency
	// (HistogramVec).
	ReservationRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "focus",
		Subsystem: "reservation",
		Name:      "request_duration_seconds",
		Help:      "Reservation REST request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	// JWKSFetches tracks JWKS refresh attempts against the external auth
	// issuer (CounterVec), the JWKS-fetch outbound RPC boundary from 5.1.
	JWKSFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "focus",
		Subsystem: "jwks",
		Name:      "fetches_total",
		Help:      "Total JWKS cache refresh attempts",
	}, []string{"status"})

	// AVServiceRequests tracks recording/SIP-gateway/dial-out RPC attempts
	// (CounterVec), the av-service outbound RPC boundary from 5.1.
	AVServiceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "focus",
		Subsystem: "avservice",
		Name:      "requests_total",
		Help:      "Total recording/SIP-gateway/dial-out RPC attempts",
	}, []string{"service", "op", "status"})

	// AVServiceRequestDuration tracks av-service RPC latency (HistogramVec).
	AVServiceRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "focus",
		Subsystem: "avservice",
		Name:      "request_duration_seconds",
		Help:      "Recording/SIP-gateway/dial-out RPC latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"service", "op"})

	// TransportConnections tracks currently open WebSocket signaling
	// connections (Gauge).
	TransportConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "focus",
		Subsystem: "transport",
		Name:      "connections_active",
		Help:      "Current number of open WebSocket signaling connections",
	})
)
