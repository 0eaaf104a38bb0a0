package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )
    // RateLimited counts requests rejected by the rate limiter
    RateLimited = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "http_rate_limited_total", Help: "Requests rejected by the rate limiter."},
    )

    // OptimizeRuns counts dispatch runs by strategy and outcome (assigned, empty, error)
    OptimizeRuns = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "dispatch_runs_total", Help: "Dispatch runs by strategy and outcome."},
        []string{"strategy", "outcome"},
    )
    // OptimizeDuration tracks engine wall time per run
    OptimizeDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "dispatch_run_duration_seconds", Help: "Dispatch run duration in seconds.", Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1}},
        []string{"strategy"},
    )
    // OrdersAssigned and OrdersUnassigned count orders per run outcome
    OrdersAssigned = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "dispatch_orders_assigned_total", Help: "Orders assigned to a vehicle."},
        []string{"strategy"},
    )
    OrdersUnassigned = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "dispatch_orders_unassigned_total", Help: "Orders left pending after a run."},
        []string{"strategy"},
    )
    // RouteDistance records planned route lengths in service-area units
    RouteDistance = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "dispatch_route_distance_units", Help: "Planned route distance.", Buckets: []float64{2, 5, 10, 15, 20, 30, 50}},
    )
    // Efficiency is the assigned/total ratio of the latest run per strategy
    Efficiency = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{Name: "dispatch_efficiency_ratio", Help: "Assigned over total orders in the latest run."},
        []string{"strategy"},
    )
    // Events counts broker publishes by event type
    Events = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "dispatch_events_published_total", Help: "Events published to the broker."},
        []string{"type"},
    )
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(RateLimited)
        Registry.MustRegister(OptimizeRuns)
        Registry.MustRegister(OptimizeDuration)
        Registry.MustRegister(OrdersAssigned)
        Registry.MustRegister(OrdersUnassigned)
        Registry.MustRegister(RouteDistance)
        Registry.MustRegister(Efficiency)
        Registry.MustRegister(Events)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
