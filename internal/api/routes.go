package api

import (
    "net/http"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "dronedispatch/internal/metrics"
)

// Routes returns the full HTTP handler: the mux wrapped in rate limiting and
// access logging.
func (s *Server) Routes() http.Handler {
    metrics.RegisterDefault()
    mux := http.NewServeMux()

    // Orders
    mux.HandleFunc("/v1/orders", s.OrdersHandler)
    mux.HandleFunc("/v1/orders/", s.OrderByIDHandler)

    // Vehicles
    mux.HandleFunc("/v1/vehicles", s.VehiclesHandler)
    mux.HandleFunc("/v1/vehicles/", s.VehicleByIDHandler) // includes /complete, /events/stream, /simulate

    // Optimization
    mux.HandleFunc("/v1/optimize", s.OptimizeHandler)
    mux.HandleFunc("/v1/optimizer/config", s.OptimizerConfigHandler)

    // Admin
    mux.HandleFunc("/v1/admin/plan-metrics", s.PlanMetricsHandler)

    // Health
    mux.HandleFunc("/healthz", s.HealthHandler)
    mux.HandleFunc("/readyz", s.ReadyHandler)
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
    mux.HandleFunc("/debug/info", s.DebugJSON)

    // Docs
    mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
    mux.HandleFunc("/openapi.json", s.OpenAPIHandler)
    mux.HandleFunc("/docs", s.DocsHandler)

    var h http.Handler = mux
    if s.limiter != nil {
        h = s.limiter.Middleware(h)
    }
    return accessLog(s.Log, h)
}
