package api

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"

    "dronedispatch/internal/dispatch"
    "dronedispatch/internal/model"
    "dronedispatch/internal/opt"
)

// OrdersHandler handles POST/GET /v1/orders
func (s *Server) OrdersHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/orders" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    switch r.Method {
    case http.MethodPost:
        var req model.CreateOrdersRequest
        if err := decodeJSON(w, r, &req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := validateCreateOrders(&req, s.Cfg.Engine.Bounds); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid orders", err.Error(), r.URL.Path)
            return
        }
        created, err := s.Svc.CreateOrders(r.Context(), req.Orders)
        if err != nil {
            writeError(w, r, "Create orders failed", err)
            return
        }
        writeJSON(w, http.StatusCreated, map[string]any{"items": created, "created": len(created)})
    case http.MethodGet:
        status := r.URL.Query().Get("status")
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListOrders(r.Context(), status, cursor, limit)
        if err != nil {
            writeError(w, r, "List orders failed", err)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// OrderByIDHandler handles GET/PATCH /v1/orders/{id}
func (s *Server) OrderByIDHandler(w http.ResponseWriter, r *http.Request) {
    id := strings.TrimPrefix(r.URL.Path, "/v1/orders/")
    if id == "" || strings.Contains(id, "/") { writeProblem(w, 404, "Not Found", "missing id", r.URL.Path); return }
    switch r.Method {
    case http.MethodGet:
        o, err := s.Store.GetOrder(r.Context(), id)
        if err != nil { writeError(w, r, "Order not found", err); return }
        writeJSON(w, http.StatusOK, o)
    case http.MethodPatch:
        var req model.OrderStatusUpdate
        if err := decodeJSON(w, r, &req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := validate.Struct(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid status", validationMessage(err), r.URL.Path)
            return
        }
        o, err := s.Svc.SetOrderStatus(r.Context(), id, req.Status)
        if err != nil { writeError(w, r, "Update order failed", err); return }
        writeJSON(w, http.StatusOK, o)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// VehiclesHandler handles POST/GET /v1/vehicles
func (s *Server) VehiclesHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/vehicles" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    switch r.Method {
    case http.MethodPost:
        var req model.CreateVehiclesRequest
        if err := decodeJSON(w, r, &req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := validateCreateVehicles(&req, s.Cfg.Engine.Bounds); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid vehicles", err.Error(), r.URL.Path)
            return
        }
        created, err := s.Svc.CreateVehicles(r.Context(), req.Vehicles)
        if err != nil {
            writeError(w, r, "Create vehicles failed", err)
            return
        }
        writeJSON(w, http.StatusCreated, map[string]any{"items": created, "created": len(created)})
    case http.MethodGet:
        status := r.URL.Query().Get("status")
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListVehicles(r.Context(), status, cursor, limit)
        if err != nil {
            writeError(w, r, "List vehicles failed", err)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// VehicleByIDHandler handles GET /v1/vehicles/{id}, POST /v1/vehicles/{id}/complete,
// GET /v1/vehicles/{id}/events/stream and GET /v1/vehicles/{id}/simulate
func (s *Server) VehicleByIDHandler(w http.ResponseWriter, r *http.Request) {
    path := r.URL.Path
    rest := strings.TrimPrefix(path, "/v1/vehicles/")
    if rest == path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
        return
    }
    parts := strings.Split(rest, "/")
    id := parts[0]
    switch {
    case len(parts) == 1:
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        v, err := s.Store.GetVehicle(r.Context(), id)
        if err != nil { writeError(w, r, "Vehicle not found", err); return }
        writeJSON(w, http.StatusOK, v)
    case len(parts) == 2 && parts[1] == "complete":
        if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
        v, delivered, err := s.Svc.CompleteTrip(r.Context(), id)
        if err != nil { writeError(w, r, "Complete trip failed", err); return }
        writeJSON(w, http.StatusOK, map[string]any{"vehicle": v, "delivered": delivered})
    case len(parts) == 3 && parts[1] == "events" && parts[2] == "stream":
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        s.streamVehicleEvents(w, r, id)
    case len(parts) == 2 && parts[1] == "simulate":
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        s.SimulateWSHandler(w, r, id)
    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "", path)
    }
}

// streamVehicleEvents relays broker events for one vehicle as server-sent events.
func (s *Server) streamVehicleEvents(w http.ResponseWriter, r *http.Request, id string) {
    if _, err := s.Store.GetVehicle(r.Context(), id); err != nil { writeError(w, r, "Vehicle not found", err); return }
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    ch := s.Broker.Subscribe(id)
    defer s.Broker.Unsubscribe(id, ch)
    heartbeat := func() {
        fmt.Fprintf(w, "event: heartbeat\n")
        fmt.Fprintf(w, "data: {\"vehicleId\":%q,\"ts\":%q}\n\n", id, time.Now().UTC().Format(time.RFC3339))
        flusher.Flush()
    }
    heartbeat()
    ticker := time.NewTicker(15 * time.Second)
    defer ticker.Stop()
    for {
        select {
        case <-r.Context().Done():
            return
        case evt, ok := <-ch:
            if !ok { return }
            b, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\n", evt.Type)
            fmt.Fprintf(w, "data: %s\n\n", string(b))
            flusher.Flush()
        case <-ticker.C:
            heartbeat()
        }
    }
}

// OptimizeHandler handles POST /v1/optimize
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req model.OptimizeRequest
    if err := decodeJSON(w, r, &req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateOptimizeRequest(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
        return
    }
    p := dispatch.OptimizeParams{Strategy: req.Strategy, Seed: req.Seed}
    if req.MaxDistance != nil { p.MaxDistance = *req.MaxDistance }
    res, err := s.Svc.Optimize(r.Context(), p)
    if err != nil {
        writeError(w, r, "Optimize failed", err)
        return
    }
    writeJSON(w, http.StatusOK, res)
}

// OptimizerConfigHandler returns the engine configuration and the latest run per strategy
func (s *Server) OptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/optimizer/config" || r.Method != http.MethodGet { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    strategies := []string{dispatch.AutoStrategyName}
    for _, st := range opt.Strategies() { strategies = append(strategies, string(st)) }
    writeJSON(w, 200, map[string]any{
        "engine":     s.Svc.Engine.Config(),
        "strategies": strategies,
        "lastRuns":   opt.LastRuns(),
    })
}

// Admin plan metrics by strategy
func (s *Server) PlanMetricsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/plan-metrics" || r.Method != http.MethodGet { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    strategy := r.URL.Query().Get("strategy")
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    items, err := s.Store.ListPlanMetrics(r.Context(), strategy, limit)
    if err != nil { writeError(w, r, "List plan metrics failed", err); return }
    writeJSON(w, 200, map[string]any{"items": items})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
    defer cancel()
    if err := s.Store.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    type pinger interface{ Ping(ctx context.Context) error }
    if rb, ok := s.Broker.(pinger); ok {
        if err := rb.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}
