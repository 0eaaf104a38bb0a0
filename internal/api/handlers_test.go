package api

import (
    "bufio"
    "encoding/json"
    "fmt"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/gorilla/websocket"
    "github.com/rs/zerolog"

    "dronedispatch/internal/config"
    "dronedispatch/internal/events"
    "dronedispatch/internal/model"
    "dronedispatch/internal/opt"
    "dronedispatch/internal/store"
)

func testConfig() config.Config {
    return config.Config{
        Server: config.ServerConfig{Port: 8080, ReadHeaderTimeout: 5 * time.Second},
        Log:    config.LogConfig{Level: "info"},
        Engine: opt.DefaultConfig(),
        Sink:   config.SinkConfig{Kind: "console"},
    }
}

func newTestServer(t *testing.T) *Server {
    t.Helper()
    s := New(testConfig(), store.NewMemory(), events.NewBroker(), zerolog.Nop())
    t.Cleanup(func() { _ = s.Close() })
    return s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
    t.Helper()
    var req *http.Request
    if body == "" {
        req = httptest.NewRequest(method, path, nil)
    } else {
        req = httptest.NewRequest(method, path, strings.NewReader(body))
        req.Header.Set("Content-Type", "application/json")
    }
    rr := httptest.NewRecorder()
    h.ServeHTTP(rr, req)
    return rr
}

// seedFleet creates three orders around the depot and one vehicle parked on it.
func seedFleet(t *testing.T, h http.Handler) {
    t.Helper()
    rr := do(t, h, http.MethodPost, "/v1/orders", `{"orders":[
        {"id":"o1","location":{"x":12,"y":12},"weight":1,"priority":"high"},
        {"id":"o2","location":{"x":13,"y":11},"weight":1},
        {"id":"o3","location":{"x":8,"y":9},"weight":2,"priority":"low"}]}`)
    if rr.Code != http.StatusCreated { t.Fatalf("orders create: got %d %s", rr.Code, rr.Body.String()) }
    rr = do(t, h, http.MethodPost, "/v1/vehicles", `{"vehicles":[{"id":"d1","capacity":5,"range":30}]}`)
    if rr.Code != http.StatusCreated { t.Fatalf("vehicles create: got %d %s", rr.Code, rr.Body.String()) }
}

func TestHealthReady(t *testing.T) {
    h := newTestServer(t).Routes()
    if rr := do(t, h, http.MethodGet, "/healthz", ""); rr.Code != 200 { t.Fatalf("health: got %d", rr.Code) }
    if rr := do(t, h, http.MethodGet, "/readyz", ""); rr.Code != 200 { t.Fatalf("ready: got %d", rr.Code) }
    if rr := do(t, h, http.MethodGet, "/debug/info", ""); rr.Code != 200 { t.Fatalf("debug: got %d", rr.Code) }
    if rr := do(t, h, http.MethodGet, "/metrics", ""); rr.Code != 200 || !strings.Contains(rr.Body.String(), "http_requests_total") { t.Fatalf("metrics: got %d", rr.Code) }
}

func TestOpenAPI(t *testing.T) {
    h := newTestServer(t).Routes()
    rr := do(t, h, http.MethodGet, "/openapi.json", "")
    if rr.Code != 200 { t.Fatalf("openapi.json: got %d", rr.Code) }
    var doc struct{ Paths map[string]any `json:"paths"` }
    if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil { t.Fatalf("decode: %v", err) }
    for _, p := range []string{"/v1/orders", "/v1/optimize", "/v1/vehicles/{id}/simulate"} {
        if _, ok := doc.Paths[p]; !ok { t.Fatalf("openapi missing %s", p) }
    }
    if rr := do(t, h, http.MethodGet, "/openapi.yaml", ""); rr.Code != 200 { t.Fatalf("openapi.yaml: got %d", rr.Code) }
}

func TestOrdersCreateListPatch(t *testing.T) {
    h := newTestServer(t).Routes()
    seedFleet(t, h)

    rr := do(t, h, http.MethodGet, "/v1/orders?limit=2", "")
    if rr.Code != 200 { t.Fatalf("orders list: got %d", rr.Code) }
    var page struct {
        Items      []model.Order `json:"items"`
        NextCursor string        `json:"nextCursor"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil { t.Fatalf("decode: %v", err) }
    if len(page.Items) != 2 || page.NextCursor != "o2" { t.Fatalf("page = %+v", page) }
    if page.Items[1].Priority != model.PriorityMedium { t.Fatalf("default priority = %q", page.Items[1].Priority) }

    rr = do(t, h, http.MethodGet, "/v1/orders?cursor="+page.NextCursor, "")
    _ = json.Unmarshal(rr.Body.Bytes(), &page)
    if len(page.Items) != 1 || page.Items[0].ID != "o3" { t.Fatalf("second page = %+v", page.Items) }

    rr = do(t, h, http.MethodPatch, "/v1/orders/o3", `{"status":"cancelled"}`)
    if rr.Code != 200 { t.Fatalf("cancel: got %d %s", rr.Code, rr.Body.String()) }
    rr = do(t, h, http.MethodPatch, "/v1/orders/o3", `{"status":"delivered"}`)
    if rr.Code != http.StatusConflict { t.Fatalf("deliver cancelled: got %d", rr.Code) }
    rr = do(t, h, http.MethodPatch, "/v1/orders/o1", `{"status":"assigned"}`)
    if rr.Code != http.StatusBadRequest { t.Fatalf("patch assigned: got %d", rr.Code) }
    rr = do(t, h, http.MethodGet, "/v1/orders/nope", "")
    if rr.Code != http.StatusNotFound { t.Fatalf("missing order: got %d", rr.Code) }
}

func TestCreateValidation(t *testing.T) {
    h := newTestServer(t).Routes()
    cases := map[string]struct{ path, body string }{
        "empty orders":       {"/v1/orders", `{"orders":[]}`},
        "zero weight":        {"/v1/orders", `{"orders":[{"location":{"x":1,"y":1},"weight":0}]}`},
        "outside area":       {"/v1/orders", `{"orders":[{"location":{"x":25,"y":1},"weight":1}]}`},
        "bad priority":       {"/v1/orders", `{"orders":[{"location":{"x":1,"y":1},"weight":1,"priority":"urgent"}]}`},
        "duplicate ids":      {"/v1/orders", `{"orders":[{"id":"a","location":{"x":1,"y":1},"weight":1},{"id":"a","location":{"x":2,"y":2},"weight":1}]}`},
        "unknown field":      {"/v1/orders", `{"orders":[{"location":{"x":1,"y":1},"weight":1,"lat":3}]}`},
        "negative capacity":  {"/v1/vehicles", `{"vehicles":[{"capacity":-1,"range":10}]}`},
        "battery over 100":   {"/v1/vehicles", `{"vehicles":[{"capacity":1,"range":10,"batteryPct":120}]}`},
        "overloaded vehicle": {"/v1/vehicles", `{"vehicles":[{"capacity":1,"range":10,"currentLoad":2}]}`},
        "not json":           {"/v1/vehicles", `{"vehicles":`},
    }
    for name, tc := range cases {
        t.Run(name, func(t *testing.T) {
            rr := do(t, h, http.MethodPost, tc.path, tc.body)
            if rr.Code != http.StatusBadRequest { t.Fatalf("got %d %s", rr.Code, rr.Body.String()) }
            var p Problem
            if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil || p.Status != 400 { t.Fatalf("problem body: %s", rr.Body.String()) }
        })
    }
}

func TestOptimizeAndCompleteTrip(t *testing.T) {
    s := newTestServer(t)
    h := s.Routes()

    rr := do(t, h, http.MethodPost, "/v1/optimize", `{}`)
    if rr.Code != 200 { t.Fatalf("optimize empty: %d", rr.Code) }
    var res model.AssignmentResult
    _ = json.Unmarshal(rr.Body.Bytes(), &res)
    if res.Success { t.Fatalf("empty optimize should not succeed: %+v", res) }

    seedFleet(t, h)
    rr = do(t, h, http.MethodPost, "/v1/optimize", `{"strategy":"nope"}`)
    if rr.Code != http.StatusBadRequest { t.Fatalf("unknown strategy: got %d", rr.Code) }

    rr = do(t, h, http.MethodPost, "/v1/optimize", `{"strategy":"priority_first","seed":7}`)
    if rr.Code != 200 { t.Fatalf("optimize: %d %s", rr.Code, rr.Body.String()) }
    if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil { t.Fatalf("decode: %v", err) }
    if !res.Success || res.Assigned != 3 || len(res.Plans) != 1 { t.Fatalf("result = %+v", res) }
    if res.Efficiency != 1 { t.Fatalf("efficiency = %v", res.Efficiency) }

    rr = do(t, h, http.MethodGet, "/v1/vehicles/d1", "")
    var v model.Vehicle
    _ = json.Unmarshal(rr.Body.Bytes(), &v)
    if v.Status != model.VehicleLoading || len(v.AssignedOrders) != 3 { t.Fatalf("vehicle = %+v", v) }

    rr = do(t, h, http.MethodGet, "/v1/admin/plan-metrics?strategy=priority_first", "")
    var pm struct{ Items []model.PlanMetrics `json:"items"` }
    _ = json.Unmarshal(rr.Body.Bytes(), &pm)
    if len(pm.Items) != 1 || pm.Items[0].Assigned != 3 { t.Fatalf("plan metrics = %+v", pm.Items) }

    rr = do(t, h, http.MethodPost, "/v1/vehicles/d1/complete", "")
    if rr.Code != 200 { t.Fatalf("complete: %d %s", rr.Code, rr.Body.String()) }
    var done struct {
        Vehicle   model.Vehicle `json:"vehicle"`
        Delivered []string      `json:"delivered"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &done)
    if done.Vehicle.Status != model.VehicleIdle || len(done.Delivered) != 3 { t.Fatalf("complete = %+v", done) }
    if done.Vehicle.BatteryPct >= 100 { t.Fatalf("battery not drained: %v", done.Vehicle.BatteryPct) }

    rr = do(t, h, http.MethodPost, "/v1/vehicles/d1/complete", "")
    if rr.Code != http.StatusConflict { t.Fatalf("second complete: got %d", rr.Code) }
}

func TestOptimizerConfig(t *testing.T) {
    h := newTestServer(t).Routes()
    rr := do(t, h, http.MethodGet, "/v1/optimizer/config", "")
    if rr.Code != 200 { t.Fatalf("config: %d", rr.Code) }
    var body struct {
        Engine     opt.Config `json:"engine"`
        Strategies []string   `json:"strategies"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil { t.Fatalf("decode: %v", err) }
    if body.Engine.BatteryRate != 5 || len(body.Strategies) != 5 { t.Fatalf("config = %+v", body) }
}

func TestVehicleEventsSSE(t *testing.T) {
    s := newTestServer(t)
    ts := httptest.NewServer(s.Routes())
    defer ts.Close()
    seedFleet(t, s.Routes())

    resp, err := http.Get(ts.URL + "/v1/vehicles/d1/events/stream")
    if err != nil { t.Fatalf("stream: %v", err) }
    defer resp.Body.Close()
    if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" { t.Fatalf("content type %q", ct) }

    lines := make(chan string, 32)
    go func() {
        sc := bufio.NewScanner(resp.Body)
        for sc.Scan() { lines <- sc.Text() }
        close(lines)
    }()
    waitFor := func(want string) {
        t.Helper()
        deadline := time.After(2 * time.Second)
        for {
            select {
            case l, ok := <-lines:
                if !ok { t.Fatalf("stream closed before %q", want) }
                if l == want { return }
            case <-deadline:
                t.Fatalf("timed out waiting for %q", want)
            }
        }
    }
    // The heartbeat is written after the subscription is registered.
    waitFor("event: heartbeat")

    rr := do(t, s.Routes(), http.MethodPost, "/v1/optimize", `{}`)
    if rr.Code != 200 { t.Fatalf("optimize: %d", rr.Code) }
    waitFor("event: " + events.VehicleAssigned)

    resp404, err := http.Get(ts.URL + "/v1/vehicles/ghost/events/stream")
    if err != nil { t.Fatalf("stream: %v", err) }
    resp404.Body.Close()
    if resp404.StatusCode != http.StatusNotFound { t.Fatalf("unknown vehicle stream: %d", resp404.StatusCode) }
}

func TestSimulateWebSocket(t *testing.T) {
    s := newTestServer(t)
    h := s.Routes()
    ts := httptest.NewServer(h)
    defer ts.Close()
    seedFleet(t, h)

    wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/vehicles/d1/simulate?step=1h"
    _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
    if err == nil { t.Fatal("expected dial to fail before any route is planned") }
    if resp == nil || resp.StatusCode != http.StatusConflict { t.Fatalf("no-route status: %+v", resp) }

    if rr := do(t, h, http.MethodPost, "/v1/optimize", `{}`); rr.Code != 200 { t.Fatalf("optimize: %d", rr.Code) }

    if rr := do(t, h, http.MethodGet, "/v1/vehicles/d1/simulate?step=1ns", ""); rr.Code != http.StatusBadRequest {
        t.Fatalf("tiny step: got %d, want 400", rr.Code)
    }

    conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
    if err != nil { t.Fatalf("dial: %v", err) }
    defer conn.Close()
    _ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

    var samples []opt.Sample
    for {
        var msg struct {
            Type string          `json:"type"`
            Data json.RawMessage `json:"data"`
        }
        if err := conn.ReadJSON(&msg); err != nil { t.Fatalf("read: %v", err) }
        if msg.Type == "complete" { break }
        var smp opt.Sample
        if err := json.Unmarshal(msg.Data, &smp); err != nil { t.Fatalf("sample: %v", err) }
        samples = append(samples, smp)
    }
    if len(samples) < 2 { t.Fatalf("got %d samples", len(samples)) }
    first, last := samples[0], samples[len(samples)-1]
    depot := s.Cfg.Engine.Depot
    if first.Position != depot || last.Position != depot || !last.Arrived { t.Fatalf("first %+v last %+v", first, last) }
}

func TestRateLimit(t *testing.T) {
    cfg := testConfig()
    cfg.Server.RateRPS = 0.001
    cfg.Server.RateBurst = 2
    s := New(cfg, store.NewMemory(), events.NewBroker(), zerolog.Nop())
    defer s.Close()
    h := s.Routes()
    for i := 0; i < 2; i++ {
        if rr := do(t, h, http.MethodGet, "/v1/orders", ""); rr.Code != 200 { t.Fatalf("request %d: %d", i, rr.Code) }
    }
    rr := do(t, h, http.MethodGet, "/v1/orders", "")
    if rr.Code != http.StatusTooManyRequests { t.Fatalf("third request: got %d", rr.Code) }
    if rr := do(t, h, http.MethodGet, "/healthz", ""); rr.Code != 200 { t.Fatalf("health limited: %d", rr.Code) }
}

func limitedGet(h http.Handler, xff string) int {
    req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
    req.RemoteAddr = "192.0.2.1:4321"
    if xff != "" { req.Header.Set("X-Forwarded-For", xff) }
    rr := httptest.NewRecorder()
    h.ServeHTTP(rr, req)
    return rr.Code
}

func TestRateLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
    cfg := testConfig()
    cfg.Server.RateRPS = 0.001
    cfg.Server.RateBurst = 2
    s := New(cfg, store.NewMemory(), events.NewBroker(), zerolog.Nop())
    defer s.Close()
    h := s.Routes()
    for i := 0; i < 6; i++ {
        want := http.StatusOK
        if i >= 2 { want = http.StatusTooManyRequests }
        if got := limitedGet(h, fmt.Sprintf("10.0.0.%d", i)); got != want { t.Fatalf("request %d: got %d, want %d", i, got, want) }
    }
    s.limiter.mu.Lock()
    n := len(s.limiter.visitors)
    s.limiter.mu.Unlock()
    if n != 1 { t.Fatalf("visitors = %d, want 1", n) }
}

func TestRateLimitTrustedProxyForwardsClient(t *testing.T) {
    cfg := testConfig()
    cfg.Server.RateRPS = 0.001
    cfg.Server.RateBurst = 2
    cfg.Server.TrustedProxies = []string{"192.0.2.0/24"}
    s := New(cfg, store.NewMemory(), events.NewBroker(), zerolog.Nop())
    defer s.Close()
    h := s.Routes()
    for i := 0; i < 4; i++ {
        if got := limitedGet(h, fmt.Sprintf("10.0.1.%d", i)); got != http.StatusOK { t.Fatalf("client %d: got %d", i, got) }
    }
    // the right-most untrusted hop is the client, whatever it claims further left
    codes := []int{
        limitedGet(h, "10.0.0.9"),
        limitedGet(h, "198.51.100.7, 10.0.0.9"),
        limitedGet(h, "10.0.0.9, 192.0.2.50"),
    }
    want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
    for i := range codes {
        if codes[i] != want[i] { t.Fatalf("request %d: got %d, want %d", i, codes[i], want[i]) }
    }
}

func TestRouteLabel(t *testing.T) {
    cases := map[string]string{
        "/v1/orders":                        "/v1/orders",
        "/v1/orders/abc":                    "/v1/orders/{id}",
        "/v1/vehicles/d1/events/stream":     "/v1/vehicles/{id}/events/stream",
        "/v1/vehicles/d1/complete":          "/v1/vehicles/{id}/complete",
    }
    for in, want := range cases {
        if got := routeLabel(in); got != want { t.Fatalf("routeLabel(%q) = %q, want %q", in, got, want) }
    }
}

