package store

import (
    "context"
    "fmt"
    "math"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"

    "dronedispatch/internal/geo"
    "dronedispatch/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu         sync.Mutex
    orders     map[string]*model.Order   // id -> order
    orderIDs   []string                  // creation order
    vehicles   map[string]*model.Vehicle // id -> vehicle
    vehicleIDs []string                  // creation order
    planMx     []model.PlanMetrics
}

func NewMemory() *Memory {
    return &Memory{
        orders:   map[string]*model.Order{},
        vehicles: map[string]*model.Vehicle{},
    }
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) CreateOrders(ctx context.Context, orders []model.Order) ([]model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now().UTC()
    out := make([]model.Order, 0, len(orders))
    for _, o := range orders {
        if o.ID == "" { o.ID = uuid.New().String() }
        if _, dup := m.orders[o.ID]; dup { return nil, fmt.Errorf("create order %s: duplicate id", o.ID) }
        if o.CreatedAt.IsZero() { o.CreatedAt = now }
        o.Status = model.OrderPending
        o.AssignedVehicle = ""
        cp := o
        m.orders[o.ID] = &cp
        m.orderIDs = append(m.orderIDs, o.ID)
        out = append(out, o)
    }
    return out, nil
}

func (m *Memory) GetOrder(ctx context.Context, id string) (model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    o, ok := m.orders[id]
    if !ok { return model.Order{}, ErrNotFound }
    return *o, nil
}

func (m *Memory) ListOrders(ctx context.Context, status, cursor string, limit int) ([]model.Order, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    limit = clampLimit(limit)
    start := 0
    if cursor != "" {
        for i, id := range m.orderIDs {
            if id == cursor { start = i + 1; break }
        }
    }
    out := []model.Order{}
    var next string
    for i := start; i < len(m.orderIDs) && len(out) < limit; i++ {
        o := m.orders[m.orderIDs[i]]
        if status == "" || string(o.Status) == status { out = append(out, *o) }
        next = m.orderIDs[i]
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) SetOrderStatus(ctx context.Context, id string, status model.OrderStatus) (model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    o, ok := m.orders[id]
    if !ok { return model.Order{}, ErrNotFound }
    if !o.Status.CanTransition(status) || status == model.OrderAssigned {
        return *o, fmt.Errorf("order %s %s -> %s: %w", id, o.Status, status, ErrInvalidTransition)
    }
    if status == model.OrderCancelled && o.AssignedVehicle != "" {
        if v := m.vehicles[o.AssignedVehicle]; v != nil {
            v.AssignedOrders = removeID(v.AssignedOrders, id)
            v.CurrentLoad = math.Max(0, v.CurrentLoad-o.Weight)
            v.Route = dropStop(v.Route, id)
            v.RouteDistance = geo.PathLength(model.Points(v.Route))
            if len(v.AssignedOrders) == 0 && v.Status == model.VehicleLoading {
                v.Status = model.VehicleIdle
                v.Route = nil
                v.RouteDistance = 0
            }
        }
        o.AssignedVehicle = ""
    }
    o.Status = status
    return *o, nil
}

func (m *Memory) CreateVehicles(ctx context.Context, vehicles []model.Vehicle) ([]model.Vehicle, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := make([]model.Vehicle, 0, len(vehicles))
    for _, v := range vehicles {
        if v.ID == "" { v.ID = uuid.New().String() }
        if _, dup := m.vehicles[v.ID]; dup { return nil, fmt.Errorf("create vehicle %s: duplicate id", v.ID) }
        if v.Status == "" { v.Status = model.VehicleIdle }
        if v.AssignedOrders == nil { v.AssignedOrders = []string{} }
        cp := v
        m.vehicles[v.ID] = &cp
        m.vehicleIDs = append(m.vehicleIDs, v.ID)
        out = append(out, v)
    }
    return out, nil
}

func (m *Memory) GetVehicle(ctx context.Context, id string) (model.Vehicle, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    v, ok := m.vehicles[id]
    if !ok { return model.Vehicle{}, ErrNotFound }
    return cloneVehicle(v), nil
}

func (m *Memory) ListVehicles(ctx context.Context, status, cursor string, limit int) ([]model.Vehicle, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    limit = clampLimit(limit)
    start := 0
    if cursor != "" {
        for i, id := range m.vehicleIDs {
            if id == cursor { start = i + 1; break }
        }
    }
    out := []model.Vehicle{}
    var next string
    for i := start; i < len(m.vehicleIDs) && len(out) < limit; i++ {
        v := m.vehicles[m.vehicleIDs[i]]
        if status == "" || string(v.Status) == status { out = append(out, cloneVehicle(v)) }
        next = m.vehicleIDs[i]
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) CompleteTrip(ctx context.Context, vehicleID string, batteryUsed func(float64) float64) (model.Vehicle, []string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    v, ok := m.vehicles[vehicleID]
    if !ok { return model.Vehicle{}, nil, ErrNotFound }
    if v.Status == model.VehicleIdle {
        return cloneVehicle(v), nil, fmt.Errorf("vehicle %s has no trip in progress: %w", vehicleID, ErrInvalidTransition)
    }
    delivered := []string{}
    for _, id := range v.AssignedOrders {
        o := m.orders[id]
        if o == nil { continue }
        if o.Status == model.OrderAssigned { o.Status = model.OrderDelivered }
        if o.Status == model.OrderDelivered { delivered = append(delivered, id) }
    }
    finishTrip(v, len(delivered), batteryUsed)
    return cloneVehicle(v), delivered, nil
}

// Dispatch holds the store lock for the whole call, so fn sees a consistent
// snapshot and no other writer interleaves.
func (m *Memory) Dispatch(ctx context.Context, fn DispatchFunc) error {
    m.mu.Lock(); defer m.mu.Unlock()
    var orders []*model.Order
    for _, id := range m.orderIDs {
        if o := m.orders[id]; o.Status == model.OrderPending { cp := *o; orders = append(orders, &cp) }
    }
    var vehicles []*model.Vehicle
    for _, id := range m.vehicleIDs {
        if v := m.vehicles[id]; v.Status == model.VehicleIdle { cp := cloneVehicle(v); vehicles = append(vehicles, &cp) }
    }
    if err := fn(orders, vehicles); err != nil { return err }
    if err := ctx.Err(); err != nil { return err }
    for _, o := range orders { m.orders[o.ID] = o }
    for _, v := range vehicles { m.vehicles[v.ID] = v }
    return nil
}

func (m *Memory) SavePlanMetrics(ctx context.Context, pm model.PlanMetrics) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if pm.ID == "" { pm.ID = uuid.New().String() }
    m.planMx = append(m.planMx, pm)
    return nil
}

// ListPlanMetrics returns the newest runs first.
func (m *Memory) ListPlanMetrics(ctx context.Context, strategy string, limit int) ([]model.PlanMetrics, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    limit = clampLimit(limit)
    out := []model.PlanMetrics{}
    for _, it := range m.planMx {
        if strategy == "" || it.Strategy == strategy { out = append(out, it) }
    }
    sort.SliceStable(out, func(i, j int) bool { return out[i].RanAt.After(out[j].RanAt) })
    if len(out) > limit { out = out[:limit] }
    return out, nil
}

func cloneVehicle(v *model.Vehicle) model.Vehicle {
    cp := *v
    cp.AssignedOrders = append([]string{}, v.AssignedOrders...)
    if v.Route != nil { cp.Route = append([]model.RouteStop(nil), v.Route...) }
    return cp
}

// finishTrip resets a vehicle after its cycle and books the flown distance.
func finishTrip(v *model.Vehicle, delivered int, batteryUsed func(float64) float64) {
    if n := len(v.Route); n > 0 { v.Position = v.Route[n-1].Point }
    if batteryUsed != nil { v.BatteryPct = math.Max(0, v.BatteryPct-batteryUsed(v.RouteDistance)) }
    v.TotalDistance += v.RouteDistance
    v.Deliveries += delivered
    v.CurrentLoad = 0
    v.AssignedOrders = []string{}
    v.Route = nil
    v.RouteDistance = 0
    v.Status = model.VehicleIdle
}
