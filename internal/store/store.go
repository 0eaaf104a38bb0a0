package store

import (
    "context"
    "errors"

    "dronedispatch/internal/model"
)

// Store is the persistence interface used by the dispatch service.
type Store interface {
    // Orders
    CreateOrders(ctx context.Context, orders []model.Order) ([]model.Order, error)
    GetOrder(ctx context.Context, id string) (model.Order, error)
    ListOrders(ctx context.Context, status, cursor string, limit int) (items []model.Order, nextCursor string, err error)
    // SetOrderStatus applies a delivered or cancelled transition. Cancelling an
    // assigned order takes it off its vehicle's plan and load.
    SetOrderStatus(ctx context.Context, id string, status model.OrderStatus) (model.Order, error)

    // Vehicles
    CreateVehicles(ctx context.Context, vehicles []model.Vehicle) ([]model.Vehicle, error)
    GetVehicle(ctx context.Context, id string) (model.Vehicle, error)
    ListVehicles(ctx context.Context, status, cursor string, limit int) (items []model.Vehicle, nextCursor string, err error)
    // CompleteTrip closes a loading cycle: remaining orders are delivered and the
    // vehicle returns to idle at the end of its route. batteryUsed maps the flown
    // distance to the battery percentage drained.
    CompleteTrip(ctx context.Context, vehicleID string, batteryUsed func(distance float64) float64) (model.Vehicle, []string, error)

    // Dispatch loads pending orders and idle vehicles under exclusive write
    // access, runs fn on them and persists whatever fn changed. Nothing is
    // persisted when fn returns an error.
    Dispatch(ctx context.Context, fn DispatchFunc) error

    // Planner metrics
    SavePlanMetrics(ctx context.Context, m model.PlanMetrics) error
    ListPlanMetrics(ctx context.Context, strategy string, limit int) ([]model.PlanMetrics, error)

    Ping(ctx context.Context) error
}

// DispatchFunc receives working copies in creation order.
type DispatchFunc func(orders []*model.Order, vehicles []*model.Vehicle) error

var (
    ErrNotFound          = errors.New("not found")
    ErrInvalidTransition = errors.New("invalid status transition")
)

const defaultLimit = 100

func clampLimit(limit int) int {
    if limit <= 0 || limit > 500 { return defaultLimit }
    return limit
}

// dropStop removes an order's delivery stop from a route.
func dropStop(route []model.RouteStop, orderID string) []model.RouteStop {
    out := make([]model.RouteStop, 0, len(route))
    for _, s := range route {
        if s.Kind == model.StopDelivery && s.OrderID == orderID { continue }
        out = append(out, s)
    }
    return out
}

func removeID(ids []string, id string) []string {
    out := make([]string, 0, len(ids))
    for _, x := range ids {
        if x != id { out = append(out, x) }
    }
    return out
}
