package model

import (
    "time"

    "dronedispatch/internal/geo"
)

// Priority ranks how urgently an order should be served.
type Priority string

const (
    PriorityHigh   Priority = "high"
    PriorityMedium Priority = "medium"
    PriorityLow    Priority = "low"
)

// Score is the ordinal used when sorting orders (high=3, medium=2, low=1).
func (p Priority) Score() int {
    switch p {
    case PriorityHigh:
        return 3
    case PriorityMedium:
        return 2
    default:
        return 1
    }
}

// RouteWeight scales leg distances during route construction; lower values pull an order earlier.
func (p Priority) RouteWeight() float64 {
    switch p {
    case PriorityHigh:
        return 0.7
    case PriorityMedium:
        return 0.85
    default:
        return 1.0
    }
}

type OrderStatus string

const (
    OrderPending   OrderStatus = "pending"
    OrderAssigned  OrderStatus = "assigned"
    OrderDelivered OrderStatus = "delivered"
    OrderCancelled OrderStatus = "cancelled"
)

type VehicleStatus string

const (
    VehicleIdle       VehicleStatus = "idle"
    VehicleLoading    VehicleStatus = "loading"
    VehicleInTransit  VehicleStatus = "in_transit"
    VehicleDelivering VehicleStatus = "delivering"
    VehicleReturning  VehicleStatus = "returning"
)

type StopKind string

const (
    StopDepot    StopKind = "depot"
    StopDelivery StopKind = "delivery"
)

// Order is a single parcel waiting for, or assigned to, a vehicle.
type Order struct {
    ID              string      `json:"id" yaml:"id"`
    Location        geo.Point   `json:"location" yaml:"location"`
    Weight          float64     `json:"weight" yaml:"weight"`
    Priority        Priority    `json:"priority" yaml:"priority"`
    Status          OrderStatus `json:"status" yaml:"status"`
    CreatedAt       time.Time   `json:"createdAt" yaml:"createdAt"`
    AssignedVehicle string      `json:"assignedVehicle,omitempty" yaml:"assignedVehicle,omitempty"`
    Customer        string      `json:"customer,omitempty" yaml:"customer,omitempty"`
}

// WaitingMinutes is how long the order has been waiting at now. Never negative.
func (o *Order) WaitingMinutes(now time.Time) float64 {
    if o.CreatedAt.IsZero() || now.Before(o.CreatedAt) { return 0 }
    return now.Sub(o.CreatedAt).Minutes()
}

// Vehicle is a drone with its current plan.
type Vehicle struct {
    ID             string        `json:"id" yaml:"id"`
    Name           string        `json:"name,omitempty" yaml:"name,omitempty"`
    Capacity       float64       `json:"capacity" yaml:"capacity"`
    Range          float64       `json:"range" yaml:"range"`
    CurrentLoad    float64       `json:"currentLoad" yaml:"currentLoad"`
    BatteryPct     float64       `json:"batteryPct" yaml:"batteryPct"`
    Position       geo.Point     `json:"position" yaml:"position"`
    Status         VehicleStatus `json:"status" yaml:"status"`
    AssignedOrders []string      `json:"assignedOrders" yaml:"assignedOrders,omitempty"`
    Route          []RouteStop   `json:"route,omitempty" yaml:"route,omitempty"`
    RouteDistance  float64       `json:"routeDistance" yaml:"routeDistance,omitempty"`
    TotalDistance  float64       `json:"totalDistance" yaml:"totalDistance,omitempty"`
    Deliveries     int           `json:"deliveries" yaml:"deliveries,omitempty"`
}

// RouteStop is one visit on a route. OrderID is set for deliveries only.
type RouteStop struct {
    Point   geo.Point `json:"point" yaml:"point"`
    Kind    StopKind  `json:"kind" yaml:"kind"`
    OrderID string    `json:"orderId,omitempty" yaml:"orderId,omitempty"`
}

// Points strips stop metadata.
func Points(stops []RouteStop) []geo.Point {
    out := make([]geo.Point, len(stops))
    for i, s := range stops { out[i] = s.Point }
    return out
}

// VehiclePlan is the per-vehicle part of an AssignmentResult.
type VehiclePlan struct {
    VehicleID  string      `json:"vehicleId"`
    OrderIDs   []string    `json:"orderIds"`
    Route      []RouteStop `json:"route"`
    Distance   float64     `json:"distance"`
    ETAMinutes int         `json:"etaMinutes"`
    Load       float64     `json:"load"`
}

// Rejection records an order excluded from a batch before scoring.
type Rejection struct {
    ID     string `json:"id"`
    Reason string `json:"reason"`
}

// AssignmentResult is the outcome of one optimize call.
type AssignmentResult struct {
    Success         bool          `json:"success"`
    Reason          string        `json:"reason,omitempty"`
    Strategy        string        `json:"strategy"`
    Plans           []VehiclePlan `json:"plans"`
    Assigned        int           `json:"assigned"`
    UnassignedCount int           `json:"unassignedCount"`
    Unassigned      []string      `json:"unassigned,omitempty"`
    Rejected        []Rejection   `json:"rejected,omitempty"`
    Efficiency      float64       `json:"efficiency"`
    TotalDistance   float64       `json:"totalDistance"`
}

// Request payloads

type OrderIn struct {
    ID        string     `json:"id,omitempty" yaml:"id,omitempty"`
    Location  geo.Point  `json:"location" yaml:"location"`
    Weight    float64    `json:"weight" yaml:"weight" validate:"gt=0"`
    Priority  Priority   `json:"priority,omitempty" yaml:"priority,omitempty" validate:"omitempty,oneof=high medium low"`
    CreatedAt *time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
    Customer  string     `json:"customer,omitempty" yaml:"customer,omitempty" validate:"max=120"`
}

type VehicleIn struct {
    ID          string     `json:"id,omitempty" yaml:"id,omitempty"`
    Name        string     `json:"name,omitempty" yaml:"name,omitempty" validate:"max=64"`
    Capacity    float64    `json:"capacity" yaml:"capacity" validate:"gt=0"`
    Range       float64    `json:"range" yaml:"range" validate:"gt=0"`
    CurrentLoad float64    `json:"currentLoad,omitempty" yaml:"currentLoad,omitempty" validate:"gte=0"`
    BatteryPct  *float64   `json:"batteryPct,omitempty" yaml:"batteryPct,omitempty" validate:"omitempty,gte=0,lte=100"`
    Position    *geo.Point `json:"position,omitempty" yaml:"position,omitempty"`
}

type CreateOrdersRequest struct {
    Orders []OrderIn `json:"orders" validate:"required,min=1,dive"`
}

type CreateVehiclesRequest struct {
    Vehicles []VehicleIn `json:"vehicles" validate:"required,min=1,dive"`
}

type OrderStatusUpdate struct {
    Status OrderStatus `json:"status" validate:"required,oneof=delivered cancelled"`
}

type OptimizeRequest struct {
    Strategy    string   `json:"strategy,omitempty"`
    MaxDistance *float64 `json:"maxDistance,omitempty" validate:"omitempty,gt=0"`
    Seed        *int64   `json:"seed,omitempty"`
}

// PlanMetrics summarises one dispatch run for the admin endpoints.
type PlanMetrics struct {
    ID            string    `json:"id"`
    Strategy      string    `json:"strategy"`
    RanAt         time.Time `json:"ranAt"`
    Orders        int       `json:"orders"`
    Vehicles      int       `json:"vehicles"`
    Assigned      int       `json:"assigned"`
    Unassigned    int       `json:"unassigned"`
    Rejected      int       `json:"rejected"`
    Efficiency    float64   `json:"efficiency"`
    TotalDistance float64   `json:"totalDistance"`
    DurationMs    int64     `json:"durationMs"`
}
