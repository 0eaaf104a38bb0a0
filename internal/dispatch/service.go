// Package dispatch wires the optimizer to the store, the event broker and the
// metrics registry. It is the single writer the engine expects: every run goes
// through Store.Dispatch.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/rs/zerolog"

	"dronedispatch/internal/events"
	"dronedispatch/internal/geo"
	"dronedispatch/internal/metrics"
	"dronedispatch/internal/model"
	"dronedispatch/internal/opt"
	"dronedispatch/internal/store"
)

// AutoStrategyName asks the service to pick a strategy from the current backlog.
const AutoStrategyName = "auto"

var ErrNoRoute = errors.New("vehicle has no planned route")

type Service struct {
	Store  store.Store
	Engine *opt.Engine
	Events events.EventBroker
	Log    zerolog.Logger

	now func() time.Time
}

func NewService(st store.Store, eng *opt.Engine, ev events.EventBroker, log zerolog.Logger) *Service {
	if ev == nil {
		ev = events.NewBroker()
	}
	return &Service{Store: st, Engine: eng, Events: ev, Log: log, now: time.Now}
}

type OptimizeParams struct {
	Strategy    string
	MaxDistance float64
	Seed        *int64
}

// Optimize runs one dispatch over every pending order and idle vehicle.
func (s *Service) Optimize(ctx context.Context, p OptimizeParams) (model.AssignmentResult, error) {
	var fixed opt.Strategy
	switch p.Strategy {
	case AutoStrategyName:
	case "":
		fixed = s.Engine.Config().DefaultStrategy
	default:
		st, err := opt.ParseStrategy(p.Strategy)
		if err != nil {
			return model.AssignmentResult{}, err
		}
		fixed = st
	}

	var (
		res               model.AssignmentResult
		strategy          = fixed
		nOrders, nVehicle int
	)
	start := time.Now()
	err := s.Store.Dispatch(ctx, func(orders []*model.Order, vehicles []*model.Vehicle) error {
		nOrders, nVehicle = len(orders), len(vehicles)
		if strategy == "" {
			strategy = AutoStrategy(orders, vehicles)
		}
		var err error
		res, err = s.Engine.OptimizeContext(ctx, opt.Request{
			Orders:      orders,
			Vehicles:    vehicles,
			Strategy:    strategy,
			MaxDistance: p.MaxDistance,
			Seed:        p.Seed,
			Now:         s.now(),
		})
		return err
	})
	elapsed := time.Since(start)
	label := string(strategy)
	if label == "" {
		label = "unknown"
	}
	if err != nil {
		metrics.OptimizeRuns.WithLabelValues(label, "error").Inc()
		s.Log.Error().Err(err).Str("strategy", label).Msg("dispatch failed")
		return res, fmt.Errorf("optimize: %w", err)
	}

	outcome := "assigned"
	if !res.Success {
		outcome = "empty"
	}
	metrics.OptimizeRuns.WithLabelValues(label, outcome).Inc()
	metrics.OptimizeDuration.WithLabelValues(label).Observe(elapsed.Seconds())
	metrics.OrdersAssigned.WithLabelValues(label).Add(float64(res.Assigned))
	metrics.OrdersUnassigned.WithLabelValues(label).Add(float64(res.UnassignedCount))
	metrics.Efficiency.WithLabelValues(label).Set(res.Efficiency)
	for _, pl := range res.Plans {
		metrics.RouteDistance.Observe(pl.Distance)
	}
	opt.RecordRun(strategy, opt.RunStats{
		Assigned:   res.Assigned,
		Unassigned: res.UnassignedCount,
		Efficiency: res.Efficiency,
		Distance:   res.TotalDistance,
		Duration:   elapsed,
		At:         s.now(),
	})
	if res.Success {
		pm := model.PlanMetrics{
			Strategy:      label,
			RanAt:         s.now().UTC(),
			Orders:        nOrders,
			Vehicles:      nVehicle,
			Assigned:      res.Assigned,
			Unassigned:    res.UnassignedCount,
			Rejected:      len(res.Rejected),
			Efficiency:    res.Efficiency,
			TotalDistance: res.TotalDistance,
			DurationMs:    elapsed.Milliseconds(),
		}
		if err := s.Store.SavePlanMetrics(ctx, pm); err != nil {
			s.Log.Warn().Err(err).Msg("save plan metrics")
		}
	}
	for _, pl := range res.Plans {
		s.publish(pl.VehicleID, events.Event{Type: events.VehicleAssigned, Data: map[string]any{
			"vehicleId":  pl.VehicleID,
			"orderIds":   pl.OrderIDs,
			"distance":   pl.Distance,
			"etaMinutes": pl.ETAMinutes,
			"strategy":   label,
		}})
	}

	ev := s.Log.Info()
	if !res.Success {
		ev = s.Log.Warn().Str("reason", res.Reason)
	}
	ev.Str("strategy", label).
		Int("orders", nOrders).
		Int("vehicles", nVehicle).
		Int("assigned", res.Assigned).
		Int("unassigned", res.UnassignedCount).
		Int("rejected", len(res.Rejected)).
		Float64("efficiency", res.Efficiency).
		Dur("duration", elapsed).
		Msg("dispatch run")
	return res, nil
}

// AutoStrategy picks a strategy from the shape of the backlog: urgent-heavy
// backlogs go priority first, deep backlogs pack vehicles, moderately deep ones
// split by area.
func AutoStrategy(orders []*model.Order, vehicles []*model.Vehicle) opt.Strategy {
	if len(orders) == 0 || len(vehicles) == 0 {
		return opt.BalancedOptimization
	}
	high := 0
	for _, o := range orders {
		if o.Priority == model.PriorityHigh {
			high++
		}
	}
	switch n, v := len(orders), len(vehicles); {
	case float64(high)/float64(n) > 0.5:
		return opt.PriorityFirst
	case n > 3*v:
		return opt.CapacityOptimization
	case n >= 2*v:
		return opt.DistanceOptimization
	default:
		return opt.BalancedOptimization
	}
}

// CreateOrders fills defaults and stores the orders as pending.
func (s *Service) CreateOrders(ctx context.Context, in []model.OrderIn) ([]model.Order, error) {
	orders := make([]model.Order, 0, len(in))
	for _, o := range in {
		prio, ok := model.ParsePriority(string(o.Priority))
		if !ok {
			return nil, fmt.Errorf("order %q: unknown priority %q", o.ID, o.Priority)
		}
		ord := model.Order{ID: o.ID, Location: o.Location, Weight: o.Weight, Priority: prio, Customer: o.Customer}
		if o.CreatedAt != nil {
			ord.CreatedAt = o.CreatedAt.UTC()
		}
		orders = append(orders, ord)
	}
	return s.Store.CreateOrders(ctx, orders)
}

// CreateVehicles registers idle vehicles. Missing positions default to the depot
// and missing battery levels to a full charge.
func (s *Service) CreateVehicles(ctx context.Context, in []model.VehicleIn) ([]model.Vehicle, error) {
	depot := s.Engine.Config().Depot
	vehicles := make([]model.Vehicle, 0, len(in))
	for _, v := range in {
		veh := model.Vehicle{
			ID:          v.ID,
			Name:        v.Name,
			Capacity:    v.Capacity,
			Range:       v.Range,
			CurrentLoad: v.CurrentLoad,
			BatteryPct:  100,
			Position:    depot,
			Status:      model.VehicleIdle,
		}
		if v.BatteryPct != nil {
			veh.BatteryPct = *v.BatteryPct
		}
		if v.Position != nil {
			veh.Position = *v.Position
		}
		vehicles = append(vehicles, veh)
	}
	return s.Store.CreateVehicles(ctx, vehicles)
}

func (s *Service) SetOrderStatus(ctx context.Context, id string, status model.OrderStatus) (model.Order, error) {
	before, err := s.Store.GetOrder(ctx, id)
	if err != nil {
		return model.Order{}, err
	}
	o, err := s.Store.SetOrderStatus(ctx, id, status)
	if err != nil {
		return o, err
	}
	if before.AssignedVehicle != "" {
		s.publish(before.AssignedVehicle, events.Event{Type: "order." + string(status), Data: map[string]any{
			"orderId": id, "vehicleId": before.AssignedVehicle,
		}})
	}
	s.Log.Info().Str("order", id).Str("from", string(before.Status)).Str("to", string(status)).Msg("order status")
	return o, nil
}

// CompleteTrip lands a vehicle, delivering its remaining orders and draining
// battery for the flown route.
func (s *Service) CompleteTrip(ctx context.Context, vehicleID string) (model.Vehicle, []string, error) {
	rate := s.Engine.Config().BatteryRate
	v, delivered, err := s.Store.CompleteTrip(ctx, vehicleID, func(d float64) float64 { return opt.RequiredBattery(d, rate) })
	if err != nil {
		return v, nil, err
	}
	s.publish(vehicleID, events.Event{Type: events.VehicleReturned, Data: map[string]any{
		"vehicleId": vehicleID, "delivered": delivered, "batteryPct": v.BatteryPct,
	}})
	s.Log.Info().Str("vehicle", vehicleID).Int("delivered", len(delivered)).Float64("battery", v.BatteryPct).Msg("trip complete")
	return v, delivered, nil
}

// Simulate returns the movement samples for a vehicle's planned route.
func (s *Service) Simulate(ctx context.Context, vehicleID string, step time.Duration) (iter.Seq[opt.Sample], error) {
	v, err := s.Store.GetVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if len(v.Route) == 0 {
		return nil, fmt.Errorf("vehicle %s: %w", vehicleID, ErrNoRoute)
	}
	speed := s.Engine.Config().Speed
	if err := opt.CheckStep(v.Route, speed, step); err != nil {
		return nil, fmt.Errorf("vehicle %s: %w", vehicleID, err)
	}
	return opt.Trajectory(v.Route, speed, step), nil
}

// InBounds reports whether p lies in the engine's service area.
func (s *Service) InBounds(p geo.Point) bool {
	return s.Engine.Config().Bounds.Contains(p)
}

func (s *Service) publish(topic string, evt events.Event) {
	s.Events.Publish(topic, evt)
	metrics.Events.WithLabelValues(evt.Type).Inc()
}
