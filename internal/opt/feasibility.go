package opt

import (
	"math"

	"dronedispatch/internal/geo"
	"dronedispatch/internal/model"
)

// tolerance absorbs float noise in load and distance sums.
const tolerance = 1e-9

// Verdict explains a feasibility decision. Err is nil when OK is true.
type Verdict struct {
	OK      bool
	Err     error
	Load    float64 // load after adding the candidates
	Trip    float64 // distance flown for the candidates, from the vehicle position back to the depot
	Battery float64 // battery percent the trip requires
	Route   Route
}

// RequiredBattery is the battery percentage a flight of distance needs, capped at 100.
func RequiredBattery(distance, rate float64) float64 {
	return math.Min(100, distance*rate)
}

// CanCarry reports whether v can take o on its next cycle.
func (e *Engine) CanCarry(v *model.Vehicle, o *model.Order) bool {
	return e.Check(v, []*model.Order{o}).OK
}

// CanCarryGroup reports whether v can take every order in orders on one cycle.
func (e *Engine) CanCarryGroup(v *model.Vehicle, orders []*model.Order) bool {
	return e.Check(v, orders).OK
}

// Check evaluates load, range and battery for v carrying orders. The stops are
// evaluated in the order the planned route would fly them, starting from the
// vehicle position; the depot-anchored route must fit the range as well.
func (e *Engine) Check(v *model.Vehicle, orders []*model.Order) Verdict {
	load := v.CurrentLoad
	for _, o := range orders {
		load += o.Weight
	}
	out := Verdict{Load: load}
	if load > v.Capacity+tolerance {
		out.Err = ErrCapacityExceeded
		return out
	}
	out.Route = e.PlanRoute(orders)
	out.Trip = tripFrom(v.Position, e.cfg.Depot, out.Route.Stops)
	need := math.Max(out.Trip, out.Route.Distance)
	out.Battery = RequiredBattery(need, e.cfg.BatteryRate)
	if need > v.Range+tolerance {
		out.Err = ErrRangeExceeded
		return out
	}
	if v.BatteryPct+tolerance < out.Battery {
		out.Err = ErrBatteryInsufficient
		return out
	}
	out.OK = true
	return out
}

// tripFrom measures position -> first delivery -> ... -> last delivery -> depot.
func tripFrom(pos, depot geo.Point, stops []model.RouteStop) float64 {
	var deliveries []geo.Point
	for _, s := range stops {
		if s.Kind == model.StopDelivery {
			deliveries = append(deliveries, s.Point)
		}
	}
	if len(deliveries) == 0 {
		return geo.Distance(pos, depot)
	}
	d := geo.Distance(pos, deliveries[0]) + geo.PathLength(deliveries)
	return d + geo.Distance(deliveries[len(deliveries)-1], depot)
}
