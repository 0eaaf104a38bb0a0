package opt

import (
	"math"

	"dronedispatch/internal/geo"
	"dronedispatch/internal/model"
)

// Route is an ordered depot-to-depot visiting plan.
type Route struct {
	Stops      []model.RouteStop `json:"stops"`
	Distance   float64           `json:"distance"`
	ETAMinutes int               `json:"etaMinutes"`
}

// OrderIDs lists the delivery stops in visiting order.
func (r Route) OrderIDs() []string {
	ids := make([]string, 0, len(r.Stops))
	for _, s := range r.Stops {
		if s.Kind == model.StopDelivery {
			ids = append(ids, s.OrderID)
		}
	}
	return ids
}

// ETAMinutes converts a route distance into whole minutes at speed.
func ETAMinutes(distance, speed float64) int {
	if speed <= 0 {
		return 0
	}
	return int(math.Round(distance / speed * 60))
}

// BuildRoute orders deliveries with a priority-weighted nearest neighbour walk
// from the depot and back. Each step picks the unvisited order with the lowest
// distance*RouteWeight; the first candidate in input order wins ties.
func BuildRoute(depot geo.Point, orders []*model.Order, speed float64) Route {
	stops := make([]model.RouteStop, 0, len(orders)+2)
	stops = append(stops, model.RouteStop{Point: depot, Kind: model.StopDepot})
	if len(orders) == 0 {
		return Route{Stops: stops}
	}
	visited := make([]bool, len(orders))
	current := depot
	for range orders {
		best, bestScore := -1, math.Inf(1)
		for j, o := range orders {
			if visited[j] {
				continue
			}
			if s := geo.Distance(current, o.Location) * o.Priority.RouteWeight(); s < bestScore {
				best, bestScore = j, s
			}
		}
		visited[best] = true
		o := orders[best]
		stops = append(stops, model.RouteStop{Point: o.Location, Kind: model.StopDelivery, OrderID: o.ID})
		current = o.Location
	}
	stops = append(stops, model.RouteStop{Point: depot, Kind: model.StopDepot})
	d := geo.PathLength(model.Points(stops))
	return Route{Stops: stops, Distance: d, ETAMinutes: ETAMinutes(d, speed)}
}

// PlanRoute builds and then 2-opt improves the route for orders from the configured depot.
func (e *Engine) PlanRoute(orders []*model.Order) Route {
	return ImproveRoute(BuildRoute(e.cfg.Depot, orders, e.cfg.Speed), e.cfg.Speed)
}
