package opt

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"time"

	"dronedispatch/internal/geo"
	"dronedispatch/internal/model"
)

// Engine assigns pending orders to idle vehicles and plans their routes.
// It holds configuration only; every call works on the snapshot it is given.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults()}
}

// Config returns the effective configuration, defaults applied.
func (e *Engine) Config() Config { return e.cfg }

// Request is the input of one optimize call.
type Request struct {
	Orders      []*model.Order
	Vehicles    []*model.Vehicle
	Strategy    Strategy
	MaxDistance float64 // caps depot-to-order distance when > 0
	Seed        *int64  // overrides Config.Seed for clustering
	Now         time.Time
}

// slot tracks what one vehicle has been given during a call.
type slot struct {
	v      *model.Vehicle
	orders []*model.Order
	load   float64
	route  Route
}

func (s *slot) add(o *model.Order) {
	s.orders = append(s.orders, o)
	s.load += o.Weight
}

type run struct {
	now   time.Time
	rng   *rand.Rand
	slots []*slot
}

// Optimize is OptimizeContext without cancellation. Unknown strategies yield a
// non-success result.
func (e *Engine) Optimize(req Request) model.AssignmentResult {
	res, _ := e.OptimizeContext(context.Background(), req)
	return res
}

// OptimizeContext runs one assignment pass. ctx is checked between stages
// (admission, grouping, matching, routing); a cancelled call returns ctx.Err()
// and leaves the inputs untouched, since mutations are applied only once every
// stage has finished.
func (e *Engine) OptimizeContext(ctx context.Context, req Request) (model.AssignmentResult, error) {
	strategy := req.Strategy
	if strategy == "" {
		strategy = e.cfg.DefaultStrategy
	}
	res := model.AssignmentResult{Strategy: string(strategy), Plans: []model.VehiclePlan{}}
	if !strategy.Valid() {
		res.Reason = fmt.Sprintf("%v: %q", ErrUnknownStrategy, strategy)
		return res, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	var orders []*model.Order
	for _, o := range req.Orders {
		if o != nil && o.Status == model.OrderPending {
			orders = append(orders, o)
		}
	}
	var vehicles []*model.Vehicle
	for _, v := range req.Vehicles {
		if v != nil && v.Status == model.VehicleIdle {
			vehicles = append(vehicles, v)
		}
	}
	total := len(orders)
	res.UnassignedCount = total
	if total == 0 {
		res.Reason = fmt.Sprintf("%v: no pending orders", ErrEmptyInput)
		return res, nil
	}
	if len(vehicles) == 0 {
		res.Reason = fmt.Sprintf("%v: no idle vehicles", ErrEmptyInput)
		res.Unassigned = orderIDs(orders)
		return res, nil
	}

	// Admission: geometry first, then the depot distance cap.
	var admitted, held []*model.Order
	for _, o := range orders {
		switch {
		case !e.cfg.Bounds.Contains(o.Location):
			res.Rejected = append(res.Rejected, model.Rejection{ID: o.ID, Reason: ErrInvalidGeometry.Error()})
		case req.MaxDistance > 0 && geo.Distance(e.cfg.Depot, o.Location) > req.MaxDistance:
			held = append(held, o)
		default:
			admitted = append(admitted, o)
		}
	}
	r := &run{now: req.Now}
	if r.now.IsZero() {
		r.now = time.Now()
	}
	seed := e.cfg.Seed
	if req.Seed != nil {
		seed = *req.Seed
	}
	r.rng = rand.New(rand.NewSource(seed))
	for _, v := range vehicles {
		if !e.cfg.Bounds.Contains(v.Position) {
			res.Rejected = append(res.Rejected, model.Rejection{ID: v.ID, Reason: "vehicle " + ErrInvalidGeometry.Error()})
			continue
		}
		r.slots = append(r.slots, &slot{v: v, load: v.CurrentLoad})
	}
	if len(r.slots) == 0 {
		res.Reason = fmt.Sprintf("%v: no vehicle inside service bounds", ErrEmptyInput)
		res.Unassigned = orderIDs(orders)
		return res, nil
	}
	if len(admitted) == 0 {
		res.Reason = fmt.Sprintf("%v: no admissible orders", ErrEmptyInput)
		res.Unassigned = orderIDs(orders)
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	var err error
	switch strategy {
	case PriorityFirst:
		e.greedyMatch(r, e.sortPriorityFirst(r, admitted))
	case CapacityOptimization:
		e.assignByCapacity(r, admitted)
	case DistanceOptimization:
		err = e.assignByDistance(ctx, r, admitted)
	case BalancedOptimization:
		e.greedyMatch(r, e.sortBalanced(r, admitted))
	}
	if err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	for _, s := range r.slots {
		if len(s.orders) > 0 {
			s.route = e.PlanRoute(s.orders)
		}
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	assigned := map[string]bool{}
	for _, s := range r.slots {
		if len(s.orders) == 0 {
			continue
		}
		e.commit(s)
		for _, o := range s.orders {
			assigned[o.ID] = true
		}
		res.Plans = append(res.Plans, model.VehiclePlan{
			VehicleID:  s.v.ID,
			OrderIDs:   slices.Clone(s.v.AssignedOrders),
			Route:      slices.Clone(s.route.Stops),
			Distance:   s.route.Distance,
			ETAMinutes: s.route.ETAMinutes,
			Load:       s.load,
		})
		res.TotalDistance += s.route.Distance
	}
	// Rejected and held orders stay pending, so they are listed too.
	for _, o := range orders {
		if !assigned[o.ID] {
			res.Unassigned = append(res.Unassigned, o.ID)
		}
	}
	res.Success = true
	res.Assigned = len(assigned)
	res.UnassignedCount = total - res.Assigned
	res.Efficiency = float64(res.Assigned) / float64(total)
	return res, nil
}

// commit applies a slot's plan to its vehicle and orders.
func (e *Engine) commit(s *slot) {
	byID := make(map[string]*model.Order, len(s.orders))
	for _, o := range s.orders {
		byID[o.ID] = o
	}
	v := s.v
	v.AssignedOrders = s.route.OrderIDs()
	v.Route = s.route.Stops
	v.RouteDistance = s.route.Distance
	v.CurrentLoad = s.load
	v.Status = model.VehicleLoading
	for _, id := range v.AssignedOrders {
		o := byID[id]
		o.Status = model.OrderAssigned
		o.AssignedVehicle = v.ID
	}
}

func orderIDs(orders []*model.Order) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}
