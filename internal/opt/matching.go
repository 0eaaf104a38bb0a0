package opt

import (
	"context"
	"math"
	"slices"
	"sort"

	"dronedispatch/internal/geo"
	"dronedispatch/internal/model"
)

// canAdd checks the vehicle against everything it already holds in this call plus o.
func (e *Engine) canAdd(s *slot, o *model.Order) bool {
	group := append(slices.Clone(s.orders), o)
	return e.CanCarryGroup(s.v, group)
}

// assignmentScore favours full, well-charged, nearby vehicles.
func (e *Engine) assignmentScore(s *slot, o *model.Order) float64 {
	util := 0.0
	if s.v.Capacity > 0 {
		util = (s.load + o.Weight) / s.v.Capacity
	}
	battery := s.v.BatteryPct / 100
	return util * battery / (geo.Distance(s.v.Position, o.Location) + e.cfg.Scoring.DistanceOffset)
}

// greedyMatch walks orders once and gives each to the best feasible vehicle.
// There is no backtracking: an early choice is never revisited to make room
// for a later order.
func (e *Engine) greedyMatch(r *run, orders []*model.Order) {
	for _, o := range orders {
		var best *slot
		bestScore := math.Inf(-1)
		for _, s := range r.slots {
			if !e.canAdd(s, o) {
				continue
			}
			if sc := e.assignmentScore(s, o); sc > bestScore {
				best, bestScore = s, sc
			}
		}
		if best != nil {
			best.add(o)
		}
	}
}

func (e *Engine) sortPriorityFirst(r *run, orders []*model.Order) []*model.Order {
	out := slices.Clone(orders)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Priority.Score(), out[j].Priority.Score()
		if pi != pj {
			return pi > pj
		}
		return out[i].WaitingMinutes(r.now) > out[j].WaitingMinutes(r.now)
	})
	return out
}

// balancedScore mixes priority, capped waiting time and proximity to the nearest vehicle.
func (e *Engine) balancedScore(r *run, o *model.Order) float64 {
	sc := e.cfg.Scoring
	nearest := math.Inf(1)
	for _, s := range r.slots {
		nearest = math.Min(nearest, geo.Distance(s.v.Position, o.Location))
	}
	wait := math.Min(o.WaitingMinutes(r.now)*sc.WaitFactor, sc.WaitCap)
	return float64(o.Priority.Score())*sc.PriorityFactor + wait - sc.DistancePenalty*nearest
}

func (e *Engine) sortBalanced(r *run, orders []*model.Order) []*model.Order {
	scores := make(map[*model.Order]float64, len(orders))
	for _, o := range orders {
		scores[o] = e.balancedScore(r, o)
	}
	out := slices.Clone(orders)
	sort.SliceStable(out, func(i, j int) bool { return scores[out[i]] > scores[out[j]] })
	return out
}

// efficiencyScore ranks orders for one vehicle in the capacity strategy.
func (e *Engine) efficiencyScore(r *run, v *model.Vehicle, o *model.Order) float64 {
	sc := e.cfg.Scoring
	bonus := math.Min(o.WaitingMinutes(r.now)/sc.WaitNormalizeMinutes, sc.WaitBonusCap)
	return (float64(o.Priority.Score()) + bonus) / (geo.Distance(v.Position, o.Location) + sc.DistanceOffset)
}

// assignByCapacity fills vehicles one at a time with the most efficient orders
// that fit, then keeps the subset only if the whole group is feasible.
func (e *Engine) assignByCapacity(r *run, orders []*model.Order) {
	remaining := slices.Clone(orders)
	for _, s := range r.slots {
		if len(remaining) == 0 {
			return
		}
		scores := make(map[*model.Order]float64, len(remaining))
		for _, o := range remaining {
			scores[o] = e.efficiencyScore(r, s.v, o)
		}
		ranked := slices.Clone(remaining)
		sort.SliceStable(ranked, func(i, j int) bool { return scores[ranked[i]] > scores[ranked[j]] })

		free := s.v.Capacity - s.load
		var subset []*model.Order
		sum := 0.0
		for _, o := range ranked {
			if sum+o.Weight <= free+tolerance {
				subset = append(subset, o)
				sum += o.Weight
			}
		}
		if len(subset) == 0 || !e.CanCarryGroup(s.v, subset) {
			continue
		}
		taken := make(map[*model.Order]bool, len(subset))
		for _, o := range subset {
			s.add(o)
			taken[o] = true
		}
		remaining = slices.DeleteFunc(remaining, func(o *model.Order) bool { return taken[o] })
	}
}

// assignByDistance pairs cluster i with vehicle i and fills each vehicle from
// its own cluster, highest priority first.
func (e *Engine) assignByDistance(ctx context.Context, r *run, orders []*model.Order) error {
	clusters := Cluster(orders, len(r.slots), e.cfg.KMeansIterations, r.rng)
	if err := ctx.Err(); err != nil {
		return err
	}
	for i, c := range clusters {
		if i >= len(r.slots) {
			break
		}
		sorted := slices.Clone(c)
		sort.SliceStable(sorted, func(a, b int) bool {
			return sorted[a].Priority.Score() > sorted[b].Priority.Score()
		})
		for _, o := range sorted {
			if e.canAdd(r.slots[i], o) {
				r.slots[i].add(o)
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}
