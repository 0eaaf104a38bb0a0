package opt

import (
	"fmt"
	"math/rand"
	"time"

	"dronedispatch/internal/geo"
	"dronedispatch/internal/model"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func order(id string, x, y, w float64, p model.Priority) *model.Order {
	return &model.Order{
		ID:        id,
		Location:  geo.Point{X: x, Y: y},
		Weight:    w,
		Priority:  p,
		Status:    model.OrderPending,
		CreatedAt: testNow.Add(-10 * time.Minute),
	}
}

func drone(id string, capacity, rng, battery float64) *model.Vehicle {
	return &model.Vehicle{
		ID:         id,
		Capacity:   capacity,
		Range:      rng,
		BatteryPct: battery,
		Position:   geo.Point{X: 10, Y: 10},
		Status:     model.VehicleIdle,
	}
}

// randomFleet builds a reproducible instance inside the default service area.
func randomFleet(seed int64, nOrders, nVehicles int) ([]*model.Order, []*model.Vehicle) {
	r := rand.New(rand.NewSource(seed))
	prios := []model.Priority{model.PriorityHigh, model.PriorityMedium, model.PriorityLow}
	orders := make([]*model.Order, nOrders)
	for i := range orders {
		o := order(fmt.Sprintf("o%d", i), r.Float64()*20, r.Float64()*20, 0.5+r.Float64()*3, prios[r.Intn(3)])
		o.CreatedAt = testNow.Add(-time.Duration(r.Intn(90)) * time.Minute)
		orders[i] = o
	}
	vehicles := make([]*model.Vehicle, nVehicles)
	for i := range vehicles {
		v := drone(fmt.Sprintf("v%d", i), 4+r.Float64()*6, 15+r.Float64()*20, 60+r.Float64()*40)
		v.Position = geo.Point{X: 8 + r.Float64()*4, Y: 8 + r.Float64()*4}
		vehicles[i] = v
	}
	return orders, vehicles
}
