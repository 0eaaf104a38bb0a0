package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"dronedispatch/internal/events"
	"dronedispatch/internal/geo"
	"dronedispatch/internal/model"
	"dronedispatch/internal/opt"
	"dronedispatch/internal/store"
)

func newTestService(t *testing.T) (*Service, *events.Broker) {
	t.Helper()
	b := events.NewBroker()
	svc := NewService(store.NewMemory(), opt.NewEngine(opt.DefaultConfig()), b, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc, b
}

func seed(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.CreateOrders(ctx, []model.OrderIn{
		{ID: "o1", Location: geo.Point{X: 12, Y: 12}, Weight: 1, Priority: model.PriorityHigh},
		{ID: "o2", Location: geo.Point{X: 13, Y: 11}, Weight: 1},
		{ID: "o3", Location: geo.Point{X: 8, Y: 9}, Weight: 2, Priority: model.PriorityLow},
	})
	require.NoError(t, err)
	_, err = svc.CreateVehicles(ctx, []model.VehicleIn{
		{ID: "d1", Capacity: 5, Range: 30},
	})
	require.NoError(t, err)
}

func TestCreateFillsDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	seed(t, svc)
	ctx := context.Background()

	o, err := svc.Store.GetOrder(ctx, "o2")
	require.NoError(t, err)
	require.Equal(t, model.PriorityMedium, o.Priority)
	require.Equal(t, model.OrderPending, o.Status)

	v, err := svc.Store.GetVehicle(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, 100.0, v.BatteryPct)
	require.Equal(t, svc.Engine.Config().Depot, v.Position)
	require.Equal(t, model.VehicleIdle, v.Status)

	_, err = svc.CreateOrders(ctx, []model.OrderIn{{Location: geo.Point{X: 1, Y: 1}, Weight: 1, Priority: "urgent"}})
	require.Error(t, err)
}

func TestOptimizePersistsAndPublishes(t *testing.T) {
	svc, b := newTestService(t)
	seed(t, svc)
	ctx := context.Background()
	ch := b.Subscribe("d1")
	defer b.Unsubscribe("d1", ch)

	res, err := svc.Optimize(ctx, OptimizeParams{Strategy: "priority_first"})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, 3, res.Assigned)
	require.Len(t, res.Plans, 1)

	v, err := svc.Store.GetVehicle(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, model.VehicleLoading, v.Status)
	require.ElementsMatch(t, []string{"o1", "o2", "o3"}, v.AssignedOrders)
	require.InDelta(t, 4.0, v.CurrentLoad, 1e-9)

	for _, id := range []string{"o1", "o2", "o3"} {
		o, err := svc.Store.GetOrder(ctx, id)
		require.NoError(t, err)
		require.Equal(t, model.OrderAssigned, o.Status)
		require.Equal(t, "d1", o.AssignedVehicle)
	}

	select {
	case evt := <-ch:
		require.Equal(t, events.VehicleAssigned, evt.Type)
		require.Equal(t, "d1", evt.Data["vehicleId"])
	case <-time.After(time.Second):
		t.Fatal("no assignment event")
	}

	pm, err := svc.Store.ListPlanMetrics(ctx, "priority_first", 10)
	require.NoError(t, err)
	require.Len(t, pm, 1)
	require.Equal(t, 3, pm[0].Assigned)
	require.Equal(t, 3, pm[0].Orders)
	require.Equal(t, 1, pm[0].Vehicles)

	require.Contains(t, opt.LastRuns(), opt.PriorityFirst)

	// Nothing left to dispatch: the vehicle is loading and orders are assigned.
	res, err = svc.Optimize(ctx, OptimizeParams{})
	require.NoError(t, err)
	require.False(t, res.Success)
}

func TestOptimizeUnknownStrategy(t *testing.T) {
	svc, _ := newTestService(t)
	seed(t, svc)
	_, err := svc.Optimize(context.Background(), OptimizeParams{Strategy: "fastest"})
	require.ErrorIs(t, err, opt.ErrUnknownStrategy)

	o, err := svc.Store.GetOrder(context.Background(), "o1")
	require.NoError(t, err)
	require.Equal(t, model.OrderPending, o.Status)
}

func TestOptimizeCancelledLeavesStoreUntouched(t *testing.T) {
	svc, _ := newTestService(t)
	seed(t, svc)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Optimize(ctx, OptimizeParams{})
	require.ErrorIs(t, err, context.Canceled)

	v, err := svc.Store.GetVehicle(context.Background(), "d1")
	require.NoError(t, err)
	require.Equal(t, model.VehicleIdle, v.Status)
	require.Empty(t, v.AssignedOrders)
}

func TestAutoStrategy(t *testing.T) {
	mk := func(n int, p model.Priority) []*model.Order {
		out := make([]*model.Order, n)
		for i := range out {
			out[i] = &model.Order{Priority: p}
		}
		return out
	}
	fleet := func(n int) []*model.Vehicle { return make([]*model.Vehicle, n) }

	cases := []struct {
		name     string
		orders   []*model.Order
		vehicles []*model.Vehicle
		want     opt.Strategy
	}{
		{"empty", nil, fleet(2), opt.BalancedOptimization},
		{"mostly urgent", append(mk(3, model.PriorityHigh), mk(2, model.PriorityLow)...), fleet(1), opt.PriorityFirst},
		{"half urgent is not enough", append(mk(2, model.PriorityHigh), mk(2, model.PriorityLow)...), fleet(2), opt.DistanceOptimization},
		{"deep backlog", mk(7, model.PriorityMedium), fleet(2), opt.CapacityOptimization},
		{"exactly three per vehicle", mk(6, model.PriorityMedium), fleet(2), opt.DistanceOptimization},
		{"light backlog", mk(3, model.PriorityMedium), fleet(2), opt.BalancedOptimization},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, AutoStrategy(tc.orders, tc.vehicles))
		})
	}
}

func TestOptimizeAutoRecordsChosenStrategy(t *testing.T) {
	svc, _ := newTestService(t)
	seed(t, svc)
	res, err := svc.Optimize(context.Background(), OptimizeParams{Strategy: AutoStrategyName})
	require.NoError(t, err)
	// 3 orders, 1 vehicle: more than three per vehicle is false, at least two is true.
	require.Equal(t, string(opt.DistanceOptimization), res.Strategy)
}

func TestCompleteTripAndSimulate(t *testing.T) {
	svc, b := newTestService(t)
	seed(t, svc)
	ctx := context.Background()

	_, err := svc.Simulate(ctx, "d1", time.Minute)
	require.ErrorIs(t, err, ErrNoRoute)

	res, err := svc.Optimize(ctx, OptimizeParams{})
	require.NoError(t, err)
	require.True(t, res.Success)

	_, err = svc.Simulate(ctx, "d1", time.Nanosecond)
	require.ErrorIs(t, err, opt.ErrTooManySamples)

	samples, err := svc.Simulate(ctx, "d1", 30*time.Minute)
	require.NoError(t, err)
	var last opt.Sample
	n := 0
	for s := range samples {
		last = s
		n++
	}
	require.Greater(t, n, 1)
	require.True(t, last.Arrived)

	ch := b.Subscribe("d1")
	defer b.Unsubscribe("d1", ch)
	v, delivered, err := svc.CompleteTrip(ctx, "d1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"o1", "o2", "o3"}, delivered)
	require.Equal(t, model.VehicleIdle, v.Status)
	want := 100 - opt.RequiredBattery(res.Plans[0].Distance, svc.Engine.Config().BatteryRate)
	require.InDelta(t, want, v.BatteryPct, 1e-6)
	require.Equal(t, 3, v.Deliveries)

	evt := <-ch
	require.Equal(t, events.VehicleReturned, evt.Type)

	_, _, err = svc.CompleteTrip(ctx, "d1")
	require.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestCancelAssignedOrderPublishes(t *testing.T) {
	svc, b := newTestService(t)
	seed(t, svc)
	ctx := context.Background()
	_, err := svc.Optimize(ctx, OptimizeParams{})
	require.NoError(t, err)

	ch := b.Subscribe("d1")
	defer b.Unsubscribe("d1", ch)
	o, err := svc.SetOrderStatus(ctx, "o3", model.OrderCancelled)
	require.NoError(t, err)
	require.Equal(t, model.OrderCancelled, o.Status)

	evt := <-ch
	require.Equal(t, events.OrderCancelled, evt.Type)

	v, err := svc.Store.GetVehicle(ctx, "d1")
	require.NoError(t, err)
	require.NotContains(t, v.AssignedOrders, "o3")
	require.InDelta(t, 2.0, v.CurrentLoad, 1e-9)

	_, err = svc.SetOrderStatus(ctx, "o3", model.OrderDelivered)
	require.ErrorIs(t, err, store.ErrInvalidTransition)
}
