package model

import (
    "testing"
    "time"

    "github.com/stretchr/testify/require"
)

func TestOrderTransitions(t *testing.T) {
    cases := []struct {
        from, to OrderStatus
        ok       bool
    }{
        {OrderPending, OrderAssigned, true},
        {OrderPending, OrderCancelled, true},
        {OrderPending, OrderDelivered, false},
        {OrderAssigned, OrderDelivered, true},
        {OrderAssigned, OrderCancelled, true},
        {OrderAssigned, OrderPending, false},
        {OrderDelivered, OrderCancelled, false},
        {OrderCancelled, OrderPending, false},
    }
    for _, tc := range cases {
        require.Equal(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
    }
    require.True(t, OrderDelivered.Terminal())
    require.False(t, OrderAssigned.Terminal())
}

func TestPriorityScoresAndWeights(t *testing.T) {
    require.Equal(t, 3, PriorityHigh.Score())
    require.Equal(t, 2, PriorityMedium.Score())
    require.Equal(t, 1, PriorityLow.Score())
    require.Equal(t, 0.7, PriorityHigh.RouteWeight())
    require.Equal(t, 0.85, PriorityMedium.RouteWeight())
    require.Equal(t, 1.0, PriorityLow.RouteWeight())

    p, ok := ParsePriority("")
    require.True(t, ok)
    require.Equal(t, PriorityMedium, p)
    _, ok = ParsePriority("urgent")
    require.False(t, ok)
}

func TestWaitingMinutes(t *testing.T) {
    now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
    o := Order{CreatedAt: now.Add(-45 * time.Minute)}
    require.InDelta(t, 45.0, o.WaitingMinutes(now), 1e-9)
    future := Order{CreatedAt: now.Add(time.Minute)}
    require.Equal(t, 0.0, future.WaitingMinutes(now))
    require.Equal(t, 0.0, (&Order{}).WaitingMinutes(now))
}
