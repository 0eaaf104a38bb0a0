package events

import (
    "context"
    "testing"
    "time"

    "github.com/alicebob/miniredis/v2"
    redis "github.com/redis/go-redis/v9"
    "github.com/rs/zerolog"
    "github.com/stretchr/testify/require"
)

func TestRedisBrokerRoundTrip(t *testing.T) {
    mr := miniredis.RunT(t)
    b := NewRedisBrokerClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), zerolog.Nop())
    defer b.Close()
    require.NoError(t, b.Ping(context.Background()))

    ch := b.Subscribe("d1")
    b.Publish("d1", Event{Type: VehicleReturned, Data: map[string]any{"deliveries": 3}})

    select {
    case got := <-ch:
        require.Equal(t, VehicleReturned, got.Type)
        require.EqualValues(t, 3, got.Data["deliveries"])
    case <-time.After(2 * time.Second):
        t.Fatal("timeout waiting for redis event")
    }

    b.Unsubscribe("d1", ch)
    require.Eventually(t, func() bool {
        select {
        case _, ok := <-ch:
            return !ok
        default:
            return false
        }
    }, 2*time.Second, 10*time.Millisecond)
}

func TestNewRedisBrokerBadURL(t *testing.T) {
    _, err := NewRedisBroker("not-a-url", zerolog.Nop())
    require.Error(t, err)
}
