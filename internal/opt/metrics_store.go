package opt

import (
    "sync"
    "time"
)

// RunStats summarises the most recent optimize call of one strategy.
type RunStats struct {
    Assigned   int           `json:"assigned"`
    Unassigned int           `json:"unassigned"`
    Efficiency float64       `json:"efficiency"`
    Distance   float64       `json:"distance"`
    Duration   time.Duration `json:"duration"`
    At         time.Time     `json:"at"`
}

var (
    mu    sync.Mutex
    store = map[Strategy]RunStats{}
)

func RecordRun(s Strategy, st RunStats) {
    mu.Lock()
    store[s] = st
    mu.Unlock()
}

// LastRuns returns a copy of the per-strategy stats recorded in this process.
func LastRuns() map[Strategy]RunStats {
    mu.Lock()
    defer mu.Unlock()
    out := make(map[Strategy]RunStats, len(store))
    for k, v := range store {
        out[k] = v
    }
    return out
}
