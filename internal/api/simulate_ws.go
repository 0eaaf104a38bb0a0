package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

const (
	defaultSimStep = 5 * time.Minute
	maxSimPace     = time.Second
)

type wsMessage struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// SimulateWSHandler streams the planned flight of a vehicle over a WebSocket.
// Query parameters: step (simulated time between samples, default 5m; a step
// giving more than opt.MaxSamples samples is refused) and pace (wall-clock
// delay between messages, capped at 1s).
func (s *Server) SimulateWSHandler(w http.ResponseWriter, r *http.Request, vehicleID string) {
	step := defaultSimStep
	if v := r.URL.Query().Get("step"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid step", "step must be a positive duration", r.URL.Path)
			return
		}
		step = d
	}
	var pace time.Duration
	if v := r.URL.Query().Get("pace"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid pace", "pace must be a non-negative duration", r.URL.Path)
			return
		}
		pace = min(d, maxSimPace)
	}
	samples, err := s.Svc.Simulate(r.Context(), vehicleID, step)
	if err != nil {
		writeError(w, r, "Simulation unavailable", err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	// The read loop only notices the peer going away.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	conn.SetReadLimit(1 << 10)
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}
	n := 0
	for smp := range samples {
		if ctx.Err() != nil {
			return
		}
		if err := write(wsMessage{Type: "sample", Data: smp}); err != nil {
			return
		}
		n++
		if pace > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pace):
			}
		}
	}
	_ = write(wsMessage{Type: "complete", Data: map[string]any{"vehicleId": vehicleID, "samples": n}})
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.Log.Debug().Str("vehicle", vehicleID).Int("samples", n).Msg("simulation streamed")
}
