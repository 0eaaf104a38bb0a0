package api

import (
    "encoding/json"
    "net/http"
    "time"

    "dronedispatch/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    info := map[string]any{
        "build": buildinfo.Info(),
        "time":  time.Now().UTC().Format(time.RFC3339),
        "config": map[string]any{
            "port":             s.Cfg.Server.Port,
            "rateRps":          s.Cfg.Server.RateRPS,
            "rateBurst":        s.Cfg.Server.RateBurst,
            "trustedProxies":   s.Cfg.Server.TrustedProxies,
            "logLevel":         s.Cfg.Log.Level,
            "defaultStrategy":  s.Svc.Engine.Config().DefaultStrategy,
            "hasDatabaseUrl":   s.Cfg.Database.URL != "",
            "hasRedisUrl":      s.Cfg.Redis.URL != "",
        },
    }
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(info)
}
