package api

import (
    "context"
    "io"
    "strings"

    "github.com/rs/zerolog"

    "dronedispatch/internal/config"
    "dronedispatch/internal/dispatch"
    "dronedispatch/internal/events"
    "dronedispatch/internal/opt"
    "dronedispatch/internal/store"
)

type Server struct {
    Store  store.Store
    Svc    *dispatch.Service
    Broker events.EventBroker
    Cfg    config.Config
    Log    zerolog.Logger

    limiter *RateLimiter
    closers []io.Closer
}

// NewServer creates a Server from cfg. An empty database URL selects the
// in-memory store and an empty Redis URL the in-process broker.
func NewServer(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Server, error) {
    var (
        st      store.Store
        closers []io.Closer
    )
    if strings.TrimSpace(cfg.Database.URL) == "" {
        st = store.NewMemory()
    } else {
        pg, err := store.NewPostgres(cfg.Database.URL)
        if err != nil {
            return nil, err
        }
        if err := pg.Migrate(ctx); err != nil {
            _ = pg.Close()
            return nil, err
        }
        st = pg
        closers = append(closers, pg)
    }

    var broker events.EventBroker = events.NewBroker()
    if cfg.Redis.URL != "" {
        rb, err := events.NewRedisBroker(cfg.Redis.URL, log)
        if err != nil {
            log.Warn().Err(err).Msg("redis broker unavailable, using in-process broker")
        } else {
            broker = rb
            closers = append(closers, rb)
        }
    }
    s := New(cfg, st, broker, log)
    s.closers = closers
    return s, nil
}

// New assembles a Server around an existing store and broker.
func New(cfg config.Config, st store.Store, broker events.EventBroker, log zerolog.Logger) *Server {
    eng := opt.NewEngine(cfg.Engine)
    s := &Server{
        Store:  st,
        Svc:    dispatch.NewService(st, eng, broker, log.With().Str("component", "dispatch").Logger()),
        Broker: broker,
        Cfg:    cfg,
        Log:    log,
    }
    if cfg.Server.RateRPS > 0 {
        trusted, err := cfg.Server.TrustedPrefixes()
        if err != nil {
            log.Warn().Err(err).Msg("ignoring trusted proxies")
        }
        s.limiter = NewRateLimiter(cfg.Server.RateRPS, cfg.Server.RateBurst, trusted...)
    }
    return s
}

// Close releases the database pool, the Redis client and the limiter janitor.
func (s *Server) Close() error {
    if s.limiter != nil {
        s.limiter.Stop()
    }
    var first error
    for _, c := range s.closers {
        if err := c.Close(); err != nil && first == nil {
            first = err
        }
    }
    return first
}
