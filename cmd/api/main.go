package main

import (
    "context"
    "errors"
    "flag"
    "net/http"
    "os"
    "os/signal"
    "syscall"

    "github.com/joho/godotenv"
    "github.com/rs/zerolog"
    "github.com/spf13/viper"

    "dronedispatch/internal/api"
    "dronedispatch/internal/buildinfo"
    "dronedispatch/internal/cli"
    "dronedispatch/internal/config"
)

func main() {
    cfgFile := flag.String("config", "", "config file (default ./config.yaml if present)")
    flag.Parse()

    // .env is optional; real environment variables take precedence.
    _ = godotenv.Load()

    boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
    cfg, err := config.Load(viper.New(), *cfgFile)
    if err != nil {
        boot.Fatal().Err(err).Msg("load config")
    }
    log := cli.NewLogger(os.Stderr, cfg.Log)

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    srvDeps, err := api.NewServer(ctx, *cfg, log)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to init server")
    }
    defer srvDeps.Close()

    srv := &http.Server{
        Addr:              cfg.Addr(),
        Handler:           srvDeps.Routes(),
        ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
    }

    errc := make(chan error, 1)
    go func() {
        log.Info().Str("addr", srv.Addr).Str("version", buildinfo.Version).Msg("API listening")
        errc <- srv.ListenAndServe()
    }()

    select {
    case err := <-errc:
        if err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.Fatal().Err(err).Msg("server error")
        }
    case <-ctx.Done():
        log.Info().Msg("shutting down")
        sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
        defer cancel()
        if err := srv.Shutdown(sctx); err != nil {
            log.Error().Err(err).Msg("shutdown")
        }
    }
}
