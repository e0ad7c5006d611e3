package main

import (
	"context"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/seralys/gacha-overlay/internal/assets"
	"github.com/seralys/gacha-overlay/internal/config"
	"github.com/seralys/gacha-overlay/internal/httpapi"
	"github.com/seralys/gacha-overlay/internal/logger"
	"github.com/seralys/gacha-overlay/internal/media"
	"github.com/seralys/gacha-overlay/internal/overlay"
	"github.com/seralys/gacha-overlay/internal/sequencer"
	"github.com/seralys/gacha-overlay/internal/transport"
)

func main() {
	log := logger.New("info")

	cfg, err := config.Load(log)
	if err != nil {
		log.Fatal().Err(err).Msg("configuration failed")
	}
	log = logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := assets.NewResolver(cfg.AssetRoot)
	if err := res.LoadManifest(filepath.Join(cfg.AssetRoot, "manifest.yaml")); err != nil {
		log.Warn().Err(err).Msg("asset manifest ignored")
	}

	eng := overlay.New(ctx, overlay.Config{
		Resolver: res,
		Players:  media.SimFactory(2 * time.Second),
		Timings:  sequencer.DefaultTimings(),
		Log:      log,
	})
	defer eng.Shutdown()

	client := transport.New(transport.Config{
		URL:   cfg.BridgeURL(),
		Token: cfg.Token,
		Sink:  eng,
		Log:   log,
	})
	go client.Run(ctx)

	handler := httpapi.SetupRoutes(eng.Stage(), cfg.AssetRoot)
	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: handler}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Info().Str("addr", srv.Addr).Str("bridge", cfg.BridgeURL()).Msg("overlay listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
