package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/reasonkernel/core/internal/cache"
	"github.com/reasonkernel/core/internal/envconfig"
	"github.com/reasonkernel/core/internal/httpapi"
	"github.com/reasonkernel/core/internal/telemetry"
	"github.com/reasonkernel/core/pkg/engine"
	"github.com/reasonkernel/core/pkg/policy"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

func runServer() {
	fmt.Fprintln(os.Stdout, "reasonkernel starting...")

	_ = envconfig.LoadDotEnv(".env")
	cfg := envconfig.Load()
	logger := slog.Default()

	ctx := context.Background()
	telem, err := telemetry.New(ctx, telemetry.Config{
		ServiceName:    "reasonkernel",
		ServiceVersion: cfg.EngineVersion,
		Endpoint:       cfg.OTLPEndpoint,
		Insecure:       true,
		SampleRate:     1.0,
	})
	if err != nil {
		log.Printf("[reasonctl] telemetry init failed, continuing without it: %v", err)
		telem, _ = telemetry.New(ctx, telemetry.Config{})
	}
	defer telem.Shutdown(ctx)

	reg := policy.New()
	eng := engine.New(reg, cfg.EngineVersion)

	opts := []httpapi.Option{
		httpapi.WithLogger(logger),
		httpapi.WithRateLimit(cfg.RateLimitPerSec, cfg.RateLimitBurst),
	}

	ts, err := openTraceStore(cfg)
	if err != nil {
		log.Printf("[reasonctl] trace store unavailable, running without persistence: %v", err)
	} else {
		opts = append(opts, httpapi.WithTraceStore(ts))
		defer ts.Close()
	}

	if cfg.RedisURL != "" {
		rc := cache.NewRedisCache(cfg.RedisURL)
		opts = append(opts, httpapi.WithCache(rc))
		defer rc.Close()
	}

	srv := httpapi.NewServer(eng, opts...)

	addr := ":" + cfg.Port
	go func() {
		log.Printf("[reasonctl] ready: http://localhost%s", addr)
		if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
			log.Printf("[reasonctl] server error: %v", err)
		}
	}()

	log.Println("[reasonctl] press ctrl+c to stop")
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("[reasonctl] shutting down")
}

func runHealthCmd(out, errOut io.Writer) int {
	resp, err := http.Get("http://localhost:8080/health")
	if err != nil {
		fmt.Fprintf(errOut, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(errOut, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}
	fmt.Fprintln(out, "OK")
	return 0
}
