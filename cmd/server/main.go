package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"videochat/agent/internal/api"
	"videochat/agent/internal/auth"
	"videochat/agent/internal/clientws"
	"videochat/agent/internal/config"
	agenthealth "videochat/agent/internal/health"
	"videochat/agent/internal/llm"
	"videochat/agent/internal/loop"
	"videochat/agent/internal/store"
	"videochat/agent/internal/stt"
)

const readinessInterval = 30 * time.Second

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "voice-agent").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger = logger.Level(lvl)
	}
	logger.Info().Str("port", cfg.Server.Port).Str("stt", cfg.STT.Backend).Str("llm", cfg.LLM.Endpoint).Msg("config loaded")
	if cfg.Auth.TokenSecret == "" {
		logger.Warn().Msg("CLIENT_TOKEN_SECRET not set; sessions cannot be created")
	}

	st := store.New()
	reg := clientws.NewRegistry()
	signer := auth.NewSigner(cfg.Auth.TokenSecret,
		time.Duration(cfg.Auth.TokenTTLMin)*time.Minute,
		time.Duration(cfg.Auth.TokenSkewSecs)*time.Second)
	assistant := llm.NewClient(cfg.LLM.Endpoint, time.Duration(cfg.LLM.TimeoutMs)*time.Millisecond)

	disp := loop.New(reg, st, assistant, loop.Options{
		Voice:   cfg.VoiceConfig(),
		Backend: cfg.STT.Backend,
		Deepgram: stt.DGConfig{
			Model:    cfg.Deepgram.Model,
			Language: cfg.Deepgram.Language,
			BaseURL:  cfg.Deepgram.WSURL,
		},
		DeepgramAPIKey: cfg.Deepgram.APIKey,
		ReplyTimeout:   time.Duration(cfg.LLM.TimeoutMs) * time.Millisecond,
	}, logger)

	ready := func(ctx context.Context) (bool, any) {
		h := agenthealth.CheckAll(ctx, cfg)
		return h.OK, h
	}

	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(api.NewHandlers(st, signer, disp, cfg.STT.Backend), ready))
	wss := clientws.NewServer(st, reg, signer, disp, logger)
	mux.HandleFunc("/ws/client", wss.HandleClientWS)
	if cfg.Server.MetricsAddr == "" {
		mux.Handle("/metrics", promhttp.Handler())
	} else {
		go func() {
			m := http.NewServeMux()
			m.Handle("/metrics", promhttp.Handler())
			logger.Info().Str("addr", cfg.Server.MetricsAddr).Msg("metrics listening")
			if err := http.ListenAndServe(cfg.Server.MetricsAddr, m); err != nil {
				logger.Error().Err(err).Msg("metrics server")
			}
		}()
	}

	// gRPC health service for orchestrators that health-check over gRPC
	gs := grpc.NewServer(grpc.KeepaliveParams(keepalive.ServerParameters{
		MaxConnectionIdle: 2 * time.Minute,
		Time:              30 * time.Second,
		Timeout:           10 * time.Second,
	}))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	if cfg.Server.GRPCAddr != "" {
		l, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.Server.GRPCAddr).Msg("grpc listen")
		}
		go func() {
			logger.Info().Str("addr", cfg.Server.GRPCAddr).Msg("grpc health listening")
			if err := gs.Serve(l); err != nil {
				logger.Error().Err(err).Msg("grpc serve")
			}
		}()
	}

	readyCtx, stopReady := context.WithCancel(context.Background())
	go watchReadiness(readyCtx, hs, ready, logger)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		logger.Info().Msg("shutdown signal received; stopping server")
		stopReady()
		hs.Shutdown()
		disp.Close()
		reg.CloseAll()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		gs.GracefulStop()
	}()

	logger.Info().Str("addr", addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
}

// watchReadiness mirrors dependency checks into the gRPC health service.
func watchReadiness(ctx context.Context, hs *health.Server, ready func(context.Context) (bool, any), logger zerolog.Logger) {
	t := time.NewTicker(readinessInterval)
	defer t.Stop()
	for {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		ok, report := ready(cctx)
		cancel()
		status := healthpb.HealthCheckResponse_SERVING
		if !ok {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			logger.Warn().Interface("report", report).Msg("dependencies not ready")
		}
		hs.SetServingStatus("", status)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func logMiddleware(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("took", time.Since(start)).Msg("http")
	})
}
