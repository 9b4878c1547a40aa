package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/gcbaptista/patient-search/api"
	"github.com/gcbaptista/patient-search/internal/transport/kafka"
)

func serveCommand(c *cli.Context) error {
	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.cleanup()
	log := rt.logger

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A cold provider is not fatal: the first search retries the load.
	if err := warmup(ctx, rt); err != nil {
		log.Warn("corpus warmup failed", zap.Error(err))
	} else {
		info := rt.engine.CorpusInfo()
		log.Info("corpus loaded", zap.String("source", info.Source), zap.Int("patients", info.Patients))
	}

	if rt.cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(rt.engine, rt.engine.Dispatcher(), api.RouterOptions{
		MaxBodyBytes: rt.cfg.HTTP.MaxBodyBytes,
		Logger:       log,
	})
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", rt.cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  rt.cfg.HTTP.ReadTimeout,
		WriteTimeout: rt.cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("starting HTTP server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var bridge *kafka.Bridge
	if rt.cfg.Kafka.Enabled {
		bridge = kafka.NewBridge(kafka.NewReader(rt.cfg.Kafka), kafka.NewWriter(rt.cfg.Kafka), rt.engine.Dispatcher(), log)
		go func() {
			log.Info("starting kafka bridge",
				zap.Strings("brokers", rt.cfg.Kafka.Brokers),
				zap.String("requests", rt.cfg.Kafka.RequestTopic),
				zap.String("responses", rt.cfg.Kafka.ResponseTopic))
			if err := bridge.Run(ctx); err != nil {
				errCh <- fmt.Errorf("kafka bridge: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errCh:
		log.Error("component failed, shutting down", zap.Error(runErr))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", zap.Error(err))
	}
	if bridge != nil {
		if err := bridge.Close(); err != nil {
			log.Warn("failed to close kafka bridge", zap.Error(err))
		}
	}

	log.Info("stopped")
	return runErr
}
