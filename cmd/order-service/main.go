package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/tably/orderd/internal/catalog"
	"github.com/tably/orderd/internal/config"
	"github.com/tably/orderd/internal/directory"
	"github.com/tably/orderd/internal/order"
	"github.com/tably/orderd/internal/realtime"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("[main] postgres: %v", err)
	}
	defer pool.Close()

	dir := directory.NewPGRepo(pool)
	repo := order.NewPGRepo(pool)
	pricer := order.NewPricer(catalog.NewHTTPClient(cfg.CatalogBaseURL))

	hub := realtime.NewHub()
	dispatcher := realtime.NewDispatcher(hub, cfg.EventQueueSize)
	auth := &realtime.Authenticator{Secret: cfg.JWTSecret, Sessions: dir}

	svc := order.NewService(repo, pricer, dir, dispatcher)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: newRouter(svc, hub, auth, dir),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("[main] order-service listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[main] shutdown: %v", err)
		}
		dispatcher.Stop()
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("[main] %v", err)
	}
}
