package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/clinic-reconciler/internal/api"
	"github.com/hackgods/clinic-reconciler/internal/appointment"
	"github.com/hackgods/clinic-reconciler/internal/calendar"
	"github.com/hackgods/clinic-reconciler/internal/config"
	"github.com/hackgods/clinic-reconciler/internal/db"
	redisclient "github.com/hackgods/clinic-reconciler/internal/redis"
	"github.com/hackgods/clinic-reconciler/internal/session"
)

var version = "dev"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s timezone=%s", cfg.Env, cfg.HTTPPort, cfg.Location)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, "clinic-api-server")
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	migrateCtx, cancelMigrate := context.WithTimeout(rootCtx, 30*time.Second)
	err = db.Migrate(migrateCtx, pgPool)
	cancelMigrate()
	if err != nil {
		log.Fatalf("migration error: %v", err)
	}

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	repo := appointment.NewPgRepository(pgPool)
	svc := appointment.NewService(appointment.Dependencies{
		Source:    calendar.NewClient(cfg.CalendarAPIURL, cfg.CalendarTimeout, cfg.CalendarPageSize),
		Ledger:    repo,
		Payments:  repo,
		Snapshots: appointment.NewCachedSnapshots(redisclient.NewBlobCache(rdb, "clinic:", 0, appointment.ErrCacheMiss)),
		Locker:    redisclient.NewRedisLocker(rdb),
		Sessions:  session.ContextProvider{},
	}, cfg)

	router := api.NewRouter(api.RouterConfig{
		Service:      svc,
		Health:       api.NewHealthHandler(pgPool, rdb, cfg.Env, version),
		CalendarName: "Clinic appointments",
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Refresh and mutations wait on the calendar API for every clinical calendar.
		WriteTimeout: 2*cfg.CalendarTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("http server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Println("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown error: %v", err)
	}
	log.Println("api-server stopped")
}
