package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hackgods/clinic-reconciler/internal/appointment"
	"github.com/hackgods/clinic-reconciler/internal/calendar"
	"github.com/hackgods/clinic-reconciler/internal/config"
	"github.com/hackgods/clinic-reconciler/internal/db"
	redisclient "github.com/hackgods/clinic-reconciler/internal/redis"
	"github.com/hackgods/clinic-reconciler/internal/session"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("refresh-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	sess := session.Session{AccessToken: cfg.CalendarAccessToken, UserID: cfg.ClinicUserID}
	if !sess.Valid() {
		log.Printf("CLINIC_USER_ID or CALENDAR_ACCESS_TOKEN missing, scheduled refresh will only reset user=%q", sess.UserID)
	}

	log.Printf("running refresh worker in env=%s refresh=%q cleanup=%q", cfg.Env, cfg.RefreshSchedule, cfg.CleanupSchedule)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, "clinic-refresh-worker")
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	if err := db.Migrate(rootCtx, pgPool); err != nil {
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
		Sessions:  session.Static(sess),
	}, cfg)

	c := cron.New(cron.WithLocation(cfg.Location))

	if _, err := c.AddFunc(cfg.RefreshSchedule, func() { runRefresh(rootCtx, svc, cfg.RefreshLockTTL) }); err != nil {
		log.Fatalf("invalid REFRESH_SCHEDULE %q: %v", cfg.RefreshSchedule, err)
	}
	if _, err := c.AddFunc(cfg.CleanupSchedule, func() { runCleanup(rootCtx, svc) }); err != nil {
		log.Fatalf("invalid CLEANUP_SCHEDULE %q: %v", cfg.CleanupSchedule, err)
	}

	// Run once at startup
	runRefresh(rootCtx, svc, cfg.RefreshLockTTL)

	c.Start()
	log.Println("refresh worker scheduler started")

	<-rootCtx.Done()
	log.Println("shutdown signal received, stopping refresh worker")

	done := c.Stop()
	select {
	case <-done.Done():
	case <-time.After(cfg.ShutdownTimeout):
		log.Println("timed out waiting for running jobs")
	}
	log.Println("refresh worker stopped")
}

func runRefresh(ctx context.Context, svc *appointment.Service, timeout time.Duration) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := svc.Refresh(runCtx); err != nil {
		log.Printf("refresh run error: %v", err)
		return
	}
	log.Printf("refresh run complete in %s", time.Since(start))
}

func runCleanup(ctx context.Context, svc *appointment.Service) {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	n, err := svc.CleanupCancelled(runCtx)
	if err != nil {
		log.Printf("cleanup run error: %v", err)
		return
	}
	log.Printf("cleanup removed %d aged cancelled appointments", n)
}
