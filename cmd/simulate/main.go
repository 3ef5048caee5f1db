package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-reconciler/internal/config"
	"github.com/hackgods/clinic-reconciler/internal/db"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	ReadRatio    float64
	RefreshRatio float64
	CreateRatio  float64
	MutateRatio  float64
	SeedLimit    int
	PostgresDSN  string
	UserID       string
	AccessToken  string
	Location     *time.Location
}

type DataPool struct {
	Calendars    []string
	mu           sync.RWMutex
	appointments []string
}

func (dp *DataPool) AddAppointment(id string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return "", false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	List       OperationMetrics
	Buckets    OperationMetrics
	Feed       OperationMetrics
	Refresh    OperationMetrics
	Create     OperationMetrics
	Reschedule OperationMetrics
	Cancel     OperationMetrics
	Reactivate OperationMetrics
	Payment    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

// simulate drives a running api-server with a mix of reads, refreshes and
// mutations for one clinic user and reports latency per operation.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d read=%.2f refresh=%.2f create=%.2f mutate=%.2f",
		cfg.Duration, cfg.Workers, cfg.ReadRatio, cfg.RefreshRatio, cfg.CreateRatio, cfg.MutateRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, "clinic-simulate")
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	sim := &Simulator{
		config: cfg,
		pool:   &DataPool{},
		client: &http.Client{Timeout: 30 * time.Second},
	}

	if err := sim.loadDataPool(ctx, pgPool); err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("loaded: %d calendars, %d appointments", len(sim.pool.Calendars), len(sim.pool.appointments))

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 4),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.6),
		RefreshRatio: getFloat("SIM_REFRESH_RATIO", 0.1),
		CreateRatio:  getFloat("SIM_CREATE_RATIO", 0.1),
		MutateRatio:  getFloat("SIM_MUTATE_RATIO", 0.2),
		SeedLimit:    getInt("SIM_SEED_LIMIT", 500),
		PostgresDSN:  baseCfg.PostgresDSN,
		UserID:       baseCfg.ClinicUserID,
		AccessToken:  baseCfg.CalendarAccessToken,
		Location:     baseCfg.Location,
	}

	total := cfg.ReadRatio + cfg.RefreshRatio + cfg.CreateRatio + cfg.MutateRatio
	if total > 0 {
		cfg.ReadRatio /= total
		cfg.RefreshRatio /= total
		cfg.CreateRatio /= total
		cfg.MutateRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.UserID == "" || cfg.AccessToken == "" {
		return fmt.Errorf("CLINIC_USER_ID and CALENDAR_ACCESS_TOKEN are required")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

// loadDataPool reads known appointment ids from the ledger and the clinical
// calendars from the API.
func (s *Simulator) loadDataPool(ctx context.Context, pool *pgxpool.Pool) error {
	rows, err := pool.Query(ctx, `
		SELECT id FROM appointments
		WHERE user_id = $1 AND start_time > now() - interval '7 days'
		ORDER BY start_time
		LIMIT $2
	`, s.config.UserID, s.config.SeedLimit)
	if err != nil {
		return fmt.Errorf("load appointments: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("scan appointments: %w", err)
	}
	for _, id := range ids {
		s.pool.AddAppointment(id)
	}

	resp, err := s.send(ctx, http.MethodGet, "/calendars", nil)
	if err != nil {
		return fmt.Errorf("list calendars: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("list calendars: status %d", resp.StatusCode)
	}

	var cals []struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cals); err != nil {
		return fmt.Errorf("decode calendars: %w", err)
	}
	for _, c := range cals {
		s.pool.Calendars = append(s.pool.Calendars, c.ID)
	}
	if len(s.pool.Calendars) == 0 {
		return fmt.Errorf("no clinical calendars available")
	}
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	faker := gofakeit.New(uint64(rng.Int63()))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < s.config.ReadRatio:
			switch rng.Intn(3) {
			case 0:
				s.call(ctx, &s.metrics.List, http.MethodGet, "/appointments", nil, http.StatusOK)
			case 1:
				s.call(ctx, &s.metrics.Buckets, http.MethodGet, "/appointments/buckets", nil, http.StatusOK)
			case 2:
				s.call(ctx, &s.metrics.Feed, http.MethodGet, "/appointments.ics", nil, http.StatusOK)
			}
		case r < s.config.ReadRatio+s.config.RefreshRatio:
			s.call(ctx, &s.metrics.Refresh, http.MethodPost, "/refresh", nil, http.StatusOK)
		case r < s.config.ReadRatio+s.config.RefreshRatio+s.config.CreateRatio:
			s.doCreate(ctx, rng, faker)
		default:
			s.doMutation(ctx, rng, faker)
		}
	}
}

func (s *Simulator) doCreate(ctx context.Context, rng *rand.Rand, faker *gofakeit.Faker) {
	start := s.randomSlot(rng)
	body := map[string]any{
		"calendar_id":   s.pool.Calendars[rng.Intn(len(s.pool.Calendars))],
		"patient_name":  faker.Name(),
		"patient_email": faker.Email(),
		"patient_phone": faker.Phone(),
		"type":          []string{"consultation", "follow-up", "procedure"}[rng.Intn(3)],
		"start":         start,
		"end":           start.Add(time.Hour),
	}

	began := time.Now()
	resp, err := s.send(ctx, http.MethodPost, "/appointments", body)
	latency := time.Since(began)

	success := false
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusCreated {
			var created struct {
				ID string `json:"id"`
			}
			if json.NewDecoder(resp.Body).Decode(&created) == nil && created.ID != "" {
				s.pool.AddAppointment(created.ID)
				success = true
			}
		}
	}
	s.metrics.Create.Record(latency, success, false)
}

func (s *Simulator) doMutation(ctx context.Context, rng *rand.Rand, faker *gofakeit.Faker) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	base := "/appointments/" + id

	switch rng.Intn(4) {
	case 0:
		start := s.randomSlot(rng)
		body := map[string]any{"start": start, "end": start.Add(time.Hour)}
		s.call(ctx, &s.metrics.Reschedule, http.MethodPost, base+"/reschedule", body, http.StatusNoContent)
	case 1:
		s.call(ctx, &s.metrics.Cancel, http.MethodPost, base+"/cancel", nil, http.StatusNoContent)
	case 2:
		s.call(ctx, &s.metrics.Reactivate, http.MethodPost, base+"/reactivate", nil, http.StatusNoContent)
	case 3:
		body := map[string]any{"amount": faker.Price(150, 600), "is_insurance": faker.Bool()}
		s.call(ctx, &s.metrics.Payment, http.MethodPost, base+"/payments", body, http.StatusCreated, http.StatusOK)
	}
}

// randomSlot picks a half hour slot during clinic hours within the next two weeks.
func (s *Simulator) randomSlot(rng *rand.Rand) time.Time {
	day := time.Now().In(s.config.Location).AddDate(0, 0, 1+rng.Intn(14))
	return time.Date(day.Year(), day.Month(), day.Day(), 8+rng.Intn(10), 30*rng.Intn(2), 0, 0, s.config.Location)
}

// call records one request; 409 counts as a conflict rather than an error.
func (s *Simulator) call(ctx context.Context, om *OperationMetrics, method, path string, body any, okCodes ...int) {
	began := time.Now()
	resp, err := s.send(ctx, method, path, body)
	latency := time.Since(began)

	success, conflict := false, false
	if err == nil {
		resp.Body.Close()
		for _, code := range okCodes {
			if resp.StatusCode == code {
				success = true
			}
		}
		conflict = resp.StatusCode == http.StatusConflict
	}
	om.Record(latency, success, conflict)
}

func (s *Simulator) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.AccessToken)
	req.Header.Set("X-User-ID", s.config.UserID)
	req.Header.Set("X-Request-ID", "sim-"+uuid.NewString())

	return s.client.Do(req)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("List appointments", &s.metrics.List)
	printOperationReport("Buckets", &s.metrics.Buckets)
	printOperationReport("ICS feed", &s.metrics.Feed)
	printOperationReport("Refresh", &s.metrics.Refresh)
	printOperationReport("Create", &s.metrics.Create)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Reactivate", &s.metrics.Reactivate)
	printOperationReport("Payment", &s.metrics.Payment)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
