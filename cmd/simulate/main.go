package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/booking-platform/internal/appointment"
	"github.com/hackgods/booking-platform/internal/config"
	"github.com/hackgods/booking-platform/internal/db"
	"github.com/hackgods/booking-platform/internal/logging"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	BookingRatio  float64
	ReadRatio     float64
	LookupRatio   float64
	BusinessLimit int
	DaysAhead     int
	PostgresDSN   string
}

// DataPool holds the businesses under test and the customers that
// successfully booked, for portal lookups.
type DataPool struct {
	Businesses []uuid.UUID
	mu         sync.RWMutex
	phones     []string
}

func (dp *DataPool) AddPhone(phone string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.phones = append(dp.phones, phone)
}

func (dp *DataPool) RandomPhone(rng *rand.Rand) (string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.phones) == 0 {
		return "", false
	}
	return dp.phones[rng.Intn(len(dp.phones))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Limited   int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case status == http.StatusTooManyRequests:
		atomic.AddInt64(&om.Limited, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pick := func(pct int) time.Duration {
		idx := len(latencies) * pct / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}
	return sum / time.Duration(len(latencies)), pick(50), pick(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Booking OperationMetrics
	Slots   OperationMetrics
	Lookup  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	log     *logrus.Logger
	metrics Metrics
}

func main() {
	log := logging.New(getEnv("LOG_LEVEL", "info"), getEnv("LOG_FORMAT", "text"))
	log.Info("simulator starting")

	cfg := loadConfig(log)
	if err := validateConfig(cfg); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	log.WithFields(logrus.Fields{
		"duration": cfg.Duration,
		"workers":  cfg.Workers,
		"booking":  cfg.BookingRatio,
		"read":     cfg.ReadRatio,
		"lookup":   cfg.LookupRatio,
	}).Info("config loaded")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.WithError(err).Fatal("load data pool")
	}
	log.Infof("loaded %d businesses", len(dataPool.Businesses))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig(log *logrus.Logger) SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load base config")
	}

	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.5),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.4),
		LookupRatio:   getFloat("SIM_LOOKUP_RATIO", 0.1),
		BusinessLimit: getInt("SIM_BUSINESS_LIMIT", 5),
		DaysAhead:     getInt("SIM_DAYS_AHEAD", 3),
		PostgresDSN:   baseCfg.PostgresDSN,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.ReadRatio + cfg.LookupRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ReadRatio /= total
		cfg.LookupRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.DaysAhead <= 0 {
		return fmt.Errorf("SIM_DAYS_AHEAD must be > 0")
	}
	return nil
}

// loadDataPool picks a few businesses that have opening hours. A small
// pool keeps many workers competing for the same slots.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	rows, err := pool.Query(ctx, `
		SELECT DISTINCT b.id FROM businesses b
		JOIN time_slots t ON t.business_id = b.id AND t.is_available
		LIMIT $1
	`, cfg.BusinessLimit)
	if err != nil {
		return nil, fmt.Errorf("load businesses: %w", err)
	}
	defer rows.Close()

	dataPool := &DataPool{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Businesses = append(dataPool.Businesses, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(dataPool.Businesses) == 0 {
		return nil, fmt.Errorf("no businesses with opening hours, run the seed command first")
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Infof("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.ReadRatio:
				s.fetchSlots(ctx, rng)
			default:
				s.doLookup(ctx, rng)
			}
		}
	}
}

func (s *Simulator) target(rng *rand.Rand) (uuid.UUID, string) {
	businessID := s.pool.Businesses[rng.Intn(len(s.pool.Businesses))]
	date := appointment.DateOf(time.Now()).AddDate(0, 0, 1+rng.Intn(s.config.DaysAhead))
	return businessID, appointment.FormatDate(date)
}

func (s *Simulator) fetchSlots(ctx context.Context, rng *rand.Rand) []appointment.ClockTime {
	businessID, date := s.target(rng)
	return s.slotsFor(ctx, businessID, date)
}

func (s *Simulator) slotsFor(ctx context.Context, businessID uuid.UUID, date string) []appointment.ClockTime {
	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/businesses/%s/slots?date=%s", s.config.APIBaseURL, businessID, date), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.metrics.Slots.Record(latency, 0)
		return nil
	}
	defer resp.Body.Close()
	s.metrics.Slots.Record(latency, resp.StatusCode)

	var body struct {
		Slots []appointment.ClockTime `json:"slots"`
	}
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&body) != nil {
		return nil
	}
	return body.Slots
}

// doBooking aims at the earliest open slot so concurrent workers collide
// on it. Each request carries its own client address to stay clear of the
// per-client rate limit.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	businessID, date := s.target(rng)
	slots := s.slotsFor(ctx, businessID, date)
	if len(slots) == 0 {
		return
	}

	phone := gofakeit.Phone()
	body, _ := json.Marshal(map[string]string{
		"date":           date,
		"time":           slots[0].String(),
		"customer_name":  gofakeit.Name(),
		"customer_phone": phone,
	})

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/businesses/%s/appointments", s.config.APIBaseURL, businessID), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", gofakeit.IPv4Address())

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.metrics.Booking.Record(latency, 0)
		return
	}
	defer resp.Body.Close()

	s.metrics.Booking.Record(latency, resp.StatusCode)
	if resp.StatusCode == http.StatusCreated {
		s.pool.AddPhone(phone)
	}
}

func (s *Simulator) doLookup(ctx context.Context, rng *rand.Rand) {
	phone, ok := s.pool.RandomPhone(rng)
	if !ok {
		return
	}

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		s.config.APIBaseURL+"/appointments?phone="+url.QueryEscape(phone), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.metrics.Lookup.Record(latency, 0)
		return
	}
	defer resp.Body.Close()
	s.metrics.Lookup.Record(latency, resp.StatusCode)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Businesses: %d\n", len(s.pool.Businesses))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Slot listing", &s.metrics.Slots)
	printOperationReport("Customer lookup", &s.metrics.Lookup)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	limited := atomic.LoadInt64(&om.Limited)
	failed := atomic.LoadInt64(&om.Error)

	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if conflict > 0 {
		fmt.Printf("  Slot taken: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if limited > 0 {
		fmt.Printf("  Rate limited: %d (%.1f%%)\n", limited, pct(limited))
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
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
