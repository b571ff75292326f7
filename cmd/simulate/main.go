package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
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
	"github.com/rs/zerolog"

	"github.com/hackgods/meeting-scheduler/internal/config"
	"github.com/hackgods/meeting-scheduler/internal/db"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ReadRatio    float64
	VoteRatio    float64
	EventLimit   int
	HotSlots     int
	PostgresDSN  string
}

// DataPool holds the event types and polls the workers hit, plus the slot
// calendar per event, refreshed from the API as bookings land.
type DataPool struct {
	Events []uuid.UUID
	Polls  []pollRef

	mu    sync.RWMutex
	slots map[uuid.UUID][]string

	wins sync.Map // event/slot -> *int64 successful bookings
}

type pollRef struct {
	ID    uuid.UUID
	Slots []time.Time
}

func (dp *DataPool) SetSlots(event uuid.UUID, ids []string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.slots[event] = ids
}

func (dp *DataPool) Slots(event uuid.UUID) []string {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	return dp.slots[event]
}

func (dp *DataPool) RecordWin(event uuid.UUID, slot string) {
	v, _ := dp.wins.LoadOrStore(event.String()+"|"+slot, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

// DoubleBooked lists slots that returned 201 more than once.
func (dp *DataPool) DoubleBooked() []string {
	var out []string
	dp.wins.Range(func(k, v any) bool {
		if atomic.LoadInt64(v.(*int64)) > 1 {
			out = append(out, k.(string))
		}
		return true
	})
	sort.Strings(out)
	return out
}

type outcome int

const (
	outcomeOK outcome = iota
	outcomeConflict
	outcomeError
)

// OperationMetrics counts outcomes and keeps every latency for the
// percentile report.
type OperationMetrics struct {
	counts [3]atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, o outcome) {
	om.counts[o].Add(1)
	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Total() int64 {
	return om.counts[outcomeOK].Load() + om.counts[outcomeConflict].Load() + om.counts[outcomeError].Load()
}

type latencySummary struct {
	Avg, Min, Max, P50, P95 time.Duration
}

func (om *OperationMetrics) Summary() latencySummary {
	om.mu.Lock()
	sorted := append([]time.Duration(nil), om.latencies...)
	om.mu.Unlock()

	if len(sorted) == 0 {
		return latencySummary{}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	at := func(p int) time.Duration {
		return sorted[min(len(sorted)*p/100, len(sorted)-1)]
	}
	return latencySummary{
		Avg: sum / time.Duration(len(sorted)),
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		P50: at(50),
		P95: at(95),
	}
}

func classify(err error, status, okStatus int) outcome {
	switch {
	case err != nil:
		return outcomeError
	case status == okStatus:
		return outcomeOK
	case status == http.StatusConflict:
		return outcomeConflict
	default:
		return outcomeError
	}
}

type Metrics struct {
	Booking      OperationMetrics
	Availability OperationMetrics
	Vote         OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  zerolog.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		boot := config.StartupLogger(os.Stderr, "simulate")
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := baseCfg.Logger("simulate")

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("read", cfg.ReadRatio).
		Float64("vote", cfg.VoteRatio).
		Int("hot_slots", cfg.HotSlots).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.Open(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().Int("events", len(dataPool.Events)).Int("polls", len(dataPool.Polls)).Msg("data pool loaded")

	gofakeit.Seed(time.Now().UnixNano())

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()

	overlaps, err := countOverlaps(context.Background(), pgPool)
	if err != nil {
		logger.Error().Err(err).Msg("overlap check failed")
	}
	doubles := dataPool.DoubleBooked()
	if overlaps > 0 || len(doubles) > 0 {
		logger.Fatal().Int("overlapping_rows", overlaps).Strs("double_booked", doubles).Msg("double booking detected")
	}
	logger.Info().Msg("no double bookings")
}

func loadConfig(baseCfg config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		VoteRatio:    getFloat("SIM_VOTE_RATIO", 0.2),
		EventLimit:   getInt("SIM_EVENT_LIMIT", 20),
		HotSlots:     getInt("SIM_HOT_SLOTS", 3),
		PostgresDSN:  baseCfg.PostgresDSN,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.ReadRatio + cfg.VoteRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ReadRatio /= total
		cfg.VoteRatio /= total
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
	if cfg.HotSlots <= 0 {
		return fmt.Errorf("SIM_HOT_SLOTS must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{slots: map[uuid.UUID][]string{}}

	// In-person events need no provider, so booking them never leaves the process.
	rows, err := pool.Query(ctx, `
		SELECT id FROM event_types
		WHERE is_visible AND location_type = 'IN_PERSON'
		LIMIT $1
	`, cfg.EventLimit)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Events = append(dataPool.Events, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = pool.Query(ctx, `
		SELECT id, slots FROM polls
		WHERE status = 'active' AND (deadline IS NULL OR deadline > now())
		LIMIT $1
	`, cfg.EventLimit)
	if err != nil {
		return nil, fmt.Errorf("load polls: %w", err)
	}
	for rows.Next() {
		var p pollRef
		if err := rows.Scan(&p.ID, &p.Slots); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Polls = append(dataPool.Polls, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Events) == 0 {
		return nil, fmt.Errorf("no bookable events loaded, run cmd/seed first")
	}
	return dataPool, nil
}

// countOverlaps counts pairs of confirmed bookings of the same host whose
// intervals intersect. The exclusion constraint should keep this at zero.
func countOverlaps(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM bookings a
		JOIN bookings b
		  ON a.host_id = b.host_id
		 AND a.id < b.id
		 AND a.start_time < b.end_time
		 AND b.start_time < a.end_time
		WHERE a.status = 'confirmed' AND b.status = 'confirmed'
	`).Scan(&n)
	return n, err
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	for _, id := range s.pool.Events {
		s.refreshSlots(ctx, id)
	}

	s.logger.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
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
				s.doAvailability(ctx, rng)
			default:
				s.doVote(ctx, rng)
			}
		}
	}
}

type availabilityPayload struct {
	Days []struct {
		Slots []struct {
			ID string `json:"id"`
		} `json:"slots"`
	} `json:"days"`
}

func (s *Simulator) fetchSlots(ctx context.Context, event uuid.UUID) ([]string, int, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/public/events/%s/availability?days=14", s.config.APIBaseURL, event), nil)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}

	var payload availabilityPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, resp.StatusCode, err
	}
	var ids []string
	for _, d := range payload.Days {
		for _, sl := range d.Slots {
			ids = append(ids, sl.ID)
		}
	}
	return ids, resp.StatusCode, nil
}

func (s *Simulator) refreshSlots(ctx context.Context, event uuid.UUID) {
	ids, status, err := s.fetchSlots(ctx, event)
	if err != nil || status != http.StatusOK {
		return
	}
	s.pool.SetSlots(event, ids)
}

// doBooking aims at the first few open slots of an event so that workers
// collide on the same slot.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	event := s.pool.Events[rng.Intn(len(s.pool.Events))]
	slots := s.pool.Slots(event)
	if len(slots) == 0 {
		return
	}
	hot := s.config.HotSlots
	if hot > len(slots) {
		hot = len(slots)
	}
	slot := slots[rng.Intn(hot)]

	body, _ := json.Marshal(map[string]string{
		"guestName":  gofakeit.Name(),
		"guestEmail": gofakeit.Email(),
		"startTime":  slot,
	})

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/public/events/%s/bookings", s.config.APIBaseURL, event), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	status := 0
	if err == nil {
		resp.Body.Close()
		status = resp.StatusCode
		if status == http.StatusCreated {
			s.pool.RecordWin(event, slot)
		}
		if status == http.StatusCreated || status == http.StatusConflict {
			s.refreshSlots(ctx, event)
		}
	}
	if ctx.Err() != nil {
		return
	}
	s.metrics.Booking.Record(latency, classify(err, status, http.StatusCreated))
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	event := s.pool.Events[rng.Intn(len(s.pool.Events))]

	start := time.Now()
	_, status, err := s.fetchSlots(ctx, event)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Availability.Record(latency, classify(err, status, http.StatusOK))
}

func (s *Simulator) doVote(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.Polls) == 0 {
		s.doAvailability(ctx, rng)
		return
	}
	p := s.pool.Polls[rng.Intn(len(s.pool.Polls))]
	if len(p.Slots) == 0 {
		return
	}
	pick := p.Slots[rng.Intn(len(p.Slots))]

	body, _ := json.Marshal(map[string]any{
		"participant": gofakeit.Name(),
		"slots":       []string{pick.UTC().Format(time.RFC3339)},
	})

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/polls/%s/votes", s.config.APIBaseURL, p.ID), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	status := 0
	if err == nil {
		resp.Body.Close()
		status = resp.StatusCode
	}
	if ctx.Err() != nil {
		return
	}
	s.metrics.Vote.Record(latency, classify(err, status, http.StatusOK))
}

func (s *Simulator) PrintReport() {
	rule := strings.Repeat("=", 80)
	fmt.Printf("\n%s\nSIMULATION REPORT\n%s\n", rule, rule)
	fmt.Printf("duration=%s workers=%d events=%d hot_slots=%d\n\n",
		s.config.Duration, s.config.Workers, len(s.pool.Events), s.config.HotSlots)

	fmt.Printf("%-14s %8s %8s %9s %7s %8s %8s %8s\n", "operation", "total", "ok", "conflict", "error", "avg", "p50", "p95")
	for _, op := range []struct {
		name string
		om   *OperationMetrics
	}{
		{"booking", &s.metrics.Booking},
		{"availability", &s.metrics.Availability},
		{"poll vote", &s.metrics.Vote},
	} {
		total := op.om.Total()
		if total == 0 {
			continue
		}
		l := op.om.Summary()
		fmt.Printf("%-14s %8d %8d %9d %7d %8s %8s %8s\n", op.name, total,
			op.om.counts[outcomeOK].Load(), op.om.counts[outcomeConflict].Load(), op.om.counts[outcomeError].Load(),
			l.Avg.Round(time.Millisecond), l.P50.Round(time.Millisecond), l.P95.Round(time.Millisecond))
	}
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
