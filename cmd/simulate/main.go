package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/logging"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	BookingRatio  float64
	WorkflowRatio float64
	ReadRatio     float64
	PatientLimit  int
	SlotInterval  time.Duration
	StartHour     int
	EndHour       int
	HorizonDays   int
	PostgresDSN   string
}

type DataPool struct {
	Patients []uuid.UUID
	Doctors  []uuid.UUID
	Nurses   []uuid.UUID
	Rooms    []uuid.UUID
	Admins   []uuid.UUID

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
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
	Booking       OperationMetrics
	Assign        OperationMetrics
	Cancel        OperationMetrics
	Close         OperationMetrics
	ReadByID      OperationMetrics
	ListByPatient OperationMetrics
	ListByDoctor  OperationMetrics
	Slots         OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *zap.Logger
	metrics Metrics
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load base config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(baseCfg.LogLevel, "console", "simulate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("workflow", cfg.WorkflowRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}

	logger.Info("data pool loaded",
		zap.Int("patients", len(dataPool.Patients)),
		zap.Int("doctors", len(dataPool.Doctors)),
		zap.Int("nurses", len(dataPool.Nurses)),
		zap.Int("rooms", len(dataPool.Rooms)),
	)

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:"+base.HTTPPort),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.4),
		WorkflowRatio: getFloat("SIM_WORKFLOW_RATIO", 0.3),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit:  getInt("SIM_PATIENT_LIMIT", 4000),
		SlotInterval:  base.SlotInterval,
		StartHour:     base.WorkdayStartHour,
		EndHour:       base.WorkdayEndHour,
		HorizonDays:   getInt("SIM_HORIZON_DAYS", 5),
		PostgresDSN:   base.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.WorkflowRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.WorkflowRatio /= total
		cfg.ReadRatio /= total
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
	if cfg.HorizonDays <= 0 {
		return fmt.Errorf("SIM_HORIZON_DAYS must be > 0")
	}
	return nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dp := &DataPool{}

	queries := []struct {
		name  string
		dst   *[]uuid.UUID
		query string
		args  []any
	}{
		{"patients", &dp.Patients, `SELECT id FROM users WHERE role = 'patient' AND active LIMIT $1`, []any{cfg.PatientLimit}},
		{"doctors", &dp.Doctors, `SELECT id FROM doctors`, nil},
		{"nurses", &dp.Nurses, `SELECT id FROM nurses`, nil},
		{"rooms", &dp.Rooms, `SELECT id FROM rooms`, nil},
		{"admins", &dp.Admins, `SELECT id FROM users WHERE lower(role) IN ('admin', 'administrator')`, nil},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, q := range queries {
		g.Go(func() error {
			ids, err := loadIDs(gctx, pool, q.query, q.args...)
			if err != nil {
				return fmt.Errorf("load %s: %w", q.name, err)
			}
			*q.dst = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(dp.Patients) == 0 || len(dp.Doctors) == 0 {
		return nil, fmt.Errorf("no patients or doctors loaded, run cmd/seed first")
	}
	if len(dp.Nurses) == 0 || len(dp.Rooms) == 0 {
		return nil, fmt.Errorf("no nurses or rooms loaded, run cmd/seed first")
	}
	return dp, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("starting simulation", zap.Duration("duration", s.config.Duration), zap.Int("workers", s.config.Workers))

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.WorkflowRatio:
			switch rng.Intn(4) {
			case 0, 1:
				s.doAssign(ctx, rng)
			case 2:
				s.doClose(ctx, rng)
			case 3:
				s.doCancel(ctx, rng)
			}
		default:
			switch rng.Intn(4) {
			case 0:
				s.doReadByID(ctx, rng)
			case 1:
				s.doListByPatient(ctx, rng)
			case 2:
				s.doListByDoctor(ctx, rng)
			case 3:
				s.doSlots(ctx, rng)
			}
		}
	}
}

// randomSlot picks a lattice instant within the next HorizonDays so that
// concurrent workers collide on the same doctor and time.
func (s *Simulator) randomSlot(rng *rand.Rand) time.Time {
	now := time.Now()
	day := time.Date(now.Year(), now.Month(), now.Day(), s.config.StartHour, 0, 0, 0, time.Local).
		AddDate(0, 0, 1+rng.Intn(s.config.HorizonDays))
	perDay := int(time.Duration(s.config.EndHour-s.config.StartHour)*time.Hour/s.config.SlotInterval) + 1
	return day.Add(time.Duration(rng.Intn(perDay)) * s.config.SlotInterval)
}

func pick(rng *rand.Rand, ids []uuid.UUID) uuid.UUID {
	if len(ids) == 0 {
		return uuid.Nil
	}
	return ids[rng.Intn(len(ids))]
}

// call issues one request and reports the status code, or 0 on transport error.
func (s *Simulator) call(ctx context.Context, method, path string, actor uuid.UUID, body any, out any) int {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	if actor != uuid.Nil {
		req.Header.Set("X-Actor-ID", actor.String())
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Debug("request failed", zap.String("path", path), zap.Error(err))
		}
		return 0
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		_ = json.NewDecoder(resp.Body).Decode(out)
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode
}

func (s *Simulator) record(om *OperationMetrics, start time.Time, status, want int) {
	om.Record(time.Since(start), status == want, status == http.StatusConflict)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	patientID := pick(rng, s.pool.Patients)
	body := map[string]any{
		"patient_id":       patientID,
		"doctor_id":        pick(rng, s.pool.Doctors),
		"appointment_date": s.randomSlot(rng),
	}

	var created struct {
		Appointment struct {
			ID uuid.UUID `json:"id"`
		} `json:"appointment"`
	}

	start := time.Now()
	status := s.call(ctx, http.MethodPost, "/appointments", patientID, body, &created)
	s.record(&s.metrics.Booking, start, status, http.StatusCreated)

	if status == http.StatusCreated && created.Appointment.ID != uuid.Nil {
		s.pool.AddAppointment(created.Appointment.ID)
	}
}

func (s *Simulator) doAssign(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	body := map[string]any{
		"nurse_id": pick(rng, s.pool.Nurses),
		"room_id":  pick(rng, s.pool.Rooms),
	}

	start := time.Now()
	status := s.call(ctx, http.MethodPost, "/appointments/"+apptID.String()+"/assign", pick(rng, s.pool.Admins), body, nil)
	s.record(&s.metrics.Assign, start, status, http.StatusOK)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status := s.call(ctx, http.MethodPost, "/appointments/"+apptID.String()+"/cancel", pick(rng, s.pool.Admins),
		map[string]string{"reason": "simulated cancellation"}, nil)
	s.record(&s.metrics.Cancel, start, status, http.StatusOK)
}

func (s *Simulator) doClose(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status := s.call(ctx, http.MethodPost, "/appointments/"+apptID.String()+"/close", uuid.Nil,
		map[string]string{"notes": "follow up in two weeks", "medicine": "paracetamol"}, nil)
	s.record(&s.metrics.Close, start, status, http.StatusOK)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status := s.call(ctx, http.MethodGet, "/appointments/"+apptID.String(), uuid.Nil, nil, nil)
	s.record(&s.metrics.ReadByID, start, status, http.StatusOK)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	start := time.Now()
	status := s.call(ctx, http.MethodGet,
		fmt.Sprintf("/appointments?patient_id=%s&limit=20&offset=0", pick(rng, s.pool.Patients)), uuid.Nil, nil, nil)
	s.record(&s.metrics.ListByPatient, start, status, http.StatusOK)
}

func (s *Simulator) doListByDoctor(ctx context.Context, rng *rand.Rand) {
	start := time.Now()
	status := s.call(ctx, http.MethodGet,
		fmt.Sprintf("/appointments?doctor_id=%s&limit=20&offset=0", pick(rng, s.pool.Doctors)), uuid.Nil, nil, nil)
	s.record(&s.metrics.ListByDoctor, start, status, http.StatusOK)
}

func (s *Simulator) doSlots(ctx context.Context, rng *rand.Rand) {
	start := time.Now()
	status := s.call(ctx, http.MethodGet, "/doctors/"+pick(rng, s.pool.Doctors).String()+"/slots", uuid.Nil, nil, nil)
	s.record(&s.metrics.Slots, start, status, http.StatusOK)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Assign", &s.metrics.Assign)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Close", &s.metrics.Close)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Patient", &s.metrics.ListByPatient)
	printOperationReport("List by Doctor", &s.metrics.ListByDoctor)
	printOperationReport("Available Slots", &s.metrics.Slots)
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
