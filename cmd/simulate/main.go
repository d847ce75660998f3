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

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"

	"github.com/Alexcyl0107/clinique/internal/alert"
	"github.com/Alexcyl0107/clinique/internal/api"
	"github.com/Alexcyl0107/clinique/internal/appointment"
	"github.com/Alexcyl0107/clinique/internal/config"
	"github.com/Alexcyl0107/clinique/internal/logging"
	"github.com/Alexcyl0107/clinique/internal/poller"
)

type SimConfig struct {
	APIBaseURL     string
	Duration       time.Duration
	Workers        int
	Pollers        int
	PollInterval   time.Duration
	BookingRatio   float64
	AckRatio       float64
	WorkflowRatio  float64
	EmergencyRatio float64
	JWTSecret      string
}

// DataPool tracks the appointments created during the run.
type DataPool struct {
	mu           sync.RWMutex
	appointments []string
	emergencies  map[string]time.Time // id -> creation time seen by the booker
}

func (dp *DataPool) AddAppointment(id string, emergency bool, at time.Time) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
	if emergency {
		dp.emergencies[id] = at
	}
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return "", false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

func (dp *DataPool) EmergencyCreatedAt(id string) (time.Time, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	at, ok := dp.emergencies[id]
	return at, ok
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
	Booking     OperationMetrics
	Acknowledge OperationMetrics
	Plan        OperationMetrics
	Validate    OperationMetrics
	Poll        OperationMetrics
	// AlarmPropagation is the delay between booking an emergency and a poller seeing it ring.
	AlarmPropagation OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  zerolog.Logger

	adminToken  string
	doctorToken string
	staffToken  string
}

func main() {
	clientCfg := config.LoadClient()
	logger := logging.New(clientCfg.Env, "simulate")

	cfg := loadConfig(clientCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Int("pollers", cfg.Pollers).
		Float64("booking", cfg.BookingRatio).
		Float64("ack", cfg.AckRatio).
		Float64("workflow", cfg.WorkflowRatio).
		Msg("simulator starting")

	sim := &Simulator{
		config: cfg,
		pool:   &DataPool{emergencies: make(map[string]time.Time)},
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
	if err := sim.issueTokens(); err != nil {
		logger.Fatal().Err(err).Msg("issue tokens")
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig(clientCfg config.ClientConfig) SimConfig {
	cfg := SimConfig{
		APIBaseURL:     strings.TrimRight(getEnv("SIM_API_BASE_URL", clientCfg.ServerURL), "/"),
		Duration:       getDuration("SIM_DURATION", 30*time.Second),
		Workers:        getInt("SIM_WORKERS", 10),
		Pollers:        getInt("SIM_POLLERS", 5),
		PollInterval:   getDuration("SIM_POLL_INTERVAL", clientCfg.PollInterval),
		BookingRatio:   getFloat("SIM_BOOKING_RATIO", 0.4),
		AckRatio:       getFloat("SIM_ACK_RATIO", 0.3),
		WorkflowRatio:  getFloat("SIM_WORKFLOW_RATIO", 0.3),
		EmergencyRatio: getFloat("SIM_EMERGENCY_RATIO", 0.2),
		JWTSecret:      clientCfg.JWTSecret,
	}

	total := cfg.BookingRatio + cfg.AckRatio + cfg.WorkflowRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.AckRatio /= total
		cfg.WorkflowRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required outside APP_ENV=dev")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("SIM_POLL_INTERVAL must be > 0")
	}
	return nil
}

func (s *Simulator) issueTokens() error {
	secret := []byte(s.config.JWTSecret)
	var err error
	if s.adminToken, err = api.IssueToken(secret, appointment.Actor{ID: "sim-admin", Role: appointment.RoleAdmin}, time.Hour); err != nil {
		return err
	}
	if s.doctorToken, err = api.IssueToken(secret, appointment.Actor{ID: "sim-doctor", Role: appointment.RoleDoctor}, time.Hour); err != nil {
		return err
	}
	s.staffToken, err = api.IssueToken(secret, appointment.Actor{ID: "sim-pharmacist", Role: appointment.RolePharmacist}, time.Hour)
	return err
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Pollers; i++ {
		wg.Add(1)
		go func(pollerID int) {
			defer wg.Done()
			s.staffSession(ctx, pollerID)
		}(i)
	}
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

// staffSession is one staff dashboard: it polls stats and records how long
// each emergency took to reach it.
func (s *Simulator) staffSession(ctx context.Context, pollerID int) {
	client := poller.NewStatsClient(s.config.APIBaseURL, s.staffToken)
	client.HTTP = s.client
	seen := make(map[string]struct{})

	p := &poller.Poller{
		Interval: s.config.PollInterval,
		Logger:   s.logger.With().Int("poller", pollerID).Logger().Level(zerolog.WarnLevel),
		Fetch: func(ctx context.Context) (alert.Stats, error) {
			start := time.Now()
			st, err := client.FetchStats(ctx)
			s.metrics.Poll.Record(time.Since(start), err == nil, false)
			return st, err
		},
		OnUpdate: func(st alert.Stats) {
			now := time.Now()
			for _, id := range st.RingingAppointmentIDs {
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				if at, ok := s.pool.EmergencyCreatedAt(id); ok {
					s.metrics.AlarmPropagation.Record(now.Sub(at), true, false)
				}
			}
		},
	}
	_ = p.Run(ctx)
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	faker := gofakeit.New(0)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng, faker)
			case r < s.config.BookingRatio+s.config.AckRatio:
				s.doAcknowledge(ctx, rng)
			default:
				s.doWorkflow(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand, faker *gofakeit.Faker) {
	service := "s1"
	if rng.Float64() < s.config.EmergencyRatio {
		service = appointment.UrgencyServiceID
	}

	body := map[string]string{
		"patientName":  faker.Name(),
		"patientPhone": faker.Phone(),
		"symptoms":     faker.Sentence(6),
		"serviceId":    service,
	}

	start := time.Now()
	status, respBody, err := s.send(ctx, http.MethodPost, "/api/appointments", "", body)
	latency := time.Since(start)

	success := err == nil && status == http.StatusCreated
	if success {
		var created appointment.Appointment
		if json.Unmarshal(respBody, &created) == nil && created.ID != "" {
			s.pool.AddAppointment(created.ID, created.IsEmergency, start)
		}
	}
	s.metrics.Booking.Record(latency, success, status == http.StatusTooManyRequests)
}

func (s *Simulator) doAcknowledge(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	s.timed(ctx, &s.metrics.Acknowledge, http.MethodPut, "/api/appointments/"+id+"/acknowledge", s.staffToken, nil)
}

// doWorkflow races plan and validate against whatever other workers are doing.
func (s *Simulator) doWorkflow(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	if rng.Intn(2) == 0 {
		slot := map[string]string{
			"date": time.Now().AddDate(0, 0, 1+rng.Intn(14)).Format("2006-01-02"),
			"time": fmt.Sprintf("%02d:%02d", 8+rng.Intn(10), 15*rng.Intn(4)),
		}
		s.timed(ctx, &s.metrics.Plan, http.MethodPut, "/api/appointments/"+id+"/plan", s.doctorToken, slot)
		return
	}
	s.timed(ctx, &s.metrics.Validate, http.MethodPut, "/api/appointments/"+id+"/validate", s.adminToken, nil)
}

func (s *Simulator) timed(ctx context.Context, om *OperationMetrics, method, path, token string, body any) {
	start := time.Now()
	status, _, err := s.send(ctx, method, path, token, body)
	om.Record(time.Since(start), err == nil && status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) send(ctx context.Context, method, path, token string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	return resp.StatusCode, respBody, err
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d  Staff pollers: %d  Poll interval: %s\n", s.config.Workers, s.config.Pollers, s.config.PollInterval)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Acknowledge", &s.metrics.Acknowledge)
	printOperationReport("Plan", &s.metrics.Plan)
	printOperationReport("Validate", &s.metrics.Validate)
	printOperationReport("Stats poll", &s.metrics.Poll)
	printOperationReport("Alarm propagation", &s.metrics.AlarmPropagation)
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
