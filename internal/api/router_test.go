package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Alexcyl0107/clinique/internal/alert"
	"github.com/Alexcyl0107/clinique/internal/appointment"
	redisclient "github.com/Alexcyl0107/clinique/internal/redis"
)

var testSecret = []byte("test-secret")

type testEnv struct {
	t      *testing.T
	router http.Handler
	repo   *appointment.MemoryRepository
}

func newTestEnv(t *testing.T, rps float64, burst int) *testEnv {
	t.Helper()
	repo := appointment.NewMemoryRepository()
	svc := appointment.NewService(repo, redisclient.NewLocalAppointmentLocker(time.Second), appointment.DefaultCatalog(), zerolog.Nop())

	router := NewRouter(RouterConfig{
		Service:        svc,
		Store:          repo,
		StoreDriver:    "memory",
		Logger:         zerolog.Nop(),
		JWTSecret:      testSecret,
		CORSOrigins:    []string{"http://localhost:5173"},
		RateLimitRPS:   rps,
		RateLimitBurst: burst,
		Env:            "test",
		Version:        "test",
	})
	return &testEnv{t: t, router: router, repo: repo}
}

func (e *testEnv) token(role appointment.Role, id string) string {
	e.t.Helper()
	tok, err := IssueToken(testSecret, appointment.Actor{ID: id, Role: role}, time.Hour)
	if err != nil {
		e.t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	if got := decode[ErrorResponse](t, rec); got.Error != code {
		t.Fatalf("expected error code %q, got %q", code, got.Error)
	}
}

func booking(service string) map[string]any {
	return map[string]any{
		"patientName":  "Fatou Sow",
		"patientPhone": "771234567",
		"symptoms":     "forte fièvre",
		"serviceId":    service,
	}
}

func TestEmergencyFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	adminTok := env.token(appointment.RoleAdmin, "admin-1")
	doctorTok := env.token(appointment.RoleDoctor, "doc-1")
	pharmaTok := env.token(appointment.RolePharmacist, "ph-1")

	rec := env.do(http.MethodPost, "/api/appointments", "", booking("Urgence"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	created := decode[appointment.Appointment](t, rec)
	if created.Status != appointment.StatusPendingDoctor || !created.IsEmergency || created.IsAcknowledged {
		t.Fatalf("unexpected created appointment %+v", created)
	}

	st := decode[alert.Stats](t, env.do(http.MethodGet, "/api/stats", pharmaTok, nil))
	if !st.Ringing || st.UnacknowledgedEmergencies != 1 || st.EmergencyCount != 1 {
		t.Fatalf("expected ringing stats, got %+v", st)
	}

	rec = env.do(http.MethodPut, "/api/appointments/"+created.ID+"/acknowledge", doctorTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("acknowledge: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[appointment.Appointment](t, rec); !got.IsAcknowledged || got.Status != appointment.StatusPendingDoctor {
		t.Fatalf("unexpected acknowledged appointment %+v", got)
	}

	st = decode[alert.Stats](t, env.do(http.MethodGet, "/api/stats", adminTok, nil))
	if st.Ringing || st.EmergencyCount != 1 {
		t.Fatalf("expected silent alarm with one active emergency, got %+v", st)
	}

	rec = env.do(http.MethodPut, "/api/appointments/"+created.ID+"/plan", doctorTok, map[string]string{"date": "2025-06-01", "time": "09:00"})
	if rec.Code != http.StatusOK {
		t.Fatalf("plan: %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(http.MethodPut, "/api/appointments/"+created.ID+"/validate", adminTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("validate: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[appointment.Appointment](t, rec); got.Status != appointment.StatusScheduled {
		t.Fatalf("expected SCHEDULED, got %s", got.Status)
	}
	rec = env.do(http.MethodPut, "/api/appointments/"+created.ID+"/complete", pharmaTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodDelete, "/api/appointments/"+created.ID, adminTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body.String())
	}
	del := decode[DeleteAppointmentResponse](t, rec)
	if !del.Success || del.ID != created.ID {
		t.Fatalf("unexpected delete response %+v", del)
	}
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	adminTok := env.token(appointment.RoleAdmin, "admin-1")
	doctorTok := env.token(appointment.RoleDoctor, "doc-1")
	patientTok := env.token(appointment.RolePatient, "pat-1")

	created := decode[appointment.Appointment](t, env.do(http.MethodPost, "/api/appointments", patientTok, booking("s1")))
	if created.PatientID != "pat-1" {
		t.Fatalf("expected booking pinned to the patient, got %q", created.PatientID)
	}

	bad := booking("s1")
	delete(bad, "symptoms")
	expectError(t, env.do(http.MethodPost, "/api/appointments", "", bad), http.StatusBadRequest, "validation_failed")

	req := httptest.NewRequest(http.MethodPost, "/api/appointments", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	expectError(t, rec, http.StatusBadRequest, "invalid_request_body")

	expectError(t, env.do(http.MethodPut, "/api/appointments/"+created.ID+"/plan", doctorTok, map[string]string{"date": "", "time": "09:00"}),
		http.StatusBadRequest, "validation_failed")
	expectError(t, env.do(http.MethodPut, "/api/appointments/"+created.ID+"/validate", doctorTok, nil),
		http.StatusForbidden, "forbidden")
	expectError(t, env.do(http.MethodPut, "/api/appointments/"+created.ID+"/validate", adminTok, nil),
		http.StatusConflict, "invalid_status_transition")
	expectError(t, env.do(http.MethodDelete, "/api/appointments/nope", adminTok, nil),
		http.StatusNotFound, "appointment_not_found")
	expectError(t, env.do(http.MethodGet, "/api/stats", patientTok, nil),
		http.StatusForbidden, "forbidden")
	expectError(t, env.do(http.MethodGet, "/api/stats", "", nil),
		http.StatusForbidden, "forbidden")
	expectError(t, env.do(http.MethodGet, "/api/stats", "not-a-token", nil),
		http.StatusUnauthorized, "unauthorized")
	expectError(t, env.do(http.MethodGet, "/api/appointments?status=bogus", adminTok, nil),
		http.StatusBadRequest, "validation_failed")

	got := env.do(http.MethodGet, "/api/appointments/"+created.ID, env.token(appointment.RolePatient, "pat-2"), nil)
	expectError(t, got, http.StatusForbidden, "forbidden")
}

func TestHandleServiceErrorTable(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{redisclient.ErrLockNotAcquired, http.StatusConflict, "appointment_busy"},
		{appointment.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable"},
		{context.DeadlineExceeded, http.StatusServiceUnavailable, "store_unavailable"},
		{fmt.Errorf("list appointments: %w", context.Canceled), http.StatusServiceUnavailable, "store_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		handleServiceError(rec, c.err)
		expectError(t, rec, c.status, c.code)
	}
}

func TestListNewestFirstAndPatientScope(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	adminTok := env.token(appointment.RoleAdmin, "admin-1")
	p1 := env.token(appointment.RolePatient, "pat-1")
	p2 := env.token(appointment.RolePatient, "pat-2")

	env.do(http.MethodPost, "/api/appointments", p1, booking("s1"))
	time.Sleep(2 * time.Millisecond)
	env.do(http.MethodPost, "/api/appointments", p2, booking("s2"))
	time.Sleep(2 * time.Millisecond)
	env.do(http.MethodPost, "/api/appointments", p1, booking("s3"))

	all := decode[ListAppointmentsResponse](t, env.do(http.MethodGet, "/api/appointments", adminTok, nil))
	if all.Count != 3 || all.Appointments[0].ServiceID != "s3" || all.Appointments[2].ServiceID != "s1" {
		t.Fatalf("expected newest first, got %+v", all.Appointments)
	}

	mine := decode[ListAppointmentsResponse](t, env.do(http.MethodGet, "/api/appointments?patientId=pat-2", p1, nil))
	if mine.Count != 2 {
		t.Fatalf("expected patient to see their own 2 bookings, got %d", mine.Count)
	}

	filtered := decode[ListAppointmentsResponse](t, env.do(http.MethodGet, "/api/appointments?patientId=pat-2", adminTok, nil))
	if filtered.Count != 1 || filtered.Appointments[0].ServiceID != "s2" {
		t.Fatalf("expected one booking for pat-2, got %+v", filtered.Appointments)
	}

	expectError(t, env.do(http.MethodGet, "/api/appointments", "", nil), http.StatusForbidden, "forbidden")
}

func TestServicesCatalog(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	rec := env.do(http.MethodGet, "/api/services", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("services: %d", rec.Code)
	}
	services := decode[[]appointment.MedicalService](t, rec)
	found := false
	for _, s := range services {
		if s.ID == appointment.UrgencyServiceID && s.Title == "Urgence" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the urgency service in %+v", services)
	}
}

func TestBookingRateLimit(t *testing.T) {
	env := newTestEnv(t, 0.001, 2)

	for i := 0; i < 2; i++ {
		if rec := env.do(http.MethodPost, "/api/appointments", "", booking("s1")); rec.Code != http.StatusCreated {
			t.Fatalf("booking %d: %d %s", i, rec.Code, rec.Body.String())
		}
	}
	expectError(t, env.do(http.MethodPost, "/api/appointments", "", booking("s1")), http.StatusTooManyRequests, "rate_limited")

	// reads are not limited
	if rec := env.do(http.MethodGet, "/api/services", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("services after limit: %d", rec.Code)
	}
}

func TestTokenRejections(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	expired, err := IssueToken(testSecret, appointment.Actor{ID: "a", Role: appointment.RoleAdmin}, -time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	expectError(t, env.do(http.MethodGet, "/api/stats", expired, nil), http.StatusUnauthorized, "unauthorized")

	forged, err := IssueToken([]byte("other-secret"), appointment.Actor{ID: "a", Role: appointment.RoleAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	expectError(t, env.do(http.MethodGet, "/api/stats", forged, nil), http.StatusUnauthorized, "unauthorized")

	if _, err := IssueToken(testSecret, appointment.Actor{}, time.Hour); err == nil {
		t.Fatal("expected an error issuing a token for an anonymous actor")
	}
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	if rec := env.do(http.MethodGet, "/health/live", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("live: %d", rec.Code)
	}
	rec := env.do(http.MethodGet, "/health/ready", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ready: %d", rec.Code)
	}
	if got := decode[ReadinessResponse](t, rec); got.Dependencies["memory"] != "ok" {
		t.Fatalf("unexpected readiness %+v", got)
	}

	h := NewHealthHandler(downStore{}, "postgres", nil, "test", "v")
	rec = httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with the store down, got %d", rec.Code)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h = NewHealthHandler(appointment.NewMemoryRepository(), "memory", rdb, "test", "v")
	rec = httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with redis up, got %d", rec.Code)
	}

	mr.Close()
	rec = httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with the lock backend down, got %d", rec.Code)
	}
	if got := decode[ReadinessResponse](t, rec); got.Status != "error" || got.Dependencies["redis"] != "down" {
		t.Fatalf("unexpected readiness %+v", got)
	}
}
