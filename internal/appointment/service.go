package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/Alexcyl0107/clinique/internal/redis"
)

const (
	EventAppointmentCreated    = "APPOINTMENT_CREATED"
	EventAppointmentPlanned    = "APPOINTMENT_PLANNED"
	EventAppointmentValidated  = "APPOINTMENT_VALIDATED"
	EventEmergencyAcknowledged = "EMERGENCY_ACKNOWLEDGED"
	EventAppointmentCompleted  = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled  = "APPOINTMENT_CANCELLED"
	EventAppointmentDeleted    = "APPOINTMENT_DELETED"
)

var (
	ErrValidation              = errors.New("validation failed")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrForbidden               = errors.New("operation not permitted for this actor")
	ErrStoreUnavailable        = errors.New("appointment store unavailable")
)

type Service struct {
	repo    Repository
	locker  redisclient.Locker
	catalog *Catalog
	logger  zerolog.Logger
	now     func() time.Time
	newID   func() string
}

type ServiceOption func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(newID func() string) ServiceOption {
	return func(s *Service) { s.newID = newID }
}

func NewService(repo Repository, locker redisclient.Locker, catalog *Catalog, logger zerolog.Logger, opts ...ServiceOption) *Service {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	s := &Service{
		repo:    repo,
		locker:  locker,
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// CreateAppointment books a new appointment in PENDING_DOCTOR. Anyone may book;
// a patient always books for themselves and a guest never names a patient.
func (s *Service) CreateAppointment(ctx context.Context, actor Actor, req CreateRequest) (*Appointment, error) {
	req = req.normalized()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	svc, ok := s.catalog.Resolve(req.Service)
	if !ok {
		return nil, fmt.Errorf("%w: unknown service %q", ErrValidation, req.Service)
	}

	switch {
	case actor.Role == RolePatient:
		req.PatientID = actor.ID
	case actor.Anonymous():
		req.PatientID = ""
	}

	now := s.now().UTC()
	emergency := svc.IsUrgency()
	appt := &Appointment{
		ID:             s.newID(),
		PatientID:      req.PatientID,
		PatientName:    req.PatientName,
		PatientPhone:   req.PatientPhone,
		PatientEmail:   req.PatientEmail,
		Symptoms:       req.Symptoms,
		DoctorID:       req.DoctorID,
		ServiceID:      svc.ID,
		ServiceName:    svc.Title,
		Type:           req.Type,
		Status:         StatusPendingDoctor,
		IsEmergency:    emergency,
		IsAcknowledged: !emergency,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	created, err := s.repo.CreateAppointment(ctx, appt)
	if err != nil {
		return nil, storeError("create appointment", err)
	}

	ev := s.logger.Info()
	if created.IsEmergency {
		ev = s.logger.Warn()
	}
	s.logEvent(ev, EventAppointmentCreated, actor, created)

	return created, nil
}

// PlanAppointment assigns the visit slot. Re-planning an appointment still
// waiting for the admin is allowed.
func (s *Service) PlanAppointment(ctx context.Context, actor Actor, id string, req PlanRequest) (*Appointment, error) {
	if !actor.Has(CapabilityDoctor) {
		return nil, forbidden(actor, "plan", CapabilityDoctor)
	}
	req = req.normalized()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	return s.transition(ctx, actor, id, transition{
		name:  "plan",
		event: EventAppointmentPlanned,
		from:  []AppointmentStatus{StatusPendingDoctor, StatusPendingAdmin},
		apply: func(a *Appointment) {
			a.Status = StatusPendingAdmin
			a.Date = req.Date
			a.Time = req.Time
			if a.DoctorID == "" {
				a.DoctorID = actor.ID
			}
		},
	})
}

// ValidateAppointment confirms a planned appointment. Validating also
// acknowledges it.
func (s *Service) ValidateAppointment(ctx context.Context, actor Actor, id string) (*Appointment, error) {
	if !actor.Has(CapabilityAdmin) {
		return nil, forbidden(actor, "validate", CapabilityAdmin)
	}

	return s.transition(ctx, actor, id, transition{
		name:  "validate",
		event: EventAppointmentValidated,
		from:  []AppointmentStatus{StatusPendingAdmin},
		apply: func(a *Appointment) {
			a.Status = StatusScheduled
			a.IsAcknowledged = true
		},
	})
}

// AcknowledgeAppointment marks an emergency as taken in charge without moving
// its status. A second call returns the record unchanged.
func (s *Service) AcknowledgeAppointment(ctx context.Context, actor Actor, id string) (*Appointment, error) {
	if !actor.Has(CapabilityStaff) {
		return nil, forbidden(actor, "acknowledge", CapabilityStaff)
	}

	return s.transition(ctx, actor, id, transition{
		name:  "acknowledge",
		event: EventEmergencyAcknowledged,
		from:  []AppointmentStatus{StatusPendingDoctor, StatusPendingAdmin, StatusScheduled},
		done:  func(a Appointment) bool { return a.IsAcknowledged },
		apply: func(a *Appointment) {
			a.IsAcknowledged = true
		},
	})
}

func (s *Service) CompleteAppointment(ctx context.Context, actor Actor, id string) (*Appointment, error) {
	if !actor.Has(CapabilityStaff) {
		return nil, forbidden(actor, "complete", CapabilityStaff)
	}

	return s.transition(ctx, actor, id, transition{
		name:  "complete",
		event: EventAppointmentCompleted,
		from:  []AppointmentStatus{StatusScheduled},
		apply: func(a *Appointment) {
			a.Status = StatusCompleted
		},
	})
}

func (s *Service) CancelAppointment(ctx context.Context, actor Actor, id string) (*Appointment, error) {
	if !actor.Has(CapabilityAdmin) {
		return nil, forbidden(actor, "cancel", CapabilityAdmin)
	}

	return s.transition(ctx, actor, id, transition{
		name:  "cancel",
		event: EventAppointmentCancelled,
		from:  []AppointmentStatus{StatusPendingDoctor, StatusPendingAdmin, StatusScheduled},
		apply: func(a *Appointment) {
			a.Status = StatusCancelled
		},
	})
}

// DeleteAppointment hard deletes the record whatever its status.
func (s *Service) DeleteAppointment(ctx context.Context, actor Actor, id string) error {
	if !actor.Has(CapabilityAdmin) {
		return forbidden(actor, "delete", CapabilityAdmin)
	}

	err := s.locker.WithAppointmentLock(ctx, id, func(lockCtx context.Context) error {
		cur, err := s.repo.GetAppointmentByID(lockCtx, id)
		if err != nil {
			return storeError("load appointment", err)
		}
		if err := s.repo.DeleteAppointment(lockCtx, id); err != nil {
			return storeError("delete appointment", err)
		}
		s.logEvent(s.logger.Info(), EventAppointmentDeleted, actor, cur)
		return nil
	})
	return classify(err)
}

// GetAppointment returns one appointment. Patients only see their own.
func (s *Service) GetAppointment(ctx context.Context, actor Actor, id string) (*Appointment, error) {
	if actor.Anonymous() {
		return nil, forbidden(actor, "get", CapabilityStaff)
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, storeError("get appointment", err)
	}
	if !actor.IsStaff() && appt.PatientID != actor.ID {
		return nil, forbidden(actor, "get", CapabilityStaff)
	}
	return appt, nil
}

// ListAppointments returns appointments newest first. A patient's filter is
// pinned to their own id.
func (s *Service) ListAppointments(ctx context.Context, actor Actor, filter ListFilter) ([]Appointment, error) {
	if actor.Anonymous() {
		return nil, forbidden(actor, "list", CapabilityStaff)
	}
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if !actor.IsStaff() {
		filter.PatientID = actor.ID
	}

	list, err := s.repo.ListAppointments(ctx, filter)
	if err != nil {
		return nil, storeError("list appointments", err)
	}
	return list, nil
}

type transition struct {
	name  string
	event string
	from  []AppointmentStatus
	// done reports that the record already carries the effect, so nothing is written.
	done  func(a Appointment) bool
	apply func(a *Appointment)
}

func (t transition) allows(st AppointmentStatus) bool {
	for _, f := range t.from {
		if f == st {
			return true
		}
	}
	return false
}

// transition loads the record under its lock, checks the source status and
// writes the result conditionally on that status still being current.
func (s *Service) transition(ctx context.Context, actor Actor, id string, t transition) (*Appointment, error) {
	var result *Appointment

	err := s.locker.WithAppointmentLock(ctx, id, func(lockCtx context.Context) error {
		cur, err := s.repo.GetAppointmentByID(lockCtx, id)
		if err != nil {
			return storeError("load appointment", err)
		}
		if !t.allows(cur.Status) {
			return fmt.Errorf("%w: cannot %s an appointment in %s", ErrInvalidStatusTransition, t.name, cur.Status)
		}
		if t.done != nil && t.done(*cur) {
			result = cur
			return nil
		}

		next := *cur
		t.apply(&next)
		next.UpdatedAt = s.now().UTC()

		updated, err := s.repo.UpdateAppointment(lockCtx, &next, cur.Status)
		if err != nil {
			if errors.Is(err, ErrStatusChanged) {
				return fmt.Errorf("%w: %s raced with another update", ErrInvalidStatusTransition, t.name)
			}
			return storeError(t.name+" appointment", err)
		}

		result = updated
		s.logEvent(s.logger.Info(), t.event, actor, updated)
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return result, nil
}

func (s *Service) logEvent(ev *zerolog.Event, eventType string, actor Actor, a *Appointment) {
	role := string(actor.Role)
	if actor.Anonymous() {
		role = "ANONYMOUS"
	}
	ev.Str("event", eventType).
		Str("appointment_id", a.ID).
		Str("status", string(a.Status)).
		Bool("emergency", a.IsEmergency).
		Bool("acknowledged", a.IsAcknowledged).
		Str("actor_role", role).
		Str("actor_id", actor.ID).
		Msg("appointment event")
}

func forbidden(actor Actor, op string, c Capability) error {
	role := string(actor.Role)
	if actor.Anonymous() {
		role = "anonymous"
	}
	return fmt.Errorf("%w: %s requires %s capability, caller is %s", ErrForbidden, op, c, role)
}

// storeError keeps the lifecycle sentinels and turns every other repository
// failure into ErrStoreUnavailable.
func storeError(op string, err error) error {
	if errors.Is(err, ErrAppointmentNotFound) || errors.Is(err, ErrStatusChanged) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// classify wraps lock backend failures as store failures. Errors produced
// inside the critical section are already classified.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrAppointmentNotFound),
		errors.Is(err, ErrInvalidStatusTransition),
		errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, redisclient.ErrLockNotAcquired),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
