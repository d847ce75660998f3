package appointment

import (
	"context"
	"errors"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrStatusChanged is returned by UpdateAppointment when the stored status no
	// longer matches the status the caller read.
	ErrStatusChanged = errors.New("appointment status changed concurrently")
)

// Repository is the persistence boundary of the lifecycle manager.
type Repository interface {
	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id string) (*Appointment, error)

	// ListAppointments returns matching appointments, newest first.
	ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error)

	// UpdateAppointment writes the mutable fields of next when the stored status
	// still equals expected. is_acknowledged is OR-ed, never overwritten with false.
	UpdateAppointment(ctx context.Context, next *Appointment, expected AppointmentStatus) (*Appointment, error)

	DeleteAppointment(ctx context.Context, id string) error

	Ping(ctx context.Context) error
}
