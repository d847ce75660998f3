package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, patient_id, patient_name, patient_phone, patient_email, symptoms,
	doctor_id, service_id, service_name, visit_type, visit_date, visit_time,
	status, is_emergency, is_acknowledged, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var patientID, patientEmail, doctorID, visitDate, visitTime *string

	err := row.Scan(
		&a.ID,
		&patientID,
		&a.PatientName,
		&a.PatientPhone,
		&patientEmail,
		&a.Symptoms,
		&doctorID,
		&a.ServiceID,
		&a.ServiceName,
		&a.Type,
		&visitDate,
		&visitTime,
		&a.Status,
		&a.IsEmergency,
		&a.IsAcknowledged,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.PatientID = deref(patientID)
	a.PatientEmail = deref(patientEmail)
	a.DoctorID = deref(doctorID)
	a.Date = deref(visitDate)
	a.Time = deref(visitTime)
	return &a, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Interface methods

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING `+appointmentColumns,
		a.ID, nullable(a.PatientID), a.PatientName, a.PatientPhone, nullable(a.PatientEmail), a.Symptoms,
		nullable(a.DoctorID), a.ServiceID, a.ServiceName, a.Type, nullable(a.Date), nullable(a.Time),
		a.Status, a.IsEmergency, a.IsAcknowledged, a.CreatedAt, a.UpdatedAt,
	)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	var where []string
	var args []any

	if filter.PatientID != "" {
		args = append(args, filter.PatientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if filter.DoctorID != "" {
		args = append(args, filter.DoctorID)
		where = append(where, fmt.Sprintf("doctor_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, next *Appointment, expected AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    doctor_id = $3,
		    visit_date = $4,
		    visit_time = $5,
		    is_acknowledged = is_acknowledged OR $6,
		    updated_at = $7
		WHERE id = $1
		  AND status = $8
		RETURNING `+appointmentColumns,
		next.ID, next.Status, nullable(next.DoctorID), nullable(next.Date), nullable(next.Time),
		next.IsAcknowledged, next.UpdatedAt, expected,
	)

	updated, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		// no row matched: either the record is gone or its status moved on
		if _, getErr := r.GetAppointmentByID(ctx, next.ID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStatusChanged
	}
	return updated, err
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
