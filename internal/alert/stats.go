package alert

import (
	"time"

	"github.com/Alexcyl0107/clinique/internal/appointment"
)

// Stats is the snapshot staff clients poll. Every field is recomputed from the
// full appointment set on each request.
type Stats struct {
	TotalAppointments         int       `json:"totalAppointments"`
	PendingAppointments       int       `json:"pendingAppointments"`
	AwaitingDoctor            int       `json:"awaitingDoctor"`
	ConfirmedAppointments     int       `json:"confirmedAppointments"`
	CompletedAppointments     int       `json:"completedAppointments"`
	CancelledAppointments     int       `json:"cancelledAppointments"`
	EmergencyCount            int       `json:"emergencyCount"`
	UnacknowledgedEmergencies int       `json:"unacknowledgedEmergencies"`
	Ringing                   bool      `json:"ringing"`
	RingingAppointmentIDs     []string  `json:"ringingAppointmentIds"`
	ComputedAt                time.Time `json:"computedAt"`
}

// ComputeRinging reports whether at least one emergency is still open and
// nobody has acknowledged it.
func ComputeRinging(appointments []appointment.Appointment) bool {
	for _, a := range appointments {
		if a.Ringing() {
			return true
		}
	}
	return false
}

// Summarize counts appointments per status and collects the ids sounding the alarm.
func Summarize(appointments []appointment.Appointment, now time.Time) Stats {
	st := Stats{
		TotalAppointments:     len(appointments),
		RingingAppointmentIDs: []string{},
		ComputedAt:            now,
	}

	for _, a := range appointments {
		switch a.Status {
		case appointment.StatusPendingDoctor:
			st.AwaitingDoctor++
		case appointment.StatusPendingAdmin:
			st.PendingAppointments++
		case appointment.StatusScheduled:
			st.ConfirmedAppointments++
		case appointment.StatusCompleted:
			st.CompletedAppointments++
		case appointment.StatusCancelled:
			st.CancelledAppointments++
		}

		if a.ActiveEmergency() {
			st.EmergencyCount++
		}
		if a.Ringing() {
			st.UnacknowledgedEmergencies++
			st.RingingAppointmentIDs = append(st.RingingAppointmentIDs, a.ID)
		}
	}

	st.Ringing = st.UnacknowledgedEmergencies > 0
	return st
}
