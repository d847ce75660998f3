package appointment

import (
	"strings"
	"time"
)

type AppointmentStatus string

// Status tokens are case-sensitive and shared with the web client and every store.
const (
	StatusPendingDoctor AppointmentStatus = "PENDING_DOCTOR"
	StatusPendingAdmin  AppointmentStatus = "PENDING_ADMIN"
	StatusScheduled     AppointmentStatus = "SCHEDULED"
	StatusCompleted     AppointmentStatus = "COMPLETED"
	StatusCancelled     AppointmentStatus = "CANCELLED"
)

// AllStatuses lists the statuses in lifecycle order.
var AllStatuses = []AppointmentStatus{
	StatusPendingDoctor,
	StatusPendingAdmin,
	StatusScheduled,
	StatusCompleted,
	StatusCancelled,
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPendingDoctor, StatusPendingAdmin, StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Rank orders statuses along PENDING_DOCTOR → PENDING_ADMIN → SCHEDULED → COMPLETED.
// CANCELLED ranks last; it can follow any non-terminal status.
func (s AppointmentStatus) Rank() int {
	for i, st := range AllStatuses {
		if st == s {
			return i
		}
	}
	return -1
}

type VisitType string

const (
	VisitInPerson VisitType = "IN_PERSON"
	VisitVideo    VisitType = "VIDEO"
)

type Appointment struct {
	ID             string            `json:"id"`
	PatientID      string            `json:"patientId,omitempty"`
	PatientName    string            `json:"patientName"`
	PatientPhone   string            `json:"patientPhone"`
	PatientEmail   string            `json:"patientEmail,omitempty"`
	Symptoms       string            `json:"symptoms"`
	DoctorID       string            `json:"doctorId,omitempty"`
	ServiceID      string            `json:"serviceId"`
	ServiceName    string            `json:"serviceName,omitempty"`
	Type           VisitType         `json:"type"`
	Date           string            `json:"date,omitempty"`
	Time           string            `json:"time,omitempty"`
	Status         AppointmentStatus `json:"status"`
	IsEmergency    bool              `json:"isEmergency"`
	IsAcknowledged bool              `json:"isAcknowledged"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// ActiveEmergency reports whether a is an emergency that is still being handled.
func (a Appointment) ActiveEmergency() bool {
	return a.IsEmergency && !a.Status.Terminal()
}

// Ringing reports whether a alone is enough to sound the staff alarm.
func (a Appointment) Ringing() bool {
	return a.ActiveEmergency() && !a.IsAcknowledged
}

// mergeMutable copies the fields a transition may change from next onto cur.
// Identity, patient data, the emergency flag and creation time never change, and
// an acknowledgement is never taken back.
func mergeMutable(cur *Appointment, next *Appointment) {
	cur.Status = next.Status
	cur.DoctorID = next.DoctorID
	cur.Date = next.Date
	cur.Time = next.Time
	cur.IsAcknowledged = cur.IsAcknowledged || next.IsAcknowledged
	cur.UpdatedAt = next.UpdatedAt
}

// CreateRequest is the booking payload sent by patients, guests or staff.
type CreateRequest struct {
	PatientID    string    `json:"patientId"`
	PatientName  string    `json:"patientName"`
	PatientPhone string    `json:"patientPhone"`
	PatientEmail string    `json:"patientEmail"`
	Symptoms     string    `json:"symptoms"`
	Service      string    `json:"serviceId"`
	DoctorID     string    `json:"doctorId"`
	Type         VisitType `json:"type"`
}

func (r CreateRequest) normalized() CreateRequest {
	r.PatientID = strings.TrimSpace(r.PatientID)
	r.PatientName = strings.TrimSpace(r.PatientName)
	r.PatientPhone = strings.TrimSpace(r.PatientPhone)
	r.PatientEmail = strings.TrimSpace(r.PatientEmail)
	r.Symptoms = strings.TrimSpace(r.Symptoms)
	r.Service = strings.TrimSpace(r.Service)
	r.DoctorID = strings.TrimSpace(r.DoctorID)
	if r.Type == "" {
		r.Type = VisitInPerson
	}
	return r
}

// PlanRequest carries the visit slot a doctor assigns.
type PlanRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func (p PlanRequest) normalized() PlanRequest {
	p.Date = strings.TrimSpace(p.Date)
	p.Time = strings.TrimSpace(p.Time)
	return p
}

type ListFilter struct {
	PatientID string
	DoctorID  string
	Status    AppointmentStatus
}

func (f ListFilter) matches(a Appointment) bool {
	if f.PatientID != "" && a.PatientID != f.PatientID {
		return false
	}
	if f.DoctorID != "" && a.DoctorID != f.DoctorID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	return true
}
