package api

import (
	"encoding/json"
	"net/http"

	"github.com/Alexcyl0107/clinique/internal/appointment"
)

type PlanAppointmentRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type ListAppointmentsResponse struct {
	Appointments []appointment.Appointment `json:"appointments"`
	Count        int                       `json:"count"`
}

type DeleteAppointmentResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
