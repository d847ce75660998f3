package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Alexcyl0107/clinique/internal/alert"
	"github.com/Alexcyl0107/clinique/internal/appointment"
	redisclient "github.com/Alexcyl0107/clinique/internal/redis"
)

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req appointment.CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), ActorFromContext(r.Context()), req)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, appt)
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := appointment.ListFilter{
			PatientID: q.Get("patientId"),
			DoctorID:  q.Get("doctorId"),
			Status:    appointment.AppointmentStatus(q.Get("status")),
		}

		list, err := svc.ListAppointments(r.Context(), ActorFromContext(r.Context()), filter)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ListAppointmentsResponse{Appointments: list, Count: len(list)})
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := svc.GetAppointment(r.Context(), ActorFromContext(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func planAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PlanAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.PlanAppointment(r.Context(), ActorFromContext(r.Context()), chi.URLParam(r, "id"),
			appointment.PlanRequest{Date: req.Date, Time: req.Time})
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

// transitionFunc is the shape shared by the body-less status commands.
type transitionFunc func(ctx context.Context, actor appointment.Actor, id string) (*appointment.Appointment, error)

func transitionHandler(op transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := op(r.Context(), ActorFromContext(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func deleteAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := svc.DeleteAppointment(r.Context(), ActorFromContext(r.Context()), id); err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, DeleteAppointmentResponse{Success: true, ID: id})
	}
}

func statsHandler(coord *alert.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := coord.Snapshot(r.Context(), ActorFromContext(r.Context()))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, st)
	}
}

func listServicesHandler(catalog *appointment.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, catalog.All())
	}
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, appointment.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "appointment_busy", "appointment is being updated by someone else, please retry")
	case errors.Is(err, appointment.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "appointment store is unavailable")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "request timed out before the store answered")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
