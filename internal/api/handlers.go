package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/medtriage/triage-booking/internal/booking"
)

func bookAppointmentHandler(svc *booking.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal on request")
			return
		}

		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Mode == "" {
			req.Mode = string(booking.ModeInPerson)
		}

		in := booking.BookingInput{
			RequestID: req.RequestID,
			DoctorID:  req.DoctorID,
			PatientID: req.PatientID,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			Mode:      booking.Mode(req.Mode),
			Notes:     req.Notes,
		}

		appt, err := svc.Book(r.Context(), in, p)
		if err != nil {
			handleBookingError(w, r, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, BookAppointmentResponse{
			OK:            true,
			AppointmentID: strconv.FormatInt(appt.ID, 10),
			Status:        string(appt.Status),
			Message:       "Appointment booked successfully",
		})
	}
}

func handleBookingError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	var vErr *booking.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, "validation_failed", vErr.Error())
	case errors.Is(err, booking.ErrRequestNotBookable):
		writeError(w, http.StatusConflict, "request_not_bookable", err.Error())
	case errors.Is(err, booking.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", "Selected time slot is already taken. Please choose another time.")
	case errors.Is(err, booking.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "Slot is currently being booked, please retry shortly.")
	default:
		// Persistence details stay server-side.
		logger.Error("booking failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to book appointment. Please try again.")
	}
}

func getAppointmentHandler(svc *booking.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal on request")
			return
		}

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be numeric")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id, p)
		if err != nil {
			handleReadError(w, r, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listDoctorAppointmentsHandler(svc *booking.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal on request")
			return
		}

		appts, err := svc.ListForDoctor(r.Context(), p)
		if err != nil {
			handleReadError(w, r, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func listPatientAppointmentsHandler(svc *booking.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal on request")
			return
		}

		appts, err := svc.ListForPatient(r.Context(), p)
		if err != nil {
			handleReadError(w, r, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func cancelAppointmentHandler(svc *booking.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal on request")
			return
		}

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be numeric")
			return
		}

		if _, err := svc.Cancel(r.Context(), id, p); err != nil {
			switch {
			case errors.Is(err, booking.ErrAlreadyCancelled):
				writeError(w, http.StatusBadRequest, "already_cancelled", "Appointment is already cancelled")
			default:
				handleReadError(w, r, err, logger)
			}
			return
		}

		writeJSON(w, http.StatusOK, MessageResponse{Message: "Appointment cancelled successfully"})
	}
}

func handleReadError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	switch {
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", "Appointment not found")
	case errors.Is(err, booking.ErrNotAppointmentParty):
		writeError(w, http.StatusForbidden, "forbidden", "Not authorized for this appointment")
	case errors.Is(err, booking.ErrRoleNotAllowed):
		writeError(w, http.StatusForbidden, "forbidden", "Role not allowed for this operation")
	default:
		logger.Error("appointment read failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "Unexpected error. Please try again.")
	}
}

func toAppointmentResponses(appts []booking.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	return out
}
