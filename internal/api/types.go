package api

import (
	"time"

	"github.com/medtriage/triage-booking/internal/booking"
)

type BookAppointmentRequest struct {
	RequestID string    `json:"requestId"`
	DoctorID  string    `json:"doctorId"`
	PatientID string    `json:"patientId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Mode      string    `json:"mode"`
	Notes     *string   `json:"notes,omitempty"`
}

type BookAppointmentResponse struct {
	OK            bool   `json:"ok"`
	AppointmentID string `json:"appointmentId"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

type AppointmentResponse struct {
	ID        int64     `json:"id"`
	RequestID *int64    `json:"request_id,omitempty"`
	DoctorID  int64     `json:"doctor_id"`
	PatientID int64     `json:"patient_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Mode      string    `json:"mode"`
	Status    string    `json:"status"`
	Notes     *string   `json:"notes,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		RequestID: a.RequestID,
		DoctorID:  a.DoctorID,
		PatientID: a.PatientID,
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		Mode:      string(a.Mode),
		Status:    string(a.Status),
		Notes:     a.Notes,
	}
}
