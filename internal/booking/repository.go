package booking

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrRequestNotFound     = errors.New("request not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all DB interactions needed by the validator and
// the booking service.
type Repository interface {
	GetUserByID(ctx context.Context, id int64) (*User, error)
	// GetPatientByID resolves a user only if they carry the patient role.
	GetPatientByID(ctx context.Context, id int64) (*User, error)
	GetRequestByID(ctx context.Context, id int64) (*TriageRequest, error)

	GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error)
	ListActiveByDoctor(ctx context.Context, doctorID int64) ([]Appointment, error)
	ListActiveByPatient(ctx context.Context, patientID int64) ([]Appointment, error)

	// UpdateAppointmentStatus performs a compare-and-set transition and
	// returns ErrAppointmentNotFound when no row matched id+from.
	UpdateAppointmentStatus(ctx context.Context, id int64, from, to AppointmentStatus) (*Appointment, error)

	// InTx runs fn as a single unit of work. Everything fn does through
	// the TxRepository commits or rolls back together.
	InTx(ctx context.Context, fn func(tx TxRepository) error) error

	// Audit trail, written best-effort outside the unit of work.
	InsertEvent(ctx context.Context, ev EventLog) error
}

// TxRepository is the transactional view the booking coordinator works
// against. All reads observe the transaction's own writes.
type TxRepository interface {
	// HasOverlap reports whether the doctor already holds an active
	// appointment intersecting [start, end). excludeID, when non-nil,
	// removes one appointment from the check (reschedule flows).
	HasOverlap(ctx context.Context, doctorID int64, start, end time.Time, excludeID *int64) (bool, error)

	// GetRequestForUpdate re-reads the triage request with a row lock so
	// a concurrent resolution cannot slip in before commit.
	GetRequestForUpdate(ctx context.Context, id int64) (*TriageRequest, error)

	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	MarkRequestBooked(ctx context.Context, requestID, doctorID int64, at time.Time) error
}
