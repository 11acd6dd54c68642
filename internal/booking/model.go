package booking

import "time"

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "PENDING"
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusCancelled AppointmentStatus = "CANCELLED"
)

// Active reports whether the appointment still occupies its slot.
// Cancelled appointments are excluded from every overlap check so a
// freed slot can be rebooked.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

type RequestStatus string

const (
	RequestNew      RequestStatus = "new"
	RequestPending  RequestStatus = "pending"
	RequestViewed   RequestStatus = "viewed"
	RequestBooked   RequestStatus = "booked"
	RequestRejected RequestStatus = "rejected"
)

// Bookable reports whether a triage request may still be turned into an
// appointment. booked and rejected are terminal.
func (s RequestStatus) Bookable() bool {
	return s == RequestNew || s == RequestViewed
}

type Mode string

const (
	ModeVideo    Mode = "video"
	ModeInPerson Mode = "in_person"
	ModePhone    Mode = "phone"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeVideo, ModeInPerson, ModePhone:
		return true
	}
	return false
}

const (
	RoleDoctor  = "doctor"
	RolePatient = "patient"
)

// Principal is the authenticated caller, supplied per request by the
// identity layer.
type Principal struct {
	ID   int64
	Role string
}

type User struct {
	ID           int64
	Username     string
	PasswordHash *string
	Role         string
	Name         string
	Email        *string
	Specialty    *string
	Location     *string
	CreatedAt    time.Time
}

// TriageRequest is a patient's symptom submission awaiting a doctor.
// The booking coordinator is the only writer of the booked transition.
type TriageRequest struct {
	ID        int64
	PatientID int64
	Symptom   string
	Specialty string
	Answers   []string
	Status    RequestStatus
	DoctorID  *int64
	HandledBy *int64
	HandledAt *time.Time
	CreatedAt time.Time
}

// Appointment is a confirmed (or cancelled) slot between one doctor and
// one patient. Times are UTC instants with half-open [start, end)
// semantics.
type Appointment struct {
	ID        int64
	RequestID *int64
	DoctorID  int64
	PatientID int64
	StartTime time.Time
	EndTime   time.Time
	Mode      Mode
	Status    AppointmentStatus
	Notes     *string
	CreatedBy int64
	CreatedAt time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *int64
	Payload       []byte
	CreatedAt     time.Time
}
