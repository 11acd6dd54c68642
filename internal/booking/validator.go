package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValidationError carries every rule the booking request violated, not
// just the first one.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Reasons, "; ")
}

// BookingInput is the raw booking request as received on the wire. Ids
// arrive as numeric strings.
type BookingInput struct {
	RequestID string
	DoctorID  string
	PatientID string
	StartTime time.Time
	EndTime   time.Time
	Mode      Mode
	Notes     *string
}

// ValidatedBooking is the outcome of a successful validation pass. The
// loaded request is carried along so the coordinator does not fetch it a
// second time outside the transaction.
type ValidatedBooking struct {
	DoctorID  int64
	PatientID int64
	RequestID int64
	Request   *TriageRequest
	StartTime time.Time
	EndTime   time.Time
	Mode      Mode
	Notes     *string
}

// Validator performs the cheap pre-transaction checks on a proposed
// booking. The coordinator still re-checks overlap and request state
// inside the transaction; this pass only rejects requests that can never
// succeed.
type Validator struct {
	repo Repository
	now  func() time.Time
}

func NewValidator(repo Repository) *Validator {
	return &Validator{repo: repo, now: time.Now}
}

func (v *Validator) Validate(ctx context.Context, in BookingInput, p Principal) (*ValidatedBooking, error) {
	var reasons []string

	doctorID, err := strconv.ParseInt(in.DoctorID, 10, 64)
	if err != nil {
		reasons = append(reasons, "Invalid doctorId format")
	}
	if p.Role != RoleDoctor {
		reasons = append(reasons, "Only doctors can book appointments")
	} else if err == nil && doctorID != p.ID {
		reasons = append(reasons, "You can only book appointments for yourself")
	}

	if !in.StartTime.Before(in.EndTime) {
		reasons = append(reasons, "Start time must be before end time")
	}
	if !in.StartTime.After(v.now()) {
		reasons = append(reasons, "Cannot book appointments in the past")
	}

	if !in.Mode.Valid() {
		reasons = append(reasons, fmt.Sprintf("Invalid appointment mode '%s'", in.Mode))
	}

	var req *TriageRequest
	requestID, err := strconv.ParseInt(in.RequestID, 10, 64)
	if err != nil {
		reasons = append(reasons, "Invalid requestId format")
	} else {
		req, err = v.repo.GetRequestByID(ctx, requestID)
		switch {
		case errors.Is(err, ErrRequestNotFound):
			reasons = append(reasons, "Request not found")
		case err != nil:
			return nil, fmt.Errorf("load request: %w", err)
		case !req.Status.Bookable():
			reasons = append(reasons, fmt.Sprintf("Request status is '%s', cannot book from this state", req.Status))
		}
	}

	patientID, err := strconv.ParseInt(in.PatientID, 10, 64)
	if err != nil {
		reasons = append(reasons, "Invalid patientId format")
	} else {
		_, err = v.repo.GetPatientByID(ctx, patientID)
		switch {
		case errors.Is(err, ErrPatientNotFound):
			reasons = append(reasons, "Patient not found")
		case err != nil:
			return nil, fmt.Errorf("load patient: %w", err)
		}
	}

	if len(reasons) > 0 {
		return nil, &ValidationError{Reasons: reasons}
	}

	return &ValidatedBooking{
		DoctorID:  doctorID,
		PatientID: patientID,
		RequestID: requestID,
		Request:   req,
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		Mode:      in.Mode,
		Notes:     in.Notes,
	}, nil
}
