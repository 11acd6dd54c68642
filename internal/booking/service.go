package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	redisclient "github.com/medtriage/triage-booking/internal/redis"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
)

var (
	ErrSlotTaken           = errors.New("selected time slot is already taken")
	ErrSlotBeingBooked     = errors.New("slot is currently being booked, please retry")
	ErrRequestNotBookable  = errors.New("request is no longer in a bookable state")
	ErrAlreadyCancelled    = errors.New("appointment is already cancelled")
	ErrNotAppointmentParty = errors.New("not authorized for this appointment")
	ErrRoleNotAllowed      = errors.New("role not allowed for this operation")
)

// Service owns the booking unit of work and the appointment read paths.
type Service struct {
	repo      Repository
	validator *Validator
	locker    redisclient.Locker
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		validator: NewValidator(repo),
		locker:    locker,
		logger:    logger,
		now:       time.Now,
	}
}

// Book validates the proposed booking, then runs the atomic section: an
// overlap re-check and a request-state re-read inside one transaction,
// serialized per doctor by the advisory lock. Validating once outside
// the transaction is not enough; two concurrent calls for the same
// doctor can both pass validation, so the decision that counts is the
// one made against the transactional view.
func (s *Service) Book(ctx context.Context, in BookingInput, p Principal) (*Appointment, error) {
	vb, err := s.validator.Validate(ctx, in, p)
	if err != nil {
		return nil, err
	}

	var created *Appointment

	err = s.locker.WithDoctorLock(ctx, vb.DoctorID, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(tx TxRepository) error {
			conflict, err := tx.HasOverlap(lockCtx, vb.DoctorID, vb.StartTime, vb.EndTime, nil)
			if err != nil {
				return fmt.Errorf("check overlap: %w", err)
			}
			if conflict {
				return ErrSlotTaken
			}

			// The request may have been booked or rejected since
			// validation; re-read it under a row lock before committing.
			req, err := tx.GetRequestForUpdate(lockCtx, vb.RequestID)
			if err != nil {
				return fmt.Errorf("reload request: %w", err)
			}
			if !req.Status.Bookable() {
				return fmt.Errorf("%w: status is '%s'", ErrRequestNotBookable, req.Status)
			}

			requestID := vb.RequestID
			appt := &Appointment{
				RequestID: &requestID,
				DoctorID:  vb.DoctorID,
				PatientID: vb.PatientID,
				StartTime: vb.StartTime,
				EndTime:   vb.EndTime,
				Mode:      vb.Mode,
				Status:    StatusConfirmed,
				Notes:     vb.Notes,
				CreatedBy: p.ID,
			}

			created, err = tx.CreateAppointment(lockCtx, appt)
			if err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}

			if err := tx.MarkRequestBooked(lockCtx, vb.RequestID, vb.DoctorID, s.now().UTC()); err != nil {
				return fmt.Errorf("mark request booked: %w", err)
			}
			return nil
		})
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.auditBooked(ctx, created)
	return created, nil
}

// GetAppointment returns the appointment to its doctor or patient only.
func (s *Service) GetAppointment(ctx context.Context, id int64, p Principal) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.ID != appt.DoctorID && p.ID != appt.PatientID {
		return nil, ErrNotAppointmentParty
	}
	return appt, nil
}

// ListForDoctor returns the calling doctor's active appointments in
// start-time order.
func (s *Service) ListForDoctor(ctx context.Context, p Principal) ([]Appointment, error) {
	if p.Role != RoleDoctor {
		return nil, ErrRoleNotAllowed
	}
	return s.repo.ListActiveByDoctor(ctx, p.ID)
}

// ListForPatient returns the calling patient's active appointments in
// start-time order.
func (s *Service) ListForPatient(ctx context.Context, p Principal) ([]Appointment, error) {
	if p.Role != RolePatient {
		return nil, ErrRoleNotAllowed
	}
	return s.repo.ListActiveByPatient(ctx, p.ID)
}

// Cancel moves an appointment to CANCELLED. The transition is one-way
// and only the doctor or patient on the appointment may perform it.
// Cancelling twice is rejected so client bugs surface instead of being
// silently absorbed. The linked triage request keeps its booked status.
func (s *Service) Cancel(ctx context.Context, id int64, p Principal) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.ID != appt.DoctorID && p.ID != appt.PatientID {
		return nil, ErrNotAppointmentParty
	}
	if appt.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, appt.Status, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost a race with another cancel.
			return nil, ErrAlreadyCancelled
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
		"cancelled_by": p.ID,
	})
	s.logger.Info("appointment cancelled",
		zap.Int64("appointment_id", updated.ID),
		zap.Int64("cancelled_by", p.ID),
	)

	return updated, nil
}

func (s *Service) auditBooked(ctx context.Context, a *Appointment) {
	payload := map[string]any{
		"doctor_id":  a.DoctorID,
		"patient_id": a.PatientID,
		"start_time": a.StartTime,
		"end_time":   a.EndTime,
	}
	if a.RequestID != nil {
		payload["request_id"] = *a.RequestID
	}
	s.logEvent(ctx, a.ID, EventAppointmentBooked, payload)

	fields := []zap.Field{
		zap.Int64("appointment_id", a.ID),
		zap.Int64("doctor_id", a.DoctorID),
		zap.Int64("patient_id", a.PatientID),
		zap.Time("start_time", a.StartTime),
		zap.Time("end_time", a.EndTime),
	}
	if a.RequestID != nil {
		fields = append(fields, zap.Int64("request_id", *a.RequestID))
	}
	s.logger.Info("appointment booked", fields...)
}

func (s *Service) logEvent(ctx context.Context, appointmentID int64, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("insert event log",
			zap.String("event_type", eventType),
			zap.Int64("appointment_id", appointmentID),
			zap.Error(err),
		)
	}
}
