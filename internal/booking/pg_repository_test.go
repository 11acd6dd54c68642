package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appointmentCols = []string{"id", "request_id", "doctor_id", "patient_id", "start_time", "end_time", "mode", "status", "notes", "created_by", "created_at"}

func newMockRepo(t *testing.T) (*PgRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPgRepository(mock), mock
}

func appointmentRow(id int64, start, end time.Time) *pgxmock.Rows {
	reqID := int64(7)
	return pgxmock.NewRows(appointmentCols).AddRow(
		id, &reqID, int64(1), int64(2), start, end,
		ModeVideo, StatusConfirmed, (*string)(nil), int64(1), start.Add(-time.Hour),
	)
}

func TestPgGetAppointmentByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	start := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(int64(42)).
		WillReturnRows(appointmentRow(42, start, start.Add(30*time.Minute)))

	appt, err := repo.GetAppointmentByID(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), appt.ID)
	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.Equal(t, start, appt.StartTime)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetAppointmentByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(int64(42)).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetAppointmentByID(context.Background(), 42)
	require.ErrorIs(t, err, ErrAppointmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateAppointmentStatusNoMatch(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(int64(42), StatusCancelled, StatusConfirmed).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.UpdateAppointmentStatus(context.Background(), 42, StatusConfirmed, StatusCancelled)
	require.ErrorIs(t, err, ErrAppointmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgInTxBookingCommits(t *testing.T) {
	repo, mock := newMockRepo(t)

	doctorID := int64(1)
	patientID := int64(2)
	requestID := int64(7)
	start := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	handledAt := start.Add(-48 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(doctorID, start, end).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT (.+) FROM requests").
		WithArgs(requestID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "patient_id", "symptom", "specialty", "answers", "status", "doctor_id", "handled_by", "handled_at", "created_at"}).
			AddRow(requestID, patientID, "headache", "Neurology", []string{"two days"}, RequestViewed, &doctorID, (*int64)(nil), (*time.Time)(nil), handledAt))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(&requestID, doctorID, patientID, start, end, ModeVideo, StatusConfirmed, (*string)(nil), doctorID).
		WillReturnRows(appointmentRow(100, start, end))
	mock.ExpectExec("UPDATE requests").
		WithArgs(requestID, doctorID, handledAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := repo.InTx(context.Background(), func(tx TxRepository) error {
		conflict, err := tx.HasOverlap(context.Background(), doctorID, start, end, nil)
		require.NoError(t, err)
		require.False(t, conflict)

		req, err := tx.GetRequestForUpdate(context.Background(), requestID)
		require.NoError(t, err)
		require.True(t, req.Status.Bookable())

		created, err := tx.CreateAppointment(context.Background(), &Appointment{
			RequestID: &requestID,
			DoctorID:  doctorID,
			PatientID: patientID,
			StartTime: start,
			EndTime:   end,
			Mode:      ModeVideo,
			Status:    StatusConfirmed,
			CreatedBy: doctorID,
		})
		require.NoError(t, err)
		require.Equal(t, int64(100), created.ID)

		return tx.MarkRequestBooked(context.Background(), requestID, doctorID, handledAt)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgInTxRollsBackOnConflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	doctorID := int64(1)
	start := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(doctorID, start, end).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(tx TxRepository) error {
		conflict, err := tx.HasOverlap(context.Background(), doctorID, start, end, nil)
		if err != nil {
			return err
		}
		if conflict {
			return ErrSlotTaken
		}
		return nil
	})
	require.ErrorIs(t, err, ErrSlotTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgHasOverlapExcludesAppointment(t *testing.T) {
	repo, mock := newMockRepo(t)

	doctorID := int64(1)
	excludeID := int64(55)
	start := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(doctorID, start, end, excludeID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectCommit()

	err := repo.InTx(context.Background(), func(tx TxRepository) error {
		conflict, err := tx.HasOverlap(context.Background(), doctorID, start, end, &excludeID)
		require.NoError(t, err)
		require.False(t, conflict)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCreateAppointmentExclusionViolation(t *testing.T) {
	repo, mock := newMockRepo(t)

	start := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23P01", ConstraintName: "no_doctor_overlap"})
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(tx TxRepository) error {
		_, err := tx.CreateAppointment(context.Background(), &Appointment{
			DoctorID:  1,
			PatientID: 2,
			StartTime: start,
			EndTime:   end,
			Mode:      ModeInPerson,
			Status:    StatusConfirmed,
			CreatedBy: 1,
		})
		return err
	})
	require.ErrorIs(t, err, ErrSlotTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgMarkRequestBookedStateGuard(t *testing.T) {
	repo, mock := newMockRepo(t)

	at := time.Date(2025, 1, 9, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE requests").
		WithArgs(int64(7), int64(1), at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(tx TxRepository) error {
		return tx.MarkRequestBooked(context.Background(), 7, 1, at)
	})
	require.ErrorIs(t, err, ErrRequestNotBookable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgListActiveByDoctor(t *testing.T) {
	repo, mock := newMockRepo(t)

	start := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	reqID := int64(7)
	rows := pgxmock.NewRows(appointmentCols).
		AddRow(int64(1), &reqID, int64(1), int64(2), start, start.Add(30*time.Minute),
			ModeVideo, StatusConfirmed, (*string)(nil), int64(1), start.Add(-time.Hour)).
		AddRow(int64(2), (*int64)(nil), int64(1), int64(3), start.Add(time.Hour), start.Add(90*time.Minute),
			ModePhone, StatusPending, (*string)(nil), int64(1), start.Add(-time.Hour))

	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(int64(1)).
		WillReturnRows(rows)

	appts, err := repo.ListActiveByDoctor(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, appts, 2)
	assert.Equal(t, int64(1), appts[0].ID)
	assert.Nil(t, appts[1].RequestID)
	assert.Equal(t, StatusPending, appts[1].Status)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgInsertEventWrapsError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO event_logs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	apptID := int64(9)
	err := repo.InsertEvent(context.Background(), EventLog{
		EventType:     EventAppointmentBooked,
		AppointmentID: &apptID,
		Payload:       []byte(`{}`),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert event log")
	require.NoError(t, mock.ExpectationsWereMet())
}
