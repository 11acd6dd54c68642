package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx satisfied by *pgxpool.Pool, pgx.Tx and
// the pgxmock pool, so repository code runs unchanged inside and outside
// transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgxPool interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	pool PgxPool
}

func NewPgRepository(pool PgxPool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanUser(row pgx.Row, notFound error) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.Role,
		&u.Name,
		&u.Email,
		&u.Specialty,
		&u.Location,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		return nil, err
	}
	return &u, nil
}

func scanRequest(row pgx.Row) (*TriageRequest, error) {
	var r TriageRequest
	err := row.Scan(
		&r.ID,
		&r.PatientID,
		&r.Symptom,
		&r.Specialty,
		&r.Answers,
		&r.Status,
		&r.DoctorID,
		&r.HandledBy,
		&r.HandledAt,
		&r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &r, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.RequestID,
		&a.DoctorID,
		&a.PatientID,
		&a.StartTime,
		&a.EndTime,
		&a.Mode,
		&a.Status,
		&a.Notes,
		&a.CreatedBy,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

const appointmentColumns = `id, request_id, doctor_id, patient_id, start_time, end_time, mode, status, notes, created_by, created_at`

// Interface methods

func (r *PgRepository) GetUserByID(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, role, name, email, specialty, location, created_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row, ErrUserNotFound)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, role, name, email, specialty, location, created_at
		FROM users
		WHERE id = $1 AND role = 'patient'
	`, id)
	return scanUser(row, ErrPatientNotFound)
}

func (r *PgRepository) GetRequestByID(ctx context.Context, id int64) (*TriageRequest, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, patient_id, symptom, specialty, answers, status, doctor_id, handled_by, handled_at, created_at
		FROM requests
		WHERE id = $1
	`, id)
	return scanRequest(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListActiveByDoctor(ctx context.Context, doctorID int64) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND status IN ('PENDING', 'CONFIRMED')
		ORDER BY start_time
	`, doctorID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListActiveByPatient(ctx context.Context, patientID int64) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1 AND status IN ('PENDING', 'CONFIRMED')
		ORDER BY start_time
	`, patientID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id int64, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)
	return scanAppointment(row)
}

func (r *PgRepository) InTx(ctx context.Context, fn func(tx TxRepository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&pgTxRepository{q: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// pgTxRepository runs the coordinator's reads and writes against one
// open pgx transaction.
type pgTxRepository struct {
	q Querier
}

func (t *pgTxRepository) HasOverlap(ctx context.Context, doctorID int64, start, end time.Time, excludeID *int64) (bool, error) {
	var exists bool
	var err error

	if excludeID != nil {
		err = t.q.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM appointments
				WHERE doctor_id = $1
				  AND status IN ('PENDING', 'CONFIRMED')
				  AND start_time < $3
				  AND end_time > $2
				  AND id <> $4
			)
		`, doctorID, start, end, *excludeID).Scan(&exists)
	} else {
		err = t.q.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM appointments
				WHERE doctor_id = $1
				  AND status IN ('PENDING', 'CONFIRMED')
				  AND start_time < $3
				  AND end_time > $2
			)
		`, doctorID, start, end).Scan(&exists)
	}

	if err != nil {
		return false, err
	}
	return exists, nil
}

func (t *pgTxRepository) GetRequestForUpdate(ctx context.Context, id int64) (*TriageRequest, error) {
	row := t.q.QueryRow(ctx, `
		SELECT id, patient_id, symptom, specialty, answers, status, doctor_id, handled_by, handled_at, created_at
		FROM requests
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanRequest(row)
}

func (t *pgTxRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := t.q.QueryRow(ctx, `
		INSERT INTO appointments (request_id, doctor_id, patient_id, start_time, end_time, mode, status, notes, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		RETURNING `+appointmentColumns+`
	`, a.RequestID, a.DoctorID, a.PatientID, a.StartTime, a.EndTime, a.Mode, a.Status, a.Notes, a.CreatedBy)

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
			// Exclusion constraint fired: a competing writer got the
			// interval first despite the advisory lock.
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return created, nil
}

func (t *pgTxRepository) MarkRequestBooked(ctx context.Context, requestID, doctorID int64, at time.Time) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE requests
		SET status = 'booked',
		    doctor_id = $2,
		    handled_by = $2,
		    handled_at = $3
		WHERE id = $1
		  AND status IN ('new', 'viewed')
	`, requestID, doctorID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRequestNotBookable
	}
	return nil
}
