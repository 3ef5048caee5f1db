package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Ledger

func (r *PgRepository) UpsertAppointments(ctx context.Context, userID string, appts []Appointment) error {
	if len(appts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range appts {
		batch.Queue(`
			INSERT INTO appointments (
				id, user_id, title, description, start_time, end_time,
				patient_name, patient_email, patient_phone,
				doctor_name, doctor_email, calendar_id,
				status, type, created_at, updated_at, synced_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now(), now())
			ON CONFLICT (user_id, id) DO UPDATE
			SET title         = EXCLUDED.title,
			    description   = EXCLUDED.description,
			    start_time    = EXCLUDED.start_time,
			    end_time      = EXCLUDED.end_time,
			    patient_name  = EXCLUDED.patient_name,
			    patient_email = EXCLUDED.patient_email,
			    patient_phone = EXCLUDED.patient_phone,
			    doctor_name   = EXCLUDED.doctor_name,
			    doctor_email  = EXCLUDED.doctor_email,
			    calendar_id   = EXCLUDED.calendar_id,
			    type          = EXCLUDED.type,
			    synced_at     = now()
		`,
			a.ID, userID, a.Title, a.Description, a.Start, a.End,
			a.Patient.Name, a.Patient.Email, a.Patient.Phone,
			a.Doctor.Name, a.Doctor.Email, a.Doctor.CalendarID,
			a.Status, a.Type,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range appts {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert appointment %s: %w", appts[i].ID, err)
		}
	}

	return br.Close()
}

func (r *PgRepository) ForceCompleted(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = 'completed',
		    updated_at = now()
		WHERE user_id = $1
		  AND id = ANY($2)
		  AND status <> 'completed'
	`, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("force completed: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *PgRepository) Statuses(ctx context.Context, userID string, ids []string) (map[string]AppointmentStatus, error) {
	result := make(map[string]AppointmentStatus, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, status
		FROM appointments
		WHERE user_id = $1
		  AND id = ANY($2)
	`, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("read ledger statuses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var status AppointmentStatus
		if err := rows.Scan(&id, &status); err != nil {
			return nil, err
		}
		result[id] = status
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, userID, id string, status AppointmentStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = $3,
		    updated_at = now()
		WHERE user_id = $1
		  AND id = $2
	`, userID, id, status)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) UpdateSchedule(ctx context.Context, userID, id string, start, end time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET start_time = $3,
		    end_time = $4,
		    updated_at = now()
		WHERE user_id = $1
		  AND id = $2
	`, userID, id, start, end)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) SetBillingType(ctx context.Context, userID, id string, billing BillingType) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET billing_type = $3,
		    updated_at = now()
		WHERE user_id = $1
		  AND id = $2
	`, userID, id, billing)
	if err != nil {
		return fmt.Errorf("set billing type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) DeleteCancelledBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM appointments
		WHERE status = 'cancelled'
		  AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete aged cancellations: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (user_id, event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.UserID, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

// Payments

func (r *PgRepository) InsertPayment(ctx context.Context, p Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO payments (id, user_id, appointment_id, amount, is_insurance, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
	`, p.ID, p.UserID, p.AppointmentID, p.Amount, p.IsInsurance, nullableTime(p.CreatedAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicatePayment
		}
		return fmt.Errorf("insert payment: %w", err)
	}

	return nil
}

func (r *PgRepository) PaidAppointmentIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT appointment_id
		FROM payments
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan payments: %w", err)
	}
	return ids, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
