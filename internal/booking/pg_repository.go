package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinova/scheduler/internal/schedule"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `
	id, patient_id, provider_id, slot_date, slot_time,
	fee_minor, currency, cancelled, paid, completed,
	order_ref, diagnosis, medications, notes, created_at, updated_at`

// Helpers

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var daysMask, startMin, endMin, slotMins int

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Specialty,
		&p.Available,
		&p.FeeMinor,
		&p.Currency,
		&daysMask,
		&startMin,
		&endMin,
		&slotMins,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	p.Schedule = schedule.Schedule{
		Days:        schedule.WeekdayMask(daysMask),
		DayStartMin: startMin,
		DayEndMin:   endMin,
		SlotMinutes: slotMins,
	}
	return &p, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProviderID,
		&a.SlotDate,
		&a.SlotTime,
		&a.FeeMinor,
		&a.Currency,
		&a.Cancelled,
		&a.Paid,
		&a.Completed,
		&a.OrderRef,
		&a.Diagnosis,
		&a.Medications,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

// Interface methods

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, available, fee_minor, currency,
		       days_mask, day_start_min, day_end_min, slot_minutes,
		       created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) EnsureGuestPatient(ctx context.Context) (uuid.UUID, error) {
	// Upsert on the sentinel address so every caller resolves to the same
	// row regardless of who inserts first.
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, name, email, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (email) DO UPDATE SET updated_at = patients.updated_at
		RETURNING id
	`, uuid.New(), GuestName, GuestEmail).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("ensure guest patient: %w", err)
	}
	return id, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByOrderRef(ctx context.Context, ref string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE order_ref = $1
	`, ref)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY slot_date, slot_time
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	return result, rows.Err()
}

func (r *PgRepository) OccupiedSlots(ctx context.Context, providerID uuid.UUID, fromDate, toDate string) (map[string]map[string]bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT slot_date, slot_time
		FROM slot_ledger
		WHERE provider_id = $1
		  AND slot_date BETWEEN $2 AND $3
	`, providerID, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	occupied := make(map[string]map[string]bool)
	for rows.Next() {
		var date, tm string
		if err := rows.Scan(&date, &tm); err != nil {
			return nil, err
		}
		if occupied[date] == nil {
			occupied[date] = make(map[string]bool)
		}
		occupied[date][tm] = true
	}

	return occupied, rows.Err()
}

func (r *PgRepository) CreateBooked(ctx context.Context, appt *Appointment) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO appointments
				(id, patient_id, provider_id, slot_date, slot_time,
				 fee_minor, currency, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		`, appt.ID, appt.PatientID, appt.ProviderID, appt.SlotDate, appt.SlotTime,
			appt.FeeMinor, appt.Currency)
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}

		// The ledger primary key is the arbiter: of N concurrent inserts for
		// the same (provider, date, time), exactly one lands a row.
		tag, err := tx.Exec(ctx, `
			INSERT INTO slot_ledger (provider_id, slot_date, slot_time, appointment_id, created_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (provider_id, slot_date, slot_time) DO NOTHING
		`, appt.ProviderID, appt.SlotDate, appt.SlotTime, appt.ID)
		if err != nil {
			return fmt.Errorf("reserve slot: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrSlotUnavailable
		}

		return nil
	})
}

func (r *PgRepository) CancelAndRelease(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.cancelAndRelease(ctx, id, false)
}

// ExpireHold cancels only while the hold is still unpaid. A confirmation
// landing after the stale scan makes the conditional miss, so the paid
// appointment survives the sweep.
func (r *PgRepository) ExpireHold(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.cancelAndRelease(ctx, id, true)
}

func (r *PgRepository) cancelAndRelease(ctx context.Context, id uuid.UUID, unpaidOnly bool) (*Appointment, error) {
	cond := ""
	if unpaidOnly {
		cond = " AND NOT paid"
	}

	var cancelled *Appointment

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE appointments
			SET cancelled = true,
			    updated_at = now()
			WHERE id = $1
			  AND NOT cancelled
			  AND NOT completed`+cond+`
			RETURNING `+appointmentColumns+`
		`, id)

		a, err := scanAppointment(row)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return ErrStateConflict
			}
			return fmt.Errorf("flag cancelled: %w", err)
		}

		_, err = tx.Exec(ctx, `
			DELETE FROM slot_ledger
			WHERE provider_id = $1 AND slot_date = $2 AND slot_time = $3
		`, a.ProviderID, a.SlotDate, a.SlotTime)
		if err != nil {
			return fmt.Errorf("release slot: %w", err)
		}

		cancelled = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cancelled, nil
}

func (r *PgRepository) RescheduleSlot(ctx context.Context, id uuid.UUID, newDate, newTime string) (*Appointment, error) {
	var updated *Appointment

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var a Appointment
		err := tx.QueryRow(ctx, `
			SELECT id, provider_id, slot_date, slot_time, cancelled, completed
			FROM appointments
			WHERE id = $1
			FOR UPDATE
		`, id).Scan(&a.ID, &a.ProviderID, &a.SlotDate, &a.SlotTime, &a.Cancelled, &a.Completed)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAppointmentNotFound
			}
			return fmt.Errorf("load appointment: %w", err)
		}
		if a.Terminal() {
			return ErrStateConflict
		}

		// Reserve the new slot before releasing the old one. If the insert
		// loses, the transaction rolls back and nothing changed.
		tag, err := tx.Exec(ctx, `
			INSERT INTO slot_ledger (provider_id, slot_date, slot_time, appointment_id, created_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (provider_id, slot_date, slot_time) DO NOTHING
		`, a.ProviderID, newDate, newTime, a.ID)
		if err != nil {
			return fmt.Errorf("reserve new slot: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrSlotUnavailable
		}

		row := tx.QueryRow(ctx, `
			UPDATE appointments
			SET slot_date = $2,
			    slot_time = $3,
			    updated_at = now()
			WHERE id = $1
			RETURNING `+appointmentColumns+`
		`, a.ID, newDate, newTime)
		upd, err := scanAppointment(row)
		if err != nil {
			return fmt.Errorf("move appointment: %w", err)
		}

		_, err = tx.Exec(ctx, `
			DELETE FROM slot_ledger
			WHERE provider_id = $1 AND slot_date = $2 AND slot_time = $3
		`, a.ProviderID, a.SlotDate, a.SlotTime)
		if err != nil {
			return fmt.Errorf("release old slot: %w", err)
		}

		updated = upd
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (r *PgRepository) CompleteAppointment(ctx context.Context, id uuid.UUID, rep Report) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET completed = true,
		    diagnosis = $2,
		    medications = $3,
		    notes = $4,
		    updated_at = now()
		WHERE id = $1
		  AND paid
		  AND NOT cancelled
		  AND NOT completed
		RETURNING `+appointmentColumns+`
	`, id, rep.Diagnosis, rep.Medications, rep.Notes)

	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrStateConflict
		}
		return nil, err
	}
	return a, nil
}

func (r *PgRepository) SetOrderRef(ctx context.Context, id uuid.UUID, ref string) (bool, error) {
	// Conditional on the column being empty so concurrent intent creations
	// cannot overwrite each other's reference.
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET order_ref = $2,
		    updated_at = now()
		WHERE id = $1
		  AND order_ref IS NULL
	`, id, ref)
	if err != nil {
		return false, fmt.Errorf("set order ref: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) MarkPaid(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET paid = true,
		    updated_at = now()
		WHERE id = $1
		  AND NOT paid
		  AND NOT cancelled
		  AND NOT completed
	`, id)
	if err != nil {
		return false, fmt.Errorf("mark paid: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) FindStaleUnpaid(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE NOT paid
		  AND NOT cancelled
		  AND NOT completed
		  AND created_at < $1
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	return result, rows.Err()
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
