package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"backend-clinic-queue/internal/models"
	"backend-clinic-queue/internal/realtime"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Publisher pushes queue mutation events onto the broadcast bus.
type Publisher interface {
	Publish(ctx context.Context, ev realtime.QueueEvent) error
}

// Store owns today's queue rows. Entries are created by the appointment
// system; the store only reads them and advances number, status and priority.
// MySQL serializes the writes, so every mutation runs in a transaction with
// row locks.
type Store struct {
	db  *sql.DB
	rdb *redis.Client
	pub Publisher
	log zerolog.Logger
}

func NewStore(db *sql.DB, rdb *redis.Client, pub Publisher, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		rdb: rdb,
		pub: pub,
		log: log.With().Str("comp", "store").Logger(),
	}
}

const entryColumns = `appointment_id, patient_id, doctor_id, patient_name, doctor_name,
	       queue_number, queue_status, priority_level, estimated_start_at, appointment_time`

// GetTodayQueue returns all of today's entries, optionally scoped to one
// doctor, waiting order first by assigned number (unassigned last).
func (s *Store) GetTodayQueue(ctx context.Context, doctorID string) ([]models.QueueEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM queue_entries
		WHERE DATE(appointment_time) = CURDATE()
	`, entryColumns)

	args := []interface{}{}
	if doctorID != "" {
		query += " AND doctor_id = ?"
		args = append(args, doctorID)
	}
	query += " ORDER BY (queue_number = 0), queue_number ASC, appointment_time ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("today queue: %w", err)
	}
	defer rows.Close()

	var result []models.QueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			s.log.Error().Err(err).Msg("scan entry")
			continue
		}
		result = append(result, entry)
	}

	return result, rows.Err()
}

// AssignNumber gives a waiting appointment its once-per-day queue number.
// Numbers are dense per day: MAX(queue_number)+1 under the row lock.
func (s *Store) AssignNumber(ctx context.Context, appointmentID string) (models.QueueEntry, error) {
	var entry models.QueueEntry

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		e, err := lockEntry(ctx, tx, appointmentID)
		if err != nil {
			return err
		}
		if e.QueueNumber > 0 {
			return ErrAlreadyAssigned
		}

		var next int
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(queue_number), 0) + 1
			FROM queue_entries
			WHERE DATE(appointment_time) = CURDATE()
			FOR UPDATE
		`).Scan(&next)
		if err != nil {
			return fmt.Errorf("next number: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE queue_entries
			SET queue_number = ?, updated_at = NOW()
			WHERE appointment_id = ?
		`, next, appointmentID)
		if err != nil {
			return fmt.Errorf("assign number: %w", err)
		}

		e.QueueNumber = next
		entry = e
		return nil
	})
	if err != nil {
		return models.QueueEntry{}, err
	}

	s.publish(ctx, realtime.QueueEvent{
		Type:        realtime.EventNumberAssigned,
		PatientID:   entry.PatientID,
		DoctorID:    entry.DoctorID,
		QueueNumber: entry.QueueNumber,
		Appointment: &entry,
	})

	return entry, nil
}

// SetStatus moves an entry through the status machine. Out-of-order requests
// fail with ErrInvalidTransition; calling a patient while the doctor already
// has one called or in progress fails with ErrDoctorBusy.
func (s *Store) SetStatus(ctx context.Context, appointmentID string, to models.QueueStatus) (models.QueueEntry, error) {
	var entry models.QueueEntry

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		e, err := lockEntry(ctx, tx, appointmentID)
		if err != nil {
			return err
		}
		if !CanTransition(e.QueueStatus, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.QueueStatus, to)
		}
		if to == models.StatusCalled {
			if err := ensureDoctorFree(ctx, tx, e.DoctorID, e.AppointmentID); err != nil {
				return err
			}
		}

		if err := updateStatus(ctx, tx, appointmentID, to); err != nil {
			return err
		}

		e.QueueStatus = to
		entry = e
		return nil
	})
	if err != nil {
		return models.QueueEntry{}, err
	}

	s.afterStatusChange(ctx, entry)
	return entry, nil
}

// SetPriority changes the priority tier, legal only while waiting.
func (s *Store) SetPriority(ctx context.Context, appointmentID string, level models.PriorityLevel) (models.QueueEntry, error) {
	var entry models.QueueEntry

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		e, err := lockEntry(ctx, tx, appointmentID)
		if err != nil {
			return err
		}
		if e.QueueStatus != models.StatusWaiting {
			return fmt.Errorf("%w (status %s)", ErrInvalidState, e.QueueStatus)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE queue_entries
			SET priority_level = ?, updated_at = NOW()
			WHERE appointment_id = ?
		`, level, appointmentID)
		if err != nil {
			return fmt.Errorf("set priority: %w", err)
		}

		e.PriorityLevel = level
		entry = e
		return nil
	})
	if err != nil {
		return models.QueueEntry{}, err
	}

	// Priority reshuffles the order; let clients take a fresh snapshot.
	s.publish(ctx, realtime.QueueEvent{Type: realtime.EventQueueUpdated})
	return entry, nil
}

// CallNext selects the next waiting entry (highest priority tier, lowest
// number within the tier) and transitions it to called.
func (s *Store) CallNext(ctx context.Context, doctorID string) (models.QueueEntry, error) {
	var entry models.QueueEntry

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query := fmt.Sprintf(`
			SELECT %s
			FROM queue_entries
			WHERE DATE(appointment_time) = CURDATE()
			  AND queue_status = 'waiting'
		`, entryColumns)

		args := []interface{}{}
		if doctorID != "" {
			query += " AND doctor_id = ?"
			args = append(args, doctorID)
		}
		query += " FOR UPDATE"

		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("waiting entries: %w", err)
		}

		var waiting []models.QueueEntry
		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				rows.Close()
				return err
			}
			waiting = append(waiting, e)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		next := NextInLine(waiting)
		if next == nil {
			return ErrQueueEmpty
		}
		if err := ensureDoctorFree(ctx, tx, next.DoctorID, next.AppointmentID); err != nil {
			return err
		}

		if err := updateStatus(ctx, tx, next.AppointmentID, models.StatusCalled); err != nil {
			return err
		}

		next.QueueStatus = models.StatusCalled
		entry = *next
		return nil
	})
	if err != nil {
		return models.QueueEntry{}, err
	}

	s.afterStatusChange(ctx, entry)
	return entry, nil
}

/*
|--------------------------------------------------------------------------
| Internals
|--------------------------------------------------------------------------
*/

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (models.QueueEntry, error) {
	var (
		e         models.QueueEntry
		estimated sql.NullTime
	)

	err := row.Scan(
		&e.AppointmentID,
		&e.PatientID,
		&e.DoctorID,
		&e.PatientName,
		&e.DoctorName,
		&e.QueueNumber,
		&e.QueueStatus,
		&e.PriorityLevel,
		&estimated,
		&e.AppointmentTime,
	)
	if err != nil {
		return e, err
	}

	if estimated.Valid {
		t := estimated.Time
		e.EstimatedStartAt = &t
	}

	return e, nil
}

func lockEntry(ctx context.Context, tx *sql.Tx, appointmentID string) (models.QueueEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM queue_entries
		WHERE appointment_id = ?
		  AND DATE(appointment_time) = CURDATE()
		FOR UPDATE
	`, entryColumns)

	entry, err := scanEntry(tx.QueryRowContext(ctx, query, appointmentID))
	if errors.Is(err, sql.ErrNoRows) {
		return entry, ErrNotFound
	}
	if err != nil {
		return entry, fmt.Errorf("lock entry: %w", err)
	}
	return entry, nil
}

func ensureDoctorFree(ctx context.Context, tx *sql.Tx, doctorID, exceptAppointment string) error {
	var busy int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM queue_entries
		WHERE doctor_id = ?
		  AND DATE(appointment_time) = CURDATE()
		  AND queue_status IN ('called', 'in-progress')
		  AND appointment_id <> ?
	`, doctorID, exceptAppointment).Scan(&busy)
	if err != nil {
		return fmt.Errorf("doctor busy check: %w", err)
	}
	if busy > 0 {
		return ErrDoctorBusy
	}
	return nil
}

func updateStatus(ctx context.Context, tx *sql.Tx, appointmentID string, to models.QueueStatus) error {
	query := `
		UPDATE queue_entries
		SET queue_status = ?, updated_at = NOW()
		WHERE appointment_id = ?
	`
	if to == models.StatusCalled {
		query = `
			UPDATE queue_entries
			SET queue_status = ?, last_called_at = NOW(), updated_at = NOW()
			WHERE appointment_id = ?
		`
	}

	if _, err := tx.ExecContext(ctx, query, to, appointmentID); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// afterStatusChange fires events and refreshes the live "now serving"
// counter. Broadcast failures never fail the mutation.
func (s *Store) afterStatusChange(ctx context.Context, entry models.QueueEntry) {
	if entry.QueueStatus == models.StatusCalled {
		key := servingKey(entry.DoctorID)
		if err := s.rdb.Set(ctx, key, entry.QueueNumber, 0).Err(); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("serving counter update failed")
		}

		s.publish(ctx, realtime.QueueEvent{
			Type:        realtime.EventPatientCalled,
			PatientID:   entry.PatientID,
			DoctorID:    entry.DoctorID,
			QueueNumber: entry.QueueNumber,
			Appointment: &entry,
		})
	}

	s.publish(ctx, realtime.QueueEvent{
		Type:        realtime.EventStatusChanged,
		PatientID:   entry.PatientID,
		DoctorID:    entry.DoctorID,
		QueueNumber: entry.QueueNumber,
		Status:      entry.QueueStatus,
	})
}

func (s *Store) publish(ctx context.Context, ev realtime.QueueEvent) {
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", string(ev.Type)).Msg("publish failed")
	}
}

// NowServing reads the live counter the display boards poll.
func (s *Store) NowServing(ctx context.Context, doctorID string) (int, error) {
	val, err := s.rdb.Get(ctx, servingKey(doctorID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return val, err
}

func servingKey(doctorID string) string {
	return fmt.Sprintf("queue:doctor:%s:serving", doctorID)
}
