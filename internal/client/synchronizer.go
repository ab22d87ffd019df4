package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"backend-clinic-queue/internal/helper"
	"backend-clinic-queue/internal/models"
	"backend-clinic-queue/internal/notify"
	"backend-clinic-queue/internal/queue"
	"backend-clinic-queue/internal/realtime"

	"github.com/rs/zerolog"
)

var (
	// ErrUnauthorized means the session is invalid; the synchronizer renders
	// an empty queue instead of surfacing an error.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTransportUnavailable means the push channel cannot connect; the
	// synchronizer degrades to interval polling.
	ErrTransportUnavailable = errors.New("transport unavailable")
)

// Session identifies one connected viewer.
type Session struct {
	Role     string
	UserID   string
	DoctorID string
	Token    string
}

// StoreClient is the read side of the queue store contract.
type StoreClient interface {
	TodayQueue(ctx context.Context, doctorID string) ([]models.QueueEntry, error)
}

// Notifier is the slice of the notification manager the synchronizer drives.
type Notifier interface {
	Add(n notify.Notification) string
	StartContinuousRinging(patientID string)
	StopContinuousRinging()
	RingingPatient() string
}

// Synchronizer mirrors today's queue for one session and turns inbound
// channel events into mirror updates and notifications. Event handling is
// idempotent and order-tolerant: the transport promises neither ordering nor
// exactly-once delivery.
type Synchronizer struct {
	mu      sync.Mutex
	entries []models.QueueEntry

	sess     Session
	store    StoreClient
	notifier Notifier
	log      zerolog.Logger

	dialer    Dialer
	pollEvery time.Duration
}

func NewSynchronizer(sess Session, store StoreClient, notifier Notifier, dialer Dialer, log zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		sess:      sess,
		store:     store,
		notifier:  notifier,
		dialer:    dialer,
		log:       log.With().Str("comp", "sync").Str("role", sess.Role).Logger(),
		pollEvery: 15 * time.Second,
	}
}

// scope limits store reads for doctor-side sessions.
func (s *Synchronizer) scope() string {
	if s.sess.Role == models.RoleDoctor || s.sess.Role == models.RoleNurse {
		return s.sess.DoctorID
	}
	return ""
}

// Refresh pulls a fresh snapshot from the store. The manual fallback path;
// always available even with the channel down. An invalid session yields an
// empty queue, not an error.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	entries, err := s.store.TodayQueue(ctx, s.scope())
	if errors.Is(err, ErrUnauthorized) {
		s.setEntries(nil)
		return nil
	}
	if err != nil {
		return err
	}

	s.setEntries(entries)
	return nil
}

// Snapshot returns a copy of the mirrored queue.
func (s *Synchronizer) Snapshot() []models.QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.QueueEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Filter is a pure projection over the mirror by patient name, doctor name
// or queue number. Never mutates the mirror.
func (s *Synchronizer) Filter(query string) []models.QueueEntry {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		return s.Snapshot()
	}

	num, numErr := strconv.Atoi(query)

	var out []models.QueueEntry
	for _, e := range s.Snapshot() {
		switch {
		case strings.Contains(strings.ToLower(e.PatientName), query),
			strings.Contains(strings.ToLower(e.DoctorName), query),
			numErr == nil && e.QueueNumber == num:
			out = append(out, e)
		}
	}
	return out
}

// ApplyQueueEvent is the single reducer for inbound channel events.
func (s *Synchronizer) ApplyQueueEvent(ev realtime.QueueEvent) {
	switch ev.Type {
	case realtime.EventQueueUpdated:
		s.applySnapshot(ev)
	case realtime.EventNumberAssigned:
		s.applyNumberAssigned(ev)
	case realtime.EventStatusChanged:
		s.applyStatusChanged(ev)
	case realtime.EventPatientCalled:
		s.applyPatientCalled(ev)
	default:
		s.log.Debug().Str("type", string(ev.Type)).Msg("unknown event ignored")
	}
}

func (s *Synchronizer) applySnapshot(ev realtime.QueueEvent) {
	s.setEntries(ev.Queue)

	if s.sess.Role == models.RoleAdmin || s.sess.Role == models.RoleDoctor {
		s.notifier.Add(notify.Notification{
			Type:    notify.TypeInfo,
			Title:   "Queue updated",
			Message: fmt.Sprintf("%d patients in today's queue", len(ev.Queue)),
			Silent:  true,
		})
	}
}

func (s *Synchronizer) applyNumberAssigned(ev realtime.QueueEvent) {
	applied := false

	s.mu.Lock()
	if e := s.find(ev.PatientID); e != nil {
		if e.QueueNumber == 0 {
			e.QueueNumber = ev.QueueNumber
			applied = true
		}
	} else if ev.Appointment != nil {
		s.entries = append(s.entries, *ev.Appointment)
		applied = true
	}
	s.mu.Unlock()

	// Assignment happens once per day; anything the mirror already reflects
	// is a redelivery and must not re-toast.
	if !applied {
		return
	}

	switch {
	case s.sess.Role == models.RolePatient && ev.PatientID == s.sess.UserID:
		s.notifier.Add(notify.Notification{
			Type:        notify.TypeInfo,
			Title:       "Queue number assigned",
			Message:     fmt.Sprintf("Your queue number is %d", ev.QueueNumber),
			QueueNumber: ev.QueueNumber,
		})
	case s.sess.Role == models.RoleAdmin || s.sess.Role == models.RoleDoctor:
		name := ""
		if ev.Appointment != nil {
			name = helper.MaskName(ev.Appointment.PatientName) + " "
		}
		s.notifier.Add(notify.Notification{
			Type:    notify.TypeInfo,
			Title:   "Queue number assigned",
			Message: fmt.Sprintf("%sreceived number %d", name, ev.QueueNumber),
			Silent:  true,
		})
	}
}

func (s *Synchronizer) applyStatusChanged(ev realtime.QueueEvent) {
	applied := s.setStatus(ev.PatientID, ev.Status)

	// Stale-alarm reconciliation: if another client already moved the
	// patient forward, the alarm stops without waiting for acknowledgment.
	// Runs even on replays so a duplicate event cannot leave it ringing.
	switch ev.Status {
	case models.StatusInProgress, models.StatusServed, models.StatusSkipped:
		if s.notifier.RingingPatient() == ev.PatientID {
			s.notifier.StopContinuousRinging()
		}
	}

	if s.sess.Role != models.RolePatient || ev.PatientID != s.sess.UserID || !applied {
		return
	}

	switch ev.Status {
	case models.StatusCalled:
		// The persistent alert path belongs to patient-called; only raise a
		// plain toast here if that event has not arrived.
		if s.notifier.RingingPatient() != ev.PatientID {
			s.notifier.Add(notify.Notification{
				Type:        notify.TypeWarning,
				Title:       "It's your turn",
				Message:     fmt.Sprintf("Queue number %d, please proceed", ev.QueueNumber),
				QueueNumber: ev.QueueNumber,
			})
		}
	case models.StatusInProgress:
		s.notifier.Add(notify.Notification{
			Type:    notify.TypeSuccess,
			Title:   "Consultation started",
			Message: "The doctor will see you now",
		})
	case models.StatusServed:
		s.notifier.Add(notify.Notification{
			Type:    notify.TypeSuccess,
			Title:   "Visit complete",
			Message: "Thank you for your visit",
		})
	case models.StatusSkipped:
		s.notifier.Add(notify.Notification{
			Type:    notify.TypeWarning,
			Title:   "Turn skipped",
			Message: "You missed your call. Please see the front desk",
		})
	}
}

func (s *Synchronizer) applyPatientCalled(ev realtime.QueueEvent) {
	applied := s.setStatus(ev.PatientID, models.StatusCalled)

	// A redelivered call for a patient the queue already moved past must not
	// resurrect the alarm: the superseding status event has been consumed, so
	// nothing would ever stop it again. A mirror-absent patient still alarms;
	// the call must fire even before any snapshot has arrived.
	if !applied && s.pastCalled(ev.PatientID) {
		s.log.Debug().Str("patient", ev.PatientID).Msg("stale call event ignored")
		return
	}

	if s.sess.Role == models.RolePatient && ev.PatientID == s.sess.UserID {
		if s.notifier.RingingPatient() == ev.PatientID {
			return // replay; one alarm loop, one persistent alert
		}

		s.notifier.StartContinuousRinging(ev.PatientID)

		room := ""
		if ev.Appointment != nil {
			room = " to " + ev.Appointment.DoctorName + "'s room"
		}
		s.notifier.Add(notify.Notification{
			Type:        notify.TypeWarning,
			Title:       "You have been called",
			Message:     fmt.Sprintf("Queue number %d, please proceed%s", ev.QueueNumber, room),
			QueueNumber: ev.QueueNumber,
			Persistent:  true,
			Desktop:     true,
			Ack:         notify.AckStopAlarm,
		})
		return
	}

	if s.sess.Role == models.RoleAdmin || s.sess.Role == models.RoleDoctor || s.sess.Role == models.RoleNurse {
		name := "Patient"
		if ev.Appointment != nil {
			name = helper.MaskName(ev.Appointment.PatientName)
		}
		s.notifier.Add(notify.Notification{
			Type:        notify.TypeInfo,
			Title:       "Patient called",
			Message:     fmt.Sprintf("%s (No. %d) has been called", name, ev.QueueNumber),
			QueueNumber: ev.QueueNumber,
			Silent:      true,
		})
	}
}

/*
|--------------------------------------------------------------------------
| Mirror bookkeeping
|--------------------------------------------------------------------------
*/

func (s *Synchronizer) setEntries(entries []models.QueueEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
}

// pastCalled reports whether the mirror shows the patient beyond the called
// stage, meaning any call event for them is stale.
func (s *Synchronizer) pastCalled(patientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.find(patientID)
	if e == nil {
		return false
	}
	return e.QueueStatus == models.StatusInProgress || queue.IsTerminal(e.QueueStatus)
}

// find returns the mirror entry for a patient. Callers hold s.mu.
func (s *Synchronizer) find(patientID string) *models.QueueEntry {
	for i := range s.entries {
		if s.entries[i].PatientID == patientID {
			return &s.entries[i]
		}
	}
	return nil
}

// setStatus applies a status event to the mirror only when it is a valid
// transition from the mirrored state. Duplicates and out-of-order arrivals
// fall through without corrupting the mirror. Reports whether it applied.
func (s *Synchronizer) setStatus(patientID string, to models.QueueStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.find(patientID)
	if e == nil {
		return false
	}
	if e.QueueStatus == to {
		return false
	}
	if !queue.CanTransition(e.QueueStatus, to) {
		s.log.Debug().
			Str("patient", patientID).
			Str("from", string(e.QueueStatus)).
			Str("to", string(to)).
			Msg("stale status event ignored")
		return false
	}

	e.QueueStatus = to
	return true
}
