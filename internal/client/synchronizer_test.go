package client

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"backend-clinic-queue/internal/models"
	"backend-clinic-queue/internal/notify"
	"backend-clinic-queue/internal/realtime"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	added   []notify.Notification
	ringing string
	starts  int
	stops   int
}

func (f *fakeNotifier) Add(n notify.Notification) string {
	f.added = append(f.added, n)
	return fmt.Sprintf("n-%d", len(f.added))
}

func (f *fakeNotifier) StartContinuousRinging(patientID string) {
	f.ringing = patientID
	f.starts++
}

func (f *fakeNotifier) StopContinuousRinging() {
	f.ringing = ""
	f.stops++
}

func (f *fakeNotifier) RingingPatient() string { return f.ringing }

func (f *fakeNotifier) persistentCount() int {
	count := 0
	for _, n := range f.added {
		if n.Persistent {
			count++
		}
	}
	return count
}

type fakeStore struct {
	entries []models.QueueEntry
	err     error
	calls   int
}

func (f *fakeStore) TodayQueue(ctx context.Context, doctorID string) ([]models.QueueEntry, error) {
	f.calls++
	return f.entries, f.err
}

func entry(patientID string, num int, status models.QueueStatus) models.QueueEntry {
	return models.QueueEntry{
		AppointmentID: "appt-" + patientID,
		PatientID:     patientID,
		DoctorID:      "d1",
		PatientName:   "Ana Lestari",
		DoctorName:    "Dr. Rahma",
		QueueNumber:   num,
		QueueStatus:   status,
		PriorityLevel: models.PriorityRegular,
	}
}

func newSync(role, userID string, notifier Notifier, store StoreClient) *Synchronizer {
	if store == nil {
		store = &fakeStore{}
	}
	return NewSynchronizer(
		Session{Role: role, UserID: userID, DoctorID: ""},
		store, notifier, nil, zerolog.Nop(),
	)
}

func statusEvent(patientID string, num int, status models.QueueStatus) realtime.QueueEvent {
	return realtime.QueueEvent{
		Type:        realtime.EventStatusChanged,
		PatientID:   patientID,
		DoctorID:    "d1",
		QueueNumber: num,
		Status:      status,
	}
}

func calledEvent(patientID string, num int) realtime.QueueEvent {
	e := entry(patientID, num, models.StatusCalled)
	return realtime.QueueEvent{
		Type:        realtime.EventPatientCalled,
		PatientID:   patientID,
		DoctorID:    "d1",
		QueueNumber: num,
		Appointment: &e,
	}
}

func mirrorStatus(t *testing.T, s *Synchronizer, patientID string) models.QueueStatus {
	t.Helper()
	for _, e := range s.Snapshot() {
		if e.PatientID == patientID {
			return e.QueueStatus
		}
	}
	t.Fatalf("patient %s not in mirror", patientID)
	return ""
}

func TestReplayedAndReorderedEventsConverge(t *testing.T) {
	n := &fakeNotifier{}
	s := newSync(models.RoleAdmin, "admin1", n, nil)

	s.ApplyQueueEvent(realtime.QueueEvent{
		Type:  realtime.EventQueueUpdated,
		Queue: []models.QueueEntry{entry("p1", 1, models.StatusWaiting)},
	})

	// in-progress arrives before called, then both replay.
	s.ApplyQueueEvent(statusEvent("p1", 1, models.StatusInProgress))
	assert.Equal(t, models.StatusWaiting, mirrorStatus(t, s, "p1"), "out-of-order event must not apply")

	s.ApplyQueueEvent(statusEvent("p1", 1, models.StatusCalled))
	s.ApplyQueueEvent(statusEvent("p1", 1, models.StatusCalled))
	s.ApplyQueueEvent(statusEvent("p1", 1, models.StatusInProgress))
	s.ApplyQueueEvent(statusEvent("p1", 1, models.StatusInProgress))
	assert.Equal(t, models.StatusInProgress, mirrorStatus(t, s, "p1"))

	s.ApplyQueueEvent(statusEvent("p1", 1, models.StatusServed))
	s.ApplyQueueEvent(statusEvent("p1", 1, models.StatusCalled)) // stale replay
	assert.Equal(t, models.StatusServed, mirrorStatus(t, s, "p1"))
}

func TestStatusEventAfterSnapshotIsNoop(t *testing.T) {
	n := &fakeNotifier{}
	s := newSync(models.RolePatient, "p1", n, nil)

	// Snapshot already reflects the call.
	s.ApplyQueueEvent(realtime.QueueEvent{
		Type:  realtime.EventQueueUpdated,
		Queue: []models.QueueEntry{entry("p1", 1, models.StatusInProgress)},
	})

	before := len(n.added)
	s.ApplyQueueEvent(statusEvent("p1", 1, models.StatusInProgress))
	assert.Equal(t, models.StatusInProgress, mirrorStatus(t, s, "p1"))
	assert.Equal(t, before, len(n.added), "replay of reflected state must not re-notify")
}

func TestPatientCalledSingleAlarmAndPersistentAlert(t *testing.T) {
	n := &fakeNotifier{}
	s := newSync(models.RolePatient, "p1", n, nil)

	s.ApplyQueueEvent(realtime.QueueEvent{
		Type:  realtime.EventQueueUpdated,
		Queue: []models.QueueEntry{entry("p1", 1, models.StatusWaiting)},
	})

	s.ApplyQueueEvent(calledEvent("p1", 1))
	s.ApplyQueueEvent(calledEvent("p1", 1)) // duplicate delivery

	assert.Equal(t, 1, n.starts, "exactly one alarm loop")
	assert.Equal(t, 1, n.persistentCount(), "exactly one persistent alert")
	assert.Equal(t, "p1", n.ringing)
	assert.Equal(t, models.StatusCalled, mirrorStatus(t, s, "p1"))

	persistent := n.added[len(n.added)-1]
	assert.True(t, persistent.Desktop)
	assert.Equal(t, notify.AckStopAlarm, persistent.Ack)
}

func TestStaleCallEventDoesNotRestartAlarm(t *testing.T) {
	n := &fakeNotifier{}
	s := newSync(models.RolePatient, "p1", n, nil)

	s.ApplyQueueEvent(realtime.QueueEvent{
		Type:  realtime.EventQueueUpdated,
		Queue: []models.QueueEntry{entry("p1", 1, models.StatusWaiting)},
	})
	s.ApplyQueueEvent(calledEvent("p1", 1))
	s.ApplyQueueEvent(statusEvent("p1", 1, models.StatusInProgress))
	require.Equal(t, "", n.ringing)

	// Redelivered call after the consultation already started. The status
	// event that would silence a fresh alarm has been consumed, so ringing
	// again here would never stop.
	s.ApplyQueueEvent(calledEvent("p1", 1))

	assert.Equal(t, 1, n.starts, "stale call must not restart the alarm")
	assert.Equal(t, 1, n.persistentCount())
	assert.Equal(t, "", n.ringing)
	assert.Equal(t, models.StatusInProgress, mirrorStatus(t, s, "p1"))
}

func TestCallBeforeSnapshotStillAlarms(t *testing.T) {
	n := &fakeNotifier{}
	s := newSync(models.RolePatient, "p1", n, nil)

	s.ApplyQueueEvent(calledEvent("p1", 1))

	assert.Equal(t, 1, n.starts, "the call must fire without waiting for a snapshot")
	assert.Equal(t, 1, n.persistentCount())
}

func TestLaterTransitionStopsAlarmWithoutAck(t *testing.T) {
	n := &fakeNotifier{}
	s := newSync(models.RolePatient, "p1", n, nil)

	s.ApplyQueueEvent(realtime.QueueEvent{
		Type:  realtime.EventQueueUpdated,
		Queue: []models.QueueEntry{entry("p1", 1, models.StatusWaiting)},
	})
	s.ApplyQueueEvent(calledEvent("p1", 1))
	require.Equal(t, "p1", n.ringing)

	s.ApplyQueueEvent(statusEvent("p1", 1, models.StatusInProgress))
	assert.Equal(t, "", n.ringing, "doctor moving the patient forward silences the alarm")
	assert.GreaterOrEqual(t, n.stops, 1)
}

func TestAlarmForOtherPatientUntouched(t *testing.T) {
	n := &fakeNotifier{ringing: "p2"}
	s := newSync(models.RoleAdmin, "admin1", n, nil)

	s.ApplyQueueEvent(realtime.QueueEvent{
		Type:  realtime.EventQueueUpdated,
		Queue: []models.QueueEntry{entry("p1", 1, models.StatusCalled)},
	})
	s.ApplyQueueEvent(statusEvent("p1", 1, models.StatusInProgress))

	assert.Equal(t, "p2", n.ringing)
	assert.Zero(t, n.stops)
}

func TestNumberAssignedNotifications(t *testing.T) {
	t.Run("patient gets audible toast", func(t *testing.T) {
		n := &fakeNotifier{}
		s := newSync(models.RolePatient, "p1", n, nil)

		e := entry("p1", 5, models.StatusWaiting)
		s.ApplyQueueEvent(realtime.QueueEvent{
			Type:        realtime.EventNumberAssigned,
			PatientID:   "p1",
			QueueNumber: 5,
			Appointment: &e,
		})

		require.Len(t, n.added, 1)
		assert.False(t, n.added[0].Silent)
		assert.False(t, n.added[0].Persistent)
		assert.Contains(t, n.added[0].Message, "5")
	})

	t.Run("doctor gets silent toast with masked name", func(t *testing.T) {
		n := &fakeNotifier{}
		s := newSync(models.RoleDoctor, "doc1", n, nil)

		e := entry("p1", 5, models.StatusWaiting)
		s.ApplyQueueEvent(realtime.QueueEvent{
			Type:        realtime.EventNumberAssigned,
			PatientID:   "p1",
			QueueNumber: 5,
			Appointment: &e,
		})

		require.Len(t, n.added, 1)
		assert.True(t, n.added[0].Silent)
		assert.NotContains(t, n.added[0].Message, "Ana Lestari")
	})
}

func TestReplayedNumberAssignedDoesNotReToast(t *testing.T) {
	n := &fakeNotifier{}
	s := newSync(models.RolePatient, "p1", n, nil)

	e := entry("p1", 5, models.StatusWaiting)
	ev := realtime.QueueEvent{
		Type:        realtime.EventNumberAssigned,
		PatientID:   "p1",
		QueueNumber: 5,
		Appointment: &e,
	}
	s.ApplyQueueEvent(ev)
	s.ApplyQueueEvent(ev)

	assert.Len(t, n.added, 1, "a redelivered assignment must not re-toast")
	require.Len(t, s.Snapshot(), 1)
	assert.Equal(t, 5, s.Snapshot()[0].QueueNumber)
}

func TestUnauthorizedRendersEmptyQueue(t *testing.T) {
	n := &fakeNotifier{}
	s := newSync(models.RolePatient, "p1", n, &fakeStore{err: ErrUnauthorized})

	err := s.Refresh(context.Background())
	assert.NoError(t, err, "unauthorized is recovered locally, not surfaced")
	assert.Empty(t, s.Snapshot())
}

func TestFailedRefreshKeepsMirror(t *testing.T) {
	n := &fakeNotifier{}
	store := &fakeStore{err: errors.New("connection refused")}
	s := newSync(models.RoleAdmin, "admin1", n, store)

	s.ApplyQueueEvent(realtime.QueueEvent{
		Type:  realtime.EventQueueUpdated,
		Queue: []models.QueueEntry{entry("p1", 1, models.StatusWaiting)},
	})

	err := s.Refresh(context.Background())
	assert.Error(t, err)
	assert.Len(t, s.Snapshot(), 1, "previously displayed data survives a failed refresh")
}

func TestFilterIsPureProjection(t *testing.T) {
	n := &fakeNotifier{}
	s := newSync(models.RoleAdmin, "admin1", n, nil)

	e1 := entry("p1", 1, models.StatusWaiting)
	e2 := entry("p2", 2, models.StatusWaiting)
	e2.PatientName = "Budi Santoso"
	s.ApplyQueueEvent(realtime.QueueEvent{
		Type:  realtime.EventQueueUpdated,
		Queue: []models.QueueEntry{e1, e2},
	})

	byName := s.Filter("budi")
	require.Len(t, byName, 1)
	assert.Equal(t, "p2", byName[0].PatientID)

	byNumber := s.Filter("1")
	require.Len(t, byNumber, 1)
	assert.Equal(t, "p1", byNumber[0].PatientID)

	assert.Len(t, s.Snapshot(), 2, "filter must not mutate the mirror")
	assert.Len(t, s.Filter(""), 2)
}
