package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"backend-clinic-queue/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriberWants(t *testing.T) {
	calledP1 := QueueEvent{Type: EventPatientCalled, PatientID: "p1", DoctorID: "d1"}

	tests := []struct {
		name string
		sub  Subscriber
		want bool
	}{
		{"patient own event", Subscriber{Role: models.RolePatient, UserID: "p1"}, true},
		{"patient other event", Subscriber{Role: models.RolePatient, UserID: "p2"}, false},
		{"doctor own scope", Subscriber{Role: models.RoleDoctor, DoctorID: "d1"}, true},
		{"doctor other scope", Subscriber{Role: models.RoleDoctor, DoctorID: "d2"}, false},
		{"doctor unscoped", Subscriber{Role: models.RoleDoctor}, true},
		{"nurse own scope", Subscriber{Role: models.RoleNurse, DoctorID: "d1"}, true},
		{"admin sees all", Subscriber{Role: models.RoleAdmin}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sub.wants(calledP1))
		})
	}
}

func collectEvents(t *testing.T, ch chan []byte, window time.Duration) []QueueEvent {
	t.Helper()

	var events []QueueEvent
	deadline := time.After(window)
	for {
		select {
		case raw := <-ch:
			var ev QueueEvent
			require.NoError(t, json.Unmarshal(raw, &ev))
			events = append(events, ev)
		case <-deadline:
			return events
		}
	}
}

func hasType(events []QueueEvent, typ EventType) bool {
	for _, ev := range events {
		if ev.Type == typ {
			return true
		}
	}
	return false
}

func TestDispatchScopedFanout(t *testing.T) {
	snapshot := func(ctx context.Context, doctorID string) ([]models.QueueEntry, error) {
		return []models.QueueEntry{
			{AppointmentID: "a1", PatientID: "p1", DoctorID: "d1", QueueStatus: models.StatusWaiting},
			{AppointmentID: "a2", PatientID: "p2", DoctorID: "d2", QueueStatus: models.StatusWaiting},
		}, nil
	}

	hub := NewHub(snapshot, zerolog.Nop())

	mkSub := func(id, role, userID, doctorID string) *Subscriber {
		sub := &Subscriber{ID: id, Role: role, UserID: userID, DoctorID: doctorID, Send: make(chan []byte, 16)}
		hub.Register(sub)
		return sub
	}

	patient1 := mkSub("s1", models.RolePatient, "p1", "")
	patient2 := mkSub("s2", models.RolePatient, "p2", "")
	doctor2 := mkSub("s3", models.RoleDoctor, "doc2", "d2")
	admin := mkSub("s4", models.RoleAdmin, "adm", "")

	hub.Dispatch(QueueEvent{
		Type:        EventPatientCalled,
		PatientID:   "p1",
		DoctorID:    "d1",
		QueueNumber: 1,
	})

	p1Events := collectEvents(t, patient1.Send, 300*time.Millisecond)
	p2Events := collectEvents(t, patient2.Send, 300*time.Millisecond)
	d2Events := collectEvents(t, doctor2.Send, 300*time.Millisecond)
	admEvents := collectEvents(t, admin.Send, 300*time.Millisecond)

	assert.True(t, hasType(p1Events, EventPatientCalled), "affected patient must receive the call")
	assert.False(t, hasType(p2Events, EventPatientCalled), "other patients must not")
	assert.False(t, hasType(d2Events, EventPatientCalled), "other doctor scope must not")
	assert.True(t, hasType(admEvents, EventPatientCalled), "admin sees everything")

	// Every mutation also triggers the debounced snapshot rebroadcast.
	assert.True(t, hasType(admEvents, EventQueueUpdated))
}

func TestDoctorScopedSnapshot(t *testing.T) {
	snapshot := func(ctx context.Context, doctorID string) ([]models.QueueEntry, error) {
		return []models.QueueEntry{
			{AppointmentID: "a1", DoctorID: "d1"},
			{AppointmentID: "a2", DoctorID: "d2"},
			{AppointmentID: "a3", DoctorID: "d1"},
		}, nil
	}

	hub := NewHub(snapshot, zerolog.Nop())
	doctor := &Subscriber{ID: "s1", Role: models.RoleDoctor, UserID: "doc1", DoctorID: "d1", Send: make(chan []byte, 16)}
	hub.Register(doctor)

	events := collectEvents(t, doctor.Send, 300*time.Millisecond)
	require.NotEmpty(t, events)

	for _, ev := range events {
		if ev.Type != EventQueueUpdated {
			continue
		}
		assert.Len(t, ev.Queue, 2)
		for _, e := range ev.Queue {
			assert.Equal(t, "d1", e.DoctorID)
		}
	}
}

func TestPatientSnapshotMasksOtherNames(t *testing.T) {
	snapshot := func(ctx context.Context, doctorID string) ([]models.QueueEntry, error) {
		return []models.QueueEntry{
			{AppointmentID: "a1", PatientID: "p1", PatientName: "Ana Lestari", DoctorID: "d1"},
			{AppointmentID: "a2", PatientID: "p2", PatientName: "Budi Santoso", DoctorID: "d1"},
		}, nil
	}

	hub := NewHub(snapshot, zerolog.Nop())
	patient := &Subscriber{ID: "s1", Role: models.RolePatient, UserID: "p1", Send: make(chan []byte, 16)}
	hub.Register(patient)

	events := collectEvents(t, patient.Send, 300*time.Millisecond)
	require.NotEmpty(t, events)

	for _, ev := range events {
		if ev.Type != EventQueueUpdated {
			continue
		}
		require.Len(t, ev.Queue, 2)
		for _, e := range ev.Queue {
			if e.PatientID == "p1" {
				assert.Equal(t, "Ana Lestari", e.PatientName, "own name stays readable")
			} else {
				assert.Equal(t, "B*** S******", e.PatientName, "other patients' names leave masked")
			}
		}
	}
}

func TestUnregisterIsIdempotentAndCounts(t *testing.T) {
	hub := NewHub(func(ctx context.Context, doctorID string) ([]models.QueueEntry, error) {
		return nil, nil
	}, zerolog.Nop())

	sub := &Subscriber{ID: "s1", Role: models.RoleAdmin, Send: make(chan []byte, 16)}
	hub.Register(sub)
	assert.Equal(t, 1, hub.SubscriberCount())

	hub.Unregister("s1")
	hub.Unregister("s1")
	assert.Equal(t, 0, hub.SubscriberCount())
}
