package realtime

import "backend-clinic-queue/internal/models"

type EventType string

const (
	// Full-list replacement snapshot, used whenever a delta is not worth
	// computing (priority reshuffles, reconnects, day rollover).
	EventQueueUpdated EventType = "queue-updated"

	EventNumberAssigned EventType = "queue-number-assigned"
	EventStatusChanged  EventType = "queue-status-changed"

	// Fired on the waiting -> called transition only. A specialization of
	// queue-status-changed, kept as its own kind because it is the one event
	// that must reach the patient as a persistent, must-acknowledge alert.
	EventPatientCalled EventType = "patient-called"
)

// QueueEvent is the one payload shape flowing server -> client. Fields are
// populated per Type; unused ones stay empty.
type QueueEvent struct {
	Type        EventType           `json:"type"`
	Queue       []models.QueueEntry `json:"queue,omitempty"`
	PatientID   string              `json:"patient_id,omitempty"`
	DoctorID    string              `json:"doctor_id,omitempty"`
	QueueNumber int                 `json:"queue_number,omitempty"`
	Status      models.QueueStatus  `json:"status,omitempty"`
	Appointment *models.QueueEntry  `json:"appointment,omitempty"`
}

// Client -> server messages.
const (
	MsgJoinQueue  = "join-queue"
	MsgLeaveQueue = "leave-queue"
)

type ClientMessage struct {
	Type     string `json:"type"`
	Role     string `json:"role,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	DoctorID string `json:"doctor_id,omitempty"`
}
