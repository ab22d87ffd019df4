package models

import "time"

type QueueStatus string

const (
	StatusWaiting    QueueStatus = "waiting"
	StatusCalled     QueueStatus = "called"
	StatusInProgress QueueStatus = "in-progress"
	StatusServed     QueueStatus = "served"
	StatusSkipped    QueueStatus = "skipped"
)

type PriorityLevel string

const (
	PriorityRegular   PriorityLevel = "regular"
	PriorityPriority  PriorityLevel = "priority"
	PriorityEmergency PriorityLevel = "emergency"
)

// QueueEntry is one patient's position in today's queue. Rows are created by
// the appointment system; this service only reads them and moves status,
// priority and queue number forward.
type QueueEntry struct {
	AppointmentID    string        `json:"appointment_id"`
	PatientID        string        `json:"patient_id"`
	DoctorID         string        `json:"doctor_id"`
	PatientName      string        `json:"patient_name"`
	DoctorName       string        `json:"doctor_name"`
	QueueNumber      int           `json:"queue_number"` // 0 until assigned
	QueueStatus      QueueStatus   `json:"queue_status"`
	PriorityLevel    PriorityLevel `json:"priority_level"`
	EstimatedStartAt *time.Time    `json:"estimated_start_at"`
	AppointmentTime  time.Time     `json:"appointment_time"`
}

func ValidStatus(s QueueStatus) bool {
	switch s {
	case StatusWaiting, StatusCalled, StatusInProgress, StatusServed, StatusSkipped:
		return true
	}
	return false
}

func ValidPriority(p PriorityLevel) bool {
	switch p {
	case PriorityRegular, PriorityPriority, PriorityEmergency:
		return true
	}
	return false
}
