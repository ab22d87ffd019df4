package notify

import (
	"errors"
	"time"
)

type Type string

const (
	TypeInfo    Type = "info"
	TypeSuccess Type = "success"
	TypeWarning Type = "warning"
	TypeError   Type = "error"
)

// AckAction is the tagged side effect run when a notification is
// acknowledged, kept as data instead of a closure so notifications stay
// inspectable in tests.
type AckAction string

const (
	AckNone      AckAction = "none"
	AckStopAlarm AckAction = "stop-alarm"
	AckNavigate  AckAction = "navigate"
)

// ErrAudioUnavailable is returned by Sound implementations when the platform
// cannot synthesize a tone. The notification still displays, silently.
var ErrAudioUnavailable = errors.New("audio unavailable")

// Notification is an ephemeral, client-local alert. Never persisted.
type Notification struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	QueueNumber int       `json:"queue_number,omitempty"`
	Persistent  bool      `json:"persistent"`
	Silent      bool      `json:"silent"`
	Desktop     bool      `json:"desktop"`
	Ack         AckAction `json:"ack"`
	AckTarget   string    `json:"ack_target,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Sound synthesizes the short alert tone and one alarm iteration.
type Sound interface {
	Tone() error
	Alarm() error
}

// Desktop raises platform-level notifications. Permission is requested once
// per session; everything keeps working when it is denied.
type Desktop interface {
	RequestPermission() bool
	Notify(title, message string) error
}
