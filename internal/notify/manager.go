package notify

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// Non-persistent notifications leave the collection after this window.
	// Persistent ones stay until acknowledged; the window deliberately does
	// not apply to them.
	defaultTTL = 6 * time.Second

	ringInterval = 2 * time.Second
)

// Manager owns one client session's active notifications and the continuous
// alarm loop. One instance per session, passed explicitly to whoever raises
// alerts; teardown via Close.
type Manager struct {
	mu      sync.Mutex
	log     zerolog.Logger
	sound   Sound
	desktop Desktop

	active []Notification
	timers map[string]*time.Timer
	ttl    time.Duration

	ringEvery time.Duration

	ringCancel     context.CancelFunc
	ringingPatient string

	permissionAsked bool
	permitted       bool

	// OnNavigate handles AckNavigate acknowledgments when set.
	OnNavigate func(target string)

	closed bool
}

func NewManager(sound Sound, desktop Desktop, log zerolog.Logger) *Manager {
	return &Manager{
		log:       log.With().Str("comp", "notify").Logger(),
		sound:     sound,
		desktop:   desktop,
		timers:    make(map[string]*time.Timer),
		ttl:       defaultTTL,
		ringEvery: ringInterval,
	}
}

// Add appends the notification, plays the short tone unless silent, raises a
// best-effort desktop notification when asked, and schedules expiry for
// non-persistent ones. Returns the assigned local id.
func (m *Manager) Add(n Notification) string {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return ""
	}

	// A replayed call alert for a number that is still ringing must not
	// stack a second persistent notification.
	if n.Persistent && n.QueueNumber != 0 {
		for _, existing := range m.active {
			if existing.Persistent && existing.QueueNumber == n.QueueNumber {
				m.mu.Unlock()
				return existing.ID
			}
		}
	}

	n.ID = newLocalID()
	n.CreatedAt = time.Now()
	m.active = append(m.active, n)

	if !n.Persistent {
		id := n.ID
		m.timers[id] = time.AfterFunc(m.ttl, func() {
			m.Remove(id)
		})
	}

	m.mu.Unlock()

	if !n.Silent {
		if err := m.sound.Tone(); err != nil {
			m.log.Warn().Err(err).Msg("alert tone failed")
		}
	}

	if n.Desktop && m.desktop != nil && m.ensurePermission() {
		if err := m.desktop.Notify(n.Title, n.Message); err != nil {
			m.log.Warn().Err(err).Msg("desktop notification failed")
		}
	}

	return n.ID
}

// Remove drops the notification from the collection. Idempotent.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[id]; ok {
		t.Stop()
		delete(m.timers, id)
	}

	for i, n := range m.active {
		if n.ID == id {
			m.active = append(m.active[:i], m.active[i+1:]...)
			return
		}
	}
}

// Acknowledge silences the alarm tied to the notification, runs its
// acknowledge action, then removes it. Only meaningful for persistent
// alerts; harmless on everything else.
func (m *Manager) Acknowledge(id string) {
	m.mu.Lock()
	var found *Notification
	for i := range m.active {
		if m.active[i].ID == id {
			found = &m.active[i]
			break
		}
	}
	if found == nil {
		m.mu.Unlock()
		return
	}
	n := *found
	m.mu.Unlock()

	if n.QueueNumber != 0 || n.Ack == AckStopAlarm {
		m.StopContinuousRinging()
	}

	if n.Ack == AckNavigate && m.OnNavigate != nil {
		m.OnNavigate(n.AckTarget)
	}

	m.Remove(id)
}

// Active returns the current collection in display order, newest last.
func (m *Manager) Active() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Notification, len(m.active))
	copy(out, m.active)
	return out
}

// StartContinuousRinging begins the repeating alarm for a called patient.
// Starting while a loop is active replaces it; loops never stack.
func (m *Manager) StartContinuousRinging(patientID string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.ringCancel != nil {
		m.ringCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.ringCancel = cancel
	m.ringingPatient = patientID
	m.mu.Unlock()

	go m.ringLoop(ctx)
}

func (m *Manager) ringLoop(ctx context.Context) {
	ticker := time.NewTicker(m.ringEvery)
	defer ticker.Stop()

	for {
		if err := m.sound.Alarm(); err != nil {
			m.log.Warn().Err(err).Msg("alarm tone failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) StopContinuousRinging() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ringCancel != nil {
		m.ringCancel()
		m.ringCancel = nil
	}
	m.ringingPatient = ""
}

// RingingPatient reports who the active alarm is for, "" when silent. The
// synchronizer uses it to stop stale alarms on superseding transitions.
func (m *Manager) RingingPatient() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ringingPatient
}

// Close tears the session down: stops the alarm, cancels every pending
// expiry timer and empties the collection.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.ringCancel != nil {
		m.ringCancel()
		m.ringCancel = nil
	}
	m.ringingPatient = ""

	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
	m.active = nil
}

func (m *Manager) ensurePermission() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.permissionAsked {
		m.permissionAsked = true
		m.permitted = m.desktop.RequestPermission()
	}
	return m.permitted
}

// newLocalID builds a time+random id, unique enough within one client.
func newLocalID() string {
	return fmt.Sprintf("%d-%06d", time.Now().UnixMilli(), rand.Intn(1000000))
}
