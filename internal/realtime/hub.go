package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"backend-clinic-queue/internal/helper"
	"backend-clinic-queue/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Debounce snapshot rebroadcasts: a burst of mutations still costs one
// store query.
const snapshotDebounce = 50 * time.Millisecond

// sendBuffer bounds per-subscriber backlog. A full buffer drops the message
// instead of blocking the fan-out; the next snapshot rebroadcast heals the
// gap because every client applies events idempotently.
const sendBuffer = 16

// SnapshotFunc fetches today's authoritative queue, optionally doctor-scoped.
type SnapshotFunc func(ctx context.Context, doctorID string) ([]models.QueueEntry, error)

// Subscriber is one connected browser tab, joined with role + scope.
type Subscriber struct {
	ID       string
	Role     string
	UserID   string
	DoctorID string
	Send     chan []byte
}

// wants applies the fan-out interest filter: patients only see events about
// their own entry, doctors/nurses their doctor scope, admins everything.
func (s *Subscriber) wants(ev QueueEvent) bool {
	switch s.Role {
	case models.RolePatient:
		return ev.PatientID == s.UserID
	case models.RoleDoctor, models.RoleNurse:
		return s.DoctorID == "" || ev.DoctorID == "" || ev.DoctorID == s.DoctorID
	default:
		return true
	}
}

// Hub fans queue events out to WebSocket subscribers and owns the debounced
// full-snapshot rebroadcast.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber

	snapshot SnapshotFunc
	log      zerolog.Logger

	debounceMu    sync.Mutex
	debounceTimer *time.Timer

	// Last full snapshot message, valid while it is still the same day.
	cacheMu   sync.RWMutex
	cacheMsg  []byte
	cacheTime time.Time
}

func NewHub(snapshot SnapshotFunc, log zerolog.Logger) *Hub {
	return &Hub{
		subs:     make(map[string]*Subscriber),
		snapshot: snapshot,
		log:      log.With().Str("comp", "hub").Logger(),
	}
}

// Register adds a subscriber and immediately hands it a baseline snapshot so
// it does not sit empty until the next mutation.
func (h *Hub) Register(sub *Subscriber) {
	h.mu.Lock()
	h.subs[sub.ID] = sub
	total := len(h.subs)
	h.mu.Unlock()

	h.log.Info().
		Str("sub", sub.ID).
		Str("role", sub.Role).
		Int("total", total).
		Msg("subscriber joined")

	go h.sendInitial(sub)
}

func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		close(sub.Send)
	}
	total := len(h.subs)
	h.mu.Unlock()

	if ok {
		h.log.Info().Str("sub", id).Int("total", total).Msg("subscriber left")
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// RunBus consumes the Redis event channel until ctx is done.
func (h *Hub) RunBus(ctx context.Context, rdb *redis.Client) {
	pubsub := rdb.Subscribe(ctx, BusChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev QueueEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				h.log.Error().Err(err).Msg("bad bus payload")
				continue
			}
			h.Dispatch(ev)
		}
	}
}

// Dispatch fans one event out to interested subscribers and schedules the
// snapshot rebroadcast that every mutation implies.
func (h *Hub) Dispatch(ev QueueEvent) {
	if ev.Type != EventQueueUpdated {
		payload, err := json.Marshal(ev)
		if err != nil {
			h.log.Error().Err(err).Msg("marshal event")
			return
		}

		h.mu.RLock()
		for _, sub := range h.subs {
			if sub.wants(ev) {
				h.send(sub, payload)
			}
		}
		h.mu.RUnlock()
	}

	h.scheduleSnapshot()
}

func (h *Hub) scheduleSnapshot() {
	h.debounceMu.Lock()
	defer h.debounceMu.Unlock()

	if h.debounceTimer != nil {
		h.debounceTimer.Reset(snapshotDebounce)
		return
	}

	h.debounceTimer = time.AfterFunc(snapshotDebounce, func() {
		h.debounceMu.Lock()
		h.debounceTimer = nil
		h.debounceMu.Unlock()

		h.broadcastSnapshot()
	})
}

func (h *Hub) broadcastSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entries, err := h.snapshot(ctx, "")
	if err != nil {
		h.log.Error().Err(err).Msg("snapshot fetch failed")
		return
	}

	full, err := json.Marshal(QueueEvent{Type: EventQueueUpdated, Queue: entries})
	if err != nil {
		h.log.Error().Err(err).Msg("marshal snapshot")
		return
	}

	h.cacheMu.Lock()
	h.cacheMsg = full
	h.cacheTime = time.Now()
	h.cacheMu.Unlock()

	// Doctor-scoped subscribers get their slice of the snapshot; marshal
	// each scope once per broadcast.
	scoped := map[string][]byte{"": full}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		// Patients have no need-to-know for other patients' names; their
		// snapshot carries masked names for everyone but themselves. Marshaled
		// per subscriber because the unmasked entry differs.
		if sub.Role == models.RolePatient {
			msg, err := json.Marshal(QueueEvent{
				Type:  EventQueueUpdated,
				Queue: maskedEntries(entries, sub.UserID),
			})
			if err != nil {
				continue
			}
			h.send(sub, msg)
			continue
		}

		scope := ""
		if (sub.Role == models.RoleDoctor || sub.Role == models.RoleNurse) && sub.DoctorID != "" {
			scope = sub.DoctorID
		}

		msg, ok := scoped[scope]
		if !ok {
			var mine []models.QueueEntry
			for _, e := range entries {
				if e.DoctorID == scope {
					mine = append(mine, e)
				}
			}
			msg, err = json.Marshal(QueueEvent{Type: EventQueueUpdated, Queue: mine})
			if err != nil {
				continue
			}
			scoped[scope] = msg
		}

		h.send(sub, msg)
	}
}

func maskedEntries(entries []models.QueueEntry, ownPatientID string) []models.QueueEntry {
	out := make([]models.QueueEntry, len(entries))
	copy(out, entries)
	for i := range out {
		if out[i].PatientID != ownPatientID {
			out[i].PatientName = helper.MaskName(out[i].PatientName)
		}
	}
	return out
}

// sendInitial serves the cached snapshot to a fresh subscriber when it is
// still from today, otherwise forces a rebuild. The cache holds the unmasked
// full list, so only staff-role subscribers may be served from it.
func (h *Hub) sendInitial(sub *Subscriber) {
	h.cacheMu.RLock()
	cached := h.cacheMsg
	cachedAt := h.cacheTime
	h.cacheMu.RUnlock()

	sameDay := len(cached) > 0 &&
		time.Now().Format("2006-01-02") == cachedAt.Format("2006-01-02")

	if sameDay && sub.DoctorID == "" && sub.Role != models.RolePatient {
		h.mu.RLock()
		if _, still := h.subs[sub.ID]; still {
			h.send(sub, cached)
		}
		h.mu.RUnlock()
		return
	}

	h.broadcastSnapshot()
}

func (h *Hub) send(sub *Subscriber, msg []byte) {
	select {
	case sub.Send <- msg:
	default:
		h.log.Warn().Str("sub", sub.ID).Msg("send buffer full, dropping message")
	}
}
