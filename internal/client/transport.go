package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"backend-clinic-queue/internal/models"
	"backend-clinic-queue/internal/realtime"

	"github.com/fasthttp/websocket"
)

// Conn is the bidirectional channel the synchronizer reads events from.
type Conn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	Close() error
}

// Dialer opens the push channel. Failing is expected and non-fatal.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// WSDialer connects to the server's /ws/queue endpoint.
type WSDialer struct {
	URL   string // ws://host:port/ws/queue
	Token string
}

func (d *WSDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	conn, resp, err := dialer.Dial(fmt.Sprintf("%s?token=%s", d.URL, d.Token), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	return conn, nil
}

// Run joins the channel, takes a baseline snapshot, then consumes events
// until ctx is done. When the channel cannot connect or drops, it degrades
// to interval polling; previously mirrored data survives the switch.
// Connect errors are logged at debug so they stay quiet outside development.
func (s *Synchronizer) Run(ctx context.Context) error {
	conn, err := s.dialer.Dial(ctx)
	if err != nil {
		s.log.Debug().Err(err).Msg("push channel unavailable, polling instead")
		if err := s.Refresh(ctx); err != nil {
			s.log.Debug().Err(err).Msg("baseline fetch failed")
		}
		s.pollLoop(ctx)
		return nil
	}

	if err := conn.WriteJSON(realtime.ClientMessage{
		Type:     realtime.MsgJoinQueue,
		Role:     s.sess.Role,
		UserID:   s.sess.UserID,
		DoctorID: s.sess.DoctorID,
	}); err != nil {
		conn.Close()
		return fmt.Errorf("join queue: %w", err)
	}

	// Baseline after subscribing, so nothing slips between the first push
	// and the first fetch.
	if err := s.Refresh(ctx); err != nil {
		s.log.Warn().Err(err).Msg("baseline fetch failed")
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteJSON(realtime.ClientMessage{Type: realtime.MsgLeaveQueue})
			conn.Close()
		case <-done:
		}
	}()

	for {
		var ev realtime.QueueEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Debug().Err(err).Msg("push channel lost, polling instead")
			s.pollLoop(ctx)
			return nil
		}
		s.ApplyQueueEvent(ev)
	}
}

func (s *Synchronizer) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.log.Debug().Err(err).Msg("poll refresh failed")
			}
		}
	}
}

/*
|--------------------------------------------------------------------------
| HTTP Store Client
|--------------------------------------------------------------------------
*/

// HTTPStore reads the queue store over its HTTP contract.
type HTTPStore struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPStore(baseURL, token string) *HTTPStore {
	return &HTTPStore{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *HTTPStore) TodayQueue(ctx context.Context, doctorID string) ([]models.QueueEntry, error) {
	url := h.BaseURL + "/api/queue/today"
	if doctorID != "" {
		url += "?doctor_id=" + doctorID
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+h.Token)

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("today queue: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("today queue: status %d", resp.StatusCode)
	}

	var body struct {
		Success bool                `json:"success"`
		Data    []models.QueueEntry `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode today queue: %w", err)
	}

	return body.Data, nil
}
