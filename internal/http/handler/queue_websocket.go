package handler

import (
	"time"

	"backend-clinic-queue/internal/config"
	"backend-clinic-queue/internal/realtime"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	joinDeadline  = 10 * time.Second
	pongDeadline  = 60 * time.Second
	pingInterval  = 20 * time.Second
	writeDeadline = 3 * time.Second
)

// UpgradeWS authenticates the tab (token query param, browsers cannot set
// headers on WebSocket requests) and upgrades the connection.
func (h *QueueHandler) UpgradeWS(c *fiber.Ctx) error {
	claims, err := config.ValidateToken(c.Query("token"))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
		})
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	c.Locals("claims", claims)
	return websocket.New(h.handleWS)(c)
}

// handleWS runs one subscriber connection: join handshake, writer pump with
// pings, read loop until leave-queue or disconnect. Identity comes from the
// token; the join payload only narrows the doctor scope.
func (h *QueueHandler) handleWS(c *websocket.Conn) {
	defer c.Close()

	claims := c.Locals("claims").(*config.JWTClaims)

	c.SetReadDeadline(time.Now().Add(joinDeadline))
	var join realtime.ClientMessage
	if err := c.ReadJSON(&join); err != nil || join.Type != realtime.MsgJoinQueue {
		h.log.Debug().Err(err).Msg("ws closed before join-queue")
		return
	}

	doctorID := join.DoctorID
	if doctorID == "" {
		doctorID = claims.DoctorID
	}

	sub := &realtime.Subscriber{
		ID:       uuid.NewString(),
		Role:     claims.Role,
		UserID:   claims.UserID,
		DoctorID: doctorID,
		Send:     make(chan []byte, 16),
	}

	h.hub.Register(sub)
	defer h.hub.Unregister(sub.ID)

	go h.writePump(c, sub)

	c.SetReadDeadline(time.Now().Add(pongDeadline))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(pongDeadline))
		return nil
	})

	for {
		var msg realtime.ClientMessage
		if err := c.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure,
			) {
				h.log.Debug().Err(err).Str("sub", sub.ID).Msg("ws unexpected close")
			}
			return
		}
		if msg.Type == realtime.MsgLeaveQueue {
			return
		}
	}
}

// writePump is the single writer for one connection. It drains the hub's
// send channel and keeps the connection alive with pings; a write error
// closes the connection, which unblocks the read loop.
func (h *QueueHandler) writePump(c *websocket.Conn, sub *realtime.Subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sub.Send:
			if !ok {
				return
			}
			c.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug().Err(err).Str("sub", sub.ID).Msg("ws write failed")
				c.Close()
				return
			}
		case <-ticker.C:
			c.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
