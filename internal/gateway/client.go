// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

package gateway

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/vigilhq/vigil/internal/auth"
	"github.com/vigilhq/vigil/internal/logging"
	"github.com/vigilhq/vigil/internal/metrics"
	"github.com/vigilhq/vigil/internal/models"
	"github.com/vigilhq/vigil/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	commandTimeout = 5 * time.Second
)

// SessionKind selects the command set and group a session gets.
type SessionKind string

const (
	SessionUser   SessionKind = "user"
	SessionOps    SessionKind = "ops"
	SessionDevice SessionKind = "device"
)

// clientIDCounter orders sessions for deterministic broadcast delivery.
var clientIDCounter atomic.Uint64

// AckNotifier propagates acknowledgement transitions performed over a
// session to the fan-out layer.
type AckNotifier interface {
	AlertAcknowledged(ctx context.Context, alert *models.Alert)
	BulkAcknowledged(ctx context.Context, count int, idsByOwner map[string][]string, allIDs []string)
}

// Client is one websocket session: a connection, its group, and the
// identity that authorized it. Inbound commands run sequentially on the
// read pump; outbound payloads queue on the buffered send channel.
type Client struct {
	id       uint64
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	kind     SessionKind
	group    string
	identity *auth.Identity

	alerts   store.AlertStore
	notifier AckNotifier
}

// NewUserClient builds a personal alert stream session.
func NewUserClient(hub *Hub, conn *websocket.Conn, identity *auth.Identity, alerts store.AlertStore, notifier AckNotifier) *Client {
	return newClient(hub, conn, SessionUser, UserGroup(identity.UserID), identity, alerts, notifier)
}

// NewOpsClient builds an operations dashboard session.
func NewOpsClient(hub *Hub, conn *websocket.Conn, identity *auth.Identity, alerts store.AlertStore, notifier AckNotifier) *Client {
	return newClient(hub, conn, SessionOps, OpsGroup, identity, alerts, notifier)
}

// NewDeviceClient builds a device observer session.
func NewDeviceClient(hub *Hub, conn *websocket.Conn, identity *auth.Identity, deviceID string, alerts store.AlertStore) *Client {
	return newClient(hub, conn, SessionDevice, DeviceGroup(deviceID), identity, alerts, nil)
}

func newClient(hub *Hub, conn *websocket.Conn, kind SessionKind, group string, identity *auth.Identity, alerts store.AlertStore, notifier AckNotifier) *Client {
	return &Client{
		id:       clientIDCounter.Add(1),
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		kind:     kind,
		group:    group,
		identity: identity,
		alerts:   alerts,
		notifier: notifier,
	}
}

// Start registers the session, launches the pumps, and sends the
// connection announcement.
func (c *Client) Start() {
	c.hub.Register <- c
	go c.writePump()
	go c.readPump()
	c.announce()
}

// announce sends the on-connect status event. Operations sessions get the
// current dashboard counters immediately.
func (c *Client) announce() {
	event := map[string]any{
		"type":      "connection_status",
		"connected": true,
		"kind":      string(c.kind),
	}
	if c.kind == SessionOps {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		if stats, err := c.alerts.Stats(ctx, time.Now()); err == nil {
			event["stats"] = stats
		} else {
			logging.Warn().Err(err).Msg("dashboard stats for connect announcement")
		}
	}
	c.sendEvent(event)
}

// sendEvent marshals and queues one event for this session only.
func (c *Client) sendEvent(event any) {
	data, err := json.Marshal(event)
	if err != nil {
		logging.Error().Err(err).Msg("marshal session event")
		return
	}
	select {
	case c.send <- data:
	default:
		// Buffer full; the hub will drop this session on its next
		// group delivery. Losing a direct reply here is acceptable.
	}
}

func (c *Client) sendError(msg string) {
	c.sendEvent(map[string]any{"type": "error", "message": msg})
}

// readPump processes inbound commands one at a time until the connection
// drops. Malformed frames get an error event; the session stays open.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logging.Warn().Err(err).Str("kind", string(c.kind)).Msg("unexpected session close")
			}
			return
		}
		c.handleMessage(raw)
	}
}

// command is the inbound envelope. Unused fields stay zero for commands
// that do not carry them.
type command struct {
	Type      string   `json:"type"`
	Timestamp any      `json:"timestamp,omitempty"`
	AlertID   string   `json:"alert_id,omitempty"`
	AlertIDs  []string `json:"alert_ids,omitempty"`
}

func (c *Client) handleMessage(raw []byte) {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		c.sendError("malformed message")
		return
	}
	metrics.SessionMessages.WithLabelValues(cmd.Type).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch {
	case cmd.Type == "ping":
		c.sendEvent(map[string]any{"type": "pong", "timestamp": cmd.Timestamp})
	case c.kind == SessionUser && cmd.Type == "get_unread_count":
		c.handleUnreadCount(ctx)
	case c.kind == SessionUser && cmd.Type == "acknowledge_alert":
		c.handleAcknowledge(ctx, cmd.AlertID)
	case c.kind == SessionOps && cmd.Type == "get_stats":
		c.handleStats(ctx)
	case c.kind == SessionOps && cmd.Type == "bulk_acknowledge":
		c.handleBulkAcknowledge(ctx, cmd.AlertIDs)
	default:
		c.sendError("unknown command: " + cmd.Type)
	}
}

func (c *Client) handleUnreadCount(ctx context.Context) {
	count, err := c.alerts.CountUnacknowledgedByOwner(ctx, c.identity.UserID)
	if err != nil {
		logging.Error().Err(err).Msg("count unread alerts")
		c.sendError("could not fetch unread count")
		return
	}
	c.sendEvent(map[string]any{"type": "unread_count", "count": count})
}

// handleAcknowledge acknowledges one alert, rejecting alerts the session's
// identity does not own.
func (c *Client) handleAcknowledge(ctx context.Context, alertID string) {
	if alertID == "" {
		c.sendError("acknowledge_alert requires alert_id")
		return
	}
	result := func(success bool, msg string) {
		c.sendEvent(map[string]any{
			"type":     "acknowledge_result",
			"alert_id": alertID,
			"success":  success,
			"message":  msg,
		})
	}

	alert, err := c.alerts.AlertByID(ctx, alertID)
	if err != nil {
		result(false, "alert not found")
		return
	}
	if alert.OwnerID != c.identity.UserID {
		result(false, "alert belongs to another user")
		return
	}
	if err := c.alerts.Acknowledge(ctx, alertID); err != nil {
		logging.Error().Err(err).Str("alert_id", alertID).Msg("acknowledge alert")
		result(false, "acknowledge failed")
		return
	}
	metrics.AlertsAcknowledged.Inc()
	result(true, "acknowledged")

	if c.notifier != nil {
		alert.Acknowledged = true
		c.notifier.AlertAcknowledged(ctx, alert)
	}
}

func (c *Client) handleStats(ctx context.Context) {
	stats, err := c.alerts.Stats(ctx, time.Now())
	if err != nil {
		logging.Error().Err(err).Msg("dashboard stats")
		c.sendError("could not fetch stats")
		return
	}
	c.sendEvent(map[string]any{"type": "dashboard_stats", "stats": stats})
}

// handleBulkAcknowledge acknowledges a batch without ownership scoping and
// reports the per-owner split to the fan-out layer.
func (c *Client) handleBulkAcknowledge(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		c.sendError("bulk_acknowledge requires alert_ids")
		return
	}

	idsByOwner := make(map[string][]string)
	for _, id := range ids {
		alert, err := c.alerts.AlertByID(ctx, id)
		if err != nil || alert.Acknowledged {
			continue
		}
		idsByOwner[alert.OwnerID] = append(idsByOwner[alert.OwnerID], id)
	}

	count, err := c.alerts.AcknowledgeBulk(ctx, ids)
	if err != nil {
		logging.Error().Err(err).Msg("bulk acknowledge")
		c.sendError("bulk acknowledge failed")
		return
	}
	c.sendEvent(map[string]any{
		"type":               "bulk_acknowledge_result",
		"acknowledged_count": count,
		"alert_ids":          ids,
	})

	if c.notifier != nil {
		c.notifier.BulkAcknowledged(ctx, count, idsByOwner, ids)
	}
}

// writePump drains the send channel onto the wire and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
