// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/vigilhq/vigil/internal/auth"
	"github.com/vigilhq/vigil/internal/models"
	"github.com/vigilhq/vigil/internal/store"
)

type ackRecorder struct {
	mu     sync.Mutex
	single []*models.Alert
	bulk   int
}

func (a *ackRecorder) AlertAcknowledged(_ context.Context, alert *models.Alert) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.single = append(a.single, alert)
}

func (a *ackRecorder) BulkAcknowledged(_ context.Context, count int, _ map[string][]string, _ []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bulk += count
}

type sessionFixture struct {
	store    *store.Badger
	hub      *Hub
	recorder *ackRecorder
	conn     *websocket.Conn
}

// dialSession spins up a hub, an upgrade endpoint for the given session
// kind, and a connected client.
func dialSession(t *testing.T, kind SessionKind, identity *auth.Identity, deviceID string) *sessionFixture {
	t.Helper()

	b, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	hub := startHub(t)
	recorder := &ackRecorder{}

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		var client *Client
		switch kind {
		case SessionUser:
			client = NewUserClient(hub, conn, identity, b, recorder)
		case SessionOps:
			client = NewOpsClient(hub, conn, identity, b, recorder)
		case SessionDevice:
			client = NewDeviceClient(hub, conn, identity, deviceID, b)
		}
		client.Start()
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return &sessionFixture{store: b, hub: hub, recorder: recorder, conn: conn}
}

// readEvent reads the next event frame into a generic map.
func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var event map[string]any
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("unmarshal event %s: %v", data, err)
	}
	return event
}

func writeCommand(t *testing.T, conn *websocket.Conn, cmd any) {
	t.Helper()
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatalf("write command: %v", err)
	}
}

func TestUserSessionConnectAndPing(t *testing.T) {
	identity := &auth.Identity{UserID: "u1", Username: "casey"}
	fx := dialSession(t, SessionUser, identity, "")

	event := readEvent(t, fx.conn)
	if event["type"] != "connection_status" {
		t.Fatalf("first event type = %v, want connection_status", event["type"])
	}

	writeCommand(t, fx.conn, map[string]any{"type": "ping", "timestamp": "2026-03-10T12:00:00Z"})
	event = readEvent(t, fx.conn)
	if event["type"] != "pong" {
		t.Fatalf("reply type = %v, want pong", event["type"])
	}
	if event["timestamp"] != "2026-03-10T12:00:00Z" {
		t.Errorf("pong timestamp = %v, want echo", event["timestamp"])
	}
}

func TestUserSessionMalformedMessageStaysOpen(t *testing.T) {
	identity := &auth.Identity{UserID: "u1", Username: "casey"}
	fx := dialSession(t, SessionUser, identity, "")
	readEvent(t, fx.conn) // connection_status

	if err := fx.conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write malformed: %v", err)
	}
	event := readEvent(t, fx.conn)
	if event["type"] != "error" {
		t.Fatalf("reply type = %v, want error", event["type"])
	}

	// Session must stay open and keep answering.
	writeCommand(t, fx.conn, map[string]any{"type": "ping"})
	event = readEvent(t, fx.conn)
	if event["type"] != "pong" {
		t.Errorf("post-error reply type = %v, want pong", event["type"])
	}
}

func TestUserSessionUnknownCommand(t *testing.T) {
	identity := &auth.Identity{UserID: "u1", Username: "casey"}
	fx := dialSession(t, SessionUser, identity, "")
	readEvent(t, fx.conn)

	writeCommand(t, fx.conn, map[string]any{"type": "fly_to_the_moon"})
	event := readEvent(t, fx.conn)
	if event["type"] != "error" {
		t.Errorf("reply type = %v, want error", event["type"])
	}
}

func TestUserSessionUnreadCountAndAcknowledge(t *testing.T) {
	ctx := context.Background()
	identity := &auth.Identity{UserID: "owner-1", Username: "casey"}
	fx := dialSession(t, SessionUser, identity, "")
	readEvent(t, fx.conn)

	owner := &models.User{ID: "owner-1", Username: "casey"}
	stranger := &models.User{ID: "owner-2", Username: "sam"}
	for _, u := range []*models.User{owner, stranger} {
		if err := fx.store.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	mine := &models.Device{ID: "d1", Name: "Mine", Token: "t1", OwnerID: owner.ID, Active: true}
	theirs := &models.Device{ID: "d2", Name: "Theirs", Token: "t2", OwnerID: stranger.ID, Active: true}
	for _, d := range []*models.Device{mine, theirs} {
		if err := fx.store.CreateDevice(ctx, d); err != nil {
			t.Fatalf("create device: %v", err)
		}
	}
	myAlert, err := fx.store.CreateAlert(ctx, mine, owner, models.KindMotion, "", []models.SensorType{models.SensorMotion}, models.ConfidenceMedium)
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}
	otherAlert, err := fx.store.CreateAlert(ctx, theirs, stranger, models.KindDoor, "", []models.SensorType{models.SensorDoorOpen}, models.ConfidenceMedium)
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}

	writeCommand(t, fx.conn, map[string]any{"type": "get_unread_count"})
	event := readEvent(t, fx.conn)
	if event["type"] != "unread_count" || event["count"] != float64(1) {
		t.Errorf("unread reply = %v, want count 1", event)
	}

	// Foreign alert: refused, nothing acknowledged.
	writeCommand(t, fx.conn, map[string]any{"type": "acknowledge_alert", "alert_id": otherAlert.ID})
	event = readEvent(t, fx.conn)
	if event["type"] != "acknowledge_result" || event["success"] != false {
		t.Errorf("foreign acknowledge reply = %v, want failure", event)
	}

	// Own alert: acknowledged and propagated.
	writeCommand(t, fx.conn, map[string]any{"type": "acknowledge_alert", "alert_id": myAlert.ID})
	event = readEvent(t, fx.conn)
	if event["type"] != "acknowledge_result" || event["success"] != true {
		t.Fatalf("own acknowledge reply = %v, want success", event)
	}

	got, err := fx.store.AlertByID(ctx, myAlert.ID)
	if err != nil {
		t.Fatalf("alert by id: %v", err)
	}
	if !got.Acknowledged {
		t.Error("alert not acknowledged in store")
	}
	fx.recorder.mu.Lock()
	defer fx.recorder.mu.Unlock()
	if len(fx.recorder.single) != 1 {
		t.Errorf("ack notifications = %d, want 1", len(fx.recorder.single))
	}
}

func TestOpsSessionStatsAndBulkAcknowledge(t *testing.T) {
	ctx := context.Background()
	identity := &auth.Identity{UserID: "staff-1", Username: "ops", Staff: true}
	fx := dialSession(t, SessionOps, identity, "")

	// Ops connect announcement carries current stats.
	event := readEvent(t, fx.conn)
	if event["type"] != "connection_status" {
		t.Fatalf("first event type = %v, want connection_status", event["type"])
	}
	if _, ok := event["stats"]; !ok {
		t.Error("ops connection_status missing stats")
	}

	owner := &models.User{ID: "o1", Username: "casey"}
	if err := fx.store.CreateUser(ctx, owner); err != nil {
		t.Fatalf("create user: %v", err)
	}
	device := &models.Device{ID: "d1", Name: "Unit", Token: "t1", OwnerID: owner.ID, Active: true}
	if err := fx.store.CreateDevice(ctx, device); err != nil {
		t.Fatalf("create device: %v", err)
	}
	var ids []string
	for i := 0; i < 2; i++ {
		a, err := fx.store.CreateAlert(ctx, device, owner, models.KindGlass, "", []models.SensorType{models.SensorGlassBreak}, models.ConfidenceMedium)
		if err != nil {
			t.Fatalf("create alert: %v", err)
		}
		ids = append(ids, a.ID)
	}

	writeCommand(t, fx.conn, map[string]any{"type": "get_stats"})
	event = readEvent(t, fx.conn)
	if event["type"] != "dashboard_stats" {
		t.Fatalf("reply type = %v, want dashboard_stats", event["type"])
	}
	stats, ok := event["stats"].(map[string]any)
	if !ok || stats["total_alerts"] != float64(2) {
		t.Errorf("stats = %v, want total_alerts 2", event["stats"])
	}

	writeCommand(t, fx.conn, map[string]any{"type": "bulk_acknowledge", "alert_ids": ids})
	event = readEvent(t, fx.conn)
	if event["type"] != "bulk_acknowledge_result" || event["acknowledged_count"] != float64(2) {
		t.Errorf("bulk reply = %v, want 2 acknowledged", event)
	}

	fx.recorder.mu.Lock()
	defer fx.recorder.mu.Unlock()
	if fx.recorder.bulk != 2 {
		t.Errorf("bulk notification count = %d, want 2", fx.recorder.bulk)
	}
}

func TestOpsCommandRejectedOnUserSession(t *testing.T) {
	identity := &auth.Identity{UserID: "u1", Username: "casey"}
	fx := dialSession(t, SessionUser, identity, "")
	readEvent(t, fx.conn)

	writeCommand(t, fx.conn, map[string]any{"type": "bulk_acknowledge", "alert_ids": []string{"x"}})
	event := readEvent(t, fx.conn)
	if event["type"] != "error" {
		t.Errorf("reply type = %v, want error (ops command on user session)", event["type"])
	}
}

func TestDeviceSessionReceivesGroupEvents(t *testing.T) {
	identity := &auth.Identity{UserID: "u1", Username: "casey"}
	fx := dialSession(t, SessionDevice, identity, "dev-9")
	readEvent(t, fx.conn) // connection_status

	waitForGroup(t, fx.hub, DeviceGroup("dev-9"), 1)
	fx.hub.Publish(DeviceGroup("dev-9"), []byte(`{"type":"sensor_data","device_id":"dev-9"}`))

	event := readEvent(t, fx.conn)
	if event["type"] != "sensor_data" {
		t.Errorf("pushed event type = %v, want sensor_data", event["type"])
	}
}
