// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/vigilhq/vigil/internal/auth"
	"github.com/vigilhq/vigil/internal/correlation"
	"github.com/vigilhq/vigil/internal/gateway"
	"github.com/vigilhq/vigil/internal/models"
	"github.com/vigilhq/vigil/internal/store"
)

// wsFixture is the handler fixture plus a running hub for upgrades.
type wsFixture struct {
	*apiFixture
	hub *gateway.Hub
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()

	st, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	jwt, err := auth.NewJWTManager(testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("creating jwt manager: %v", err)
	}

	hub := gateway.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.RunWithContext(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	engine := correlation.NewEngine(st, st, st, st, st, nil)
	handler := NewHandler(st, st, st, st, engine, hub, nil)
	router := NewRouter(handler, jwt, NewMiddleware(&MiddlewareConfig{RateLimitDisabled: true}))

	server := httptest.NewServer(router.Setup())
	t.Cleanup(server.Close)

	f := &apiFixture{store: st, server: server, jwt: jwt}
	f.owner = &models.User{ID: "user-1", Username: "amoreau", FullName: "Alex Moreau"}
	f.staff = &models.User{ID: "staff-1", Username: "ops", Staff: true}
	for _, u := range []*models.User{f.owner, f.staff} {
		if err := st.CreateUser(context.Background(), u); err != nil {
			t.Fatalf("creating user: %v", err)
		}
	}
	f.ownerToken, err = jwt.GenerateToken(f.owner)
	if err != nil {
		t.Fatal(err)
	}
	f.staffToken, err = jwt.GenerateToken(f.staff)
	if err != nil {
		t.Fatal(err)
	}

	return &wsFixture{apiFixture: f, hub: hub}
}

func (f *wsFixture) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + path
}

func readWSEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading ws frame: %v", err)
	}
	var event map[string]interface{}
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("decoding ws frame: %v", err)
	}
	return event
}

func TestWSAlertsUpgradeWithQueryToken(t *testing.T) {
	f := newWSFixture(t)

	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL("/ws/alerts?token="+f.ownerToken), nil)
	if err != nil {
		t.Fatalf("dialing: %v", err)
	}
	defer conn.Close()

	event := readWSEvent(t, conn)
	if event["type"] != "connection_status" {
		t.Errorf("first event type = %v, want connection_status", event["type"])
	}
}

func TestWSMonitorStaffOnly(t *testing.T) {
	f := newWSFixture(t)

	_, resp, err := websocket.DefaultDialer.Dial(f.wsURL("/ws/monitor?token="+f.ownerToken), nil)
	if err == nil {
		t.Fatal("non-staff monitor dial should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %v, want 403", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL("/ws/monitor?token="+f.staffToken), nil)
	if err != nil {
		t.Fatalf("staff dial failed: %v", err)
	}
	defer conn.Close()
	event := readWSEvent(t, conn)
	if event["type"] != "connection_status" {
		t.Errorf("first event type = %v, want connection_status", event["type"])
	}
}

func TestWSDeviceOwnership(t *testing.T) {
	f := newWSFixture(t)
	d := &models.Device{
		ID: "dev-1", Name: "Front Door", Token: "tok-1",
		OwnerID: f.staff.ID, Active: true,
	}
	if err := f.store.CreateDevice(context.Background(), d); err != nil {
		t.Fatal(err)
	}

	_, resp, err := websocket.DefaultDialer.Dial(f.wsURL("/ws/device/dev-1?token="+f.ownerToken), nil)
	if err == nil {
		t.Fatal("foreign device dial should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %v, want 403", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL("/ws/device/dev-1?token="+f.staffToken), nil)
	if err != nil {
		t.Fatalf("staff dial failed: %v", err)
	}
	defer conn.Close()
	event := readWSEvent(t, conn)
	if event["type"] != "connection_status" {
		t.Errorf("first event type = %v, want connection_status", event["type"])
	}
}
