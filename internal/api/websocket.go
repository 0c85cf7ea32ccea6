// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/vigilhq/vigil/internal/auth"
	"github.com/vigilhq/vigil/internal/gateway"
	"github.com/vigilhq/vigil/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WSAlerts handles GET /ws/alerts: the authenticated user's personal
// alert stream. The JWT arrives in the Authorization header or, for
// browser websocket clients, the token query parameter.
func (h *Handler) WSAlerts(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		NewResponseWriter(w, r).Unauthorized("authentication required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	gateway.NewUserClient(h.hub, conn, identity, h.alerts, h.notifier).Start()
}

// WSMonitor handles GET /ws/monitor: the staff operations stream.
// Authorization happens before the upgrade so an unauthorized client
// gets a proper HTTP status instead of a dropped socket.
func (h *Handler) WSMonitor(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		NewResponseWriter(w, r).Unauthorized("authentication required")
		return
	}
	if !identity.Staff {
		NewResponseWriter(w, r).Forbidden("staff access required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	gateway.NewOpsClient(h.hub, conn, identity, h.alerts, h.notifier).Start()
}

// WSDevice handles GET /ws/device/{id}: the live feed for one device,
// visible to the device's owner and to staff.
func (h *Handler) WSDevice(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		rw.Unauthorized("authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	device, err := h.devices.DeviceByID(r.Context(), id)
	if err != nil {
		rw.NotFound("device not found")
		return
	}
	if !identity.Staff && device.OwnerID != identity.UserID {
		rw.Forbidden("device belongs to another user")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	gateway.NewDeviceClient(h.hub, conn, identity, device.ID, h.alerts).Start()
}
