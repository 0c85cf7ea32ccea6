// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/vigilhq/vigil/internal/auth"
	"github.com/vigilhq/vigil/internal/correlation"
	"github.com/vigilhq/vigil/internal/gateway"
	"github.com/vigilhq/vigil/internal/logging"
	"github.com/vigilhq/vigil/internal/metrics"
	"github.com/vigilhq/vigil/internal/models"
	"github.com/vigilhq/vigil/internal/schedule"
	"github.com/vigilhq/vigil/internal/store"
)

const (
	defaultAlertsLimit = 100

	// A device is shown online when it reported within this window.
	onlineWindow = 5 * time.Minute

	// Recent alert counts on the active-devices listing cover this span.
	recentAlertsWindow = 24 * time.Hour
)

// Handler holds the dependencies the HTTP endpoints need.
type Handler struct {
	devices   store.DeviceStore
	users     store.UserStore
	alerts    store.AlertStore
	snapshots store.SnapshotStore
	engine    *correlation.Engine
	hub       *gateway.Hub
	notifier  gateway.AckNotifier

	now func() time.Time
}

// NewHandler creates the endpoint handler. notifier may be nil when no
// fan-out is wired (tests).
func NewHandler(
	devices store.DeviceStore,
	users store.UserStore,
	alerts store.AlertStore,
	snapshots store.SnapshotStore,
	engine *correlation.Engine,
	hub *gateway.Hub,
	notifier gateway.AckNotifier,
) *Handler {
	return &Handler{
		devices:   devices,
		users:     users,
		alerts:    alerts,
		snapshots: snapshots,
		engine:    engine,
		hub:       hub,
		notifier:  notifier,
		now:       time.Now,
	}
}

// IngestResponse is the body returned to a reporting device.
type IngestResponse struct {
	Status          correlation.Status `json:"status"`
	Message         string             `json:"message"`
	AlertsCreated   []string           `json:"alerts_created"`
	DeviceName      string             `json:"device_name"`
	WorkTimeActive  bool               `json:"work_time_active"`
	MultiSensorMode bool               `json:"multi_sensor_mode"`
}

// Ingest handles POST /api/v1/signals. The device token travels in the
// body; an unknown or inactive token is rejected before any buffering.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	device, err := h.devices.DeviceByToken(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, store.ErrInvalidToken) {
			rw.Unauthorized("unknown or inactive device token")
			return
		}
		rw.StorageError(err)
		return
	}

	vector := models.SignalVector{
		Motion:     req.Motion,
		GlassBreak: req.GlassBreak,
		DoorOpen:   req.DoorOpen,
		Panic:      req.Panic,
	}

	result, err := h.engine.Process(r.Context(), device, vector)
	if err != nil {
		logging.Error().Err(err).Str("device_id", device.ID).Msg("Signal processing failed")
		rw.InternalError("signal processing failed")
		return
	}

	rw.Success(IngestResponse{
		Status:          result.Status,
		Message:         result.Message,
		AlertsCreated:   result.AlertsCreated,
		DeviceName:      device.Name,
		WorkTimeActive:  result.WorkTimeActive,
		MultiSensorMode: device.Correlation.MultiSensorRequired,
	})
}

// AlertView is one alert enriched for display: the sensor-state map is
// reconstructed from the linked snapshot, or from the triggered list
// when the snapshot is gone.
type AlertView struct {
	*models.Alert

	Sensors        map[models.SensorType]bool `json:"sensors"`
	SensorDisplay  []string                   `json:"sensor_display"`
	ElapsedSeconds int64                      `json:"elapsed_seconds"`
}

func (h *Handler) alertView(r *http.Request, alert *models.Alert) *AlertView {
	view := &AlertView{
		Alert:          alert,
		Sensors:        make(map[models.SensorType]bool, len(models.SensorOrder)),
		ElapsedSeconds: int64(h.now().Sub(alert.Timestamp).Seconds()),
	}

	var vector models.SignalVector
	if alert.SnapshotID != "" {
		if snap, err := h.snapshots.SnapshotByID(r.Context(), alert.SnapshotID); err == nil {
			vector = snap.Vector
		} else {
			for _, s := range alert.TriggeredSensors {
				vector = vectorWith(vector, s)
			}
		}
	} else {
		for _, s := range alert.TriggeredSensors {
			vector = vectorWith(vector, s)
		}
	}

	for _, s := range models.SensorOrder {
		view.Sensors[s] = vector.Has(s)
	}
	for _, s := range alert.TriggeredSensors {
		view.SensorDisplay = append(view.SensorDisplay, models.DisplayLabel(s))
	}
	return view
}

func vectorWith(v models.SignalVector, s models.SensorType) models.SignalVector {
	switch s {
	case models.SensorMotion:
		v.Motion = true
	case models.SensorGlassBreak:
		v.GlassBreak = true
	case models.SensorDoorOpen:
		v.DoorOpen = true
	case models.SensorPanic:
		v.Panic = true
	}
	return v
}

// ListAlerts handles GET /api/v1/alerts. Users see their own alerts;
// staff may pass all=true for the global feed.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		rw.Unauthorized("authentication required")
		return
	}

	limit := defaultAlertsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			rw.BadRequest("limit must be an integer")
			return
		}
		limit = parsed
	}
	req := ListAlertsRequest{Limit: limit}
	if apiErr := validateRequest(&req); apiErr != nil {
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	all := r.URL.Query().Get("all") == "true"
	if all && !identity.Staff {
		rw.Forbidden("staff access required for the global feed")
		return
	}

	var (
		alerts []*models.Alert
		err    error
	)
	if all {
		alerts, err = h.alerts.ListAlerts(r.Context(), limit)
	} else {
		alerts, err = h.alerts.ListAlertsByOwner(r.Context(), identity.UserID, limit)
	}
	if err != nil {
		rw.StorageError(err)
		return
	}

	views := make([]*AlertView, 0, len(alerts))
	for _, a := range alerts {
		views = append(views, h.alertView(r, a))
	}
	rw.Success(map[string]interface{}{
		"alerts": views,
		"count":  len(views),
	})
}

// Acknowledge handles POST /api/v1/alerts/{id}/acknowledge. The owner
// or any staff member may acknowledge; the operation is idempotent.
func (h *Handler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		rw.Unauthorized("authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	alert, err := h.alerts.AlertByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rw.NotFound("alert not found")
			return
		}
		rw.StorageError(err)
		return
	}

	if !identity.Staff && alert.OwnerID != identity.UserID {
		rw.Forbidden("alert belongs to another user")
		return
	}

	if err := h.alerts.Acknowledge(r.Context(), id); err != nil {
		rw.StorageError(err)
		return
	}
	metrics.AlertsAcknowledged.Inc()

	alert.Acknowledged = true
	if h.notifier != nil {
		h.notifier.AlertAcknowledged(r.Context(), alert)
	}

	rw.Success(map[string]interface{}{
		"alert_id":     id,
		"acknowledged": true,
	})
}

// AcknowledgeBulk handles POST /api/v1/alerts/acknowledge-bulk (staff).
func (h *Handler) AcknowledgeBulk(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req BulkAcknowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	// Owners are resolved before the transition so the fan-out can
	// address exactly the alerts that changed.
	idsByOwner := make(map[string][]string)
	pending := make([]string, 0, len(req.AlertIDs))
	for _, id := range req.AlertIDs {
		alert, err := h.alerts.AlertByID(r.Context(), id)
		if err != nil || alert.Acknowledged {
			continue
		}
		pending = append(pending, id)
		if alert.OwnerID != "" {
			idsByOwner[alert.OwnerID] = append(idsByOwner[alert.OwnerID], id)
		}
	}

	count, err := h.alerts.AcknowledgeBulk(r.Context(), pending)
	if err != nil {
		rw.StorageError(err)
		return
	}
	metrics.AlertsAcknowledged.Add(float64(count))

	if h.notifier != nil && count > 0 {
		h.notifier.BulkAcknowledged(r.Context(), count, idsByOwner, pending)
	}

	rw.Success(map[string]interface{}{
		"acknowledged_count": count,
	})
}

// Stats handles GET /api/v1/alerts/stats (staff).
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	stats, err := h.alerts.Stats(r.Context(), h.now())
	if err != nil {
		rw.StorageError(err)
		return
	}
	rw.Success(stats)
}

// DeviceStatus is one row of the active-devices listing.
type DeviceStatus struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	OwnerID      string    `json:"owner_id,omitempty"`
	Address      string    `json:"address,omitempty"`
	LastSeen     time.Time `json:"last_seen"`
	Online       bool      `json:"online"`
	RecentAlerts int       `json:"recent_alerts"`
}

// ActiveDevices handles GET /api/v1/devices/active (staff). A device is
// online when it reported within the online window.
func (h *Handler) ActiveDevices(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	devices, err := h.devices.ListActiveClaimed(r.Context())
	if err != nil {
		rw.StorageError(err)
		return
	}

	now := h.now()
	rows := make([]*DeviceStatus, 0, len(devices))
	for _, d := range devices {
		recent, err := h.alerts.CountAlertsSince(r.Context(), d.ID, now.Add(-recentAlertsWindow))
		if err != nil {
			rw.StorageError(err)
			return
		}
		rows = append(rows, &DeviceStatus{
			ID:           d.ID,
			Name:         d.Name,
			OwnerID:      d.OwnerID,
			Address:      d.Address,
			LastSeen:     d.LastSeen,
			Online:       !d.LastSeen.IsZero() && now.Sub(d.LastSeen) <= onlineWindow,
			RecentAlerts: recent,
		})
	}

	rw.Success(map[string]interface{}{
		"devices": rows,
		"count":   len(rows),
	})
}

// SettingsView is the settings payload for GET and the response of PATCH.
type SettingsView struct {
	DeviceID    string                   `json:"device_id"`
	Schedule    models.WorkSchedule      `json:"schedule"`
	Correlation models.CorrelationConfig `json:"correlation"`
}

// authorizeDevice loads the device and checks the caller may manage it.
// A nil device return means a response has already been written.
func (h *Handler) authorizeDevice(rw *ResponseWriter, r *http.Request) *models.Device {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		rw.Unauthorized("authentication required")
		return nil
	}

	id := chi.URLParam(r, "id")
	device, err := h.devices.DeviceByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rw.NotFound("device not found")
			return nil
		}
		rw.StorageError(err)
		return nil
	}

	if !identity.Staff && device.OwnerID != identity.UserID {
		rw.Forbidden("device belongs to another user")
		return nil
	}
	return device
}

// GetSettings handles GET /api/v1/devices/{id}/settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	device := h.authorizeDevice(rw, r)
	if device == nil {
		return
	}
	rw.Success(SettingsView{
		DeviceID:    device.ID,
		Schedule:    device.Schedule,
		Correlation: device.Correlation,
	})
}

// UpdateSettings handles PATCH /api/v1/devices/{id}/settings. Absent
// fields keep their current values; changes apply on the device's next
// ingestion since the engine re-reads config per signal.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	device := h.authorizeDevice(rw, r)
	if device == nil {
		return
	}

	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	if req.ScheduleEnabled != nil {
		device.Schedule.Enabled = *req.ScheduleEnabled
	}
	if req.WorkStart != nil {
		device.Schedule.Start = *req.WorkStart
	}
	if req.WorkEnd != nil {
		device.Schedule.End = *req.WorkEnd
	}
	if req.Timezone != nil {
		device.Schedule.Timezone = *req.Timezone
	}
	if req.MultiSensorRequired != nil {
		device.Correlation.MultiSensorRequired = *req.MultiSensorRequired
	}
	if req.SensorCountThreshold != nil {
		device.Correlation.SensorCountThreshold = *req.SensorCountThreshold
	}
	if req.TimeWindowSeconds != nil {
		device.Correlation.TimeWindowSeconds = *req.TimeWindowSeconds
	}

	if device.Schedule.Enabled {
		if err := schedule.ValidateTimes(device.Schedule); err != nil {
			rw.BadRequest(err.Error())
			return
		}
	}

	if err := h.devices.UpdateDevice(r.Context(), device); err != nil {
		rw.StorageError(err)
		return
	}

	rw.Success(SettingsView{
		DeviceID:    device.ID,
		Schedule:    device.Schedule,
		Correlation: device.Correlation,
	})
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"status": "ok",
		"time":   h.now().UTC(),
	})
}
