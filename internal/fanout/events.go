// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

// Package fanout publishes correlation outcomes to the real-time layer.
// Logical channels map to NATS subjects; the gateway bridges subjects to
// websocket groups. Every publish is fire-and-forget: a failed or slow
// publish is logged and dropped, never surfaced to the ingesting caller.
package fanout

import (
	"time"

	"github.com/vigilhq/vigil/internal/models"
)

// NATS subjects backing the logical channels.
const (
	OpsSubject           = "vigil.ops"
	userSubjectPrefix    = "vigil.user."
	deviceSubjectPrefix  = "vigil.device."
	WildcardSubscription = "vigil.>"
)

// UserSubject returns the personal alert stream subject for an owner.
func UserSubject(ownerID string) string {
	return userSubjectPrefix + ownerID
}

// DeviceSubject returns the per-device observer subject.
func DeviceSubject(deviceID string) string {
	return deviceSubjectPrefix + deviceID
}

// Event type discriminators carried in every envelope.
const (
	EventNewAlert       = "new_alert"
	EventNewAlertGlobal = "new_alert_global"
	EventDeviceAlert    = "device_alert"
	EventAlertUpdate    = "alert_update"
	EventBulkAckResult  = "bulk_acknowledge_result"
	EventStatsUpdate    = "stats_update"
	EventDeviceStatus   = "device_status"
	EventSensorData     = "sensor_data"
)

// Priority is the delivery urgency attached to alert events.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

// ClassifyAlert derives an alert's delivery priority. Panic kind, high
// confidence, or three or more sensors all force high.
func ClassifyAlert(a *models.Alert) Priority {
	if a.Kind == models.KindPanic || a.Confidence == models.ConfidenceHigh || a.SensorsCount >= 3 {
		return PriorityHigh
	}
	return PriorityMedium
}

// AlertEvent is the new-alert envelope for user and device channels. Sound
// is set only when priority is high.
type AlertEvent struct {
	Type     string        `json:"type"`
	Alert    *models.Alert `json:"alert"`
	Priority Priority      `json:"priority"`
	Sound    bool          `json:"sound"`
}

// GlobalAlertEvent is the operations variant: the embedded alert already
// carries the owner identity snapshot, and Location surfaces the device
// address for the dashboard map.
type GlobalAlertEvent struct {
	Type     string        `json:"type"`
	Alert    *models.Alert `json:"alert"`
	Priority Priority      `json:"priority"`
	Sound    bool          `json:"sound"`
	Location string        `json:"location,omitempty"`
}

// AlertUpdateEvent announces an acknowledgement transition.
type AlertUpdateEvent struct {
	Type         string `json:"type"`
	AlertID      string `json:"alert_id"`
	Acknowledged bool   `json:"is_acknowledged"`
}

// BulkAckResultEvent reports a bulk acknowledgement. The ops channel
// receives the full id set; each affected owner receives only their own.
type BulkAckResultEvent struct {
	Type     string   `json:"type"`
	Count    int      `json:"acknowledged_count"`
	AlertIDs []string `json:"alert_ids"`
}

// StatsEvent pushes freshly recomputed dashboard counters.
type StatsEvent struct {
	Type  string                 `json:"type"`
	Stats *models.DashboardStats `json:"stats"`
}

// DeviceStatusEvent refreshes a device's liveness on the owner's stream.
type DeviceStatusEvent struct {
	Type     string    `json:"type"`
	DeviceID string    `json:"device_id"`
	Name     string    `json:"device_name"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

// SensorDataEvent mirrors a processed raw report to device observers.
type SensorDataEvent struct {
	Type           string              `json:"type"`
	DeviceID       string              `json:"device_id"`
	Timestamp      time.Time           `json:"timestamp"`
	Sensors        models.SignalVector `json:"sensors"`
	TriggeredCount int                 `json:"triggered_count"`
}

// ErrorEvent is the structured reply for malformed or unknown session
// commands.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorEvent builds an error envelope.
func NewErrorEvent(msg string) ErrorEvent {
	return ErrorEvent{Type: "error", Message: msg}
}
