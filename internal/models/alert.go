// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

package models

import "time"

// AlertKind classifies an alert by its dominant trigger.
type AlertKind string

const (
	KindMotion      AlertKind = "motion"
	KindGlass       AlertKind = "glass"
	KindDoor        AlertKind = "door"
	KindPanic       AlertKind = "panic"
	KindMultiSensor AlertKind = "multi_sensor"
)

// kindPriority is the fixed priority used to pick the dominant kind when
// several sensor types corroborate a multi-sensor alert.
var kindPriority = []SensorType{SensorPanic, SensorGlassBreak, SensorDoorOpen, SensorMotion}

// DominantKind selects the alert kind for a set of triggered sensor types.
// Panic wins over glass break over door over motion; the multi_sensor
// fallback covers a set containing none of the named four.
func DominantKind(triggered []SensorType) AlertKind {
	set := make(map[SensorType]bool, len(triggered))
	for _, s := range triggered {
		set[s] = true
	}
	for _, s := range kindPriority {
		if set[s] {
			return AlertKindFor(s)
		}
	}
	return KindMultiSensor
}

// Confidence classifies how reliable an alert is, derived from how many
// distinct sensor types corroborated it.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ConfidenceFor derives the confidence level from the distinct-type count.
// The low branch is reachable only when an operator configures a threshold
// of 1, which degenerates multi-sensor mode into single-sensor bookkeeping.
func ConfidenceFor(distinctTypes int) Confidence {
	switch {
	case distinctTypes >= 3:
		return ConfidenceHigh
	case distinctTypes == 2:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Alert is immutable once created except for the single acknowledgement
// transition. Device and owner fields are a point-in-time copy captured at
// creation; later edits to the device or owner must never change them.
type Alert struct {
	ID           string    `json:"id"`
	DeviceID     string    `json:"device_id"`
	Kind         AlertKind `json:"alert_type"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"is_acknowledged"`
	SnapshotID   string    `json:"snapshot_id,omitempty"`

	// Point-in-time enrichment copied from the device and its owner.
	DeviceName    string `json:"device_name"`
	DeviceAddress string `json:"device_address,omitempty"`
	OwnerID       string `json:"owner_id,omitempty"`
	OwnerUsername string `json:"owner_username,omitempty"`
	OwnerFullName string `json:"owner_full_name,omitempty"`
	OwnerPhone    string `json:"owner_phone,omitempty"`

	// TriggeredSensors is order-significant: it reflects detection order.
	TriggeredSensors []SensorType `json:"triggered_sensors"`
	SensorsCount     int          `json:"sensors_count"`
	Confidence       Confidence   `json:"confidence_level"`
}

// DashboardStats are the live operations counters, recomputed on demand.
type DashboardStats struct {
	TotalAlerts    int       `json:"total_alerts"`
	Unacknowledged int       `json:"unacknowledged_alerts"`
	AlertsToday    int       `json:"alerts_today"`
	ActiveDevices  int       `json:"active_devices"`
	LastUpdated    time.Time `json:"last_updated"`
}
