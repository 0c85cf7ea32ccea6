// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

package models

import "time"

// SensorType identifies one of the four boolean sensors a device reports.
type SensorType string

const (
	SensorMotion     SensorType = "pir_motion"
	SensorGlassBreak SensorType = "glass_break"
	SensorDoorOpen   SensorType = "door_open"
	SensorPanic      SensorType = "panic_button"
)

// SensorOrder is the canonical enumeration order of sensor types. It is used
// wherever a signal vector is flattened into a list so that detection order
// within a single report is stable.
var SensorOrder = []SensorType{SensorMotion, SensorGlassBreak, SensorDoorOpen, SensorPanic}

// sensorTable maps each sensor type to its alert kind and display label.
// A fixed lookup table keyed by the sensor enumeration; no reflection.
var sensorTable = map[SensorType]struct {
	Kind  AlertKind
	Label string
}{
	SensorMotion:     {KindMotion, "Motion detected"},
	SensorGlassBreak: {KindGlass, "Glass break"},
	SensorDoorOpen:   {KindDoor, "Door opened"},
	SensorPanic:      {KindPanic, "Panic button"},
}

// AlertKindFor returns the alert kind raised by a single sensor type.
func AlertKindFor(s SensorType) AlertKind {
	if e, ok := sensorTable[s]; ok {
		return e.Kind
	}
	return KindMultiSensor
}

// DisplayLabel returns the human-readable label for a sensor type.
func DisplayLabel(s SensorType) string {
	if e, ok := sensorTable[s]; ok {
		return e.Label
	}
	return string(s)
}

// SignalVector is one ingestion report's four boolean sensor flags.
type SignalVector struct {
	Motion     bool `json:"pir_motion"`
	GlassBreak bool `json:"glass_break"`
	DoorOpen   bool `json:"door_open"`
	Panic      bool `json:"panic_button"`
}

// Triggered returns the sensor types that are true in this vector, in
// canonical order.
func (v SignalVector) Triggered() []SensorType {
	var out []SensorType
	for _, s := range SensorOrder {
		if v.Has(s) {
			out = append(out, s)
		}
	}
	return out
}

// Has reports whether the given sensor type is set in this vector.
func (v SignalVector) Has(s SensorType) bool {
	switch s {
	case SensorMotion:
		return v.Motion
	case SensorGlassBreak:
		return v.GlassBreak
	case SensorDoorOpen:
		return v.DoorOpen
	case SensorPanic:
		return v.Panic
	default:
		return false
	}
}

// Count returns the number of triggered sensors in this vector.
func (v SignalVector) Count() int {
	n := 0
	for _, s := range SensorOrder {
		if v.Has(s) {
			n++
		}
	}
	return n
}

// SignalRecord is one buffered raw report. Records are append-only: after
// creation only the Processed and CreatedAlert flags may flip, and the
// janitor deletes records past the retention horizon regardless of state.
type SignalRecord struct {
	ID           string       `json:"id"`
	DeviceID     string       `json:"device_id"`
	Timestamp    time.Time    `json:"timestamp"`
	Vector       SignalVector `json:"vector"`
	Processed    bool         `json:"is_processed"`
	CreatedAlert bool         `json:"created_alert"`
}

// SensorSnapshot is the durable summary persisted at each decision point:
// once per alert-worthy or explicitly-saved event, not per buffered signal.
type SensorSnapshot struct {
	ID             string       `json:"id"`
	DeviceID       string       `json:"device_id"`
	Timestamp      time.Time    `json:"timestamp"`
	Vector         SignalVector `json:"vector"`
	TriggeredCount int          `json:"triggered_sensors_count"`
	ValidAlert     bool         `json:"is_valid_alert"`
	WorkTimeStatus bool         `json:"work_time_status"`
}
