// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

package models

import "time"

// WorkSchedule is a device's operating-hours configuration. Start and End
// are wall-clock times in "HH:MM" form interpreted in Timezone. Equal start
// and end marks 24/7 operation.
type WorkSchedule struct {
	Enabled  bool   `json:"work_schedule_enabled" koanf:"enabled"`
	Start    string `json:"work_start_time" koanf:"start"`
	End      string `json:"work_end_time" koanf:"end"`
	Timezone string `json:"timezone_name" koanf:"timezone"`
}

// CorrelationConfig controls the windowed multi-sensor decision for one
// device. Both fields are read by the correlation engine on every signal,
// so settings changes take effect on the next ingestion.
type CorrelationConfig struct {
	MultiSensorRequired  bool `json:"multi_sensor_required" koanf:"multi_sensor_required"`
	SensorCountThreshold int  `json:"sensor_count_threshold" koanf:"sensor_count_threshold"`
	TimeWindowSeconds    int  `json:"time_window_seconds" koanf:"time_window_seconds"`
}

// Window returns the correlation window as a duration.
func (c CorrelationConfig) Window() time.Duration {
	return time.Duration(c.TimeWindowSeconds) * time.Second
}

// Device is a provisioned sensor unit. OwnerID is empty while the device is
// unclaimed; alerts raised for unclaimed devices carry no owner enrichment.
// The token must survive the store's JSON round trip so rotation can retire
// the old index entry; API and fan-out payloads use view types that never
// expose it.
type Device struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Token       string            `json:"token"`
	OwnerID     string            `json:"owner_id,omitempty"`
	Address     string            `json:"address,omitempty"`
	Active      bool              `json:"is_active"`
	Schedule    WorkSchedule      `json:"schedule"`
	Correlation CorrelationConfig `json:"correlation"`
	LastSeen    time.Time         `json:"last_seen,omitempty"`
}

// Claimed reports whether the device has an owner.
func (d *Device) Claimed() bool {
	return d.OwnerID != ""
}

// User is the minimal identity record Vigil needs for alert enrichment and
// session authorization. Registration and credential management live in an
// external identity service.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone_number,omitempty"`
	Staff    bool   `json:"is_staff"`
}
