// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

package api

import (
	"github.com/vigilhq/vigil/internal/validation"
)

// IngestRequest is the device signal report. The token authenticates
// the device; the four booleans are the raw sensor flags.
type IngestRequest struct {
	Token      string `json:"token" validate:"required"`
	Motion     bool   `json:"pir_motion"`
	GlassBreak bool   `json:"glass_break"`
	DoorOpen   bool   `json:"door_open"`
	Panic      bool   `json:"panic_button"`
}

// ListAlertsRequest are the query parameters for the alerts listing.
type ListAlertsRequest struct {
	Limit int `validate:"min=1,max=500"`
}

// BulkAcknowledgeRequest names the alerts to acknowledge in one batch.
type BulkAcknowledgeRequest struct {
	AlertIDs []string `json:"alert_ids" validate:"required,min=1,max=500,dive,required"`
}

// SettingsRequest is the PATCH body for device settings. Every field is
// a pointer so absent fields leave the current value untouched.
type SettingsRequest struct {
	ScheduleEnabled *bool   `json:"work_schedule_enabled"`
	WorkStart       *string `json:"work_start_time" validate:"omitnil,datetime=15:04"`
	WorkEnd         *string `json:"work_end_time" validate:"omitnil,datetime=15:04"`
	Timezone        *string `json:"timezone_name" validate:"omitnil,timezone"`

	MultiSensorRequired  *bool `json:"multi_sensor_required"`
	SensorCountThreshold *int  `json:"sensor_count_threshold" validate:"omitnil,min=1,max=4"`
	TimeWindowSeconds    *int  `json:"time_window_seconds" validate:"omitnil,min=10,max=300"`
}

// validateRequest runs struct validation and converts failures into the
// API error shape.
func validateRequest(v interface{}) *APIError {
	validationErr := validation.ValidateStruct(v)
	if validationErr == nil {
		return nil
	}
	apiErr := validationErr.ToAPIError()
	return &APIError{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
	}
}
