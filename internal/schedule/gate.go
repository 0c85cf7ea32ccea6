// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

// Package schedule implements the per-device time-of-day gate deciding
// whether inbound signals are processed at all. The gate is a pure
// function of the schedule configuration and the probe instant; it is
// evaluated on every ingestion before any buffering.
package schedule

import (
	"fmt"
	"time"

	"github.com/vigilhq/vigil/internal/models"
)

// minuteOfDay converts "HH:MM" to minutes since midnight.
func minuteOfDay(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, fmt.Errorf("parse schedule time %q: %w", hhmm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ValidateTimes checks that both schedule boundaries are well-formed
// "HH:MM" wall-clock times and the timezone is a loadable IANA name.
// An empty timezone means UTC.
func ValidateTimes(s models.WorkSchedule) error {
	if _, err := minuteOfDay(s.Start); err != nil {
		return err
	}
	if _, err := minuteOfDay(s.End); err != nil {
		return err
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("load timezone %q: %w", s.Timezone, err)
		}
	}
	return nil
}

// ShouldProcess reports whether a signal arriving at now falls inside the
// device's operating window.
//
//   - Scheduling disabled: always true.
//   - start == end: 24/7 operation marker, always true.
//   - start <= end: same-day window, true iff start <= now <= end.
//   - start > end: window spans midnight, true iff now >= start or now <= end.
//
// Malformed schedule times fail open: a device with a broken schedule keeps
// processing rather than silently going dark. Settings validation rejects
// malformed times before they are stored, so this path only covers records
// written before validation existed.
func ShouldProcess(s models.WorkSchedule, now time.Time) bool {
	if !s.Enabled {
		return true
	}

	start, err := minuteOfDay(s.Start)
	if err != nil {
		return true
	}
	end, err := minuteOfDay(s.End)
	if err != nil {
		return true
	}

	loc := time.UTC
	if s.Timezone != "" {
		if l, lerr := time.LoadLocation(s.Timezone); lerr == nil {
			loc = l
		}
	}
	local := now.In(loc)
	cur := local.Hour()*60 + local.Minute()

	switch {
	case start == end:
		return true
	case start < end:
		return start <= cur && cur <= end
	default: // window spans midnight
		return cur >= start || cur <= end
	}
}
