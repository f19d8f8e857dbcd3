package models

import (
	"encoding/json"
	"time"
)

// SecurityLog represents a flagged suspicious action
type SecurityLog struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	ActionType  string    `json:"action_type"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// SecuritySchedule is the daily detection window, "HH:MM" in the monitor's zone
type SecuritySchedule struct {
	WindowStart string `json:"window_start"`
	WindowEnd   string `json:"window_end"`
	Enabled     bool   `json:"enabled"`
}

// DefaultSecuritySchedule covers the whole day
func DefaultSecuritySchedule() SecuritySchedule {
	return SecuritySchedule{
		WindowStart: "00:00",
		WindowEnd:   "23:59",
		Enabled:     true,
	}
}

// UnmarshalJSON treats a missing "enabled" field as enabled
func (s *SecuritySchedule) UnmarshalJSON(data []byte) error {
	type plain SecuritySchedule
	aux := struct {
		*plain
		Enabled *bool `json:"enabled"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Enabled = aux.Enabled == nil || *aux.Enabled
	return nil
}
