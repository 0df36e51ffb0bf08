package model

import "time"

// HealthStatus represents the health check status
type HealthStatus struct {
	Status    string     `json:"status"`
	Service   string     `json:"service"`
	Version   string     `json:"version"`
	Syncing   bool       `json:"syncing"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}
