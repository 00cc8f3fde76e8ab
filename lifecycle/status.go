package lifecycle

import (
	"time"
)

// Status is the published state of the Manager
type Status struct {
	Connected   bool       `json:"connected" yaml:"connected"`
	ServerPath  string     `json:"server_path" yaml:"server_path"`
	Tools       []string   `json:"tools" yaml:"tools"`
	SessionID   string     `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	ServerInfo  string     `json:"server_info,omitempty" yaml:"server_info,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	Provider    string     `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model       string     `json:"model,omitempty" yaml:"model,omitempty"`
	ConnectedAt *time.Time `json:"connected_at,omitempty" yaml:"connected_at,omitempty"`
}

func disconnectedStatus() Status {
	return Status{Tools: []string{}}
}
