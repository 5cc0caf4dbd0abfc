package models

import "time"

// ClientInfo carries client/os/app identifiers common to every ping.
type ClientInfo struct {
	ClientID        string `json:"client_id,omitempty"`
	FirstRunDate    string `json:"first_run_date"`
	OS              string `json:"os"`
	OSVersion       string `json:"os_version"`
	Architecture    string `json:"architecture"`
	AppBuild        string `json:"app_build,omitempty"`
	AppDisplay      string `json:"app_display_version,omitempty"`
	AppChannel      string `json:"app_channel,omitempty"`
	TelemetrySDKBld string `json:"telemetry_sdk_build"`
}

// PingInfo carries sequence and timing information for one submission.
type PingInfo struct {
	Seq       int64  `json:"seq"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason,omitempty"`
}

// Event is one append-only event record within a ping's event log.
type Event struct {
	Timestamp int64             `json:"timestamp"`
	Category  string            `json:"category"`
	Name      string            `json:"name"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// Envelope is the canonical wire shape assembled for every submission.
type Envelope struct {
	ClientInfo ClientInfo                `json:"client_info"`
	PingInfo   PingInfo                  `json:"ping_info"`
	Metrics    map[string]map[string]any `json:"metrics,omitempty"`
	Events     []Event                   `json:"events,omitempty"`
}

// PendingPing is a durably stored, assembled-but-not-yet-uploaded submission.
type PendingPing struct {
	DocumentID  string            `json:"document_id"`
	Path        string            `json:"path"`
	Payload     Envelope          `json:"payload"`
	Headers     map[string]string `json:"headers"`
	SubmittedAt time.Time         `json:"submitted_at"`
}

// PingType declares per-ping submission behavior.
type PingType struct {
	Name                     string
	IncludeClientID          bool
	SendIfEmpty              bool
	ReasonCodes              []string
	ClearApplicationLifetime bool
}
