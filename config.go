package beacon

import (
	"time"

	"github.com/shimmerdata/beacon/internal/pingassembler"
	"github.com/shimmerdata/beacon/models"
)

// Config is the recognized-keys configuration surface described in the
// component spec's Configuration table. Zero value is a usable minimal
// configuration; Defaults fills in the conservative baseline.
type Config struct {
	// ServerEndpoint is the base URL submissions are POSTed under.
	ServerEndpoint string
	// Channel populates app_channel.
	Channel string
	// AppBuild and AppDisplayVersion populate client_info's app_build and
	// app_display_version. BuildDate is accepted but is not written to
	// client_info or to any stored metric.
	AppBuild          string
	AppDisplayVersion string
	BuildDate         string

	// MaxEvents is the event-queue size that triggers eager events-ping
	// submission; <=0 disables eager submission.
	MaxEvents int

	// LogPings, DebugViewTag, SourceTags are pre-init debug options; see
	// SetLogPings/SetDebugViewTag/SetSourceTags for buffering semantics.
	LogPings     bool
	DebugViewTag string
	SourceTags   []string

	// EnableAutoPageLoadEvents and EnableAutoElementClickEvents name the
	// source implementation's browser-only automatic-instrumentation
	// hooks. This module targets async/server hosts (spec.md §1); no DOM
	// is available to drive them, so they are accepted for API
	// compatibility with embedders that share Configuration across
	// platforms but have no observable effect here.
	EnableAutoPageLoadEvents     bool
	EnableAutoElementClickEvents bool

	// Plugins observe every assembled envelope immediately before it is
	// persisted for upload.
	Plugins []pingassembler.Plugin

	// SchemaVersion is the path segment identifying the ping schema
	// revision; defaults to "1".
	SchemaVersion string

	// PingTypes registers every ping name this application submits,
	// beyond the built-in "deletion-request" the orchestrator always
	// knows about.
	PingTypes map[string]models.PingType

	// MaxPingsPerInterval and UploadInterval configure the upload
	// manager's rate limiter; zero values fall back to the spec
	// defaults (40 per 60s).
	MaxPingsPerInterval int
	UploadInterval      time.Duration
}

// Defaults returns the conservative baseline Config.
func Defaults() Config {
	return Config{
		MaxEvents:     500,
		SchemaVersion: "1",
		PingTypes:     map[string]models.PingType{},
	}
}

const deletionRequestPing = "deletion-request"

func builtinPingTypes(pingTypes map[string]models.PingType) map[string]models.PingType {
	out := make(map[string]models.PingType, len(pingTypes)+1)
	for k, v := range pingTypes {
		out[k] = v
	}
	if _, ok := out[deletionRequestPing]; !ok {
		out[deletionRequestPing] = models.PingType{
			Name:            deletionRequestPing,
			IncludeClientID: true,
			SendIfEmpty:     true,
		}
	}
	return out
}
