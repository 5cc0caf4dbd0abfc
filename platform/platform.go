// Package platform is the abstraction boundary that lets the core run
// identically on every host: storage, HTTP uploader, platform-info and
// timers. Concrete drivers beyond the in-memory/net-http reference
// implementations (browser local-storage, indexed-db, webext storage.area)
// are external collaborators, out of scope for this module.
package platform

import "github.com/shimmerdata/beacon/internal/storage"

// Info describes the host the SDK is running on; populated into client_info
// at ping-assembly time.
type Info interface {
	OS() string
	OSVersion() string
	Architecture() string
	Locale() string
}

// Platform bundles the four collaborators the core needs injected: a
// storage factory, an uploader, platform info, and a timer.
type Platform struct {
	Storage  storage.Factory
	Uploader Uploader
	Info     Info
	Timer    Timer
}
