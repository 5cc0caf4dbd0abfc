package platform

import "runtime"

// SystemInfo reports platform information via the Go runtime. This is the
// reference Info for async/server environments; embedders on browser or
// mobile hosts supply their own.
type SystemInfo struct {
	LocaleName string
}

func (s SystemInfo) OS() string           { return runtime.GOOS }
func (s SystemInfo) OSVersion() string    { return "" }
func (s SystemInfo) Architecture() string { return runtime.GOARCH }
func (s SystemInfo) Locale() string {
	if s.LocaleName == "" {
		return "und"
	}
	return s.LocaleName
}
