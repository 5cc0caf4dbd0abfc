package metricskernel

import "github.com/shimmerdata/beacon/models"

// Handler is the pair of pure functions the metrics database needs for a
// kind without depending on the concrete metric type: a schema check run
// against whatever was deserialized from storage (tolerating out-of-band
// corruption), and the external payload projection applied at ping assembly
// time. Registered at package init by each kind's source file, replacing the
// kind-string-keyed constructor map the original implementation used with a
// closed, compile-time-enumerable set.
type Handler struct {
	ValidateStored func(raw any) bool
	Payload        func(internal any) any
}

var registry = make(map[models.Kind]Handler)

// Register adds a kind's handler. Called from each kind file's init().
func Register(kind models.Kind, h Handler) {
	registry[kind] = h
}

// Lookup returns the handler for kind, if one was registered.
func Lookup(kind models.Kind) (Handler, bool) {
	h, ok := registry[kind]
	return h, ok
}
