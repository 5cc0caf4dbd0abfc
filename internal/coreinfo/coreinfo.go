// Package coreinfo persists the client identity fields that live in every
// ping's client_info block rather than in the generic metrics map:
// client_id, first_run_date, and the configuration-derived app fields. They
// are kept outside metricsdb because they must survive the upload-enabled
// gate that blocks every ordinary metric (client_id/first_run_date record
// even while upload is disabled) and because client_info is its own block
// in the wire envelope, not an entry under "metrics".
package coreinfo

import "github.com/shimmerdata/beacon/internal/storage"

// KnownClientID is the sentinel client identifier stored in client_info
// while upload is disabled.
const KnownClientID = "0000000000000000"

// State is the full set of persisted identity fields.
type State struct {
	ClientID          string
	FirstRunDate      string
	UploadEnabled     bool
	AppBuild          string
	AppDisplayVersion string
	AppChannel        string
}

// IsFirstRun reports whether this State came from a store with nothing
// persisted yet.
func (st State) IsFirstRun() bool { return st.ClientID == "" }

// Store persists State under the "clientInfo" root-key, one field per path
// so a partial write never corrupts sibling fields.
type Store struct {
	store storage.Store
}

// New binds a Store to the "clientInfo" root-key.
func New(factory storage.Factory) *Store {
	return &Store{store: factory("clientInfo")}
}

// Load returns the persisted State, or the zero value on a fresh store.
func (s *Store) Load() State {
	var st State
	if v, ok := s.store.Get(storage.Index{"clientID"}); ok {
		st.ClientID, _ = v.(string)
	}
	if v, ok := s.store.Get(storage.Index{"firstRunDate"}); ok {
		st.FirstRunDate, _ = v.(string)
	}
	if v, ok := s.store.Get(storage.Index{"uploadEnabled"}); ok {
		st.UploadEnabled, _ = v.(bool)
	}
	if v, ok := s.store.Get(storage.Index{"appBuild"}); ok {
		st.AppBuild, _ = v.(string)
	}
	if v, ok := s.store.Get(storage.Index{"appDisplayVersion"}); ok {
		st.AppDisplayVersion, _ = v.(string)
	}
	if v, ok := s.store.Get(storage.Index{"appChannel"}); ok {
		st.AppChannel, _ = v.(string)
	}
	return st
}

// Save persists every field of st, overwriting whatever was there before.
func (s *Store) Save(st State) error {
	fields := map[string]any{
		"clientID":          st.ClientID,
		"firstRunDate":      st.FirstRunDate,
		"uploadEnabled":     st.UploadEnabled,
		"appBuild":          st.AppBuild,
		"appDisplayVersion": st.AppDisplayVersion,
		"appChannel":        st.AppChannel,
	}
	for key, value := range fields {
		v := value
		if err := s.store.Update(storage.Index{key}, func(any) any { return v }); err != nil {
			return err
		}
	}
	return nil
}
