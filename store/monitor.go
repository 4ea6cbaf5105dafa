package store

// MonitorFilters is a per-user filter policy over monitor events. It is stored
// as one opaque JSON document per user and merged over defaults on read, so a
// partial document keeps the defaults for absent fields.
//
// Users is persisted and exposed by the API but carries no predicate yet.
type MonitorFilters struct {
	Channels []string `json:"channels"`
	Keywords []string `json:"keywords"`
	Users    []string `json:"users"`
	Enabled  bool     `json:"enabled"`
}

// DefaultMonitorFilters returns the policy applied to users without a stored
// document: everything enabled, no restrictions.
func DefaultMonitorFilters() *MonitorFilters {
	return &MonitorFilters{
		Channels: []string{},
		Keywords: []string{},
		Users:    []string{},
		Enabled:  true,
	}
}

// Normalize replaces nil slices with empty ones so the JSON document always
// carries all fields.
func (f *MonitorFilters) Normalize() {
	if f.Channels == nil {
		f.Channels = []string{}
	}
	if f.Keywords == nil {
		f.Keywords = []string{}
	}
	if f.Users == nil {
		f.Users = []string{}
	}
}

// MonitorHistory is one matched event persisted for one user. Append-only;
// reads are newest-first bounded by a limit.
type MonitorHistory struct {
	ID        int64
	UserID    int32
	Source    string
	SourceID  int64
	Message   string
	AISummary *string
	CreatedTs int64
}
