package store

// Source is a monitored channel or feed, identified by an external reference
// in "@username", signed id, or "-100…" form.
type Source struct {
	ID          int32
	ExternalRef string
	Title       string
	ErrorCount  int32
	CreatedTs   int64
}

// Subscription binds a user to a source. Unique on the (user, source) pair.
type Subscription struct {
	UserID    int32
	SourceID  int32
	CreatedTs int64
}

// SeenContent is an append-only dedup record for fetched items.
// HashID is "<sourceID>:<externalItemID>".
type SeenContent struct {
	HashID         string
	SourceID       int32
	ExternalItemID string
	Link           string
	Title          string
	CreatedTs      int64
}
