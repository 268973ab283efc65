package repository

import "time"

// Write kinds understood by the remote data service.
const (
	KindAddFarm    = "addFarm"
	KindAddReview  = "addReview"
	KindFlagReview = "flagReview"
)

// Session source tags.
const (
	SourceLogin     = "login"
	SourceTelegram  = "telegram"
	SourceAnonymous = "anonymous"
)

// PendingWrite is a durably stored write awaiting connectivity.
// Seq reflects enqueue order; replay must follow it.
type PendingWrite struct {
	Seq        int64
	ID         string
	Kind       string
	Payload    []byte
	RetryCount int
	CreatedAt  time.Time
}

// Session is the single persisted session row.
type Session struct {
	Identity      string
	Source        string
	Contributions int
	JoinedAt      time.Time
}

// Snapshot is a cached payload keyed by logical name (e.g. "farms").
type Snapshot struct {
	Name      string
	Payload   []byte
	FetchedAt time.Time
}
