package domain

import "time"

type FeedStatus string

const (
	FeedSubscribed   FeedStatus = "subscribed"
	FeedUnsubscribed FeedStatus = "unsubscribed"
)

func (s FeedStatus) Valid() bool {
	return s == FeedSubscribed || s == FeedUnsubscribed
}

// SyncMode decides how much of a feed's backlog a sync may import.
type SyncMode int

const (
	// BacklogSkip imports only entries newer than what is already stored,
	// and a single entry on the very first sync.
	BacklogSkip SyncMode = iota
	// BacklogInclude imports every entry the feed document carries.
	BacklogInclude
)

func (m SyncMode) String() string {
	if m == BacklogInclude {
		return "backlog_include"
	}
	return "backlog_skip"
}

type Feed struct {
	ID            int64      `db:"id" json:"id"`
	Title         string     `db:"title" json:"title"`
	Link          string     `db:"link" json:"link"`
	Status        FeedStatus `db:"status" json:"status"`
	CheckedAt     time.Time  `db:"checked_at" json:"checked_at"`
	FetchOldItems bool       `db:"fetch_old_items" json:"fetch_old_items"`
}

func (f Feed) Mode() SyncMode {
	if f.FetchOldItems {
		return BacklogInclude
	}
	return BacklogSkip
}

type FeedToCreate struct {
	Title         string `json:"title"`
	Link          string `json:"link"`
	FetchOldItems *bool  `json:"fetch_old_items,omitempty"`
}

// FeedToUpdate carries the mutable feed fields; nil means "leave as is".
type FeedToUpdate struct {
	ID            int64       `json:"id"`
	Status        *FeedStatus `json:"status,omitempty"`
	FetchOldItems *bool       `json:"fetch_old_items,omitempty"`
	CheckedAt     *time.Time  `json:"checked_at,omitempty"`
}
