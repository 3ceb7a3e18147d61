package domain

import (
	"fmt"
	"time"
)

type ItemStatus string

const (
	ItemUnread ItemStatus = "unread"
	ItemRead   ItemStatus = "read"
)

func ParseItemStatus(s string) (ItemStatus, error) {
	switch ItemStatus(s) {
	case ItemUnread, ItemRead:
		return ItemStatus(s), nil
	}
	return "", fmt.Errorf("invalid item status %q", s)
}

type ItemFeed struct {
	ID    int64  `db:"feed_id" json:"id"`
	Title string `db:"feed_title" json:"title"`
	Link  string `db:"feed_link" json:"link"`
}

type Item struct {
	ID          int64      `db:"id" json:"id"`
	Fingerprint string     `db:"fingerprint" json:"fingerprint"`
	Author      *string    `db:"author" json:"author"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	Link        string     `db:"link" json:"link"`
	Status      ItemStatus `db:"status" json:"status"`
	IsSaved     bool       `db:"is_saved" json:"is_saved"`
	PublishedAt time.Time  `db:"published_at" json:"published_at"`
	Feed        ItemFeed   `db:"-" json:"feed"`
}

// ItemToCreate is a normalized entry ready to be stored.
type ItemToCreate struct {
	Fingerprint string
	Author      *string
	Title       string
	Description string
	Link        string
	Status      ItemStatus
	PublishedAt time.Time
	FeedID      int64
}

type ItemOrder string

const (
	OrderReceivedDateDesc  ItemOrder = "ReceivedDateDesc"
	OrderPublishedDateDesc ItemOrder = "PublishedDateDesc"
	OrderUnreadFirst       ItemOrder = "UnreadFirst"
)

func (o ItemOrder) Valid() bool {
	switch o {
	case OrderReceivedDateDesc, OrderPublishedDateDesc, OrderUnreadFirst:
		return true
	}
	return false
}

// ItemReadOption filters item reads and bulk updates. When Limit is set,
// Offset counts pages rather than rows.
type ItemReadOption struct {
	IDs     []int64     `json:"ids,omitempty"`
	Feed    *int64      `json:"feed,omitempty"`
	Status  *ItemStatus `json:"status,omitempty"`
	IsSaved *bool       `json:"is_saved,omitempty"`
	OrderBy *ItemOrder  `json:"order_by,omitempty"`
	Limit   *uint64     `json:"limit,omitempty"`
	Offset  *uint64     `json:"offset,omitempty"`
}

type ItemToUpdate struct {
	ID      int64       `json:"id"`
	Status  *ItemStatus `json:"status,omitempty"`
	IsSaved *bool       `json:"is_saved,omitempty"`
}

type ItemToUpdateAll struct {
	Status  *ItemStatus     `json:"status,omitempty"`
	IsSaved *bool           `json:"is_saved,omitempty"`
	Opt     *ItemReadOption `json:"opt,omitempty"`
}
