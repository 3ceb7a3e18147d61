// Package ingest turns parsed feed entries into items ready for storage.
package ingest

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"

	"feedsync/internal/domain"
	"feedsync/internal/syndication"
)

const defaultLink = "#"

// Normalize trims entry fields, fills defaults and computes the fingerprint.
func Normalize(entry syndication.Entry, feedID int64, now time.Time) domain.ItemToCreate {
	title := strings.TrimSpace(entry.Title)

	link := defaultLink
	if entry.Link != nil {
		if l := strings.TrimSpace(*entry.Link); l != "" {
			link = l
		}
	}

	var description string
	if entry.Content != nil {
		description = strings.TrimSpace(*entry.Content)
	}

	var author *string
	if entry.Author != nil {
		a := strings.TrimSpace(*entry.Author)
		author = &a
	}

	published := now
	if entry.Published != nil {
		published = *entry.Published
	}

	return domain.ItemToCreate{
		Fingerprint: Fingerprint(title, link),
		Author:      author,
		Title:       title,
		Description: description,
		Link:        link,
		Status:      domain.ItemUnread,
		PublishedAt: published.UTC(),
		FeedID:      feedID,
	}
}

// Fingerprint is the hex SHA-1 of title and link joined by a colon.
func Fingerprint(title, link string) string {
	sum := sha1.Sum([]byte(title + ":" + link))
	return hex.EncodeToString(sum[:])
}
