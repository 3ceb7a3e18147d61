package ingest

import (
	"slices"
	"time"

	"feedsync/internal/domain"
	"feedsync/internal/syndication"
)

// Cursor is the newest published time already stored for a feed.
type Cursor struct {
	Latest time.Time
	Known  bool
}

// Accept selects which entries of a fetched feed should be stored and
// returns them oldest first.
//
// BacklogInclude takes every entry. BacklogSkip takes only the newest entry
// on a feed's first sync and afterwards only entries published strictly
// after the cursor.
func Accept(mode domain.SyncMode, cursor Cursor, entries []syndication.Entry, now time.Time) []syndication.Entry {
	if len(entries) == 0 {
		return nil
	}

	var accepted []syndication.Entry
	switch mode {
	case domain.BacklogInclude:
		accepted = slices.Clone(entries)
	case domain.BacklogSkip:
		if !cursor.Known {
			return []syndication.Entry{newest(entries)}
		}
		for _, e := range entries {
			if e.Published != nil && e.Published.After(cursor.Latest) {
				accepted = append(accepted, e)
			}
		}
	}

	slices.SortStableFunc(accepted, func(a, b syndication.Entry) int {
		return publishedOr(a, now).Compare(publishedOr(b, now))
	})
	return accepted
}

// newest returns the most recently published entry, or the first entry in
// document order when none carries a timestamp.
func newest(entries []syndication.Entry) syndication.Entry {
	best := -1
	for i, e := range entries {
		if e.Published == nil {
			continue
		}
		if best < 0 || e.Published.After(*entries[best].Published) {
			best = i
		}
	}
	if best < 0 {
		return entries[0]
	}
	return entries[best]
}

func publishedOr(e syndication.Entry, now time.Time) time.Time {
	if e.Published != nil {
		return *e.Published
	}
	return now
}
