package domain

import "time"

// SyncStats holds statistics about a sync cycle.
type SyncStats struct {
	Feeds      int           `json:"feeds"`
	Failed     int           `json:"failed"`
	Fetched    int           `json:"fetched"`
	Accepted   int           `json:"accepted"`
	Inserted   int           `json:"inserted"`
	Duplicates int           `json:"duplicates"`
	Errors     int           `json:"errors"`
	Duration   time.Duration `json:"duration"`
}

func (s *SyncStats) Add(o SyncStats) {
	s.Feeds += o.Feeds
	s.Failed += o.Failed
	s.Fetched += o.Fetched
	s.Accepted += o.Accepted
	s.Inserted += o.Inserted
	s.Duplicates += o.Duplicates
	s.Errors += o.Errors
}

// SyncResult is what a cycle hands to the notifier.
type SyncResult struct {
	Inserted []Item    `json:"inserted"`
	Stats    SyncStats `json:"stats"`
}
