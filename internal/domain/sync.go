package domain

import "time"

// SyncStats summarizes one sweep over many feeds.
type SyncStats struct {
	RunID    string
	Feeds    int
	Synced   int
	Skipped  bool
	Duration time.Duration
}

// FeedSynced is published after a page of articles was stored.
type FeedSynced struct {
	FeedID     string     `json:"feedId"`
	Page       int        `json:"page"`
	ArticleIDs []string   `json:"articleIds"`
	HasHistory HasHistory `json:"hasHistory"`
	Timestamp  time.Time  `json:"timestamp"`
}

// HistoryProgress is the in-progress backfill marker.
type HistoryProgress struct {
	FeedID string `json:"feedId"`
	Page   int    `json:"page"`
}
