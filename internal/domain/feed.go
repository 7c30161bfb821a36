package domain

import "time"

type FeedStatus int

const (
	FeedDisabled FeedStatus = 0
	FeedEnabled  FeedStatus = 1
)

// HasHistory reports whether older article pages exist upstream.
type HasHistory int

const (
	HistoryAggregate HasHistory = -1
	HistoryExhausted HasHistory = 0
	HistoryAvailable HasHistory = 1
)

// Feed is an upstream source mirrored as a syndication feed.
type Feed struct {
	ID         string     `db:"id"`
	Name       string     `db:"name"`
	Cover      string     `db:"cover"`
	Intro      string     `db:"intro"`
	Status     FeedStatus `db:"status"`
	SyncTime   int64      `db:"sync_time"`
	UpdateTime int64      `db:"update_time"`
	HasHistory HasHistory `db:"has_history"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

// FeedUpdate is a partial update; nil fields are left untouched.
type FeedUpdate struct {
	Name       *string
	Cover      *string
	Intro      *string
	Status     *FeedStatus
	SyncTime   *int64
	UpdateTime *int64
	HasHistory *HasHistory
}

func (u FeedUpdate) Empty() bool {
	return u.Name == nil && u.Cover == nil && u.Intro == nil && u.Status == nil &&
		u.SyncTime == nil && u.UpdateTime == nil && u.HasHistory == nil
}

// SourceInfo is upstream metadata resolved from a canonical article URL.
type SourceInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Cover      string `json:"cover"`
	Intro      string `json:"intro"`
	UpdateTime int64  `json:"updateTime"`
}

// ToFeed builds a new enabled feed from upstream metadata.
func (s SourceInfo) ToFeed() Feed {
	return Feed{
		ID:         s.ID,
		Name:       s.Name,
		Cover:      s.Cover,
		Intro:      s.Intro,
		Status:     FeedEnabled,
		UpdateTime: s.UpdateTime,
		HasHistory: HistoryAvailable,
	}
}
