package api

import (
	"context"

	"feed_relay/internal/domain"
)

type Syncer interface {
	SyncFeed(ctx context.Context, feedID string, page int) (domain.HasHistory, error)
	SyncAllFeeds(ctx context.Context) (*domain.SyncStats, error)
	SyncHistory(ctx context.Context, feedID string) error
	ResolveSource(ctx context.Context, canonicalURL string) (*domain.SourceInfo, error)
	Sweeping() bool
	HistoryProgress() domain.HistoryProgress
}

type FeedRepository interface {
	Get(ctx context.Context, id string) (*domain.Feed, error)
	List(ctx context.Context, status *domain.FeedStatus) ([]domain.Feed, error)
	Upsert(ctx context.Context, feed domain.Feed) error
	Update(ctx context.Context, id string, upd domain.FeedUpdate) error
	Delete(ctx context.Context, id string) error
}

type ArticleRepository interface {
	List(ctx context.Context, q domain.ArticleQuery) ([]domain.Article, error)
}

type CredentialRepository interface {
	Get(ctx context.Context, id string) (*domain.Credential, error)
	List(ctx context.Context) ([]domain.Credential, error)
	Save(ctx context.Context, cred domain.Credential) error
	Update(ctx context.Context, id string, upd domain.CredentialUpdate) error
	Delete(ctx context.Context, id string) error
}

// Blocklist exposes today's rate-limited credentials.
type Blocklist interface {
	Unblock(id string)
	Blocked() []string
}

type Recoverer interface {
	Recover(ctx context.Context, cred domain.Credential) bool
}

type Pinger interface {
	PingContext(ctx context.Context) error
}
