package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"feed_relay/internal/domain"
)

type CredentialStore interface {
	Get(ctx context.Context, id string) (*domain.Credential, error)
	ListByStatus(ctx context.Context, status domain.CredentialStatus, excludeIDs []string) ([]domain.Credential, error)
	Update(ctx context.Context, id string, upd domain.CredentialUpdate) error
}

type FeedStore interface {
	Get(ctx context.Context, id string) (*domain.Feed, error)
	List(ctx context.Context, status *domain.FeedStatus) ([]domain.Feed, error)
	Update(ctx context.Context, id string, upd domain.FeedUpdate) error
}

type ArticleStore interface {
	UpsertBatch(ctx context.Context, feedID string, articles []domain.Article) error
	CountByFeed(ctx context.Context, feedID string) (int, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Upstream interface {
	FetchArticlesPage(ctx context.Context, cred domain.Credential, sourceID string, page int) ([]domain.ArticleSummary, error)
	FetchSourceInfo(ctx context.Context, cred domain.Credential, canonicalURL string) (*domain.SourceInfo, error)
	CreateLoginSession(ctx context.Context) (*domain.LoginSession, error)
	GetLoginResult(ctx context.Context, sessionID string) (*domain.LoginResult, error)
}

type Publisher interface {
	Publish(ctx context.Context, event *domain.FeedSynced) error
	Close() error
}

// Notifier delivers login alerts. Delivery failures are handled (logged)
// by the implementation and never reach the caller.
type Notifier interface {
	Notify(ctx context.Context, alert domain.LoginAlert)
}

type QRRenderer interface {
	Render(content string) ([]byte, error)
}

type CredentialRecoverer interface {
	Recover(ctx context.Context, cred domain.Credential) bool
}
