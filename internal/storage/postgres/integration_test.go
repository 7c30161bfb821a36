//go:build integration

package postgres

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"feed_relay/internal/domain"
)

func ptr[T any](v T) *T {
	return &v
}

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB

	credentials *CredentialStore
	feeds       *FeedStore
	articles    *ArticleStore
	txManager   *TransactionManager
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_credentials.up.sql"),
			filepath.Join(migrationsPath, "002_create_feeds.up.sql"),
			filepath.Join(migrationsPath, "003_create_articles.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db

	s.credentials = NewCredentialStore(db)
	s.feeds = NewFeedStore(db)
	s.articles = NewArticleStore(db)
	s.txManager = NewTransactionManager(db)
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM articles")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM feeds")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM credentials")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) seedFeed(id string, status domain.FeedStatus) {
	feed := domain.SourceInfo{ID: id, Name: "Feed " + id}.ToFeed()
	feed.Status = status
	s.Require().NoError(s.feeds.Upsert(s.ctx, feed))
}

func (s *PostgresIntegrationSuite) TestCredentialStore_ListByStatusExcludes() {
	for _, c := range []domain.Credential{
		{ID: "1", Token: "t1", Status: domain.CredentialValid},
		{ID: "2", Token: "t2", Status: domain.CredentialValid},
		{ID: "3", Token: "t3", Status: domain.CredentialInvalid},
		{ID: "4", Token: "t4", Status: domain.CredentialDisabled},
	} {
		s.Require().NoError(s.credentials.Save(s.ctx, c))
	}

	valid, err := s.credentials.ListByStatus(s.ctx, domain.CredentialValid, nil)
	s.NoError(err)
	s.Len(valid, 2)

	valid, err = s.credentials.ListByStatus(s.ctx, domain.CredentialValid, []string{"1"})
	s.NoError(err)
	s.Require().Len(valid, 1)
	s.Equal("2", valid[0].ID)
	s.Equal("t2", valid[0].Token)
}

func (s *PostgresIntegrationSuite) TestCredentialStore_PartialUpdate() {
	s.Require().NoError(s.credentials.Save(s.ctx, domain.Credential{ID: "42", Token: "old", Name: "ops", Status: domain.CredentialValid}))

	err := s.credentials.Update(s.ctx, "42", domain.CredentialUpdate{Status: ptr(domain.CredentialInvalid)})
	s.NoError(err)

	cred, err := s.credentials.Get(s.ctx, "42")
	s.NoError(err)
	s.Equal(domain.CredentialInvalid, cred.Status)
	s.Equal("old", cred.Token)
	s.Equal("ops", cred.Name)

	err = s.credentials.Update(s.ctx, "missing", domain.CredentialUpdate{Token: ptr("x")})
	s.ErrorIs(err, domain.ErrCredentialNotFound)

	_, err = s.credentials.Get(s.ctx, "missing")
	s.ErrorIs(err, domain.ErrCredentialNotFound)
}

func (s *PostgresIntegrationSuite) TestFeedStore_UpsertKeepsState() {
	s.seedFeed("MP_1", domain.FeedEnabled)

	s.NoError(s.feeds.Update(s.ctx, "MP_1", domain.FeedUpdate{
		Status:     ptr(domain.FeedDisabled),
		SyncTime:   ptr(int64(1700000000)),
		HasHistory: ptr(domain.HistoryExhausted),
	}))

	s.NoError(s.feeds.Upsert(s.ctx, domain.SourceInfo{ID: "MP_1", Name: "Renamed"}.ToFeed()))

	feed, err := s.feeds.Get(s.ctx, "MP_1")
	s.NoError(err)
	s.Equal("Renamed", feed.Name)
	s.Equal(domain.FeedDisabled, feed.Status)
	s.Equal(int64(1700000000), feed.SyncTime)
	s.Equal(domain.HistoryExhausted, feed.HasHistory)
}

func (s *PostgresIntegrationSuite) TestFeedStore_ListByStatus() {
	s.seedFeed("MP_1", domain.FeedEnabled)
	s.seedFeed("MP_2", domain.FeedDisabled)

	all, err := s.feeds.List(s.ctx, nil)
	s.NoError(err)
	s.Len(all, 2)

	enabled, err := s.feeds.List(s.ctx, ptr(domain.FeedEnabled))
	s.NoError(err)
	s.Require().Len(enabled, 1)
	s.Equal("MP_1", enabled[0].ID)

	_, err = s.feeds.Get(s.ctx, "MP_404")
	s.ErrorIs(err, domain.ErrFeedNotFound)
}

func (s *PostgresIntegrationSuite) TestArticleStore_UpsertIsIdempotent() {
	s.seedFeed("MP_1", domain.FeedEnabled)

	page := []domain.Article{
		{ID: "a1", Title: "First", PublishTime: 100},
		{ID: "a2", Title: "Second", PublishTime: 200},
		{ID: "a2", Title: "Second", PublishTime: 200},
	}
	s.NoError(s.articles.UpsertBatch(s.ctx, "MP_1", page))

	page[0].Title = "First (edited)"
	s.NoError(s.articles.UpsertBatch(s.ctx, "MP_1", page))

	count, err := s.articles.CountByFeed(s.ctx, "MP_1")
	s.NoError(err)
	s.Equal(2, count)

	articles, err := s.articles.List(s.ctx, domain.ArticleQuery{FeedIDs: []string{"MP_1"}})
	s.NoError(err)
	s.Require().Len(articles, 2)
	s.Equal("a2", articles[0].ID)
	s.Equal("First (edited)", articles[1].Title)
}

func (s *PostgresIntegrationSuite) TestArticleStore_ListPaging() {
	s.seedFeed("MP_1", domain.FeedEnabled)
	s.seedFeed("MP_2", domain.FeedEnabled)

	s.NoError(s.articles.UpsertBatch(s.ctx, "MP_1", []domain.Article{{ID: "a1", PublishTime: 1}, {ID: "a3", PublishTime: 3}}))
	s.NoError(s.articles.UpsertBatch(s.ctx, "MP_2", []domain.Article{{ID: "a2", PublishTime: 2}}))

	articles, err := s.articles.List(s.ctx, domain.ArticleQuery{Limit: 2, Offset: 1})
	s.NoError(err)
	s.Require().Len(articles, 2)
	s.Equal("a2", articles[0].ID)
	s.Equal("a1", articles[1].ID)
}

func (s *PostgresIntegrationSuite) TestFeedStore_DeleteCascades() {
	s.seedFeed("MP_1", domain.FeedEnabled)
	s.NoError(s.articles.UpsertBatch(s.ctx, "MP_1", []domain.Article{{ID: "a1"}}))

	s.NoError(s.feeds.Delete(s.ctx, "MP_1"))

	count, err := s.articles.CountByFeed(s.ctx, "MP_1")
	s.NoError(err)
	s.Equal(0, count)
	s.ErrorIs(s.feeds.Delete(s.ctx, "MP_1"), domain.ErrFeedNotFound)
}

func (s *PostgresIntegrationSuite) TestTransaction_RollbackOnError() {
	s.seedFeed("MP_1", domain.FeedEnabled)
	boom := errors.New("boom")

	err := s.txManager.WithTransaction(s.ctx, func(ctx context.Context) error {
		if err := s.articles.UpsertBatch(ctx, "MP_1", []domain.Article{{ID: "a1"}}); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	count, err := s.articles.CountByFeed(s.ctx, "MP_1")
	s.NoError(err)
	s.Equal(0, count)
}
