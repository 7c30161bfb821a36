package service

import (
	"context"

	"go.uber.org/mock/gomock"

	"feed_relay/internal/domain"
)

func (s *EngineTestSuite) TestSyncHistory_ResumesFromStoredCount() {
	ctx := context.Background()

	s.feeds.EXPECT().Get(gomock.Any(), "MP_1").Return(&domain.Feed{ID: "MP_1", HasHistory: domain.HistoryAvailable}, nil).Times(3)
	s.articles.EXPECT().CountByFeed(gomock.Any(), "MP_1").Return(45, nil)
	s.credentials.EXPECT().ListByStatus(gomock.Any(), domain.CredentialValid, gomock.Any()).Return([]domain.Credential{credA}, nil).Times(2)
	gomock.InOrder(
		s.upstream.EXPECT().FetchArticlesPage(gomock.Any(), credA, "MP_1", 3).Return(summaries("p3", 20), nil),
		s.upstream.EXPECT().FetchArticlesPage(gomock.Any(), credA, "MP_1", 4).Return(summaries("p4", 5), nil),
	)
	s.expectStored("MP_1", 20, domain.HistoryAvailable)
	s.expectStored("MP_1", 5, domain.HistoryExhausted)

	err := s.engine.SyncHistory(ctx, "MP_1")

	s.NoError(err)
	s.Equal(domain.HistoryProgress{}, s.engine.HistoryProgress())
}

func (s *EngineTestSuite) TestSyncHistory_SkipsExhaustedFeed() {
	ctx := context.Background()

	s.feeds.EXPECT().Get(gomock.Any(), "MP_1").Return(&domain.Feed{ID: "MP_1", HasHistory: domain.HistoryExhausted}, nil)

	s.NoError(s.engine.SyncHistory(ctx, "MP_1"))
}

func (s *EngineTestSuite) TestSyncHistory_FeedNotFound() {
	ctx := context.Background()

	s.feeds.EXPECT().Get(gomock.Any(), "MP_404").Return(nil, domain.ErrFeedNotFound)

	s.ErrorIs(s.engine.SyncHistory(ctx, "MP_404"), domain.ErrFeedNotFound)
	s.Equal(domain.HistoryProgress{}, s.engine.HistoryProgress())
}

func (s *EngineTestSuite) TestSyncHistory_StopsAtPageCap() {
	ctx := context.Background()
	s.engine.config.HistoryMaxPages = 2

	s.feeds.EXPECT().Get(gomock.Any(), "MP_1").Return(&domain.Feed{ID: "MP_1", HasHistory: domain.HistoryAvailable}, nil).AnyTimes()
	s.articles.EXPECT().CountByFeed(gomock.Any(), "MP_1").Return(0, nil)
	s.credentials.EXPECT().ListByStatus(gomock.Any(), domain.CredentialValid, gomock.Any()).Return([]domain.Credential{credA}, nil).AnyTimes()
	s.upstream.EXPECT().FetchArticlesPage(gomock.Any(), credA, "MP_1", gomock.Any()).Return(summaries("p", 20), nil).Times(2)
	s.articles.EXPECT().UpsertBatch(gomock.Any(), "MP_1", gomock.Any()).Return(nil).Times(2)
	s.feeds.EXPECT().Update(gomock.Any(), "MP_1", gomock.Any()).Return(nil).Times(2)

	s.NoError(s.engine.SyncHistory(ctx, "MP_1"))
}

func (s *EngineTestSuite) TestSyncHistory_SameFeedIsNoopOtherFeedTakesOver() {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})

	s.feeds.EXPECT().Get(gomock.Any(), "MP_A").Return(&domain.Feed{ID: "MP_A", HasHistory: domain.HistoryAvailable}, nil).AnyTimes()
	s.feeds.EXPECT().Get(gomock.Any(), "MP_B").Return(&domain.Feed{ID: "MP_B", HasHistory: domain.HistoryExhausted}, nil)
	s.articles.EXPECT().CountByFeed(gomock.Any(), "MP_A").Return(0, nil)
	s.credentials.EXPECT().ListByStatus(gomock.Any(), domain.CredentialValid, gomock.Any()).Return([]domain.Credential{credA}, nil)
	s.upstream.EXPECT().FetchArticlesPage(gomock.Any(), credA, "MP_A", 1).DoAndReturn(
		func(context.Context, domain.Credential, string, int) ([]domain.ArticleSummary, error) {
			close(started)
			<-release
			return summaries("a", 20), nil
		},
	).Times(1)
	s.expectStored("MP_A", 20, domain.HistoryAvailable)

	done := make(chan error, 1)
	go func() {
		done <- s.engine.SyncHistory(ctx, "MP_A")
	}()

	<-started
	s.Equal(domain.HistoryProgress{FeedID: "MP_A", Page: 1}, s.engine.HistoryProgress())

	s.NoError(s.engine.SyncHistory(ctx, "MP_A"))
	s.NoError(s.engine.SyncHistory(ctx, "MP_B"))

	close(release)
	s.NoError(<-done)
	s.Equal(domain.HistoryProgress{}, s.engine.HistoryProgress())
}
