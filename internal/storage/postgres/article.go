package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"feed_relay/internal/domain"
)

type ArticleStore struct {
	db *sqlx.DB
}

func NewArticleStore(db *sqlx.DB) *ArticleStore {
	return &ArticleStore{db: db}
}

// UpsertBatch inserts articles or refreshes the ones already stored. An
// article that shows up under another feed moves to that feed.
func (s *ArticleStore) UpsertBatch(ctx context.Context, feedID string, articles []domain.Article) error {
	if len(articles) == 0 {
		return nil
	}

	// Upstream pages may repeat an id; Postgres rejects touching a row twice in one statement.
	seen := make(map[string]struct{}, len(articles))

	b := psql.Insert("articles").Columns("id", "feed_id", "title", "pic_url", "publish_time")
	for _, a := range articles {
		if _, ok := seen[a.ID]; ok {
			continue
		}
		seen[a.ID] = struct{}{}
		b = b.Values(a.ID, feedID, a.Title, a.PicURL, a.PublishTime)
	}
	b = b.Suffix(`ON CONFLICT (id) DO UPDATE SET
			feed_id = EXCLUDED.feed_id,
			title = EXCLUDED.title,
			pic_url = EXCLUDED.pic_url,
			publish_time = EXCLUDED.publish_time,
			updated_at = NOW()`)

	if _, err := exec(ctx, s.db, b); err != nil {
		return fmt.Errorf("upsert %d articles: %w", len(seen), err)
	}
	return nil
}

func (s *ArticleStore) CountByFeed(ctx context.Context, feedID string) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &count,
		"SELECT COUNT(*) FROM articles WHERE feed_id = $1", feedID)
	if err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return count, nil
}

// List returns the newest articles first.
func (s *ArticleStore) List(ctx context.Context, q domain.ArticleQuery) ([]domain.Article, error) {
	b := psql.Select("id", "feed_id", "title", "pic_url", "publish_time", "created_at", "updated_at").
		From("articles").
		OrderBy("publish_time DESC", "id")

	if len(q.FeedIDs) > 0 {
		b = b.Where(sq.Eq{"feed_id": q.FeedIDs})
	}
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}
	if q.Offset > 0 {
		b = b.Offset(uint64(q.Offset))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var articles []domain.Article
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &articles, query, args...); err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	return articles, nil
}
