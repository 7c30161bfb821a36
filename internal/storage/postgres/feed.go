package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"feed_relay/internal/domain"
)

var feedColumns = []string{
	"id", "name", "cover", "intro", "status", "sync_time", "update_time", "has_history", "created_at", "updated_at",
}

type FeedStore struct {
	db *sqlx.DB
}

func NewFeedStore(db *sqlx.DB) *FeedStore {
	return &FeedStore{db: db}
}

// Upsert adds a feed or refreshes the metadata of an existing one. Status,
// sync state and history flag of an existing feed are kept.
func (s *FeedStore) Upsert(ctx context.Context, feed domain.Feed) error {
	b := psql.Insert("feeds").
		Columns("id", "name", "cover", "intro", "status", "update_time", "has_history").
		Values(feed.ID, feed.Name, feed.Cover, feed.Intro, feed.Status, feed.UpdateTime, feed.HasHistory).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			cover = EXCLUDED.cover,
			intro = EXCLUDED.intro,
			update_time = EXCLUDED.update_time,
			updated_at = NOW()`)

	if _, err := exec(ctx, s.db, b); err != nil {
		return fmt.Errorf("upsert feed %s: %w", feed.ID, err)
	}
	return nil
}

func (s *FeedStore) Get(ctx context.Context, id string) (*domain.Feed, error) {
	query, args, err := psql.Select(feedColumns...).From("feeds").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var feed domain.Feed
	err = sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &feed, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrFeedNotFound
	}
	if err != nil {
		return nil, err
	}
	return &feed, nil
}

// List returns feeds ordered by creation; a nil status returns all of them.
func (s *FeedStore) List(ctx context.Context, status *domain.FeedStatus) ([]domain.Feed, error) {
	b := psql.Select(feedColumns...).From("feeds").OrderBy("created_at", "id")
	if status != nil {
		b = b.Where(sq.Eq{"status": *status})
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var feeds []domain.Feed
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &feeds, query, args...); err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	return feeds, nil
}

func (s *FeedStore) Update(ctx context.Context, id string, upd domain.FeedUpdate) error {
	if upd.Empty() {
		return nil
	}

	b := psql.Update("feeds").Set("updated_at", sq.Expr("NOW()")).Where(sq.Eq{"id": id})
	if upd.Name != nil {
		b = b.Set("name", *upd.Name)
	}
	if upd.Cover != nil {
		b = b.Set("cover", *upd.Cover)
	}
	if upd.Intro != nil {
		b = b.Set("intro", *upd.Intro)
	}
	if upd.Status != nil {
		b = b.Set("status", *upd.Status)
	}
	if upd.SyncTime != nil {
		b = b.Set("sync_time", *upd.SyncTime)
	}
	if upd.UpdateTime != nil {
		b = b.Set("update_time", *upd.UpdateTime)
	}
	if upd.HasHistory != nil {
		b = b.Set("has_history", *upd.HasHistory)
	}

	n, err := exec(ctx, s.db, b)
	if err != nil {
		return fmt.Errorf("update feed %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrFeedNotFound
	}
	return nil
}

// Delete removes a feed; its articles go with it.
func (s *FeedStore) Delete(ctx context.Context, id string) error {
	n, err := exec(ctx, s.db, psql.Delete("feeds").Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("delete feed %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrFeedNotFound
	}
	return nil
}
