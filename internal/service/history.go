package service

import (
	"context"
	"fmt"
	"sync"

	"feed_relay/internal/domain"
)

// historyMarker tracks the single running backfill. Each claim gets a new
// token; a run keeps going only while its token is current.
type historyMarker struct {
	mu     sync.Mutex
	feedID string
	page   int
	token  uint64
}

func (m *historyMarker) claim(feedID string) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.feedID == feedID {
		return 0, false
	}

	m.token++
	m.feedID = feedID
	m.page = 0
	return m.token, true
}

func (m *historyMarker) owns(token uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.feedID != "" && m.token == token
}

func (m *historyMarker) advance(token uint64, page int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == token {
		m.page = page
	}
}

func (m *historyMarker) release(token uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == token {
		m.feedID = ""
		m.page = 0
	}
}

func (m *historyMarker) snapshot() domain.HistoryProgress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.HistoryProgress{FeedID: m.feedID, Page: m.page}
}

// ResumePage returns the first page to request when count articles are
// already stored for a feed.
func ResumePage(count, pageSize int) int {
	if pageSize <= 0 {
		return 1
	}
	return max(1, (count+pageSize-1)/pageSize)
}

// SyncHistory backfills older pages of a feed, starting from the page that
// matches the number of stored articles. Only one feed is backfilled at a
// time: a call for the feed already running is a no-op, and a call for a
// different feed takes over, stopping the earlier run after its current
// page.
func (e *Engine) SyncHistory(ctx context.Context, feedID string) error {
	token, ok := e.history.claim(feedID)
	if !ok {
		e.logger.Info("history sync already running", "feed_id", feedID)
		return nil
	}
	defer e.history.release(token)

	logger := e.logger.With("feed_id", feedID, "mode", "history")

	feed, err := e.feeds.Get(ctx, feedID)
	if err != nil {
		return fmt.Errorf("get feed %s: %w", feedID, err)
	}
	if feed.HasHistory == domain.HistoryExhausted {
		logger.Info("feed has no more history")
		return nil
	}

	count, err := e.articles.CountByFeed(ctx, feedID)
	if err != nil {
		return fmt.Errorf("count articles of %s: %w", feedID, err)
	}

	page := ResumePage(count, e.config.PageSize)
	logger.Info("starting history sync", "stored", count, "page", page)

	for i := 0; i < e.config.HistoryMaxPages; i++ {
		if !e.history.owns(token) {
			logger.Info("history sync taken over by another feed", "page", page)
			return nil
		}
		e.history.advance(token, page)

		hasHistory, err := e.SyncFeed(ctx, feedID, page)
		if err != nil {
			return fmt.Errorf("history page %d: %w", page, err)
		}
		if hasHistory == domain.HistoryExhausted {
			logger.Info("history sync completed", "last_page", page)
			return nil
		}

		page++
		if err := sleep(ctx, e.config.HistoryDelay); err != nil {
			return err
		}
	}

	logger.Warn("history sync reached page cap", "max_pages", e.config.HistoryMaxPages)
	return nil
}
