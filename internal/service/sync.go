package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"feed_relay/internal/config"
	"feed_relay/internal/credential"
	"feed_relay/internal/domain"
	"feed_relay/internal/metrics"
)

// Engine orchestrates article syncs. It owns the per-process guards: the
// sweep flag, the history backfill marker and the in-flight page syncs.
type Engine struct {
	selector  *credential.Selector
	upstream  Upstream
	feeds     FeedStore
	articles  ArticleStore
	txManager TransactionManager
	publisher Publisher
	logger    *slog.Logger
	config    config.SyncConfig

	sweeping  atomic.Bool
	history   historyMarker
	inflight  singleflight.Group
	onInvalid func(domain.Credential)
	now       func() time.Time
}

func NewEngine(
	selector *credential.Selector,
	upstream Upstream,
	feeds FeedStore,
	articles ArticleStore,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *Engine {
	return &Engine{
		selector:  selector,
		upstream:  upstream,
		feeds:     feeds,
		articles:  articles,
		txManager: txManager,
		publisher: publisher,
		logger:    logger.With("component", "sync_engine"),
		config:    cfg,
		now:       time.Now,
	}
}

// OnCredentialInvalidated registers fn to run whenever a sync attempt
// classifies a credential as unauthorized. fn must not block.
func (e *Engine) OnCredentialInvalidated(fn func(domain.Credential)) {
	e.onInvalid = fn
}

// Sweeping reports whether a multi-feed sweep is running.
func (e *Engine) Sweeping() bool {
	return e.sweeping.Load()
}

// HistoryProgress returns the running backfill, if any.
func (e *Engine) HistoryProgress() domain.HistoryProgress {
	return e.history.snapshot()
}

// SyncFeed fetches one page of a feed's articles, stores them and updates
// the feed's sync metadata. It returns whether older pages exist according
// to this page. Concurrent calls for the same feed and page share one run.
// The shared run is detached from the caller that started it and bounded by
// FeedTimeout; a caller whose ctx ends stops waiting without aborting it.
func (e *Engine) SyncFeed(ctx context.Context, feedID string, page int) (domain.HasHistory, error) {
	if page < 1 {
		page = 1
	}

	key := feedID + ":" + strconv.Itoa(page)
	ch := e.inflight.DoChan(key, func() (any, error) {
		runCtx := context.WithoutCancel(ctx)
		if e.config.FeedTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, e.config.FeedTimeout)
			defer cancel()
		}
		return e.syncFeed(runCtx, feedID, page)
	})

	select {
	case <-ctx.Done():
		return domain.HistoryExhausted, ctx.Err()
	case res := <-ch:
		if res.Shared {
			e.logger.Debug("joined in-flight sync", "feed_id", feedID, "page", page)
		}
		if res.Err != nil {
			return domain.HistoryExhausted, res.Err
		}
		return res.Val.(domain.HasHistory), nil
	}
}

func (e *Engine) syncFeed(ctx context.Context, feedID string, page int) (domain.HasHistory, error) {
	feed, err := e.feeds.Get(ctx, feedID)
	if err != nil {
		return domain.HistoryExhausted, fmt.Errorf("get feed %s: %w", feedID, err)
	}

	summaries, err := e.fetchPage(ctx, feedID, page)
	if err != nil {
		return domain.HistoryExhausted, err
	}

	hasHistory := domain.HistoryAvailable
	if len(summaries) < e.config.PageSize {
		hasHistory = domain.HistoryExhausted
	}
	stored := mergeHistory(feed.HasHistory, hasHistory)
	syncTime := e.now().Unix()

	articles := make([]domain.Article, 0, len(summaries))
	for _, s := range summaries {
		articles = append(articles, s.ToArticle(feedID))
	}

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if len(articles) > 0 {
			if err := e.articles.UpsertBatch(txCtx, feedID, articles); err != nil {
				return fmt.Errorf("upsert articles: %w", err)
			}
		}

		return e.feeds.Update(txCtx, feedID, domain.FeedUpdate{
			SyncTime:   &syncTime,
			HasHistory: &stored,
		})
	})
	if err != nil {
		return domain.HistoryExhausted, fmt.Errorf("store page %d of %s: %w", page, feedID, err)
	}

	metrics.ArticlesUpserted.Add(float64(len(articles)))

	if e.publisher != nil && len(articles) > 0 {
		e.publishSynced(ctx, feedID, page, articles, stored)
	}

	e.logger.Info("feed synced",
		"feed_id", feedID,
		"feed_name", feed.Name,
		"page", page,
		"articles", len(articles),
		"has_history", int(hasHistory),
	)

	return hasHistory, nil
}

// mergeHistory keeps an exhausted or aggregate feed as it is; only a feed
// that still has history can move to exhausted.
func mergeHistory(current, fromPage domain.HasHistory) domain.HasHistory {
	if current == domain.HistoryExhausted || current == domain.HistoryAggregate {
		return current
	}
	return fromPage
}

func (e *Engine) publishSynced(ctx context.Context, feedID string, page int, articles []domain.Article, hasHistory domain.HasHistory) {
	ids := make([]string, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}

	event := &domain.FeedSynced{
		FeedID:     feedID,
		Page:       page,
		ArticleIDs: ids,
		HasHistory: hasHistory,
		Timestamp:  e.now().UTC(),
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("publish sync event failed", "feed_id", feedID, "error", err)
	}
}

func (e *Engine) fetchPage(ctx context.Context, feedID string, page int) ([]domain.ArticleSummary, error) {
	var articles []domain.ArticleSummary

	err := e.withCredential(ctx, "fetch articles", func(cred domain.Credential) error {
		var err error
		articles, err = e.upstream.FetchArticlesPage(ctx, cred, feedID, page)
		return err
	})
	if err != nil {
		metrics.PagesFetched.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch page %d of %s: %w", page, feedID, err)
	}

	metrics.PagesFetched.WithLabelValues("ok").Inc()
	return articles, nil
}

// ResolveSource looks up the upstream source behind an article URL.
func (e *Engine) ResolveSource(ctx context.Context, canonicalURL string) (*domain.SourceInfo, error) {
	var info *domain.SourceInfo

	err := e.withCredential(ctx, "resolve source", func(cred domain.Credential) error {
		var err error
		info, err = e.upstream.FetchSourceInfo(ctx, cred, canonicalURL)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("resolve source for %s: %w", canonicalURL, err)
	}

	return info, nil
}

// withCredential runs fn with a freshly selected credential, up to the
// configured number of attempts. Each failure is reported to the selector
// before the next selection, so a credential that was just invalidated or
// blocked is not picked again.
func (e *Engine) withCredential(ctx context.Context, op string, fn func(cred domain.Credential) error) error {
	maxAttempts := max(e.config.Retry.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		cred, err := e.selector.Select(ctx)
		if err != nil {
			return err
		}

		err = fn(*cred)
		if err == nil {
			return nil
		}
		lastErr = err

		kind, reportErr := e.selector.Report(ctx, *cred, err)
		if reportErr != nil {
			e.logger.Error("apply credential failure", "credential_id", cred.ID, "error", reportErr)
		}
		if kind == domain.KindUnauthorized && e.onInvalid != nil {
			e.onInvalid(*cred)
		}

		e.logger.Warn("upstream call failed",
			"op", op,
			"attempt", attempt,
			"credential_id", cred.ID,
			"kind", kind.String(),
			"error", err,
		)

		if attempt < maxAttempts {
			if err := sleep(ctx, e.backoff(attempt)); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}

func (e *Engine) backoff(attempt int) time.Duration {
	backoff := e.config.Retry.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > e.config.Retry.MaxBackoff {
		backoff = e.config.Retry.MaxBackoff
	}
	return backoff
}

// SyncAllFeeds syncs the first page of every feed, enabled or not, pausing
// between feeds. A call made while another sweep runs returns at once with
// Skipped set. The first failing feed aborts the rest of the sweep.
func (e *Engine) SyncAllFeeds(ctx context.Context) (*domain.SyncStats, error) {
	return e.sweep(ctx, "all", nil, 0)
}

// SyncEnabledFeeds is the scheduled sweep: enabled feeds only, with an
// extra pause after every feed whether it succeeded or not.
func (e *Engine) SyncEnabledFeeds(ctx context.Context) (*domain.SyncStats, error) {
	enabled := domain.FeedEnabled
	return e.sweep(ctx, "scheduled", &enabled, e.config.ScheduledPause)
}

func (e *Engine) sweep(ctx context.Context, mode string, status *domain.FeedStatus, extraPause time.Duration) (*domain.SyncStats, error) {
	if !e.sweeping.CompareAndSwap(false, true) {
		metrics.SweepsSkipped.WithLabelValues(mode).Inc()
		e.logger.Info("sweep already running, skipping", "mode", mode)
		return &domain.SyncStats{Skipped: true}, nil
	}
	defer e.sweeping.Store(false)

	startTime := time.Now()
	stats := &domain.SyncStats{RunID: uuid.NewString()}
	logger := e.logger.With("run_id", stats.RunID, "mode", mode)

	feeds, err := e.feeds.List(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	stats.Feeds = len(feeds)

	logger.Info("starting sweep", "feeds", len(feeds))

	for i, feed := range feeds {
		_, syncErr := e.SyncFeed(ctx, feed.ID, 1)
		if syncErr == nil {
			stats.Synced++
		}

		pause := extraPause
		if syncErr == nil && i < len(feeds)-1 {
			pause += e.config.FeedDelay
		}
		if err := sleep(ctx, pause); err != nil {
			syncErr = errors.Join(syncErr, err)
		}

		if syncErr != nil {
			stats.Duration = time.Since(startTime)
			metrics.SweepDuration.WithLabelValues(mode, "error").Observe(stats.Duration.Seconds())
			logger.Error("sweep aborted",
				"feed_id", feed.ID,
				"synced", stats.Synced,
				"remaining", len(feeds)-i-1,
				"error", syncErr,
			)
			return stats, fmt.Errorf("sync feed %s: %w", feed.ID, syncErr)
		}
	}

	stats.Duration = time.Since(startTime)
	metrics.SweepDuration.WithLabelValues(mode, "ok").Observe(stats.Duration.Seconds())
	logger.Info("sweep completed", "synced", stats.Synced, "duration", stats.Duration)

	return stats, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
