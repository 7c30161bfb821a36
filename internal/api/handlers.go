package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"feed_relay/internal/config"
	"feed_relay/internal/domain"
	"feed_relay/internal/render"
)

// AllFeedsID names the aggregate document over every enabled feed.
const AllFeedsID = "all"

type Deps struct {
	Syncer      Syncer
	Feeds       FeedRepository
	Articles    ArticleRepository
	Credentials CredentialRepository
	Blocklist   Blocklist
	Recoverer   Recoverer
	DB          Pinger
}

type Handler struct {
	Deps
	renderer     *render.Renderer
	logger       *slog.Logger
	defaultLimit int
	maxLimit     int

	bgCtx context.Context
	wg    sync.WaitGroup
}

// NewHandler wires the HTTP handlers. Work started in the background
// (sweeps, backfills, logins) runs under ctx rather than the request.
func NewHandler(ctx context.Context, deps Deps, cfg config.HTTPConfig, logger *slog.Logger) *Handler {
	return &Handler{
		Deps:         deps,
		renderer:     render.NewRenderer(cfg.BaseURL, cfg.ArticleLinkFormat),
		logger:       logger.With("component", "api"),
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		bgCtx:        ctx,
	}
}

// Wait blocks until background work started by handlers has returned.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) background(name string, fn func(ctx context.Context) error) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := fn(h.bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Error("background job failed", "job", name, "error", err)
		}
	}()
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var upErr *domain.UpstreamError

	switch {
	case errors.Is(err, domain.ErrFeedNotFound), errors.Is(err, domain.ErrCredentialNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNoCredentialAvailable):
		status = http.StatusServiceUnavailable
	case errors.As(err, &upErr):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.DB.PingContext(ctx); err != nil {
		h.logger.Warn("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"sweeping":  h.Syncer.Sweeping(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// FeedDocument serves /feeds/{id}.{rss|atom|json}. A missing extension
// means RSS.
func (h *Handler) FeedDocument(c *gin.Context) {
	id, format, ok := splitFeedFile(c.Param("file"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported feed format"})
		return
	}

	limit := h.limit(c.Query("limit"))
	page := positiveInt(c.Query("page"), 1)
	filter := render.Filter{
		Include: render.ParseTerms(c.Query("title_include")),
		Exclude: render.ParseTerms(c.Query("title_exclude")),
	}
	ctx := c.Request.Context()
	query := domain.ArticleQuery{Limit: limit, Offset: (page - 1) * limit}

	var channel render.Channel
	if id == AllFeedsID {
		enabled := domain.FeedEnabled
		feeds, err := h.Feeds.List(ctx, &enabled)
		if err != nil {
			h.writeError(c, err)
			return
		}
		for _, f := range feeds {
			query.FeedIDs = append(query.FeedIDs, f.ID)
		}
		channel = render.Channel{ID: AllFeedsID, Title: "All feeds", Description: "Articles from every enabled feed"}
	} else {
		if c.Query("update") == "true" {
			if _, err := h.Syncer.SyncFeed(ctx, id, 1); err != nil {
				h.logger.Warn("on-demand sync failed", "feed_id", id, "error", err)
			}
		}

		feed, err := h.Feeds.Get(ctx, id)
		if err != nil {
			h.writeError(c, err)
			return
		}
		query.FeedIDs = []string{id}
		channel = render.ChannelFromFeed(*feed)
	}

	var articles []domain.Article
	if len(query.FeedIDs) > 0 {
		var err error
		articles, err = h.Articles.List(ctx, query)
		if err != nil {
			h.writeError(c, err)
			return
		}
	}
	articles = filter.Apply(articles)

	doc, err := h.renderer.Render(format, channel, articles)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("X-Feed-Items", strconv.Itoa(len(articles)))
	c.Data(http.StatusOK, format.ContentType(), []byte(doc))
}

func splitFeedFile(file string) (string, render.Format, bool) {
	i := strings.LastIndex(file, ".")
	if i < 0 {
		return file, render.FormatRSS, file != ""
	}

	format, ok := render.ParseFormat(file[i+1:])
	return file[:i], format, ok && i > 0
}

func (h *Handler) limit(raw string) int {
	return min(positiveInt(raw, h.defaultLimit), h.maxLimit)
}

func positiveInt(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
