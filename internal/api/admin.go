package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"feed_relay/internal/domain"
)

func (h *Handler) ListFeeds(c *gin.Context) {
	feeds, err := h.Feeds.List(c.Request.Context(), nil)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feeds": feeds, "total": len(feeds)})
}

type addFeedRequest struct {
	URL string `json:"url" binding:"required"`
}

// AddFeed resolves the source behind an article URL, stores it and starts
// a first sync in the background.
func (h *Handler) AddFeed(c *gin.Context) {
	var req addFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	info, err := h.Syncer.ResolveSource(ctx, req.URL)
	if err != nil {
		h.writeError(c, err)
		return
	}

	feed := info.ToFeed()
	if err := h.Feeds.Upsert(ctx, feed); err != nil {
		h.writeError(c, err)
		return
	}

	h.background("initial sync", func(ctx context.Context) error {
		_, err := h.Syncer.SyncFeed(ctx, feed.ID, 1)
		return err
	})

	c.JSON(http.StatusCreated, feed)
}

type updateFeedRequest struct {
	Name   *string            `json:"name"`
	Status *domain.FeedStatus `json:"status"`
}

func (h *Handler) UpdateFeed(c *gin.Context) {
	var req updateFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status != nil && *req.Status != domain.FeedEnabled && *req.Status != domain.FeedDisabled {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be 0 or 1"})
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	if err := h.Feeds.Update(ctx, id, domain.FeedUpdate{Name: req.Name, Status: req.Status}); err != nil {
		h.writeError(c, err)
		return
	}

	feed, err := h.Feeds.Get(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

func (h *Handler) DeleteFeed(c *gin.Context) {
	if err := h.Feeds.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) SyncFeed(c *gin.Context) {
	id := c.Param("id")
	page := positiveInt(c.Query("page"), 1)

	hasHistory, err := h.Syncer.SyncFeed(c.Request.Context(), id, page)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"feedId": id, "page": page, "hasHistory": hasHistory})
}

func (h *Handler) SyncHistory(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.Feeds.Get(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}

	h.background("history sync", func(ctx context.Context) error {
		return h.Syncer.SyncHistory(ctx, id)
	})

	c.JSON(http.StatusAccepted, gin.H{"feedId": id, "status": "started"})
}

func (h *Handler) SyncAll(c *gin.Context) {
	if h.Syncer.Sweeping() {
		c.JSON(http.StatusOK, gin.H{"status": "running"})
		return
	}

	h.background("sweep", func(ctx context.Context) error {
		_, err := h.Syncer.SyncAllFeeds(ctx)
		return err
	})

	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (h *Handler) SyncStatus(c *gin.Context) {
	status := gin.H{
		"sweeping": h.Syncer.Sweeping(),
		"blocked":  h.Blocklist.Blocked(),
	}
	if progress := h.Syncer.HistoryProgress(); progress.FeedID != "" {
		status["history"] = progress
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) ListCredentials(c *gin.Context) {
	creds, err := h.Credentials.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"credentials": creds, "blocked": h.Blocklist.Blocked()})
}

type saveCredentialRequest struct {
	ID    string `json:"id" binding:"required"`
	Token string `json:"token" binding:"required"`
	Name  string `json:"name"`
}

func (h *Handler) SaveCredential(c *gin.Context) {
	var req saveCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cred := domain.Credential{ID: req.ID, Token: req.Token, Name: req.Name, Status: domain.CredentialValid}
	if err := h.Credentials.Save(c.Request.Context(), cred); err != nil {
		h.writeError(c, err)
		return
	}
	h.Blocklist.Unblock(cred.ID)

	c.JSON(http.StatusCreated, cred)
}

type updateCredentialRequest struct {
	Token  *string                  `json:"token"`
	Name   *string                  `json:"name"`
	Status *domain.CredentialStatus `json:"status"`
}

// UpdateCredential applies a partial update. Setting a credential valid
// also lifts today's block on it.
func (h *Handler) UpdateCredential(c *gin.Context) {
	var req updateCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status != nil && (*req.Status < domain.CredentialInvalid || *req.Status > domain.CredentialDisabled) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be 0, 1 or 2"})
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	upd := domain.CredentialUpdate{Token: req.Token, Name: req.Name, Status: req.Status}
	if err := h.Credentials.Update(ctx, id, upd); err != nil {
		h.writeError(c, err)
		return
	}
	if req.Status != nil && *req.Status == domain.CredentialValid {
		h.Blocklist.Unblock(id)
	}

	cred, err := h.Credentials.Get(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cred)
}

func (h *Handler) DeleteCredential(c *gin.Context) {
	id := c.Param("id")
	if err := h.Credentials.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	h.Blocklist.Unblock(id)
	c.Status(http.StatusNoContent)
}

// StartLogin begins a QR login for a credential in the background.
func (h *Handler) StartLogin(c *gin.Context) {
	cred, err := h.Credentials.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.background("login", func(ctx context.Context) error {
		h.Recoverer.Recover(ctx, *cred)
		return nil
	})

	c.JSON(http.StatusAccepted, gin.H{"credentialId": cred.ID, "status": "started"})
}
