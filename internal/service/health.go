package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feed_relay/internal/config"
	"feed_relay/internal/credential"
	"feed_relay/internal/domain"
	"feed_relay/internal/metrics"
)

// HealthMonitor probes credentials with a cheap page-1 fetch. The detection
// pass invalidates valid credentials that upstream rejects; the recovery
// pass re-checks invalid ones and restores those upstream accepts. Both
// start a login flow for any credential found unauthorized. Disabled
// credentials are never probed.
type HealthMonitor struct {
	credentials CredentialStore
	feeds       FeedStore
	upstream    Upstream
	selector    *credential.Selector
	recoverer   CredentialRecoverer
	logger      *slog.Logger

	probePause  time.Duration
	placeholder string
}

func NewHealthMonitor(
	credentials CredentialStore,
	feeds FeedStore,
	upstream Upstream,
	selector *credential.Selector,
	recoverer CredentialRecoverer,
	logger *slog.Logger,
	cfg config.CredentialsConfig,
) *HealthMonitor {
	return &HealthMonitor{
		credentials: credentials,
		feeds:       feeds,
		upstream:    upstream,
		selector:    selector,
		recoverer:   recoverer,
		logger:      logger.With("component", "health_monitor"),
		probePause:  cfg.ProbePause,
		placeholder: cfg.PlaceholderFeedID,
	}
}

// Check runs the detection pass and then the recovery pass. Credentials the
// detection pass already handed to re-authentication are not probed again.
func (h *HealthMonitor) Check(ctx context.Context) error {
	feedID, err := h.probeFeedID(ctx)
	if err != nil {
		return err
	}

	handled, err := h.detect(ctx, feedID)
	if err != nil {
		return err
	}
	return h.recover(ctx, feedID, handled)
}

// DetectionPass probes valid credentials only.
func (h *HealthMonitor) DetectionPass(ctx context.Context) error {
	feedID, err := h.probeFeedID(ctx)
	if err != nil {
		return err
	}
	_, err = h.detect(ctx, feedID)
	return err
}

// RecoveryPass probes invalid credentials only.
func (h *HealthMonitor) RecoveryPass(ctx context.Context) error {
	feedID, err := h.probeFeedID(ctx)
	if err != nil {
		return err
	}
	return h.recover(ctx, feedID, nil)
}

type verdict int

const (
	verdictHealthy verdict = iota
	verdictRejected
	verdictUnknown
)

// detect returns the ids of credentials it invalidated.
func (h *HealthMonitor) detect(ctx context.Context, feedID string) (map[string]struct{}, error) {
	creds, err := h.credentials.ListByStatus(ctx, domain.CredentialValid, nil)
	if err != nil {
		return nil, fmt.Errorf("list valid credentials: %w", err)
	}

	h.logger.Info("detection pass", "credentials", len(creds), "probe_feed", feedID)

	handled := make(map[string]struct{})
	for i, cred := range creds {
		if i > 0 {
			if err := sleep(ctx, h.probePause); err != nil {
				return handled, err
			}
		}

		if h.probe(ctx, cred, feedID, "detection") != verdictRejected {
			continue
		}

		status := domain.CredentialInvalid
		if err := h.credentials.Update(ctx, cred.ID, domain.CredentialUpdate{Status: &status}); err != nil {
			h.logger.Error("mark credential invalid failed", "credential_id", cred.ID, "error", err)
			continue
		}
		handled[cred.ID] = struct{}{}
		h.recoverer.Recover(ctx, cred)
	}

	return handled, nil
}

func (h *HealthMonitor) recover(ctx context.Context, feedID string, skip map[string]struct{}) error {
	creds, err := h.credentials.ListByStatus(ctx, domain.CredentialInvalid, nil)
	if err != nil {
		return fmt.Errorf("list invalid credentials: %w", err)
	}

	pending := make([]domain.Credential, 0, len(creds))
	for _, cred := range creds {
		if _, ok := skip[cred.ID]; !ok {
			pending = append(pending, cred)
		}
	}

	h.logger.Info("recovery pass", "credentials", len(pending), "skipped", len(creds)-len(pending), "probe_feed", feedID)

	for i, cred := range pending {
		if i > 0 {
			if err := sleep(ctx, h.probePause); err != nil {
				return err
			}
		}

		switch h.probe(ctx, cred, feedID, "recovery") {
		case verdictRejected:
			h.recoverer.Recover(ctx, cred)
		case verdictUnknown:
			h.logger.Info("probe inconclusive, leaving credential invalid", "credential_id", cred.ID)
		case verdictHealthy:
			status := domain.CredentialValid
			if err := h.credentials.Update(ctx, cred.ID, domain.CredentialUpdate{Status: &status}); err != nil {
				h.logger.Error("restore credential failed", "credential_id", cred.ID, "error", err)
				continue
			}
			h.selector.Unblock(cred.ID)
			h.logger.Info("credential restored", "credential_id", cred.ID)
		}
	}

	return nil
}

// probe fetches one page with cred. Only an unauthorized classification
// rejects the credential. A success or a client error answered by upstream,
// such as a missing probe feed, proves the credential is accepted. Network
// failures, server errors and rate limiting are inconclusive.
func (h *HealthMonitor) probe(ctx context.Context, cred domain.Credential, feedID, pass string) verdict {
	_, err := h.upstream.FetchArticlesPage(ctx, cred, feedID, 1)
	if err == nil {
		metrics.HealthProbes.WithLabelValues(pass, "ok").Inc()
		return verdictHealthy
	}

	kind := domain.KindOf(err)
	metrics.HealthProbes.WithLabelValues(pass, kind.String()).Inc()

	switch kind {
	case domain.KindUnauthorized:
		h.logger.Warn("credential rejected by upstream", "credential_id", cred.ID, "name", cred.Name, "pass", pass)
		return verdictRejected
	case domain.KindOther:
		var upErr *domain.UpstreamError
		if errors.As(err, &upErr) && upErr.StatusCode >= 400 && upErr.StatusCode < 500 {
			h.logger.Debug("probe answered with client error", "credential_id", cred.ID, "error", err)
			return verdictHealthy
		}
	}

	h.logger.Debug("probe failed", "credential_id", cred.ID, "kind", kind.String(), "error", err)
	return verdictUnknown
}

func (h *HealthMonitor) probeFeedID(ctx context.Context) (string, error) {
	feeds, err := h.feeds.List(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("list feeds: %w", err)
	}
	if len(feeds) == 0 {
		return h.placeholder, nil
	}
	return feeds[0].ID, nil
}
