package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"feed_relay/internal/config"
	"feed_relay/internal/credential"
	"feed_relay/internal/domain"
	"feed_relay/internal/metrics"
)

// Reauthenticator walks an operator through a QR login for a credential
// that upstream rejected, and installs the new token once the login
// resolves to the same account.
type Reauthenticator struct {
	upstream    Upstream
	credentials CredentialStore
	selector    *credential.Selector
	qr          QRRenderer
	notifier    Notifier
	logger      *slog.Logger

	maxPolls     int
	pollInterval time.Duration

	group singleflight.Group
}

func NewReauthenticator(
	upstream Upstream,
	credentials CredentialStore,
	selector *credential.Selector,
	qr QRRenderer,
	notifier Notifier,
	logger *slog.Logger,
	cfg config.CredentialsConfig,
) *Reauthenticator {
	return &Reauthenticator{
		upstream:     upstream,
		credentials:  credentials,
		selector:     selector,
		qr:           qr,
		notifier:     notifier,
		logger:       logger.With("component", "reauthenticator"),
		maxPolls:     max(cfg.LoginMaxPolls, 1),
		pollInterval: cfg.LoginPollInterval,
	}
}

// Recover runs one login flow for cred and reports whether a fresh token
// was installed. Concurrent calls for the same credential share one flow.
func (r *Reauthenticator) Recover(ctx context.Context, cred domain.Credential) bool {
	v, _, _ := r.group.Do(cred.ID, func() (any, error) {
		return r.recover(ctx, cred), nil
	})
	return v.(bool)
}

func (r *Reauthenticator) recover(ctx context.Context, cred domain.Credential) bool {
	logger := r.logger.With("credential_id", cred.ID, "name", cred.Name)

	session, err := r.upstream.CreateLoginSession(ctx)
	if err != nil {
		metrics.Reauthentications.WithLabelValues("session_failed").Inc()
		logger.Error("create login session failed", "error", err)
		return false
	}

	alert := domain.LoginAlert{
		CredentialID:   cred.ID,
		CredentialName: cred.Name,
		ScanURL:        session.ScanURL,
	}
	if r.qr != nil {
		image, err := r.qr.Render(session.ScanURL)
		if err != nil {
			logger.Warn("render login qr failed", "error", err)
		}
		alert.QRImage = image
	}
	if r.notifier != nil {
		r.notifier.Notify(ctx, alert)
	}

	logger.Info("waiting for login", "session_id", session.SessionID)

	for poll := 1; poll <= r.maxPolls; poll++ {
		result, err := r.upstream.GetLoginResult(ctx, session.SessionID)
		switch {
		case errors.Is(err, domain.ErrLoginPollTimeout):
			logger.Debug("login poll timed out", "poll", poll)
		case err != nil:
			metrics.Reauthentications.WithLabelValues("failed").Inc()
			logger.Error("login poll failed", "poll", poll, "error", err)
			return false
		case result.Complete():
			return r.install(ctx, logger, cred, result)
		default:
			logger.Debug("login pending", "poll", poll, "message", result.Message)
		}

		if poll < r.maxPolls {
			if err := sleep(ctx, r.pollInterval); err != nil {
				metrics.Reauthentications.WithLabelValues("canceled").Inc()
				return false
			}
		}
	}

	metrics.Reauthentications.WithLabelValues("expired").Inc()
	logger.Warn("login not completed", "polls", r.maxPolls)
	return false
}

func (r *Reauthenticator) install(ctx context.Context, logger *slog.Logger, cred domain.Credential, result *domain.LoginResult) bool {
	if result.Identity != cred.ID {
		metrics.Reauthentications.WithLabelValues("mismatch").Inc()
		logger.Warn("login resolved to a different account", "identity", result.Identity)
		return false
	}

	status := domain.CredentialValid
	upd := domain.CredentialUpdate{Token: &result.Token, Status: &status}
	if result.DisplayName != "" {
		upd.Name = &result.DisplayName
	}

	if err := r.credentials.Update(ctx, cred.ID, upd); err != nil {
		metrics.Reauthentications.WithLabelValues("failed").Inc()
		logger.Error("store refreshed token failed", "error", err)
		return false
	}
	r.selector.Unblock(cred.ID)

	metrics.Reauthentications.WithLabelValues("recovered").Inc()
	logger.Info("credential re-authenticated")
	return true
}
