package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"feed_relay/internal/domain"
	"feed_relay/internal/metrics"
)

// Store is the slice of credential persistence the selector needs.
type Store interface {
	ListByStatus(ctx context.Context, status domain.CredentialStatus, excludeIDs []string) ([]domain.Credential, error)
	Update(ctx context.Context, id string, upd domain.CredentialUpdate) error
}

// Selector picks a usable credential and applies upstream failure
// signals to credential state.
type Selector struct {
	store     Store
	blocklist *Blocklist
	logger    *slog.Logger
	pick      func(n int) int
}

func NewSelector(store Store, blocklist *Blocklist, logger *slog.Logger) *Selector {
	return &Selector{
		store:     store,
		blocklist: blocklist,
		logger:    logger.With("component", "credential_selector"),
		pick:      rand.Intn,
	}
}

// Select returns a random valid credential that is not blocked today.
func (s *Selector) Select(ctx context.Context) (*domain.Credential, error) {
	blocked := s.blocklist.IDs()

	candidates, err := s.store.ListByStatus(ctx, domain.CredentialValid, blocked)
	if err != nil {
		metrics.CredentialSelections.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("list valid credentials: %w", err)
	}

	// Never hand out a blocked credential, even if the store ignored excludeIDs.
	usable := candidates[:0]
	for _, c := range candidates {
		if !s.blocklist.Contains(c.ID) {
			usable = append(usable, c)
		}
	}

	if len(usable) == 0 {
		metrics.CredentialSelections.WithLabelValues("exhausted").Inc()
		s.logger.Warn("no usable credential", "blocked", len(blocked))
		return nil, domain.ErrNoCredentialAvailable
	}

	chosen := usable[s.pick(len(usable))]
	metrics.CredentialSelections.WithLabelValues("ok").Inc()
	s.logger.Debug("credential selected", "credential_id", chosen.ID, "candidates", len(usable))

	return &chosen, nil
}

// Report applies the classification of err for cred. Unauthorized marks the
// credential invalid, rate limiting blocks it for the rest of the day, and
// anything else leaves state untouched. It returns the classified kind.
func (s *Selector) Report(ctx context.Context, cred domain.Credential, err error) (domain.ErrorKind, error) {
	if err == nil || errors.Is(err, domain.ErrNoCredentialAvailable) {
		return domain.KindOther, nil
	}

	kind := domain.KindOf(err)
	metrics.UpstreamErrors.WithLabelValues(kind.String()).Inc()

	switch kind {
	case domain.KindUnauthorized:
		s.logger.Warn("credential unauthorized, marking invalid", "credential_id", cred.ID, "name", cred.Name)
		status := domain.CredentialInvalid
		if updErr := s.store.Update(ctx, cred.ID, domain.CredentialUpdate{Status: &status}); updErr != nil {
			return kind, fmt.Errorf("mark credential %s invalid: %w", cred.ID, updErr)
		}
	case domain.KindRateLimited:
		s.logger.Warn("credential rate limited, blocking for today",
			"credential_id", cred.ID,
			"day", s.blocklist.Day(),
		)
		s.blocklist.Add(cred.ID)
	}

	return kind, nil
}

// Unblock clears a credential from today's blocklist after it was
// explicitly re-validated.
func (s *Selector) Unblock(id string) {
	s.blocklist.Remove(id)
}

// Blocked returns today's blocklist.
func (s *Selector) Blocked() []string {
	return s.blocklist.IDs()
}
