package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"feed_relay/internal/domain"
)

const maxErrorBody = 64 << 10

// Config holds upstream platform client configuration.
type Config struct {
	BaseURL            string
	Timeout            time.Duration
	LoginTimeout       time.Duration
	UserAgent          string
	UnauthorizedMarker string
	RateLimitedMarker  string
	RequestsPerMinute  int
}

// Client talks to the upstream platform on behalf of a credential.
type Client struct {
	httpClient         *http.Client
	baseURL            string
	timeout            time.Duration
	loginTimeout       time.Duration
	userAgent          string
	unauthorizedMarker string
	rateLimitedMarker  string
	limiter            *rate.Limiter
	logger             *slog.Logger
}

// New creates a new upstream client.
func New(cfg Config, logger *slog.Logger) *Client {
	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &Client{
		// Per-request deadlines come from the context; login polls need a
		// longer one than regular calls.
		httpClient:         &http.Client{},
		baseURL:            strings.TrimRight(cfg.BaseURL, "/"),
		timeout:            cfg.Timeout,
		loginTimeout:       cfg.LoginTimeout,
		userAgent:          cfg.UserAgent,
		unauthorizedMarker: cfg.UnauthorizedMarker,
		rateLimitedMarker:  cfg.RateLimitedMarker,
		limiter:            limiter,
		logger:             logger.With("component", "upstream"),
	}
}

// FetchArticlesPage returns one page of a source's articles, newest first.
func (c *Client) FetchArticlesPage(ctx context.Context, cred domain.Credential, sourceID string, page int) ([]domain.ArticleSummary, error) {
	path := fmt.Sprintf("/platform/sources/%s/articles?page=%s", url.PathEscape(sourceID), strconv.Itoa(page))

	var articles []domain.ArticleSummary
	if err := c.do(ctx, c.timeout, http.MethodGet, path, nil, &cred, &articles); err != nil {
		return nil, err
	}

	c.logger.Debug("fetched article page",
		"source_id", sourceID,
		"page", page,
		"articles", len(articles),
		"credential_id", cred.ID,
	)

	return articles, nil
}

// FetchSourceInfo resolves the source behind a canonical article URL.
func (c *Client) FetchSourceInfo(ctx context.Context, cred domain.Credential, canonicalURL string) (*domain.SourceInfo, error) {
	var sources []domain.SourceInfo
	if err := c.do(ctx, c.timeout, http.MethodPost, "/platform/url-to-source", sourceRequest{URL: canonicalURL}, &cred, &sources); err != nil {
		return nil, err
	}

	if len(sources) == 0 || sources[0].ID == "" {
		return nil, &domain.UpstreamError{
			Kind: domain.KindOther,
			Err:  fmt.Errorf("no source found for %s", canonicalURL),
		}
	}

	return &sources[0], nil
}

// CreateLoginSession starts a QR login.
func (c *Client) CreateLoginSession(ctx context.Context) (*domain.LoginSession, error) {
	var session domain.LoginSession
	if err := c.do(ctx, c.timeout, http.MethodGet, "/login/session", nil, nil, &session); err != nil {
		return nil, err
	}
	if session.SessionID == "" {
		return nil, &domain.UpstreamError{Kind: domain.KindOther, Err: errors.New("empty login session id")}
	}
	return &session, nil
}

// GetLoginResult long-polls a login session. Upstream holds the request open
// until someone scans the code; running out of time yields
// domain.ErrLoginPollTimeout.
func (c *Client) GetLoginResult(ctx context.Context, sessionID string) (*domain.LoginResult, error) {
	var resp loginResultResponse
	err := c.do(ctx, c.loginTimeout, http.MethodGet, "/login/session/"+url.PathEscape(sessionID), nil, nil, &resp)
	if err != nil {
		if ctx.Err() == nil && isTimeout(err) {
			return nil, domain.ErrLoginPollTimeout
		}
		return nil, err
	}

	return &domain.LoginResult{
		Message:     resp.Message,
		Identity:    string(resp.ResolvedIdentity),
		Token:       resp.Token,
		DisplayName: resp.DisplayName,
	}, nil
}

func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, body any, cred *domain.Credential, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &domain.UpstreamError{Kind: domain.KindOther, Err: fmt.Errorf("wait for rate limiter: %w", err)}
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cred != nil {
		req.Header.Set("xid", cred.ID)
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.UpstreamError{Kind: domain.KindOther, Err: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		upErr := c.classify(resp.StatusCode, data)
		c.logger.Debug("upstream request failed",
			"method", method,
			"path", req.URL.Path,
			"status", resp.StatusCode,
			"kind", upErr.Kind.String(),
			"code", upErr.Code,
		)
		return upErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.UpstreamError{
			Kind:       domain.KindOther,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}

	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
