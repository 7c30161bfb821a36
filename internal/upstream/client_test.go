package upstream

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed_relay/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(Config{
		BaseURL:            srv.URL + "/",
		Timeout:            2 * time.Second,
		LoginTimeout:       100 * time.Millisecond,
		UserAgent:          "FeedRelay/test",
		UnauthorizedMarker: "Error401",
		RateLimitedMarker:  "Error429",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

var testCred = domain.Credential{ID: "42", Token: "secret"}

func TestFetchArticlesPage_SendsAuthAndPage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/platform/sources/MP_1/articles", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("page"))
		assert.Equal(t, "42", r.Header.Get("xid"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "FeedRelay/test", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"a1","title":"First","picUrl":"http://img/1","publishTime":1700000000},{"id":"a2","title":"Second","picUrl":"","publishTime":1700000100}]`))
	})

	articles, err := client.FetchArticlesPage(context.Background(), testCred, "MP_1", 3)
	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Equal(t, domain.ArticleSummary{ID: "a1", Title: "First", PicURL: "http://img/1", PublishTime: 1700000000}, articles[0])
	assert.Equal(t, "a2", articles[1].ID)
}

func TestFetchArticlesPage_Classification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   domain.ErrorKind
	}{
		{"status 401", http.StatusUnauthorized, `{"message":"expired"}`, domain.KindUnauthorized},
		{"marker 401", http.StatusBadRequest, `{"message":"PlatformError401"}`, domain.KindUnauthorized},
		{"status 429", http.StatusTooManyRequests, ``, domain.KindRateLimited},
		{"marker 429", http.StatusInternalServerError, `{"message":"PlatformError429"}`, domain.KindRateLimited},
		{"plain text marker", http.StatusInternalServerError, `PlatformError429 slow down`, domain.KindRateLimited},
		{"server error", http.StatusInternalServerError, `{"message":"boom"}`, domain.KindOther},
		{"not found", http.StatusNotFound, `{"message":"no such source"}`, domain.KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.FetchArticlesPage(context.Background(), testCred, "MP_1", 1)
			require.Error(t, err)
			assert.Equal(t, tt.kind, domain.KindOf(err))

			var upErr *domain.UpstreamError
			require.ErrorAs(t, err, &upErr)
			assert.Equal(t, tt.status, upErr.StatusCode)
		})
	}
}

func TestFetchArticlesPage_NetworkErrorIsOther(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := srv.URL
	srv.Close()

	client := New(Config{BaseURL: baseURL, Timeout: time.Second}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := client.FetchArticlesPage(context.Background(), testCred, "MP_1", 1)
	require.Error(t, err)
	assert.Equal(t, domain.KindOther, domain.KindOf(err))
}

func TestFetchSourceInfo(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/platform/url-to-source", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req sourceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://example.com/s/abc", req.URL)

		_, _ = w.Write([]byte(`[{"id":"MP_9","name":"Daily","cover":"http://c","intro":"hi","updateTime":1700000000}]`))
	})

	info, err := client.FetchSourceInfo(context.Background(), testCred, "https://example.com/s/abc")
	require.NoError(t, err)
	assert.Equal(t, "MP_9", info.ID)
	assert.Equal(t, "Daily", info.Name)
	assert.Equal(t, int64(1700000000), info.UpdateTime)
}

func TestFetchSourceInfo_Empty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := client.FetchSourceInfo(context.Background(), testCred, "https://example.com/s/abc")
	require.Error(t, err)
}

func TestLoginFlow(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("xid"))
		switch r.URL.Path {
		case "/login/session":
			_, _ = w.Write([]byte(`{"sessionId":"s-1","scanUrl":"https://login.example.com/confirm?s=1"}`))
		case "/login/session/s-1":
			_, _ = w.Write([]byte(`{"message":"ok","resolvedIdentity":42,"token":"fresh","displayName":"Alice"}`))
		default:
			http.NotFound(w, r)
		}
	})

	session, err := client.CreateLoginSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s-1", session.SessionID)
	assert.Equal(t, "https://login.example.com/confirm?s=1", session.ScanURL)

	result, err := client.GetLoginResult(context.Background(), session.SessionID)
	require.NoError(t, err)
	assert.True(t, result.Complete())
	assert.Equal(t, "42", result.Identity)
	assert.Equal(t, "fresh", result.Token)
	assert.Equal(t, "Alice", result.DisplayName)
}

func TestGetLoginResult_Waiting(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"waiting","resolvedIdentity":null}`))
	})

	result, err := client.GetLoginResult(context.Background(), "s-1")
	require.NoError(t, err)
	assert.False(t, result.Complete())
	assert.Equal(t, "waiting", result.Message)
}

func TestGetLoginResult_Timeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	_, err := client.GetLoginResult(context.Background(), "s-1")
	assert.ErrorIs(t, err, domain.ErrLoginPollTimeout)
}

func TestRateLimiter_WaitHonorsContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	limited := New(Config{BaseURL: client.baseURL, Timeout: time.Second, RequestsPerMinute: 1},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := limited.FetchArticlesPage(context.Background(), testCred, "MP_1", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = limited.FetchArticlesPage(ctx, testCred, "MP_1", 1)
	require.Error(t, err)
	assert.Equal(t, domain.KindOther, domain.KindOf(err))
}
