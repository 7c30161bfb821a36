package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed_relay/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestWebhook_PostsAlert(t *testing.T) {
	received := make(chan alertPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload alertPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		received <- payload
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, time.Second, testLogger())
	hook.Notify(context.Background(), domain.LoginAlert{
		CredentialID:   "42",
		CredentialName: "ops",
		ScanURL:        "https://login/s-1",
		QRImage:        []byte{0x89, 'P', 'N', 'G'},
	})

	payload := <-received
	assert.Equal(t, "42", payload.CredentialID)
	assert.Equal(t, "https://login/s-1", payload.ScanURL)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, payload.QRImage)
	assert.Contains(t, payload.Text, "ops")
}

func TestWebhook_FailuresDoNotPanic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, time.Second, testLogger())
	require.Error(t, hook.post(context.Background(), domain.LoginAlert{CredentialID: "42"}))

	hook.Notify(context.Background(), domain.LoginAlert{CredentialID: "42"})
	NewWebhook("", time.Second, testLogger()).Notify(context.Background(), domain.LoginAlert{CredentialID: "42"})
}

func TestQRRenderer_ProducesPNG(t *testing.T) {
	image, err := NewQRRenderer(128).Render("https://login.example.com/confirm?s=1")
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(image))
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())
}
