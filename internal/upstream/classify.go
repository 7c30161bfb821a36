package upstream

import (
	"encoding/json"
	"net/http"
	"strings"

	"feed_relay/internal/domain"
)

const maxCodeLen = 200

// classify maps an upstream failure response onto an ErrorKind using the
// HTTP status and the error code embedded in the body.
func (c *Client) classify(status int, body []byte) *domain.UpstreamError {
	code := errorCode(body)

	kind := domain.KindOther
	switch {
	case status == http.StatusUnauthorized || containsMarker(code, c.unauthorizedMarker):
		kind = domain.KindUnauthorized
	case status == http.StatusTooManyRequests || containsMarker(code, c.rateLimitedMarker):
		kind = domain.KindRateLimited
	}

	return &domain.UpstreamError{Kind: kind, StatusCode: status, Code: code}
}

func errorCode(body []byte) string {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		if resp.Message != "" {
			return resp.Message
		}
		if resp.Code != "" {
			return resp.Code
		}
	}

	code := strings.TrimSpace(string(body))
	if len(code) > maxCodeLen {
		code = code[:maxCodeLen]
	}
	return code
}

func containsMarker(code, marker string) bool {
	return marker != "" && strings.Contains(code, marker)
}
