package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type errorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type sourceRequest struct {
	URL string `json:"url"`
}

type loginResultResponse struct {
	Message          string     `json:"message"`
	ResolvedIdentity flexString `json:"resolvedIdentity"`
	Token            string     `json:"token"`
	DisplayName      string     `json:"displayName"`
}

// flexString accepts a JSON string, number or null. Upstream reports
// account identities as numbers on some endpoints.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identity must be string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}
