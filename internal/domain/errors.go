package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNoCredentialAvailable = errors.New("no credential available")
	ErrFeedNotFound          = errors.New("feed not found")
	ErrCredentialNotFound    = errors.New("credential not found")
	ErrLoginPollTimeout      = errors.New("login poll timed out")
)

// ErrorKind classifies upstream failures by their effect on credential state.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindUnauthorized
	KindRateLimited
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "other"
	}
}

// UpstreamError is a classified failure of an upstream call.
type UpstreamError struct {
	Kind       ErrorKind
	StatusCode int
	Code       string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("upstream %s", e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// KindOf returns the classification carried by err, KindOther when none.
func KindOf(err error) ErrorKind {
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Kind
	}
	return KindOther
}
