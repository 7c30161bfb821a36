package domain

import "time"

type CredentialStatus int

const (
	CredentialInvalid  CredentialStatus = 0
	CredentialValid    CredentialStatus = 1
	CredentialDisabled CredentialStatus = 2
)

func (s CredentialStatus) String() string {
	switch s {
	case CredentialInvalid:
		return "invalid"
	case CredentialValid:
		return "valid"
	case CredentialDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Credential is an upstream account. ID doubles as the xid auth header.
type Credential struct {
	ID        string           `db:"id" json:"id"`
	Token     string           `db:"token" json:"-"`
	Name      string           `db:"name" json:"name"`
	Status    CredentialStatus `db:"status" json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time        `db:"updated_at" json:"updatedAt"`
}

// CredentialUpdate is a partial update; nil fields are left untouched.
type CredentialUpdate struct {
	Token  *string
	Name   *string
	Status *CredentialStatus
}

func (u CredentialUpdate) Empty() bool {
	return u.Token == nil && u.Name == nil && u.Status == nil
}

// LoginSession is a pending QR login started upstream.
type LoginSession struct {
	SessionID string `json:"sessionId"`
	ScanURL   string `json:"scanUrl"`
}

// LoginResult is one answer of the login-result long poll.
type LoginResult struct {
	Message     string
	Identity    string
	Token       string
	DisplayName string
}

// Complete reports whether the login finished with a usable token.
func (r LoginResult) Complete() bool {
	return r.Identity != "" && r.Token != ""
}

// LoginAlert is sent to operators when a credential needs a fresh login.
type LoginAlert struct {
	CredentialID   string
	CredentialName string
	ScanURL        string
	QRImage        []byte
}
