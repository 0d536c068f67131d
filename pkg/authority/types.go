package authority

import "time"

type Request struct {
	Operation string      `json:"operation,omitempty"`
	Arguments interface{} `json:"arguments,omitempty"`
}

type ReplyStatus int

const (
	ReplyStatusOK ReplyStatus = iota
	ReplyStatusAbort
	ReplyStatusError
)

type Reply struct {
	Status ReplyStatus `json:"status"`
	Result interface{} `json:"result,omitempty"`
}

type AbortResult struct {
	Reason  string      `json:"reason,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

type ErrorDetails struct {
	Message string `json:"message,omitempty"`
}

// AuthorizeArguments ask for an access token of an origin for a service.
// A zero ExpiresIn issues a token that never expires.
type AuthorizeArguments struct {
	Origin    string `json:"origin"`
	ServiceID string `json:"serviceId"`
	ExpiresIn int    `json:"expiresIn,omitempty"`
}

type AuthorizeResult struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`
}

// RotateArguments ask for a new access token of a plugin.
type RotateArguments struct {
	PluginID string `json:"pluginId"`
}

type RotateResult struct {
	AccessToken string `json:"accessToken"`
}

// RevokeArguments ask to revoke all access tokens of an origin.
type RevokeArguments struct {
	Origin string `json:"origin"`
}

type RevokeResult struct {
	Revoked int `json:"revoked"`
}

// Subjects are the subjects the authority serves on.
type Subjects struct {
	Authorize string
	Rotate    string
	Revoke    string
}

const (
	ErrReasonNoSuchPlugin       = "ERR_NO_SUCH_PLUGIN"
	ErrReasonInvalidArguments   = "ERR_INVALID_ARGUMENTS"
	ErrReasonTechnicalException = "ERR_TECHNICAL_EXCEPTION"
)
