package natsio

import (
	"github.com/nsyszr/eventbroker/pkg/eventbroker/message"
)

type ReplyStatus int

const (
	ReplyStatusOK ReplyStatus = iota
	ReplyStatusAbort
	ReplyStatusError
)

// Abort reasons
const (
	ErrReasonIdentityResolution = "ERR_IDENTITY_RESOLUTION"
	ErrReasonNoSuchPlugin       = "ERR_NO_SUCH_PLUGIN"
	ErrReasonInvalidRequest     = "ERR_INVALID_REQUEST"
	ErrReasonTechnicalException = "ERR_TECHNICAL_EXCEPTION"
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

// RequestResult is the reply to a handled subscribe or unsubscribe request.
// Request carries the stamped access token and the back-filled session key.
type RequestResult struct {
	Request message.Message `json:"request"`
}

// LivenessSignal is sent to a plugin.
type LivenessSignal struct {
	PluginID string `json:"pluginId"`
	Signal   string `json:"signal"`
}

// Liveness answers of plugins
const (
	LivenessStatusResponse   = "RESPONSE"
	LivenessStatusDisconnect = "DISCONNECT"
)

// LivenessAnswer is sent by a plugin, either as answer to a check or to
// request the disconnect of a receiver.
type LivenessAnswer struct {
	Status     string `json:"status"`
	PluginID   string `json:"pluginId,omitempty"`
	ReceiverID string `json:"receiverId,omitempty"`
}

func newAbortReply(reason string, err error) Reply {
	r := &AbortResult{Reason: reason}
	if err != nil {
		r.Details = &ErrorDetails{Message: err.Error()}
	}
	return Reply{Status: ReplyStatusAbort, Result: r}
}
