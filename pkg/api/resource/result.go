package resource

// Result codes of the event API
const (
	ResultOK    = 0
	ResultError = 1
)

// ResultResource is the answer of the event API.
type ResultResource struct {
	Result       int    `json:"result"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	SessionKey   string `json:"sessionKey,omitempty"`
	ReceiverID   string `json:"receiverId,omitempty"`
}

func NewResult() *ResultResource {
	return &ResultResource{Result: ResultOK}
}

func NewErrorResult(err error) *ResultResource {
	return &ResultResource{
		Result:       ResultError,
		ErrorMessage: err.Error(),
	}
}
