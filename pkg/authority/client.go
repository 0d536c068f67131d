package authority

import (
	"encoding/json"
	"fmt"
	"time"

	nats "github.com/nats-io/nats.go"
)

type AuthorizeError struct {
	Reason  string
	Details interface{}
}

func NewAuthorizeError(reason string, details interface{}) error {
	return &AuthorizeError{
		Reason:  reason,
		Details: details,
	}
}

func (e *AuthorizeError) Error() string {
	return fmt.Sprintf("authorization failed, reason: %s", e.Reason)
}

func IsAuthorizationError(e error) bool {
	_, ok := e.(*AuthorizeError)
	return ok
}

// Requester sends a request and waits for the reply.
type Requester interface {
	Request(subj string, data []byte, timeout time.Duration) (*nats.Msg, error)
}

type AuthorityClient struct {
	nc       Requester
	subjects Subjects
	timeout  time.Duration
}

func NewAuthorityClient(nc Requester, subjects Subjects) *AuthorityClient {
	return &AuthorityClient{
		nc:       nc,
		subjects: subjects,
		timeout:  10 * time.Second,
	}
}

// Authorize asks the authority for an access token.
func (c *AuthorityClient) Authorize(origin, serviceID string, expiresIn time.Duration) (*AuthorizeResult, error) {
	result := &AuthorizeResult{}
	args := &AuthorizeArguments{
		Origin:    origin,
		ServiceID: serviceID,
		ExpiresIn: int(expiresIn / time.Second),
	}
	if err := c.request(c.subjects.Authorize, args, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Rotate asks the authority for a new plugin token.
func (c *AuthorityClient) Rotate(pluginID string) (*RotateResult, error) {
	result := &RotateResult{}
	if err := c.request(c.subjects.Rotate, &RotateArguments{PluginID: pluginID}, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Revoke asks the authority to revoke all access tokens of an origin.
func (c *AuthorityClient) Revoke(origin string) (*RevokeResult, error) {
	result := &RevokeResult{}
	if err := c.request(c.subjects.Revoke, &RevokeArguments{Origin: origin}, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *AuthorityClient) request(subj string, args interface{}, result interface{}) error {
	// Request
	data, err := json.Marshal(Request{Arguments: args})
	if err != nil {
		return err
	}
	msg, err := c.nc.Request(subj, data, c.timeout)
	if err != nil {
		return err
	}

	// Response
	reply := Reply{}
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return err
	}

	switch reply.Status {
	case ReplyStatusOK:
		// Rerun Unmarshal with the proper Result type
		reply := Reply{Result: result}
		return json.Unmarshal(msg.Data, &reply)
	case ReplyStatusAbort:
		abortResult := &AbortResult{}
		reply := Reply{Result: abortResult}
		if err := json.Unmarshal(msg.Data, &reply); err != nil {
			return err
		}
		return NewAuthorizeError(abortResult.Reason, abortResult.Details)
	}
	return fmt.Errorf("unexpected reply for authority request")
}
