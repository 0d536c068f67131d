package eventbroker

import (
	"fmt"

	"github.com/pkg/errors"
)

// IdentityError is returned when no receiver ID can be derived from a request.
type IdentityError struct {
	Reason string
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("identity resolution failed: %s", e.Reason)
}

// ErrIdentityResolution is returned for requests without origin and session
// key while the origin is required.
var ErrIdentityResolution = NewIdentityError("request carries neither origin nor session key")

// NewIdentityError creates a new identity resolution error.
func NewIdentityError(reason string) *IdentityError {
	return &IdentityError{Reason: reason}
}

// IsIdentityError returns true if the cause of err is an IdentityError.
func IsIdentityError(err error) bool {
	_, ok := errors.Cause(err).(*IdentityError)
	return ok
}

// DeliveryError wraps the error of a transport primitive.
type DeliveryError struct {
	ReceiverID string
	Transport  string
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("failed to deliver event to receiver %s over %s: %v", e.ReceiverID, e.Transport, e.Err)
}

// Cause returns the error of the transport primitive.
func (e *DeliveryError) Cause() error {
	return e.Err
}

// NewDeliveryError creates a new delivery error.
func NewDeliveryError(receiverID, transport string, err error) *DeliveryError {
	return &DeliveryError{
		ReceiverID: receiverID,
		Transport:  transport,
		Err:        err,
	}
}

// IsDeliveryError returns true if err is a DeliveryError.
func IsDeliveryError(err error) bool {
	_, ok := err.(*DeliveryError)
	return ok
}

var errNoTransport = errors.New("session has no transport")
