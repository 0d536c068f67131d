package natsio

import (
	"strings"

	"github.com/pkg/errors"
)

// CallbackInvoker publishes events to the callback subject a receiver
// registered with its subscribe request.
type CallbackInvoker struct {
	nc Conn
}

// NewCallbackInvoker creates a callback invoker publishing on nc.
func NewCallbackInvoker(nc Conn) *CallbackInvoker {
	return &CallbackInvoker{nc: nc}
}

// InvokeCallback publishes the payload once to target.
func (c *CallbackInvoker) InvokeCallback(target string, payload []byte) error {
	if target == "" || strings.ContainsAny(target, "*> \t") {
		return errors.Errorf("invalid callback subject '%s'", target)
	}
	return errors.Wrap(c.nc.Publish(target, payload), "failed to publish callback")
}
