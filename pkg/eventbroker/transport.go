package eventbroker

import (
	"github.com/nsyszr/eventbroker/pkg/eventbroker/message"
	"github.com/pkg/errors"
)

// ChannelSender writes a payload onto an already open persistent channel.
type ChannelSender interface {
	SendOverPersistentChannel(handle string, payload []byte) error
}

// CallbackInvoker fires a one-shot callback to a registered target.
type CallbackInvoker interface {
	InvokeCallback(target string, payload []byte) error
}

// Transport delivers one event to one subscriber.
type Transport interface {
	Kind() string
	Address() string
	Deliver(evt message.Message) error
}

// Transport kinds
const (
	TransportPersistentChannel = "persistent-channel"
	TransportCallback          = "callback"
)

// PersistentChannelSession delivers events over the duplex channel identified
// by Handle.
type PersistentChannelSession struct {
	Handle string
	sender ChannelSender
}

// NewPersistentChannelSession creates a transport writing to the channel with
// the given handle.
func NewPersistentChannelSession(handle string, sender ChannelSender) *PersistentChannelSession {
	return &PersistentChannelSession{Handle: handle, sender: sender}
}

// Kind returns TransportPersistentChannel.
func (t *PersistentChannelSession) Kind() string {
	return TransportPersistentChannel
}

// Address returns the channel handle.
func (t *PersistentChannelSession) Address() string {
	return t.Handle
}

// Deliver sends the event over the persistent channel of the handle.
func (t *PersistentChannelSession) Deliver(evt message.Message) error {
	if t.sender == nil {
		return NewDeliveryError(t.Handle, t.Kind(), errors.New("no channel sender configured"))
	}

	payload, err := evt.Marshal()
	if err != nil {
		return NewDeliveryError(t.Handle, t.Kind(), errors.Wrap(err, "failed to encode event"))
	}

	if err := t.sender.SendOverPersistentChannel(t.Handle, payload); err != nil {
		return NewDeliveryError(t.Handle, t.Kind(), err)
	}
	return nil
}

// CallbackSession delivers every event as one-shot callback to Target.
type CallbackSession struct {
	Target  string
	invoker CallbackInvoker
}

// NewCallbackSession creates a transport invoking the given callback target.
func NewCallbackSession(target string, invoker CallbackInvoker) *CallbackSession {
	return &CallbackSession{Target: target, invoker: invoker}
}

// Kind returns TransportCallback.
func (t *CallbackSession) Kind() string {
	return TransportCallback
}

// Address returns the callback target.
func (t *CallbackSession) Address() string {
	return t.Target
}

// Deliver invokes the callback target once with the event.
func (t *CallbackSession) Deliver(evt message.Message) error {
	if t.invoker == nil {
		return NewDeliveryError(t.Target, t.Kind(), errors.New("no callback invoker configured"))
	}
	if t.Target == "" {
		return NewDeliveryError(t.Target, t.Kind(), errors.New("callback target is empty"))
	}

	payload, err := evt.Marshal()
	if err != nil {
		return NewDeliveryError(t.Target, t.Kind(), errors.Wrap(err, "failed to encode event"))
	}

	if err := t.invoker.InvokeCallback(t.Target, payload); err != nil {
		return NewDeliveryError(t.Target, t.Kind(), err)
	}
	return nil
}
