package websocket

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrChannelNotFound is returned when no channel is bound to a handle.
var ErrChannelNotFound = errors.New("no persistent channel bound to receiver")

// Channel is an open persistent channel.
type Channel interface {
	Send(data []byte) error
	CloseGracefully() error
}

// Hub keeps the open channels by receiver ID. It is the persistent channel
// send primitive of the event broker.
type Hub struct {
	channels map[string]Channel
	sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		channels: make(map[string]Channel),
	}
}

// Bind attaches the channel to the receiver. A channel already bound to the
// receiver is closed.
func (h *Hub) Bind(receiverID string, ch Channel) {
	h.Lock()
	old, ok := h.channels[receiverID]
	h.channels[receiverID] = ch
	h.Unlock()

	if ok && old != ch {
		log.WithField("receiverId", receiverID).Info("websocket replaced by new connection")
		if err := old.CloseGracefully(); err != nil {
			log.WithField("receiverId", receiverID).Debugf("websocket close error: %s", err.Error())
		}
	}
}

// Unbind detaches the channel if it is still the one bound to the receiver.
// It returns true if the channel was detached.
func (h *Hub) Unbind(receiverID string, ch Channel) bool {
	h.Lock()
	defer h.Unlock()

	if cur, ok := h.channels[receiverID]; ok && cur == ch {
		delete(h.channels, receiverID)
		return true
	}
	return false
}

// SendOverPersistentChannel writes the payload to the channel of the receiver.
func (h *Hub) SendOverPersistentChannel(handle string, payload []byte) error {
	h.RLock()
	ch, ok := h.channels[handle]
	h.RUnlock()

	if !ok {
		return ErrChannelNotFound
	}
	return errors.Wrap(ch.Send(payload), "failed to write to websocket")
}

// NotifyDisconnect closes the channel of the receiver.
func (h *Hub) NotifyDisconnect(receiverID string) error {
	h.Lock()
	ch, ok := h.channels[receiverID]
	delete(h.channels, receiverID)
	h.Unlock()

	if !ok {
		return nil
	}

	log.WithField("receiverId", receiverID).Info("websocket disconnect requested")
	return ch.CloseGracefully()
}

// Receivers returns the IDs of all bound receivers.
func (h *Hub) Receivers() []string {
	h.RLock()
	defer h.RUnlock()

	ids := make([]string, 0, len(h.channels))
	for id := range h.channels {
		ids = append(ids, id)
	}
	return ids
}
