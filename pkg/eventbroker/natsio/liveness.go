package natsio

import (
	"encoding/json"

	nats "github.com/nats-io/nats.go"
	"github.com/nsyszr/eventbroker/pkg/eventbroker"
	"github.com/nsyszr/eventbroker/pkg/model"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// LivenessChannel sends the keep-alive signals to plugins and feeds their
// answers back into the broker.
type LivenessChannel struct {
	nc       Conn
	subjects Subjects
	broker   *eventbroker.Broker
}

// NewLivenessChannel creates a liveness channel. The broker may be set later
// with SetBroker, since the supervisor needs the channel before the broker
// exists.
func NewLivenessChannel(nc Conn, subjects Subjects) *LivenessChannel {
	return &LivenessChannel{
		nc:       nc,
		subjects: subjects,
	}
}

// SetBroker sets the broker the answers are forwarded to.
func (c *LivenessChannel) SetBroker(b *eventbroker.Broker) {
	c.broker = b
}

// SendLivenessSignal publishes the signal to the keep-alive subject of the
// plugin.
func (c *LivenessChannel) SendLivenessSignal(plugin model.Plugin, sig eventbroker.Signal) error {
	data, err := json.Marshal(&LivenessSignal{PluginID: plugin.ID, Signal: string(sig)})
	if err != nil {
		return err
	}
	return errors.Wrap(c.nc.Publish(c.subjects.PluginKeepAlive(plugin.ID), data), "failed to publish liveness signal")
}

// Subscribe listens for answers of the plugins.
func (c *LivenessChannel) Subscribe() error {
	if c.nc == nil {
		return errors.New("connection to nats is missing")
	}
	if c.broker == nil {
		return errors.New("liveness channel has no broker")
	}

	if _, err := c.nc.Subscribe(c.subjects.KeepAlive(), c.handleMessage); err != nil {
		return err
	}

	log.Debugf("liveness channel subscribed to %s", c.subjects.KeepAlive())
	return nil
}

func (c *LivenessChannel) handleMessage(msg *nats.Msg) {
	answer := LivenessAnswer{}
	if err := json.Unmarshal(msg.Data, &answer); err != nil {
		log.Warnf("liveness channel received invalid message: %s", err.Error())
		return
	}

	switch answer.Status {
	case LivenessStatusResponse:
		c.broker.OnLivenessResponse(answer.PluginID)
	case LivenessStatusDisconnect:
		if err := c.broker.OnRequestDisconnect(answer.ReceiverID); err != nil {
			log.WithField("receiverId", answer.ReceiverID).Errorf("failed to disconnect receiver: %s", err.Error())
		}
	default:
		log.Warnf("liveness channel received unknown status '%s'", answer.Status)
	}
}
