package natsio

import (
	"encoding/json"

	nats "github.com/nats-io/nats.go"
	"github.com/nsyszr/eventbroker/pkg/eventbroker"
	"github.com/nsyszr/eventbroker/pkg/eventbroker/message"
	"github.com/nsyszr/eventbroker/pkg/storage"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Ingress passes the events and requests published on NATS to the broker.
type Ingress struct {
	nc       Conn
	subjects Subjects
	broker   *eventbroker.Broker
	store    storage.Interface
}

// NewIngress creates the NATS ingress of the broker. Plugins of requests are
// looked up in store.
func NewIngress(nc Conn, subjects Subjects, broker *eventbroker.Broker, store storage.Interface) *Ingress {
	return &Ingress{
		nc:       nc,
		subjects: subjects,
		broker:   broker,
		store:    store,
	}
}

// Subscribe starts consuming events and requests.
func (i *Ingress) Subscribe() error {
	if i.nc == nil {
		return errors.New("connection to nats is missing")
	}

	if _, err := i.nc.QueueSubscribe(i.subjects.Events(), i.subjects.EventsQueue(), i.handleEvent); err != nil {
		return err
	}

	if _, err := i.nc.Subscribe(i.subjects.Requests(), i.handleRequest); err != nil {
		return err
	}

	log.Debugf("ingress subscribed to %s and %s", i.subjects.Events(), i.subjects.Requests())
	return nil
}

func (i *Ingress) handleEvent(msg *nats.Msg) {
	evt, err := message.Unmarshal(msg.Data)
	if err != nil {
		log.Warnf("ingress received invalid event: %s", err.Error())
		return
	}

	// Delivery errors are logged by the broker
	if err := i.broker.HandleEvent(evt); err != nil && !eventbroker.IsDeliveryError(err) {
		log.Errorf("ingress failed to handle event: %s", err.Error())
	}
}

func (i *Ingress) handleRequest(msg *nats.Msg) {
	reply := i.processRequest(msg.Data)
	if msg.Reply == "" {
		return
	}

	data, err := json.Marshal(reply)
	if err != nil {
		log.Errorf("ingress failed to marshal reply: %s", err.Error())
		return
	}
	if err := i.nc.Publish(msg.Reply, data); err != nil {
		log.Errorf("ingress failed to publish reply: %s", err.Error())
	}
}

func (i *Ingress) processRequest(data []byte) Reply {
	req, err := message.Unmarshal(data)
	if err != nil {
		return newAbortReply(ErrReasonInvalidRequest, err)
	}

	pluginID := req.String(message.KeyPluginID)
	plugin, err := i.store.Plugins().FindByID(pluginID)
	if err == storage.ErrNotFound {
		return newAbortReply(ErrReasonNoSuchPlugin, errors.Errorf("plugin '%s' not found", pluginID))
	} else if err != nil {
		return newAbortReply(ErrReasonTechnicalException, err)
	}

	if err := i.broker.HandleRequest(req, plugin); err != nil {
		if eventbroker.IsIdentityError(err) {
			return newAbortReply(ErrReasonIdentityResolution, err)
		}
		return newAbortReply(ErrReasonTechnicalException, err)
	}

	return Reply{
		Status: ReplyStatusOK,
		Result: &RequestResult{Request: req},
	}
}
