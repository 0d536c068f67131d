package api

import (
	"encoding/json"

	"github.com/gobwas/ws"
	"github.com/labstack/echo"
	"github.com/nsyszr/eventbroker/pkg/api/resource"
	"github.com/nsyszr/eventbroker/pkg/eventbroker/message"
	"github.com/nsyszr/eventbroker/pkg/eventbroker/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// bindRequest is the first frame a client sends over the websocket.
type bindRequest struct {
	Origin     string `json:"origin"`
	SessionKey string `json:"sessionKey"`
}

func (h *Handler) websocketHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, _, _, err := ws.UpgradeHTTP(c.Request(), c.Response())
		if err != nil {
			log.Error("api: failed to upgrade to websocket: ", err)
			return nil
		}

		terminateCh := make(chan struct{})
		driver := websocket.NewDriver(conn, terminateCh, h.pingInterval)
		driver.Start()
		defer func() {
			driver.Stop()
			conn.Close()
			driver.Close()
		}()

		receiverID := ""
		for {
			select {
			case m := <-driver.Inbox:
				if receiverID != "" {
					// Bound channels are send only
					continue
				}

				id, err := h.bindChannel(m.Data, driver)
				if err != nil {
					log.Warnf("api: websocket bind failed: %s", err.Error())
					sendResult(driver, resource.NewErrorResult(err))
					driver.CloseGracefully()
					continue
				}
				receiverID = id

				res := resource.NewResult()
				res.ReceiverID = receiverID
				sendResult(driver, res)
			case <-terminateCh:
				if receiverID != "" && h.hub.Unbind(receiverID, driver) {
					h.broker.OnReceiverDisconnected(receiverID)
				}
				log.Debug("api: websocket handler exits")
				return nil
			}
		}
	}
}

func (h *Handler) bindChannel(data []byte, driver *websocket.Driver) (string, error) {
	bind := bindRequest{}
	if err := json.Unmarshal(data, &bind); err != nil {
		return "", errors.Wrap(err, "invalid bind request")
	}

	req := message.New()
	req.Set(message.KeyInnerType, message.InnerTypeWebSocket)
	req.Set(message.KeyOrigin, bind.Origin)
	req.Set(message.KeySessionKey, bind.SessionKey)

	receiverID, err := h.broker.ResolverFor(req).ComputeReceiverID(req)
	if err != nil {
		return "", err
	}

	h.hub.Bind(receiverID, driver)
	log.WithField("receiverId", receiverID).Info("api: websocket bound")
	return receiverID, nil
}

func sendResult(driver *websocket.Driver, res *resource.ResultResource) {
	data, err := json.Marshal(res)
	if err != nil {
		log.Errorf("api: failed to marshal websocket result: %s", err.Error())
		return
	}
	if err := driver.Send(data); err != nil {
		log.Errorf("api: failed to send websocket result: %s", err.Error())
	}
}
