package authority

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	nats "github.com/nats-io/nats.go"
	"github.com/nsyszr/eventbroker/pkg/model"
	"github.com/nsyszr/eventbroker/pkg/storage"
	log "github.com/sirupsen/logrus"
)

// Conn is the part of a NATS connection the authority uses.
type Conn interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// TokenRotator is told about new plugin tokens, e.g. the event broker.
type TokenRotator interface {
	OnTokenRotated(pluginID, token string)
}

// AuthorityHandler is the local token authority. It issues access tokens for
// origins and rotates the tokens of plugins.
type AuthorityHandler struct {
	nc       Conn
	store    storage.Interface
	rotator  TokenRotator
	subjects Subjects
}

// NewAuthorityHandler creates the authority serving on the given subjects.
func NewAuthorityHandler(nc Conn, store storage.Interface, rotator TokenRotator, subjects Subjects) *AuthorityHandler {
	return &AuthorityHandler{
		nc:       nc,
		store:    store,
		rotator:  rotator,
		subjects: subjects,
	}
}

func (h *AuthorityHandler) Subscribe() error {
	if h.nc == nil {
		return fmt.Errorf("connection to nats is missing")
	}

	if _, err := h.nc.Subscribe(h.subjects.Authorize, h.replyWith(h.handleAuthorizeRequest)); err != nil {
		return err
	}

	if _, err := h.nc.Subscribe(h.subjects.Rotate, h.replyWith(h.handleRotateRequest)); err != nil {
		return err
	}

	if _, err := h.nc.Subscribe(h.subjects.Revoke, h.replyWith(h.handleRevokeRequest)); err != nil {
		return err
	}

	return nil
}

func (h *AuthorityHandler) replyWith(handle func(data []byte) ([]byte, error)) nats.MsgHandler {
	return func(msg *nats.Msg) {
		data, err := handle(msg.Data)
		if err != nil {
			log.Errorf("authority failed to handle request on %s: %s", msg.Subject, err.Error())
			data, _ = json.Marshal(abortReply(ErrReasonTechnicalException, err))
		}
		if msg.Reply == "" {
			return
		}
		if err := h.nc.Publish(msg.Reply, data); err != nil {
			log.Errorf("authority failed to publish reply: %s", err.Error())
		}
	}
}

func (h *AuthorityHandler) handleAuthorizeRequest(data []byte) ([]byte, error) {
	args := &AuthorizeArguments{}
	req := Request{Arguments: args}

	if err := json.Unmarshal(data, &req); err != nil {
		// Results into a technical exception error
		return nil, err
	}

	if args.Origin == "" {
		return json.Marshal(abortReply(ErrReasonInvalidArguments, fmt.Errorf("origin is missing")))
	}

	tok, err := h.Authorize(args.Origin, args.ServiceID, time.Duration(args.ExpiresIn)*time.Second)
	if err != nil {
		return nil, err
	}

	reply := Reply{
		Status: ReplyStatusOK,
		Result: &AuthorizeResult{
			AccessToken: tok.Token,
			ExpiresAt:   tok.ExpiresAt,
		},
	}
	return json.Marshal(reply)
}

func (h *AuthorityHandler) handleRotateRequest(data []byte) ([]byte, error) {
	args := &RotateArguments{}
	req := Request{Arguments: args}

	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}

	token, err := h.Rotate(args.PluginID)
	if err == storage.ErrNotFound {
		return json.Marshal(abortReply(ErrReasonNoSuchPlugin, fmt.Errorf("plugin '%s' not found", args.PluginID)))
	} else if err != nil {
		return nil, err
	}

	reply := Reply{
		Status: ReplyStatusOK,
		Result: &RotateResult{AccessToken: token},
	}
	return json.Marshal(reply)
}

func (h *AuthorityHandler) handleRevokeRequest(data []byte) ([]byte, error) {
	args := &RevokeArguments{}
	req := Request{Arguments: args}

	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}

	if args.Origin == "" {
		return json.Marshal(abortReply(ErrReasonInvalidArguments, fmt.Errorf("origin is missing")))
	}

	n, err := h.Revoke(args.Origin)
	if err != nil {
		return nil, err
	}

	reply := Reply{
		Status: ReplyStatusOK,
		Result: &RevokeResult{Revoked: n},
	}
	return json.Marshal(reply)
}

// Authorize issues a new access token for the origin and service. It
// replaces a token issued earlier.
func (h *AuthorityHandler) Authorize(origin, serviceID string, expiresIn time.Duration) (*model.AccessToken, error) {
	tok := &model.AccessToken{
		Origin:    origin,
		ServiceID: serviceID,
		Token:     uuid.New().String(),
	}
	if expiresIn > 0 {
		tok.ExpiresAt = time.Now().Add(expiresIn).Round(time.Second).UTC()
	}

	if err := h.store.Tokens().Create(tok); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"origin":    origin,
		"serviceId": serviceID,
	}).Info("authority issued access token")
	return tok, nil
}

// Rotate issues a new access token for the plugin and propagates it to the
// sessions of the plugin.
func (h *AuthorityHandler) Rotate(pluginID string) (string, error) {
	if _, err := h.store.Plugins().FindByID(pluginID); err != nil {
		return "", err
	}

	token := uuid.New().String()
	if h.rotator != nil {
		h.rotator.OnTokenRotated(pluginID, token)
	}

	log.WithField("pluginId", pluginID).Info("authority rotated plugin token")
	return token, nil
}

// Revoke deletes all access tokens of the origin. Subscriptions of the origin
// get a fresh token on the next request.
func (h *AuthorityHandler) Revoke(origin string) (int, error) {
	n, err := h.store.Tokens().DeleteByOrigin(origin)
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"origin":  origin,
		"revoked": n,
	}).Info("authority revoked access tokens")
	return n, nil
}

func abortReply(reason string, err error) Reply {
	r := &AbortResult{Reason: reason}
	if err != nil {
		r.Details = &ErrorDetails{Message: err.Error()}
	}
	return Reply{Status: ReplyStatusAbort, Result: r}
}
