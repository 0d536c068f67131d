package eventbroker

import (
	"crypto/md5"
	"encoding/hex"

	"github.com/nsyszr/eventbroker/pkg/eventbroker/message"
)

// AnonymousOrigin is hashed into the receiver ID of requests without origin
// when the origin is not required.
const AnonymousOrigin = "<anonymous>"

// Resolver derives the identity a session is keyed by and finds the session
// an event belongs to.
type Resolver interface {
	ComputeReceiverID(req message.Message) (string, error)
	MatchEvent(evt message.Message, sessions []Session) (Session, bool)
	NewSession(req message.Message, serviceID, receiverID, pluginID string) Session
}

type identity struct {
	requireOrigin bool
}

func (id identity) ComputeReceiverID(req message.Message) (string, error) {
	if key := req.String(message.KeySessionKey); key != "" {
		return DecodeLegacyKey(key).ReceiverID, nil
	}

	origin := req.String(message.KeyOrigin)
	if origin == "" {
		if id.requireOrigin {
			return "", ErrIdentityResolution
		}
		origin = AnonymousOrigin
	}

	return md5Hex(origin), nil
}

func (id identity) MatchEvent(evt message.Message, sessions []Session) (Session, bool) {
	serviceID := evt.String(message.KeyServiceID)
	profile := evt.String(message.KeyProfile)
	iface := evt.String(message.KeyInterface)
	attribute := evt.String(message.KeyAttribute)

	if token := evt.String(message.KeyAccessToken); token != "" {
		for _, s := range sessions {
			if s.AccessToken == token &&
				s.ServiceID == serviceID &&
				s.HasTopic(profile, iface, attribute) {
				return s, true
			}
		}
		return Session{}, false
	}

	key := evt.String(message.KeySessionKey)
	if key == "" {
		return Session{}, false
	}

	k := DecodeLegacyKey(key)
	for _, s := range sessions {
		if s.PluginID == k.PluginID &&
			s.ReceiverID == k.ReceiverID &&
			s.ServiceID == serviceID &&
			s.HasTopic(profile, iface, attribute) {
			return s, true
		}
	}
	return Session{}, false
}

func (id identity) session(req message.Message, serviceID, receiverID, pluginID string) Session {
	return Session{
		ReceiverID:    receiverID,
		PluginID:      pluginID,
		ServiceID:     serviceID,
		ProfileName:   req.String(message.KeyProfile),
		InterfaceName: req.String(message.KeyInterface),
		AttributeName: req.String(message.KeyAttribute),
		AccessToken:   req.String(message.KeyAccessToken),
	}
}

// channelResolver builds sessions delivering over the persistent channel
// bound to the receiver ID.
type channelResolver struct {
	identity
	sender ChannelSender
}

// NewChannelResolver creates the resolver for requests that arrived over HTTP
// or the websocket.
func NewChannelResolver(sender ChannelSender, requireOrigin bool) Resolver {
	return &channelResolver{
		identity: identity{requireOrigin: requireOrigin},
		sender:   sender,
	}
}

func (r *channelResolver) NewSession(req message.Message, serviceID, receiverID, pluginID string) Session {
	s := r.session(req, serviceID, receiverID, pluginID)
	s.Transport = NewPersistentChannelSession(receiverID, r.sender)
	return s
}

// callbackResolver builds sessions delivering to the callback target named
// by the request's receiver.
type callbackResolver struct {
	identity
	invoker CallbackInvoker
}

// NewCallbackResolver creates the resolver for requests that carry a callback
// receiver.
func NewCallbackResolver(invoker CallbackInvoker, requireOrigin bool) Resolver {
	return &callbackResolver{
		identity: identity{requireOrigin: requireOrigin},
		invoker:  invoker,
	}
}

func (r *callbackResolver) NewSession(req message.Message, serviceID, receiverID, pluginID string) Session {
	s := r.session(req, serviceID, receiverID, pluginID)
	s.Transport = NewCallbackSession(req.String(message.KeyReceiver), r.invoker)
	return s
}

// IsChannelRequest reports whether the request reached the manager over a
// persistent channel capable path.
func IsChannelRequest(req message.Message) bool {
	switch req.String(message.KeyInnerType) {
	case message.InnerTypeHTTP, message.InnerTypeWebSocket:
		return true
	}
	return false
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
