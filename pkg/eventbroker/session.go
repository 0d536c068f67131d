package eventbroker

import (
	"strings"

	"github.com/nsyszr/eventbroker/pkg/eventbroker/message"
)

// Session is an active event subscription linking a receiver to the topic of
// a plugin.
type Session struct {
	ReceiverID    string
	PluginID      string
	ServiceID     string
	ProfileName   string
	InterfaceName string
	AttributeName string
	AccessToken   string
	Transport     Transport
}

// SameIdentity reports whether both sessions address the same receiver, plugin,
// service and topic. Access token and transport are not part of the identity.
func (s Session) SameIdentity(o Session) bool {
	return s.PluginID == o.PluginID &&
		s.ReceiverID == o.ReceiverID &&
		s.ServiceID == o.ServiceID &&
		sameName(s.ProfileName, o.ProfileName) &&
		sameName(s.InterfaceName, o.InterfaceName) &&
		sameName(s.AttributeName, o.AttributeName)
}

// HasTopic reports whether the session subscribed the given topic path.
func (s Session) HasTopic(profile, iface, attribute string) bool {
	return sameName(s.ProfileName, profile) &&
		sameName(s.InterfaceName, iface) &&
		sameName(s.AttributeName, attribute)
}

// Deliver sends the event to the subscriber.
func (s Session) Deliver(evt message.Message) error {
	if s.Transport == nil {
		return NewDeliveryError(s.ReceiverID, "none", errNoTransport)
	}
	return s.Transport.Deliver(evt)
}

// sameName compares topic path segments. Path segments are case insensitive
// and an empty segment only matches another empty one.
func sameName(a, b string) bool {
	return strings.EqualFold(a, b)
}
