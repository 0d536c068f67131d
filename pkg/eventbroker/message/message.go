package message

import (
	"encoding/json"
	"strings"
)

// Keys of the properties the broker reads or writes. Every other property is
// carried through untouched.
const (
	KeyAction         = "action"
	KeyOrigin         = "origin"
	KeyServiceID      = "serviceId"
	KeyProfile        = "profile"
	KeyInterface      = "interface"
	KeyAttribute      = "attribute"
	KeyAccessToken    = "accessToken"
	KeySessionKey     = "sessionKey"
	KeyReceiver       = "receiver"
	KeyInnerType      = "_type"
	KeyPluginID       = "pluginId"
	KeyReceiverID     = "receiverId"
	KeyNetworkService = "networkService"
	KeyID             = "id"
)

// Request verbs
const (
	ActionGet    = "GET"
	ActionPost   = "POST"
	ActionPut    = "PUT"
	ActionDelete = "DELETE"
)

// Inner types tell how the request reached the manager.
const (
	InnerTypeHTTP      = "http"
	InnerTypeWebSocket = "websocket"
	InnerTypeCallback  = "callback"
)

// Message is the keyed-property envelope of requests and events.
type Message map[string]interface{}

// New creates an empty message.
func New() Message {
	return make(Message)
}

// String returns the property as string. Missing and non-string properties
// yield the empty string.
func (m Message) String(key string) string {
	if m == nil {
		return ""
	}
	s, ok := m[key].(string)
	if !ok {
		return ""
	}
	return s
}

// Has reports whether the property is present and not an empty string.
func (m Message) Has(key string) bool {
	return m.String(key) != ""
}

// Set stores the property. Empty strings remove it, since the broker treats
// empty and null the same.
func (m Message) Set(key string, value interface{}) {
	if s, ok := value.(string); ok && s == "" {
		delete(m, key)
		return
	}
	m[key] = value
}

// Del removes the property.
func (m Message) Del(key string) {
	delete(m, key)
}

// Map returns a nested message, e.g. the network service of a service change
// event.
func (m Message) Map(key string) (Message, bool) {
	switch v := m[key].(type) {
	case Message:
		return v, true
	case map[string]interface{}:
		return Message(v), true
	}
	return nil, false
}

// Action returns the upper cased request verb.
func (m Message) Action() string {
	return strings.ToUpper(m.String(KeyAction))
}

// Clone returns a copy which can be modified without touching the original.
// Nested messages are copied, other values are shared.
func (m Message) Clone() Message {
	out := make(Message, len(m))
	for k, v := range m {
		if nested, ok := m.Map(k); ok {
			out[k] = nested.Clone()
			continue
		}
		out[k] = v
	}
	return out
}

// Marshal encodes the message as JSON object.
func (m Message) Marshal() ([]byte, error) {
	return json.Marshal(map[string]interface{}(m))
}

// Unmarshal decodes a JSON object into a message.
func Unmarshal(data []byte) (Message, error) {
	m := New()
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
