package resource

import (
	"sort"

	"github.com/nsyszr/eventbroker/pkg/eventbroker"
)

type SessionResource struct {
	ReceiverID string `json:"receiverId"`
	PluginID   string `json:"pluginId"`
	ServiceID  string `json:"serviceId,omitempty"`
	Profile    string `json:"profile"`
	Interface  string `json:"interface,omitempty"`
	Attribute  string `json:"attribute,omitempty"`
	Transport  string `json:"transport"`
	Address    string `json:"address"`
}

type SessionListResource struct {
	Members []*SessionResource `json:"members"`
}

func NewSession(s *eventbroker.Session) (out *SessionResource) {
	out = &SessionResource{
		ReceiverID: s.ReceiverID,
		PluginID:   s.PluginID,
		ServiceID:  s.ServiceID,
		Profile:    s.ProfileName,
		Interface:  s.InterfaceName,
		Attribute:  s.AttributeName,
	}

	if s.Transport != nil {
		out.Transport = s.Transport.Kind()
		out.Address = s.Transport.Address()
	}

	return // out
}

func NewSessionList(sessions []eventbroker.Session) (out *SessionListResource) {
	out = &SessionListResource{
		Members: make([]*SessionResource, 0),
	}

	for i := range sessions {
		out.Members = append(out.Members, NewSession(&sessions[i]))
	}

	// Default sort by plugin, keeps the subscription order within a plugin
	sort.SliceStable(out.Members, func(i, j int) bool {
		return out.Members[i].PluginID < out.Members[j].PluginID
	})

	return // out
}
