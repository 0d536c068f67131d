package resource

import (
	"fmt"
	"sort"
	"time"

	"github.com/nsyszr/eventbroker/pkg/model"
	"golang.org/x/mod/semver"
)

type PluginResource struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	ComponentAddress string     `json:"componentAddress"`
	SDKVersion       string     `json:"sdkVersion"`
	ConnectionType   string     `json:"connectionType"`
	CreatedAt        *time.Time `json:"createdAt,omitempty"`
	UpdatedAt        *time.Time `json:"updatedAt,omitempty"`
}

type PluginListResource struct {
	Members []*PluginResource `json:"members"`
}

func NewPlugin(m *model.Plugin) (out *PluginResource) {
	out = &PluginResource{
		ID:               m.ID,
		Name:             m.Name,
		ComponentAddress: m.ComponentAddress,
		SDKVersion:       m.SDKVersion,
		ConnectionType:   string(m.ConnectionType),
	}

	if !m.CreatedAt.IsZero() {
		out.CreatedAt = &time.Time{}
		*out.CreatedAt = m.CreatedAt.Round(time.Second)
	}
	if !m.UpdatedAt.IsZero() {
		out.UpdatedAt = &time.Time{}
		*out.UpdatedAt = m.UpdatedAt.Round(time.Second)
	}

	return // out
}

func NewPluginList(m map[string]model.Plugin) (out *PluginListResource) {
	out = &PluginListResource{
		Members: make([]*PluginResource, 0),
	}

	for _, elem := range m {
		out.Members = append(out.Members, NewPlugin(&elem))
	}

	// Default sort by ID
	sort.Slice(out.Members, func(i, j int) bool {
		return out.Members[i].ID < out.Members[j].ID
	})

	return // out
}

func ValidatePlugin(r *PluginResource) (m *model.Plugin, err error) {
	if r.ID == "" {
		return nil, fmt.Errorf("id is required")
	}
	if r.SDKVersion != "" && !semver.IsValid("v"+r.SDKVersion) {
		return nil, fmt.Errorf("sdkVersion '%s' is not a valid version", r.SDKVersion)
	}

	connType := model.ConnectionType(r.ConnectionType)
	switch connType {
	case "", model.ConnectionTypeBroadcast, model.ConnectionTypeBinder, model.ConnectionTypeInternal:
	default:
		return nil, fmt.Errorf("connectionType '%s' is unknown", r.ConnectionType)
	}

	m = &model.Plugin{
		ID:               r.ID,
		Name:             r.Name,
		ComponentAddress: r.ComponentAddress,
		SDKVersion:       r.SDKVersion,
		ConnectionType:   connType,
	}

	return m, nil
}
