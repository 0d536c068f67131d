package api

import (
	"net/http"

	"github.com/labstack/echo"
	"github.com/nsyszr/eventbroker/pkg/api/resource"
	"github.com/nsyszr/eventbroker/pkg/eventbroker"
)

// handleFetchSessions lists the subscriptions, optionally narrowed by the
// pluginId and receiverId query parameters.
func (h *Handler) handleFetchSessions(c echo.Context) error {
	pluginID := c.QueryParam("pluginId")
	receiverID := c.QueryParam("receiverId")

	sessions := make([]eventbroker.Session, 0)
	for _, s := range h.broker.Sessions() {
		if pluginID != "" && s.PluginID != pluginID {
			continue
		}
		if receiverID != "" && s.ReceiverID != receiverID {
			continue
		}
		sessions = append(sessions, s)
	}

	return c.JSON(http.StatusOK, resource.NewSessionList(sessions))
}
