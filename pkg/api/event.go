package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo"
	"github.com/nsyszr/eventbroker/pkg/api/resource"
	"github.com/nsyszr/eventbroker/pkg/eventbroker"
	"github.com/nsyszr/eventbroker/pkg/eventbroker/message"
	"github.com/nsyszr/eventbroker/pkg/model"
	"github.com/nsyszr/eventbroker/pkg/storage"
	"github.com/pkg/errors"
)

// HeaderOrigin carries the origin of native applications.
const HeaderOrigin = "X-GotAPI-Origin"

var errNoSuchPlugin = errors.New("no plugin provides the service")

func (h *Handler) handleEventRequest(c echo.Context) error {
	req := newEventRequest(c)

	plugin, err := h.findPlugin(c.QueryParam(message.KeyPluginID), req.String(message.KeyServiceID))
	if err == errNoSuchPlugin || err == storage.ErrNotFound {
		return c.JSON(http.StatusNotFound, resource.NewErrorResult(err))
	} else if err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewErrorResult(err))
	}

	if err := h.broker.HandleRequest(req, plugin); err != nil {
		if eventbroker.IsIdentityError(err) {
			return c.JSON(http.StatusBadRequest, resource.NewErrorResult(err))
		}
		return c.JSON(http.StatusInternalServerError, resource.NewErrorResult(err))
	}

	res := resource.NewResult()
	res.AccessToken = req.String(message.KeyAccessToken)
	res.SessionKey = req.String(message.KeySessionKey)
	return c.JSON(http.StatusOK, res)
}

func newEventRequest(c echo.Context) message.Message {
	req := message.New()
	req.Set(message.KeyAction, c.Request().Method)
	req.Set(message.KeyInnerType, message.InnerTypeHTTP)
	req.Set(message.KeyProfile, c.Param("profile"))
	req.Set(message.KeyInterface, c.Param("interface"))
	req.Set(message.KeyAttribute, c.Param("attribute"))
	req.Set(message.KeyServiceID, c.QueryParam(message.KeyServiceID))
	req.Set(message.KeySessionKey, c.QueryParam(message.KeySessionKey))
	req.Set(message.KeyAccessToken, c.QueryParam(message.KeyAccessToken))

	origin := c.Request().Header.Get(HeaderOrigin)
	if origin == "" {
		origin = c.Request().Header.Get(echo.HeaderOrigin)
	}
	req.Set(message.KeyOrigin, origin)

	return req
}

// findPlugin looks the plugin up by ID, or else by the plugin ID embedded in
// the qualified service ID.
func (h *Handler) findPlugin(pluginID, serviceID string) (*model.Plugin, error) {
	if pluginID != "" {
		return h.store.Plugins().FindByID(pluginID)
	}

	plugins, err := h.store.Plugins().FetchAll()
	if err != nil {
		return nil, err
	}

	var found *model.Plugin
	for id := range plugins {
		if !containsSegment(serviceID, id) {
			continue
		}
		// Prefer the longest plugin ID if IDs are nested
		if found == nil || len(id) > len(found.ID) {
			p := plugins[id]
			found = &p
		}
	}

	if found == nil {
		return nil, errNoSuchPlugin
	}
	return found, nil
}

func containsSegment(serviceID, pluginID string) bool {
	if serviceID == pluginID {
		return true
	}
	return strings.HasPrefix(serviceID, pluginID+".") || strings.Contains(serviceID, "."+pluginID+".")
}
