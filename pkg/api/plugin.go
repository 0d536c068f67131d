package api

import (
	"net/http"

	"github.com/labstack/echo"
	"github.com/nsyszr/eventbroker/pkg/api/resource"
	"github.com/nsyszr/eventbroker/pkg/storage"
)

func (h *Handler) handleFetchPlugins(c echo.Context) error {
	m, err := h.store.Plugins().FetchAll()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewErrorResult(err))
	}

	return c.JSON(http.StatusOK, resource.NewPluginList(m))
}

func (h *Handler) handleGetPluginByID(c echo.Context) error {
	m, err := h.store.Plugins().FindByID(c.Param("id"))
	if err != nil && err == storage.ErrNotFound {
		return c.JSON(http.StatusNotFound, resource.NewErrorResult(err))
	} else if err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewErrorResult(err))
	}

	return c.JSON(http.StatusOK, resource.NewPlugin(m))
}

func (h *Handler) handleCreatePlugin(c echo.Context) error {
	r := &resource.PluginResource{}
	if err := c.Bind(r); err != nil {
		return c.JSON(http.StatusBadRequest, resource.NewErrorResult(err))
	}

	m, err := resource.ValidatePlugin(r)
	if err != nil {
		return c.JSON(http.StatusBadRequest, resource.NewErrorResult(err))
	}

	err = h.store.Plugins().Create(m)
	if err != nil && err == storage.ErrExists {
		return c.JSON(http.StatusConflict, resource.NewErrorResult(err))
	} else if err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewErrorResult(err))
	}

	return c.JSON(http.StatusCreated, resource.NewPlugin(m))
}

func (h *Handler) handleDeletePlugin(c echo.Context) error {
	id := c.Param("id")

	err := h.store.Plugins().Delete(id)
	if err != nil && err == storage.ErrNotFound {
		return c.JSON(http.StatusNotFound, resource.NewErrorResult(err))
	} else if err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewErrorResult(err))
	}

	// An uninstalled plugin doesn't produce events anymore
	h.broker.OnPluginDisconnected(id)

	return c.NoContent(http.StatusNoContent)
}
