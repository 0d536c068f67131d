package api

import (
	"time"

	"github.com/labstack/echo"
	"github.com/nsyszr/eventbroker/pkg/eventbroker"
	"github.com/nsyszr/eventbroker/pkg/eventbroker/websocket"
	"github.com/nsyszr/eventbroker/pkg/storage"
	log "github.com/sirupsen/logrus"
)

// Handler contains all properties to serve the API
type Handler struct {
	broker       *eventbroker.Broker
	store        storage.Interface
	hub          *websocket.Hub
	pingInterval time.Duration
}

// NewHandler create a new API handler
func NewHandler(broker *eventbroker.Broker, store storage.Interface, hub *websocket.Hub, pingInterval time.Duration) *Handler {
	return &Handler{
		broker:       broker,
		store:        store,
		hub:          hub,
		pingInterval: pingInterval,
	}
}

// RegisterRoutes attaches the handlers to the echo web server
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	log.Debug("Register API routes")

	gotapi := e.Group("/gotapi")
	gotapi.GET("/websocket", h.websocketHandler())
	gotapi.PUT("/:profile/:attribute", h.handleEventRequest)
	gotapi.DELETE("/:profile/:attribute", h.handleEventRequest)
	gotapi.PUT("/:profile/:interface/:attribute", h.handleEventRequest)
	gotapi.DELETE("/:profile/:interface/:attribute", h.handleEventRequest)

	api := e.Group("/api/v1")
	api.GET("/sessions", h.handleFetchSessions)
	api.GET("/plugins", h.handleFetchPlugins)
	api.POST("/plugins", h.handleCreatePlugin)
	api.GET("/plugins/:id", h.handleGetPluginByID)
	api.DELETE("/plugins/:id", h.handleDeletePlugin)
}
