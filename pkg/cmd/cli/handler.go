package cli

import "github.com/nsyszr/eventbroker/config"

type Handler struct {
	Migration *MigrateHandler
	Token     *TokenHandler
}

func NewHandler(c *config.Config) *Handler {
	return &Handler{
		Migration: newMigrateHandler(c),
		Token:     newTokenHandler(c),
	}
}
