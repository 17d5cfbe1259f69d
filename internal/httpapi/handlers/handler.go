package handlers

import (
	"bodyconsumer/internal/config"
	"bodyconsumer/internal/service"
)

type Handler struct {
	cfg config.Config
	svc *service.Service
}

func New(cfg config.Config, svc *service.Service) *Handler {
	return &Handler{
		cfg: cfg,
		svc: svc,
	}
}
