package api

import (
	"github.com/adfharrison1/go-docload/pkg/domain"
	"github.com/adfharrison1/go-docload/pkg/loader"
)

// Handler provides HTTP handlers for the load service API
type Handler struct {
	loader    *loader.DocumentLoader
	connector domain.Connector
}

// NewHandler creates a new API handler with dependency injection
func NewHandler(dl *loader.DocumentLoader, connector domain.Connector) *Handler {
	return &Handler{
		loader:    dl,
		connector: connector,
	}
}
