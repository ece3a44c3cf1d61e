package api

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes registers all API routes with the given router
func (h *Handler) RegisterRoutes(router *mux.Router) {
	// Bulk load
	router.HandleFunc("/stores/{store}/collections/{coll}/load", h.HandleLoad).Methods("POST")

	// Collection/document inspection
	router.HandleFunc("/stores/{store}/collections/{coll}/count", h.HandleCount).Methods("GET")
	router.HandleFunc("/stores/{store}/collections/{coll}/documents/{id}", h.HandleGetById).Methods("GET")

	// Health
	router.HandleFunc("/health", h.HandleHealth).Methods("GET")
}
