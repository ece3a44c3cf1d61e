package api

import (
	"errors"
	"log"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/adfharrison1/go-docload/pkg/storage"
)

// CountResponse represents the response for collection count requests
type CountResponse struct {
	Collection string `json:"collection"`
	Count      int    `json:"count"`
}

// HandleCount handles GET requests for a collection's document count
func (h *Handler) HandleCount(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	storeName := vars["store"]
	collName := vars["coll"]

	conn, err := h.connector.Connect(storeName)
	if err != nil {
		log.Printf("ERROR: Connect to store '%s' failed: %v", storeName, err)
		WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer conn.Close()

	count, err := conn.Count(collName)
	if err != nil {
		if errors.Is(err, storage.ErrCollectionMissing) {
			WriteJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CountResponse{Collection: collName, Count: count})
}

// HandleGetById handles GET requests for a single document by store identifier
func (h *Handler) HandleGetById(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	storeName := vars["store"]
	collName := vars["coll"]
	docId := vars["id"]

	conn, err := h.connector.Connect(storeName)
	if err != nil {
		log.Printf("ERROR: Connect to store '%s' failed: %v", storeName, err)
		WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer conn.Close()

	doc, err := conn.FetchByID(collName, docId)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrCollectionMissing) {
			WriteJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}(doc))
}
