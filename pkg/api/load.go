package api

import (
	"log"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/adfharrison1/go-docload/pkg/domain"
	"github.com/adfharrison1/go-docload/pkg/loader"
)

// LoadRequest represents the request body for bulk load operations
type LoadRequest struct {
	LoadType   string                   `json:"load_type"`
	Documents  []map[string]interface{} `json:"documents"`
	KeyNames   []string                 `json:"key_names,omitempty"`
	IndexSpecs []domain.IndexSpec       `json:"index_specs,omitempty"`
	AddValues  map[string]interface{}   `json:"add_values,omitempty"`
	Validator  map[string]interface{}   `json:"validator,omitempty"`
}

// LoadResponse represents the response for bulk load operations
type LoadResponse struct {
	Success     bool                     `json:"success"`
	Collection  string                   `json:"collection"`
	Submitted   int                      `json:"submitted"`
	FailedCount int                      `json:"failed_count"`
	Failed      []map[string]interface{} `json:"failed,omitempty"`
	Diagnostics []string                 `json:"diagnostics,omitempty"`
	Status      domain.LoadStatus        `json:"status"`
}

// HandleLoad handles POST requests to bulk load documents into a collection
func (h *Handler) HandleLoad(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	storeName := vars["store"]
	collName := vars["coll"]

	log.Printf("INFO: handleLoad called for %s.%s", storeName, collName)

	var req LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("ERROR: Decoding body failed: %v", err)
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if len(req.Documents) == 0 {
		log.Printf("ERROR: No documents provided for load")
		WriteJSONError(w, http.StatusBadRequest, "No documents provided")
		return
	}

	loadType := domain.LoadType(req.LoadType)
	if !loadType.Valid() {
		log.Printf("ERROR: Unsupported load type '%s'", req.LoadType)
		WriteJSONError(w, http.StatusBadRequest, "Unsupported load type")
		return
	}

	docs := make([]domain.Document, len(req.Documents))
	for i, doc := range req.Documents {
		docs[i] = domain.Document(doc)
	}

	result, err := h.loader.Load(&loader.Request{
		StoreName:      storeName,
		CollectionName: collName,
		LoadType:       loadType,
		Documents:      docs,
		KeyNames:       req.KeyNames,
		IndexSpecs:     req.IndexSpecs,
		AddValues:      domain.Document(req.AddValues),
		Validator:      domain.Document(req.Validator),
	})
	if err != nil {
		log.Printf("ERROR: Load failed for %s.%s: %v", storeName, collName, err)
		WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := LoadResponse{
		Success:     result.Ok,
		Collection:  collName,
		Submitted:   len(docs),
		FailedCount: len(result.Failed),
		Diagnostics: result.Diagnostics,
		Status:      result.Status,
	}
	for _, doc := range result.Failed {
		response.Failed = append(response.Failed, map[string]interface{}(doc))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)

	log.Printf("INFO: Load for %s.%s completed, success=%v failed=%d", storeName, collName, result.Ok, len(result.Failed))
}
