package analytics

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/lsat-prep/adaptive/internal/apperr"
	"github.com/lsat-prep/adaptive/internal/auth"
	"github.com/lsat-prep/adaptive/internal/models"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	snap, err := h.engine.Analyze(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) GetCategoryPerformance(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	categoryID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid category ID"})
		return
	}

	perf, err := h.engine.GetCategoryPerformance(r.Context(), userID, categoryID)
	if err != nil {
		writeError(w, err)
		return
	}
	if perf == nil {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "No attempts in this category"})
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

func (h *Handler) RecordAttempt(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	var attempt models.Attempt
	if err := json.NewDecoder(r.Body).Decode(&attempt); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	attempt.UserID = userID
	attempt.ID = 0

	saved, err := h.engine.RecordAttempt(r.Context(), attempt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("[analytics] request failed: %v", err)
		msg = "Internal server error"
	}
	writeJSON(w, status, models.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
