package scheduler

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
	service  *Service
	maxCards int
}

// NewHandler serves review sessions of up to maxCards cards unless the
// request asks for fewer.
func NewHandler(service *Service, maxCards int) *Handler {
	if maxCards <= 0 {
		maxCards = DefaultMaxCards
	}
	return &Handler{service: service, maxCards: maxCards}
}

func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	var req models.CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	sched, err := h.service.CreateSchedule(r.Context(), userID, req.DeckName, req.QuestionIDs, req.DifficultyHint)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sched)
}

func (h *Handler) SubmitReviews(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	id := mux.Vars(r)["id"]
	owned, err := h.service.GetSchedule(r.Context(), id)
	if err == nil && owned.UserID != userID {
		err = apperr.NotFound("schedule", id)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	var req models.ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	sched, err := h.service.UpdateAfterReview(r.Context(), id, req.Results)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (h *Handler) GetReviewSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	query := r.URL.Query()
	maxCards, _ := strconv.Atoi(query.Get("max_cards"))
	if maxCards <= 0 || maxCards > h.maxCards {
		maxCards = h.maxCards
	}
	duration, _ := strconv.Atoi(query.Get("duration"))

	session, err := h.service.GenerateReviewSession(r.Context(), userID, maxCards, duration)
	if err != nil {
		writeError(w, err)
		return
	}
	if session == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	stats, err := h.service.GetUserProgressStats(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("[scheduler] request failed: %v", err)
		msg = "Internal server error"
	}
	writeJSON(w, status, models.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
