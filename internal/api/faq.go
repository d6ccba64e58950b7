package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/dennisdiepolder/monti/agentkpi/internal/auth"
	"github.com/dennisdiepolder/monti/agentkpi/internal/faq"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// FAQHandler exposes the question board
type FAQHandler struct {
	store  *faq.Store
	now    func() time.Time
	logger zerolog.Logger
}

func NewFAQHandler(store *faq.Store, logger zerolog.Logger) *FAQHandler {
	return &FAQHandler{
		store:  store,
		now:    time.Now,
		logger: logger.With().Str("component", "faq_handler").Logger(),
	}
}

type askRequest struct {
	Question string `json:"question" validate:"required,max=1000"`
}

type answerRequest struct {
	Answer string `json:"answer" validate:"required,max=4000"`
}

// Search handles GET /api/faq?q=
func (h *FAQHandler) Search(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to search faq")
		writeError(w, http.StatusInternalServerError, "failed to search faq")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// Ask handles POST /api/faq
func (h *FAQHandler) Ask(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetUserFromContext(r.Context())

	var req askRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.store.Append(r.Context(), req.Question, claims.Username, h.now())
	if errors.Is(err, faq.ErrEmptyQuestion) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to append question")
		writeError(w, http.StatusInternalServerError, "failed to save question")
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// Answer handles POST /api/faq/{id}/answer (admin)
func (h *FAQHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.store.Answer(r.Context(), chi.URLParam(r, "id"), req.Answer)
	if errors.Is(err, faq.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to answer question")
		writeError(w, http.StatusInternalServerError, "failed to save answer")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
