package api

import (
	"net/http"

	"github.com/google/uuid"
)

func (h *Handler) registerRelayQuizRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/relay-quiz/sessions", h.createRelaySession)
	mux.HandleFunc("GET /api/relay-quiz/sessions/{id}", h.getRelaySession)
	mux.HandleFunc("POST /api/relay-quiz/sessions/{id}/start", h.startRelaySession)
	mux.HandleFunc("POST /api/relay-quiz/sessions/{id}/end", h.endRelaySession)
	mux.HandleFunc("POST /api/relay-quiz/sessions/{id}/teams", h.registerRelayTeam)
	mux.HandleFunc("POST /api/relay-quiz/sessions/{id}/answers", h.submitRelayAnswer)
	mux.HandleFunc("GET /api/relay-quiz/sessions/{id}/snapshot", h.relaySnapshot)
}

func (h *Handler) createRelaySession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GameID      uuid.UUID `json:"game_id"`
		RoundNumber int       `json:"round_number"`
		TotalSteps  int       `json:"total_steps"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.GameID == uuid.Nil || req.RoundNumber < 1 || req.TotalSteps < 1 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "game_id, round_number and total_steps are required"})
		return
	}
	session, err := h.relayQuiz.CreateSession(r.Context(), req.GameID, req.RoundNumber, req.TotalSteps)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) getRelaySession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	session, err := h.relayQuiz.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) startRelaySession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	session, err := h.relayQuiz.StartSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) endRelaySession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	session, err := h.relayQuiz.EndSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) registerRelayTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		TeamID uuid.UUID `json:"team_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.relayQuiz.RegisterTeam(r.Context(), id, req.TeamID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) submitRelayAnswer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		TeamID        uuid.UUID `json:"team_id"`
		ParticipantID uuid.UUID `json:"participant_id"`
		QuestionOrder int       `json:"question_order"`
		Answer        string    `json:"answer"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.relayQuiz.SubmitAnswer(r.Context(), id, req.TeamID, req.ParticipantID, req.QuestionOrder, req.Answer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) relaySnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	snap, err := h.relayQuiz.Snapshot(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
