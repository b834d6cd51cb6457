package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tmcgame/platform/internal/models"
	"github.com/tmcgame/platform/internal/syncview"
)

func (h *Handler) registerScoreStealRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/score-steal/sessions", h.createStealSession)
	mux.HandleFunc("GET /api/score-steal/sessions/{id}", h.getStealSession)
	mux.HandleFunc("POST /api/score-steal/sessions/{id}/start", h.startStealSession)
	mux.HandleFunc("POST /api/score-steal/sessions/{id}/end", h.endStealSession)
	mux.HandleFunc("POST /api/score-steal/sessions/{id}/broadcast", h.broadcastQuestion)
	mux.HandleFunc("POST /api/score-steal/sessions/{id}/answers", h.submitStealAnswer)
	mux.HandleFunc("GET /api/score-steal/sessions/{id}/eligible-targets", h.eligibleTargets)
	mux.HandleFunc("POST /api/score-steal/sessions/{id}/steal", h.executeSteal)
	mux.HandleFunc("GET /api/score-steal/sessions/{id}/snapshot", h.stealSnapshot)
	mux.HandleFunc("GET /api/score-steal/sessions/{id}/view", h.stealView)
}

func (h *Handler) createStealSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GameID      uuid.UUID `json:"game_id"`
		RoundNumber int       `json:"round_number"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.GameID == uuid.Nil || req.RoundNumber < 1 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "game_id and round_number are required"})
		return
	}
	session, err := h.scoreSteal.CreateSession(r.Context(), req.GameID, req.RoundNumber)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) getStealSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	session, err := h.scoreSteal.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) startStealSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	session, err := h.scoreSteal.StartSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) endStealSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	session, err := h.scoreSteal.EndSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) broadcastQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		QuestionID uuid.UUID `json:"question_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	session, err := h.scoreSteal.BroadcastQuestion(r.Context(), id, req.QuestionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) submitStealAnswer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		TeamID     uuid.UUID `json:"team_id"`
		QuestionID uuid.UUID `json:"question_id"`
		Answer     string    `json:"answer"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.scoreSteal.SubmitAnswer(r.Context(), id, req.TeamID, req.QuestionID, req.Answer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) eligibleTargets(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	targets, err := h.scoreSteal.EligibleTargets(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, targets)
}

func (h *Handler) executeSteal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		TeamID       uuid.UUID `json:"team_id"`
		TargetTeamID uuid.UUID `json:"target_team_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	outcome, err := h.scoreSteal.ExecuteSteal(r.Context(), id, req.TeamID, req.TargetTeamID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) stealSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	snap, err := h.scoreSteal.Snapshot(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// stealView serves the merged dashboard view: change-feed pushed state with
// poll fallback, plus the health of the push channels. The first request for
// a session spins its adapter up; later requests share it.
func (h *Handler) stealView(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	// The session must exist before an adapter is provisioned for it.
	if _, err := h.scoreSteal.GetSession(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	adapter := h.views.Get(context.Background(), id)
	view := adapter.View()
	writeJSON(w, http.StatusOK, struct {
		Session    *models.ScoreStealSession  `json:"session"`
		Attempts   []models.ScoreStealAttempt `json:"attempts"`
		FeedStatus syncview.FeedStatus        `json:"feed_status"`
		Degraded   bool                       `json:"degraded"`
		UpdatedAt  time.Time                  `json:"updated_at"`
	}{
		Session:    view.Session(),
		Attempts:   view.Attempts(),
		FeedStatus: adapter.FeedStatus(),
		Degraded:   adapter.Degraded(),
		UpdatedAt:  view.UpdatedAt(),
	})
}
