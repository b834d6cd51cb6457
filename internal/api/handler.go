package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tmcgame/platform/internal/game"
	"github.com/tmcgame/platform/internal/models"
	"github.com/tmcgame/platform/internal/participant"
	"github.com/tmcgame/platform/internal/relayquiz"
	"github.com/tmcgame/platform/internal/scoresteal"
	"github.com/tmcgame/platform/internal/syncview"
	"github.com/tmcgame/platform/internal/team"
)

// Handler is the admin/player HTTP surface. Realtime state flows through the
// relay; these endpoints carry the actions that mutate it.
type Handler struct {
	games        *game.App
	teams        *team.App
	participants *participant.App
	scoreSteal   *scoresteal.Engine
	relayQuiz    *relayquiz.App
	views        *syncview.Registry
}

func NewHandler(
	games *game.App,
	teams *team.App,
	participants *participant.App,
	scoreSteal *scoresteal.Engine,
	relayQuiz *relayquiz.App,
	views *syncview.Registry,
) *Handler {
	return &Handler{
		games:        games,
		teams:        teams,
		participants: participants,
		scoreSteal:   scoreSteal,
		relayQuiz:    relayQuiz,
		views:        views,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/games", h.createGame)
	mux.HandleFunc("GET /api/games/{id}", h.getGame)
	mux.HandleFunc("POST /api/games/{id}/start", h.startGame)
	mux.HandleFunc("POST /api/games/{id}/finish", h.finishGame)
	mux.HandleFunc("POST /api/games/{id}/advance-round", h.advanceRound)
	mux.HandleFunc("POST /api/games/{id}/teams", h.createTeam)
	mux.HandleFunc("GET /api/games/{id}/teams", h.listTeams)
	mux.HandleFunc("GET /api/games/{id}/participants", h.listParticipants)
	mux.HandleFunc("POST /api/games/{id}/reset-roster", h.resetRoster)
	mux.HandleFunc("POST /api/join", h.joinGame)
	mux.HandleFunc("POST /api/participants/{id}/team", h.assignTeam)
	mux.HandleFunc("POST /api/teams/{id}/score", h.adjustScore)
	mux.HandleFunc("POST /api/teams/{id}/bracket", h.updateBracket)

	h.registerScoreStealRoutes(mux)
	h.registerRelayQuizRoutes(mux)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) createGame(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		TotalRounds int    `json:"total_rounds"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Title == "" || req.TotalRounds < 1 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "title and total_rounds are required"})
		return
	}
	g, err := h.games.CreateGame(r.Context(), req.Title, req.TotalRounds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *Handler) getGame(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	g, err := h.games.GetGame(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *Handler) startGame(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	g, err := h.games.StartGame(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *Handler) finishGame(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	g, err := h.games.FinishGame(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *Handler) advanceRound(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	g, err := h.games.AdvanceRound(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *Handler) createTeam(w http.ResponseWriter, r *http.Request) {
	gameID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		TeamName string `json:"team_name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TeamName == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "team_name is required"})
		return
	}
	t, err := h.teams.CreateTeam(r.Context(), gameID, req.TeamName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) listTeams(w http.ResponseWriter, r *http.Request) {
	gameID, ok := pathID(w, r)
	if !ok {
		return
	}
	teams, err := h.teams.ListTeamsByGame(r.Context(), gameID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

func (h *Handler) listParticipants(w http.ResponseWriter, r *http.Request) {
	gameID, ok := pathID(w, r)
	if !ok {
		return
	}
	list, err := h.participants.ListByGame(r.Context(), gameID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) resetRoster(w http.ResponseWriter, r *http.Request) {
	gameID, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.participants.ResetRoster(r.Context(), gameID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// joinGame is the player entry point: look the game up by join code, then
// register the nickname.
func (h *Handler) joinGame(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JoinCode string `json:"join_code"`
		Nickname string `json:"nickname"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.JoinCode == "" || req.Nickname == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "join_code and nickname are required"})
		return
	}
	g, err := h.games.GetGameByJoinCode(r.Context(), req.JoinCode)
	if err != nil {
		writeError(w, err)
		return
	}
	if g.Status != models.GameStatusWaiting {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "game has already started"})
		return
	}
	p, err := h.participants.Join(r.Context(), g.ID, req.Nickname)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Game        *models.Game        `json:"game"`
		Participant *models.Participant `json:"participant"`
	}{g, p})
}

func (h *Handler) assignTeam(w http.ResponseWriter, r *http.Request) {
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
	p, err := h.participants.AssignToTeam(r.Context(), id, req.TeamID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) adjustScore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Delta int `json:"delta"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	t, err := h.teams.AdjustScore(r.Context(), id, req.Delta)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) updateBracket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Bracket models.Bracket `json:"bracket"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Bracket != models.BracketHigher && req.Bracket != models.BracketLower {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bracket must be higher or lower"})
		return
	}
	t, err := h.teams.UpdateBracket(r.Context(), id, req.Bracket)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
