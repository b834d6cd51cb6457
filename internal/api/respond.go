package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/tmcgame/platform/internal/game"
	"github.com/tmcgame/platform/internal/participant"
	"github.com/tmcgame/platform/internal/relayquiz"
	"github.com/tmcgame/platform/internal/scoresteal"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

// writeError maps domain rejections to HTTP statuses. Every game-rule
// rejection keeps its specific message so clients can show the player why
// the action failed, not just that it did.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, sql.ErrNoRows):
		status = http.StatusNotFound
	case errors.Is(err, scoresteal.ErrNotWinner):
		status = http.StatusForbidden
	case errors.Is(err, scoresteal.ErrSessionInactive),
		errors.Is(err, scoresteal.ErrQuestionNotActive),
		errors.Is(err, scoresteal.ErrQuestionMismatch),
		errors.Is(err, scoresteal.ErrAlreadyAnswered),
		errors.Is(err, scoresteal.ErrNoTargetSelection),
		errors.Is(err, scoresteal.ErrTargetIsWinner),
		errors.Is(err, scoresteal.ErrTargetProtected),
		errors.Is(err, scoresteal.ErrBroadcastForbidden),
		errors.Is(err, relayquiz.ErrSessionInactive),
		errors.Is(err, relayquiz.ErrWrongOrder),
		errors.Is(err, relayquiz.ErrRelayCompleted),
		errors.Is(err, relayquiz.ErrParticipantOnTeam),
		errors.Is(err, participant.ErrNicknameTaken),
		errors.Is(err, game.ErrInvalidTransition),
		errors.Is(err, game.ErrNoMoreRounds):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}
	return true
}
