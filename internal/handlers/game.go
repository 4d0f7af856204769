// internal/handlers/game.go
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/eloledger/internal/ledger"
	"github.com/jason-s-yu/eloledger/internal/models"
)

// IdempotencyKeyHeader may carry the idempotency key instead of the body.
const IdempotencyKeyHeader = "Idempotency-Key"

type submitGameRequest struct {
	Player1        models.PlayerID `json:"player1"`
	Player2        models.PlayerID `json:"player2"`
	Outcome        string          `json:"outcome"`
	GameData       json.RawMessage `json:"game_data"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type gameResponse struct {
	GameID    uuid.UUID           `json:"game_id"`
	Seq       int64               `json:"seq"`
	Outcome   models.Outcome      `json:"outcome"`
	CreatedAt time.Time           `json:"created_at"`
	Player1   models.RatingUpdate `json:"player1"`
	Player2   models.RatingUpdate `json:"player2"`
}

type submitGameResponse struct {
	gameResponse
	Replayed bool `json:"replayed"`
}

func newGameResponse(g *models.Game) gameResponse {
	return gameResponse{
		GameID:    g.ID,
		Seq:       g.Seq,
		Outcome:   g.Outcome,
		CreatedAt: g.CreatedAt,
		Player1:   g.Player1Update,
		Player2:   g.Player2Update,
	}
}

// submitGame handles POST /games. 201 for a new game, 200 for a replay.
func (s *Server) submitGame(w http.ResponseWriter, r *http.Request) {
	s.limitBody(w, r)

	var req submitGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, decodeError(err))
		return
	}
	sub, err := req.submission(r.Header.Get(IdempotencyKeyHeader))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.ledger.SubmitGame(r.Context(), sub)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, submitGameResponse{gameResponse: newGameResponse(&res.Game), Replayed: res.Replayed})
}

// submission converts the wire request. headerKey comes from Idempotency-Key.
func (req *submitGameRequest) submission(headerKey string) (ledger.Submission, error) {
	outcome, err := models.ParseOutcome(req.Outcome)
	if err != nil {
		return ledger.Submission{}, err
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	headerKey = strings.TrimSpace(headerKey)
	switch {
	case key == "":
		key = headerKey
	case headerKey != "" && headerKey != key:
		return ledger.Submission{}, fmt.Errorf("%w: idempotency key in header and body differ", errBadRequest)
	}

	return ledger.Submission{
		Player1:        req.Player1,
		Player2:        req.Player2,
		Outcome:        outcome,
		Payload:        gamePayload(req.GameData),
		IdempotencyKey: key,
	}, nil
}

// gamePayload stores a JSON string (PGN text, say) as its content and any
// other JSON value as its raw encoding.
func gamePayload(raw json.RawMessage) []byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return []byte(text)
	}
	return append([]byte(nil), raw...)
}

func decodeError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return fmt.Errorf("%w: malformed JSON body: %w", errBadRequest, err)
}

// getGame handles GET /games/{id}.
func (s *Server) getGame(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: game id must be a UUID", errBadRequest))
		return
	}
	g, err := s.ledger.GetGame(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newGameResponse(g))
}

// listGames handles GET /games?after=&limit=, in ledger order.
func (s *Server) listGames(w http.ResponseWriter, r *http.Request) {
	after, err := queryInt64(r, "after")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	games, err := s.ledger.Games(r.Context(), after, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gameList(games))
}

func gameList(games []models.Game) []gameResponse {
	out := make([]gameResponse, 0, len(games))
	for i := range games {
		out = append(out, newGameResponse(&games[i]))
	}
	return out
}
