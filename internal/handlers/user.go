// internal/handlers/user.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jason-s-yu/eloledger/internal/models"
)

type registerPlayerRequest struct {
	ID   models.PlayerID `json:"id"`
	Name string          `json:"name"`
}

type ratingResponse struct {
	ID     models.PlayerID `json:"id"`
	Rating int             `json:"rating"`
}

type historyEntry struct {
	gameResponse
	Opponent models.PlayerID     `json:"opponent"`
	Update   models.RatingUpdate `json:"update"`
}

// registerPlayer handles POST /players. 409 if the id is already registered.
func (s *Server) registerPlayer(w http.ResponseWriter, r *http.Request) {
	s.limitBody(w, r)

	var req registerPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, decodeError(err))
		return
	}
	p, err := s.registry.Register(r.Context(), req.ID, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) getPlayer(w http.ResponseWriter, r *http.Request) {
	id, err := pathPlayer(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.registry.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) getRating(w http.ResponseWriter, r *http.Request) {
	id, err := pathPlayer(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rating, err := s.registry.GetRating(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ratingResponse{ID: id, Rating: rating})
}

// playerGames handles GET /players/{id}/games, newest first. Each entry
// carries the player's own rating change so clients can chart it.
func (s *Server) playerGames(w http.ResponseWriter, r *http.Request) {
	id, err := pathPlayer(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	games, err := s.ledger.History(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]historyEntry, 0, len(games))
	for i := range games {
		g := &games[i]
		update, _ := g.UpdateFor(id)
		opponent := g.Player2
		if g.Player2 == id {
			opponent = g.Player1
		}
		out = append(out, historyEntry{gameResponse: newGameResponse(g), Opponent: opponent, Update: update})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	players, err := s.registry.Leaderboard(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if players == nil {
		players = []models.Player{}
	}
	writeJSON(w, http.StatusOK, players)
}
