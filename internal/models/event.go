package models

import "github.com/google/uuid"

// EventGameRecorded is the type of the event emitted after a game commits.
const EventGameRecorded = "game_recorded"

// RatingEvent is published after a game and its rating changes are committed.
type RatingEvent struct {
	Type      string         `json:"type"`
	GameID    uuid.UUID      `json:"game_id"`
	Seq       int64          `json:"seq"`
	Outcome   Outcome        `json:"outcome"`
	Updates   []RatingUpdate `json:"updates"`
	Timestamp int64          `json:"timestamp"` // epoch millis of the commit
}

// NewRatingEvent describes a committed game.
func NewRatingEvent(g *Game) RatingEvent {
	return RatingEvent{
		Type:      EventGameRecorded,
		GameID:    g.ID,
		Seq:       g.Seq,
		Outcome:   g.Outcome,
		Updates:   []RatingUpdate{g.Player1Update, g.Player2Update},
		Timestamp: g.CreatedAt.UnixMilli(),
	}
}
