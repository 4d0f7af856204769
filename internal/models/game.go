package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidOutcome is returned for any outcome outside the Outcome enum.
var ErrInvalidOutcome = errors.New("invalid outcome")

// Outcome is the result of a finished game, from player1's point of view.
type Outcome string

const (
	Player1Win Outcome = "player1_win"
	Player2Win Outcome = "player2_win"
	Draw       Outcome = "draw"
)

// ParseOutcome accepts the enum values and the PGN result tokens.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Player1Win), "1-0":
		return Player1Win, nil
	case string(Player2Win), "0-1":
		return Player2Win, nil
	case string(Draw), "1/2-1/2":
		return Draw, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOutcome, s)
	}
}

func (o Outcome) Valid() bool {
	return o == Player1Win || o == Player2Win || o == Draw
}

// Scores returns the actual scores (S_A, S_B) for the outcome.
func (o Outcome) Scores() (float64, float64, error) {
	switch o {
	case Player1Win:
		return 1, 0, nil
	case Player2Win:
		return 0, 1, nil
	case Draw:
		return 0.5, 0.5, nil
	default:
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidOutcome, string(o))
	}
}

// PGN renders the outcome as a PGN result token.
func (o Outcome) PGN() string {
	switch o {
	case Player1Win:
		return "1-0"
	case Player2Win:
		return "0-1"
	case Draw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: outcome must be a string", ErrInvalidOutcome)
	}
	parsed, err := ParseOutcome(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// RatingUpdate is the rating change applied to one player by one game.
type RatingUpdate struct {
	Player    PlayerID `json:"id"`
	OldRating int      `json:"old_rating"`
	NewRating int      `json:"new_rating"`
	Delta     int      `json:"delta"`
}

// NewRatingUpdate builds the update from the old and new rating.
func NewRatingUpdate(id PlayerID, oldRating, newRating int) RatingUpdate {
	return RatingUpdate{Player: id, OldRating: oldRating, NewRating: newRating, Delta: newRating - oldRating}
}

// Game is an immutable ledger entry. Seq is the ledger position, assigned at commit.
type Game struct {
	ID             uuid.UUID `json:"game_id"`
	Seq            int64     `json:"seq"`
	Player1        PlayerID  `json:"player1"`
	Player2        PlayerID  `json:"player2"`
	Outcome        Outcome   `json:"outcome"`
	Payload        []byte    `json:"-"`
	IdempotencyKey string    `json:"-"`
	Fingerprint    string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`

	Player1Update RatingUpdate `json:"player1_update"`
	Player2Update RatingUpdate `json:"player2_update"`
}

// UpdateFor returns the rating change the game applied to id.
func (g *Game) UpdateFor(id PlayerID) (RatingUpdate, bool) {
	switch id {
	case g.Player1:
		return g.Player1Update, true
	case g.Player2:
		return g.Player2Update, true
	default:
		return RatingUpdate{}, false
	}
}
