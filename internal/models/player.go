package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultRating is the rating every player starts with unless a seed rating applies.
const DefaultRating = 1500

// PlayerKind tags which half of a PlayerID is populated.
type PlayerKind string

const (
	KindUser PlayerKind = "user"
	KindBot  PlayerKind = "bot"
)

// ErrInvalidPlayerID is returned when a player identifier cannot be parsed.
var ErrInvalidPlayerID = errors.New("invalid player id")

// PlayerID identifies either a human user (numeric id) or a bot (string id).
// Exactly one of UserID / BotID is meaningful, selected by Kind.
type PlayerID struct {
	Kind   PlayerKind
	UserID int64
	BotID  string
}

// UserPlayer returns the PlayerID of a human user.
func UserPlayer(id int64) PlayerID { return PlayerID{Kind: KindUser, UserID: id} }

// BotPlayer returns the PlayerID of a bot.
func BotPlayer(id string) PlayerID { return PlayerID{Kind: KindBot, BotID: id} }

func (p PlayerID) IsZero() bool { return p.Kind == "" }
func (p PlayerID) IsUser() bool { return p.Kind == KindUser }
func (p PlayerID) IsBot() bool  { return p.Kind == KindBot }

// Key is the canonical text form, "user:42" or "bot:knight-fury". It is the
// primary key in storage and the lock key in the ledger.
func (p PlayerID) Key() string {
	switch p.Kind {
	case KindUser:
		return "user:" + strconv.FormatInt(p.UserID, 10)
	case KindBot:
		return "bot:" + p.BotID
	default:
		return ""
	}
}

func (p PlayerID) String() string { return p.Key() }

// Validate checks that the tagged half is well formed.
func (p PlayerID) Validate() error {
	switch p.Kind {
	case KindUser:
		if p.UserID <= 0 {
			return fmt.Errorf("%w: user id must be positive", ErrInvalidPlayerID)
		}
		if p.BotID != "" {
			return fmt.Errorf("%w: user id carries a bot id", ErrInvalidPlayerID)
		}
	case KindBot:
		if err := validateBotID(p.BotID); err != nil {
			return err
		}
		if p.UserID != 0 {
			return fmt.Errorf("%w: bot id carries a user id", ErrInvalidPlayerID)
		}
	case "":
		return fmt.Errorf("%w: missing", ErrInvalidPlayerID)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPlayerID, p.Kind)
	}
	return nil
}

func validateBotID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty bot id", ErrInvalidPlayerID)
	}
	if len(id) > 50 {
		return fmt.Errorf("%w: bot id longer than 50 characters", ErrInvalidPlayerID)
	}
	if strings.TrimSpace(id) != id || strings.ContainsAny(id, ": \t\n/") {
		return fmt.Errorf("%w: bot id %q contains reserved characters", ErrInvalidPlayerID, id)
	}
	return nil
}

// ParsePlayerID parses the canonical "user:<n>" / "bot:<id>" form.
func ParsePlayerID(s string) (PlayerID, error) {
	kind, ref, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return PlayerID{}, fmt.Errorf("%w: %q has no kind prefix", ErrInvalidPlayerID, s)
	}
	var id PlayerID
	switch PlayerKind(kind) {
	case KindUser:
		n, err := strconv.ParseInt(ref, 10, 64)
		if err != nil {
			return PlayerID{}, fmt.Errorf("%w: %q is not a numeric user id", ErrInvalidPlayerID, ref)
		}
		id = UserPlayer(n)
	case KindBot:
		id = BotPlayer(ref)
	default:
		return PlayerID{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidPlayerID, kind)
	}
	if err := id.Validate(); err != nil {
		return PlayerID{}, err
	}
	return id, nil
}

type playerIDJSON struct {
	UserID *int64  `json:"user_id,omitempty"`
	BotID  *string `json:"bot_id,omitempty"`
}

// MarshalJSON encodes the tagged union as {"user_id": n} or {"bot_id": "..."}.
func (p PlayerID) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case KindUser:
		return json.Marshal(playerIDJSON{UserID: &p.UserID})
	case KindBot:
		return json.Marshal(playerIDJSON{BotID: &p.BotID})
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts the object form or the canonical string form.
func (p *PlayerID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = PlayerID{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		id, err := ParsePlayerID(s)
		if err != nil {
			return err
		}
		*p = id
		return nil
	}

	var raw playerIDJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlayerID, err)
	}
	switch {
	case raw.UserID != nil && raw.BotID != nil:
		return fmt.Errorf("%w: both user_id and bot_id set", ErrInvalidPlayerID)
	case raw.UserID != nil:
		*p = UserPlayer(*raw.UserID)
	case raw.BotID != nil:
		*p = BotPlayer(*raw.BotID)
	default:
		return fmt.Errorf("%w: neither user_id nor bot_id set", ErrInvalidPlayerID)
	}
	return p.Validate()
}

// Player is a row in the players table.
type Player struct {
	ID        PlayerID  `json:"id"`
	Name      string    `json:"name"`
	Rating    int       `json:"rating"`
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
