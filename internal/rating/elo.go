// internal/rating/elo.go
package rating

import (
	"errors"
	"fmt"
	"math"

	"github.com/jason-s-yu/eloledger/internal/models"
)

const (
	// DefaultKFactor is the maximum rating change per game for a player with no class override.
	DefaultKFactor = 32
	// EloScale is the rating difference at which the stronger side is expected to score 10:1.
	EloScale = 400.0
	// MaxRating is the largest rating the engine produces. It matches the INT column width.
	MaxRating = math.MaxInt32
)

// ErrInvalidRating is returned for ratings outside [0, MaxRating].
var ErrInvalidRating = errors.New("invalid rating")

// Config holds the K-factor per player class.
type Config struct {
	// UserKFactor applies to human users.
	UserKFactor int
	// BotKFactor applies to bots.
	BotKFactor int
}

// DefaultConfig uses DefaultKFactor for both classes.
func DefaultConfig() Config {
	return Config{UserKFactor: DefaultKFactor, BotKFactor: DefaultKFactor}
}

func (c Config) Validate() error {
	if c.UserKFactor <= 0 {
		return fmt.Errorf("user k-factor must be positive, got %d", c.UserKFactor)
	}
	if c.BotKFactor <= 0 {
		return fmt.Errorf("bot k-factor must be positive, got %d", c.BotKFactor)
	}
	return nil
}

// KFor returns the K-factor for the player's class.
func (c Config) KFor(id models.PlayerID) int {
	if id.IsBot() {
		return c.BotKFactor
	}
	return c.UserKFactor
}

// Engine computes Elo updates. It holds no state besides its configuration,
// so a single value is safe for concurrent use.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

func (e *Engine) Config() Config { return e.cfg }

// Compute returns the new ratings of A and B using the user K-factor for both sides.
func (e *Engine) Compute(ratingA, ratingB int, outcome models.Outcome) (int, int, error) {
	return Update(ratingA, ratingB, outcome, e.cfg.UserKFactor, e.cfg.UserKFactor)
}

// ComputeFor is Compute with each side's K-factor picked from its player class.
func (e *Engine) ComputeFor(a, b models.PlayerID, ratingA, ratingB int, outcome models.Outcome) (int, int, error) {
	return Update(ratingA, ratingB, outcome, e.cfg.KFor(a), e.cfg.KFor(b))
}

// ExpectedScore is E_A = 1 / (1 + 10^((rB-rA)/400)). The difference is taken in
// float64 so extreme ratings saturate to 0 or 1 instead of overflowing.
func ExpectedScore(ratingA, ratingB int) float64 {
	diff := float64(ratingB) - float64(ratingA)
	return 1.0 / (1.0 + math.Pow(10, diff/EloScale))
}

// Update is the pure Elo step: new = round(r + K*(S-E)), clamped to [0, MaxRating].
func Update(ratingA, ratingB int, outcome models.Outcome, kA, kB int) (int, int, error) {
	if err := checkRating(ratingA); err != nil {
		return 0, 0, err
	}
	if err := checkRating(ratingB); err != nil {
		return 0, 0, err
	}
	sA, sB, err := outcome.Scores()
	if err != nil {
		return 0, 0, err
	}

	eA := ExpectedScore(ratingA, ratingB)
	eB := 1 - eA

	newA := step(ratingA, kA, sA, eA)
	newB := step(ratingB, kB, sB, eB)
	return newA, newB, nil
}

func step(r, k int, score, expected float64) int {
	next := math.Round(float64(r) + float64(k)*(score-expected))
	if next < 0 {
		return 0
	}
	if next > MaxRating {
		return MaxRating
	}
	return int(next)
}

func checkRating(r int) error {
	if r < 0 || r > MaxRating {
		return fmt.Errorf("%w: %d", ErrInvalidRating, r)
	}
	return nil
}
