// Package registry maps player identities to their current rating.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jason-s-yu/eloledger/internal/models"
	"github.com/jason-s-yu/eloledger/internal/store"
	"github.com/sirupsen/logrus"
)

// MaxNameLength matches the name column width.
const MaxNameLength = 50

var (
	// ErrUnknownPlayer is returned when a player id is not registered.
	ErrUnknownPlayer = errors.New("unknown player")
	// ErrAlreadyExists is returned by Register for an id that is already registered.
	// Registration is never a silent no-op.
	ErrAlreadyExists = errors.New("player already exists")
	// ErrInvalidName is returned for an empty or over-long display name.
	ErrInvalidName = errors.New("invalid player name")
)

// Registry reads and registers players. Ratings change only through the
// ledger, which calls ApplyDelta inside its own transaction.
type Registry struct {
	store       store.Store
	seedRatings map[string]int
	logger      *logrus.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithSeedRatings sets the starting rating of specific bots, keyed by bot id.
func WithSeedRatings(seeds map[string]int) Option {
	return func(r *Registry) {
		for id, rating := range seeds {
			r.seedRatings[id] = rating
		}
	}
}

func New(s store.Store, logger *logrus.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:       s,
		seedRatings: make(map[string]int),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the registered player.
func (r *Registry) Get(ctx context.Context, id models.PlayerID) (*models.Player, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	p, err := r.store.GetPlayer(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
		}
		return nil, err
	}
	return p, nil
}

// GetRating returns the player's current committed rating.
func (r *Registry) GetRating(ctx context.Context, id models.PlayerID) (int, error) {
	p, err := r.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.Rating, nil
}

// Register creates a player at its starting rating. An id that is already
// registered fails with ErrAlreadyExists.
func (r *Registry) Register(ctx context.Context, id models.PlayerID, name string) (*models.Player, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" && id.IsBot() {
		name = id.BotID
	}
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	p := &models.Player{
		ID:     id,
		Name:   name,
		Rating: r.StartingRating(id),
	}
	if err := r.store.CreatePlayer(ctx, p); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
		}
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"player": id.Key(),
		"rating": p.Rating,
	}).Info("player registered")
	return p, nil
}

// StartingRating is the seed rating for catalogued bots, else DefaultRating.
func (r *Registry) StartingRating(id models.PlayerID) int {
	if id.IsBot() {
		if seed, ok := r.seedRatings[id.BotID]; ok {
			return seed
		}
	}
	return models.DefaultRating
}

// ApplyDelta moves the player's rating by delta inside the caller's
// transaction. Only the ledger calls it.
func (r *Registry) ApplyDelta(ctx context.Context, tx store.Tx, id models.PlayerID, delta int, expectedVersion int64) (int, error) {
	return tx.ApplyDelta(ctx, id, delta, expectedVersion)
}

// Leaderboard returns up to limit players ordered by rating, highest first.
func (r *Registry) Leaderboard(ctx context.Context, limit int) ([]models.Player, error) {
	return r.store.TopPlayers(ctx, limit)
}
