// Package store defines the storage contract shared by the player registry and
// the game ledger, and an in-memory implementation of it.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jason-s-yu/eloledger/internal/models"
)

var (
	// ErrNotFound is returned when a player or game does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when registering a player id that is taken.
	ErrAlreadyExists = errors.New("already exists")
	// ErrDuplicateKey is returned when a game with the same idempotency key is already recorded.
	ErrDuplicateKey = errors.New("duplicate idempotency key")
	// ErrVersionConflict is returned when a player row changed since it was read.
	ErrVersionConflict = errors.New("version conflict")
)

// Reader is the read side of the store. Reads observe committed state only.
type Reader interface {
	GetPlayer(ctx context.Context, id models.PlayerID) (*models.Player, error)
	TopPlayers(ctx context.Context, limit int) ([]models.Player, error)
	GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	GetGameByKey(ctx context.Context, idempotencyKey string) (*models.Game, error)
	// GamesByPlayer returns the player's games, newest first.
	GamesByPlayer(ctx context.Context, id models.PlayerID, limit int) ([]models.Game, error)
	// GamesAfter returns games with Seq > afterSeq in ledger order.
	GamesAfter(ctx context.Context, afterSeq int64, limit int) ([]models.Game, error)
}

// Tx is the write side, valid only inside Store.WithTx.
type Tx interface {
	// InsertGame appends g and sets g.Seq. It fails with ErrDuplicateKey when
	// g.IdempotencyKey is already recorded.
	InsertGame(ctx context.Context, g *models.Game) error
	// ApplyDelta adds delta to the player's rating if its version still equals
	// expectedVersion, and returns the new rating. It fails with
	// ErrVersionConflict otherwise.
	ApplyDelta(ctx context.Context, id models.PlayerID, delta int, expectedVersion int64) (int, error)
}

// Store is implemented by the in-memory store and by the Postgres store.
type Store interface {
	Reader
	// CreatePlayer inserts p. It fails with ErrAlreadyExists when p.ID is taken.
	CreatePlayer(ctx context.Context, p *models.Player) error
	// WithTx runs fn in a transaction. Nothing fn writes is visible to readers
	// unless fn returns nil and the commit succeeds.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
