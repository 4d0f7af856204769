// Package ledger records completed games and applies their rating changes.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/eloledger/internal/models"
	"github.com/jason-s-yu/eloledger/internal/rating"
	"github.com/jason-s-yu/eloledger/internal/registry"
	"github.com/jason-s-yu/eloledger/internal/store"
	"github.com/sirupsen/logrus"
)

const (
	// MaxIdempotencyKeyLength matches the idempotency_key column width.
	MaxIdempotencyKeyLength = 128

	fingerprintKeyPrefix = "fp:"
	publishTimeout       = 2 * time.Second
)

var (
	// ErrInvalidSubmission wraps every validation failure. Nothing is written.
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrUnknownPlayer is returned when player1, or a human player2, is not registered.
	ErrUnknownPlayer = registry.ErrUnknownPlayer
	// ErrGameNotFound is returned by GetGame for an unknown id.
	ErrGameNotFound = errors.New("game not found")
	// ErrIdempotencyMismatch is returned when an idempotency key is reused for a different game.
	ErrIdempotencyMismatch = errors.New("idempotency key reused with different content")
	// ErrConcurrentModification is returned when version conflicts persist past MaxRetries.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrStorage wraps failures of the underlying store. The game is not recorded.
	ErrStorage = errors.New("storage error")
)

// Notifier receives an event after each committed game.
type Notifier interface {
	Publish(ctx context.Context, ev models.RatingEvent) error
}

// Config tunes submission behavior.
type Config struct {
	// MaxRetries bounds how many times a submission is retried on a version conflict.
	MaxRetries int
	// RetryBackoff is multiplied by the attempt number between retries.
	RetryBackoff time.Duration
	// MaxPayloadBytes bounds the opaque game data. Zero means no limit.
	MaxPayloadBytes int
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:      5,
		RetryBackoff:    10 * time.Millisecond,
		MaxPayloadBytes: 1 << 20,
	}
}

// Submission is a completed game as reported by a client.
type Submission struct {
	Player1        models.PlayerID
	Player2        models.PlayerID
	Outcome        models.Outcome
	Payload        []byte
	IdempotencyKey string
}

// Result is what SubmitGame returns. Replayed is set when the game had
// already been recorded and no rating changed.
type Result struct {
	Game     models.Game
	Player1  models.RatingUpdate
	Player2  models.RatingUpdate
	Replayed bool
}

// Ledger is the only writer of games and ratings.
type Ledger struct {
	store     store.Store
	registry  *registry.Registry
	engine    *rating.Engine
	cfg       Config
	locks     *playerLocks
	notifiers []Notifier
	logger    *logrus.Logger
	now       func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithNotifier adds a post-commit event sink.
func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifiers = append(l.notifiers, n) }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(s store.Store, reg *registry.Registry, engine *rating.Engine, cfg Config, logger *logrus.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:    s,
		registry: reg,
		engine:   engine,
		cfg:      cfg,
		locks:    newPlayerLocks(),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SubmitGame records a game and applies its rating changes atomically.
//
// A submission with the same dedupe key as a recorded game (the client
// idempotency key, or a fingerprint of players, outcome and payload when no
// key is given) returns the original result with Replayed set.
func (l *Ledger) SubmitGame(ctx context.Context, sub Submission) (*Result, error) {
	if err := l.validate(sub); err != nil {
		return nil, err
	}
	fp := Fingerprint(sub)
	key := dedupeKey(sub, fp)

	if res, err := l.replay(ctx, key, fp); res != nil || err != nil {
		return res, err
	}

	if _, err := l.registry.Get(ctx, sub.Player1); err != nil {
		return nil, wrapLookup(err)
	}
	if err := l.ensureOpponent(ctx, sub.Player2); err != nil {
		return nil, err
	}

	release, err := l.locks.acquire(ctx, sub.Player1.Key(), sub.Player2.Key())
	if err != nil {
		return nil, fmt.Errorf("waiting for player lock: %w", err)
	}
	defer release()

	for attempt := 0; ; attempt++ {
		res, err := l.apply(ctx, sub, key, fp)
		switch {
		case err == nil:
			l.logger.WithFields(logrus.Fields{
				"game_id": res.Game.ID,
				"seq":     res.Game.Seq,
				"player1": sub.Player1.Key(),
				"player2": sub.Player2.Key(),
				"outcome": sub.Outcome,
				"delta1":  res.Player1.Delta,
				"delta2":  res.Player2.Delta,
			}).Info("game recorded")
			l.publish(ctx, &res.Game)
			return res, nil

		case errors.Is(err, store.ErrDuplicateKey):
			// an identical submission committed between our replay check and insert
			res, rerr := l.replay(ctx, key, fp)
			if rerr != nil {
				return nil, rerr
			}
			if res == nil {
				return nil, fmt.Errorf("%w: duplicate key %q reported but not readable", ErrStorage, key)
			}
			return res, nil

		case errors.Is(err, store.ErrVersionConflict):
			if attempt >= l.cfg.MaxRetries {
				l.logger.WithFields(logrus.Fields{
					"player1":  sub.Player1.Key(),
					"player2":  sub.Player2.Key(),
					"attempts": attempt + 1,
				}).Warn("rating update conflict not resolved")
				return nil, fmt.Errorf("%w: gave up after %d attempts: %v", ErrConcurrentModification, attempt+1, err)
			}
			l.logger.WithField("attempt", attempt+1).Debug("rating version conflict, retrying")
			if err := sleep(ctx, l.cfg.RetryBackoff*time.Duration(attempt+1)); err != nil {
				return nil, fmt.Errorf("retrying submission: %w", err)
			}

		case ctx.Err() != nil:
			return nil, fmt.Errorf("submit game: %w", ctx.Err())

		case errors.Is(err, store.ErrNotFound):
			return nil, wrapLookup(err)

		default:
			l.logger.WithError(err).Error("game submission failed")
			return nil, fmt.Errorf("%w: %w", ErrStorage, err)
		}
	}
}

// apply reads both players, computes the new ratings and commits the game and
// both deltas in one transaction.
func (l *Ledger) apply(ctx context.Context, sub Submission, key, fp string) (*Result, error) {
	p1, err := l.store.GetPlayer(ctx, sub.Player1)
	if err != nil {
		return nil, err
	}
	p2, err := l.store.GetPlayer(ctx, sub.Player2)
	if err != nil {
		return nil, err
	}

	new1, new2, err := l.engine.ComputeFor(p1.ID, p2.ID, p1.Rating, p2.Rating, sub.Outcome)
	if err != nil {
		return nil, err
	}

	g := models.Game{
		ID:             uuid.New(),
		Player1:        sub.Player1,
		Player2:        sub.Player2,
		Outcome:        sub.Outcome,
		Payload:        sub.Payload,
		IdempotencyKey: key,
		Fingerprint:    fp,
		CreatedAt:      l.now().UTC(),
		Player1Update:  models.NewRatingUpdate(p1.ID, p1.Rating, new1),
		Player2Update:  models.NewRatingUpdate(p2.ID, p2.Rating, new2),
	}

	err = l.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertGame(ctx, &g); err != nil {
			return err
		}
		got1, err := l.registry.ApplyDelta(ctx, tx, p1.ID, g.Player1Update.Delta, p1.Version)
		if err != nil {
			return err
		}
		got2, err := l.registry.ApplyDelta(ctx, tx, p2.ID, g.Player2Update.Delta, p2.Version)
		if err != nil {
			return err
		}
		if got1 != new1 || got2 != new2 {
			return fmt.Errorf("%w: applied ratings %d/%d, computed %d/%d", store.ErrVersionConflict, got1, got2, new1, new2)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Result{Game: g, Player1: g.Player1Update, Player2: g.Player2Update}, nil
}

// replay returns the recorded result for key, nil if there is none.
func (l *Ledger) replay(ctx context.Context, key, fp string) (*Result, error) {
	g, err := l.store.GetGameByKey(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if g.Fingerprint != fp {
		return nil, fmt.Errorf("%w: key %q", ErrIdempotencyMismatch, key)
	}
	l.logger.WithFields(logrus.Fields{
		"game_id": g.ID,
		"key":     key,
	}).Info("duplicate submission replayed")
	return &Result{Game: *g, Player1: g.Player1Update, Player2: g.Player2Update, Replayed: true}, nil
}

// ensureOpponent auto-registers an unknown bot. Unknown users are rejected.
func (l *Ledger) ensureOpponent(ctx context.Context, id models.PlayerID) error {
	_, err := l.registry.Get(ctx, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, registry.ErrUnknownPlayer) || !id.IsBot() {
		return wrapLookup(err)
	}
	_, err = l.registry.Register(ctx, id, "")
	if err != nil && !errors.Is(err, registry.ErrAlreadyExists) {
		return fmt.Errorf("%w: auto-registering %s: %w", ErrStorage, id, err)
	}
	return nil
}

func (l *Ledger) validate(sub Submission) error {
	if err := sub.Player1.Validate(); err != nil {
		return fmt.Errorf("%w: player1: %w", ErrInvalidSubmission, err)
	}
	if !sub.Player1.IsUser() {
		return fmt.Errorf("%w: player1 must be a user, got %s", ErrInvalidSubmission, sub.Player1)
	}
	if err := sub.Player2.Validate(); err != nil {
		return fmt.Errorf("%w: player2: %w", ErrInvalidSubmission, err)
	}
	if sub.Player1 == sub.Player2 {
		return fmt.Errorf("%w: %s cannot play itself", ErrInvalidSubmission, sub.Player1)
	}
	if !sub.Outcome.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidSubmission, models.ErrInvalidOutcome, string(sub.Outcome))
	}
	if l.cfg.MaxPayloadBytes > 0 && len(sub.Payload) > l.cfg.MaxPayloadBytes {
		return fmt.Errorf("%w: game data is %d bytes, limit %d", ErrInvalidSubmission, len(sub.Payload), l.cfg.MaxPayloadBytes)
	}
	if len(sub.IdempotencyKey) > MaxIdempotencyKeyLength {
		return fmt.Errorf("%w: idempotency key longer than %d", ErrInvalidSubmission, MaxIdempotencyKeyLength)
	}
	if strings.HasPrefix(sub.IdempotencyKey, fingerprintKeyPrefix) {
		return fmt.Errorf("%w: idempotency key prefix %q is reserved", ErrInvalidSubmission, fingerprintKeyPrefix)
	}
	return nil
}

func (l *Ledger) publish(ctx context.Context, g *models.Game) {
	if len(l.notifiers) == 0 {
		return
	}
	// the game is committed; a caller that disconnects now must not stop the fan-out
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	ev := models.NewRatingEvent(g)
	for _, n := range l.notifiers {
		if err := n.Publish(pctx, ev); err != nil {
			l.logger.WithError(err).WithField("game_id", g.ID).Warn("failed to publish rating event")
		}
	}
}

// GetGame returns a recorded game.
func (l *Ledger) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	g, err := l.store.GetGame(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return g, nil
}

// History returns up to limit games of a registered player, newest first.
func (l *Ledger) History(ctx context.Context, id models.PlayerID, limit int) ([]models.Game, error) {
	if _, err := l.registry.Get(ctx, id); err != nil {
		return nil, wrapLookup(err)
	}
	games, err := l.store.GamesByPlayer(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return games, nil
}

// Games returns up to limit games after afterSeq, in ledger order.
func (l *Ledger) Games(ctx context.Context, afterSeq int64, limit int) ([]models.Game, error) {
	games, err := l.store.GamesAfter(ctx, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return games, nil
}

// Fingerprint hashes the content of a submission, excluding its idempotency key.
func Fingerprint(sub Submission) string {
	h := sha256.New()
	h.Write([]byte(sub.Player1.Key()))
	h.Write([]byte{0})
	h.Write([]byte(sub.Player2.Key()))
	h.Write([]byte{0})
	h.Write([]byte(sub.Outcome))
	h.Write([]byte{0})
	h.Write(sub.Payload)
	return hex.EncodeToString(h.Sum(nil))
}

func dedupeKey(sub Submission, fp string) string {
	if sub.IdempotencyKey != "" {
		return sub.IdempotencyKey
	}
	return fingerprintKeyPrefix + fp
}

// wrapLookup passes validation and not-found errors through and marks the rest as storage failures.
func wrapLookup(err error) error {
	switch {
	case errors.Is(err, registry.ErrUnknownPlayer),
		errors.Is(err, models.ErrInvalidPlayerID):
		return err
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrUnknownPlayer, err)
	default:
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
