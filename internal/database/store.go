// internal/database/store.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/eloledger/internal/models"
	"github.com/jason-s-yu/eloledger/internal/store"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	idempotencyKeyConstraint = "games_idempotency_key_key"

	playerColumns = `id, kind, user_id, bot_id, name, rating, version, created_at`
	gameColumns   = `id, seq, player1, player2, outcome, payload, idempotency_key, fingerprint,
		player1_old_rating, player1_new_rating, player2_old_rating, player2_new_rating, created_at`
)

// Store is the Postgres implementation of store.Store. It does not own the
// pool; Close is a no-op so the pool's lifecycle stays with whoever opened it.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() error { return nil }

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) GetPlayer(ctx context.Context, id models.PlayerID) (*models.Player, error) {
	q := `SELECT ` + playerColumns + ` FROM players WHERE id = $1`
	p, err := scanPlayer(s.pool.QueryRow(ctx, q, id.Key()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("player %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get player %s: %w", id, err)
	}
	return p, nil
}

func (s *Store) TopPlayers(ctx context.Context, limit int) ([]models.Player, error) {
	q := `SELECT ` + playerColumns + ` FROM players ORDER BY rating DESC, id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var out []models.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) CreatePlayer(ctx context.Context, p *models.Player) error {
	var userID *int64
	var botID *string
	if p.ID.IsUser() {
		userID = &p.ID.UserID
	} else {
		botID = &p.ID.BotID
	}

	q := `
		INSERT INTO players (id, kind, user_id, bot_id, name, rating)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING version, created_at
	`
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, q, p.ID.Key(), string(p.ID.Kind), userID, botID, p.Name, p.Rating).
			Scan(&p.Version, &p.CreatedAt)
	})
	if isViolation(err, pgUniqueViolation, "") {
		return fmt.Errorf("player %s: %w", p.ID, store.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert player: %w", err)
	}
	return nil
}

func (s *Store) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	return s.getGame(ctx, s.pool, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id)
}

func (s *Store) GetGameByKey(ctx context.Context, idempotencyKey string) (*models.Game, error) {
	return s.getGame(ctx, s.pool, `SELECT `+gameColumns+` FROM games WHERE idempotency_key = $1`, idempotencyKey)
}

func (s *Store) getGame(ctx context.Context, qr querier, q string, arg any) (*models.Game, error) {
	g, err := scanGame(qr.QueryRow(ctx, q, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("game %v: %w", arg, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get game %v: %w", arg, err)
	}
	return g, nil
}

func (s *Store) GamesByPlayer(ctx context.Context, id models.PlayerID, limit int) ([]models.Game, error) {
	q := `SELECT ` + gameColumns + ` FROM games WHERE player1 = $1 OR player2 = $1 ORDER BY seq DESC`
	args := []any{id.Key()}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.listGames(ctx, q, args...)
}

func (s *Store) GamesAfter(ctx context.Context, afterSeq int64, limit int) ([]models.Game, error) {
	q := `SELECT ` + gameColumns + ` FROM games WHERE seq > $1 ORDER BY seq`
	args := []any{afterSeq}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.listGames(ctx, q, args...)
}

func (s *Store) listGames(ctx context.Context, q string, args ...any) ([]models.Game, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var out []models.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// WithTx runs fn in a READ COMMITTED transaction. Rating updates are guarded
// by the version column, so lost updates surface as store.ErrVersionConflict.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) InsertGame(ctx context.Context, g *models.Game) error {
	q := `
		INSERT INTO games (
			id, player1, player2, outcome, payload, idempotency_key, fingerprint,
			player1_old_rating, player1_new_rating, player2_old_rating, player2_new_rating,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING seq
	`
	payload := g.Payload
	if payload == nil {
		payload = []byte{}
	}
	err := t.tx.QueryRow(ctx, q,
		g.ID, g.Player1.Key(), g.Player2.Key(), string(g.Outcome), payload,
		g.IdempotencyKey, g.Fingerprint,
		g.Player1Update.OldRating, g.Player1Update.NewRating,
		g.Player2Update.OldRating, g.Player2Update.NewRating,
		g.CreatedAt,
	).Scan(&g.Seq)
	switch {
	case isViolation(err, pgUniqueViolation, idempotencyKeyConstraint):
		return fmt.Errorf("game with key %q: %w", g.IdempotencyKey, store.ErrDuplicateKey)
	case isViolation(err, pgForeignKeyViolation, ""):
		return fmt.Errorf("game references unknown player: %w", store.ErrNotFound)
	case err != nil:
		return fmt.Errorf("failed to insert game: %w", err)
	}
	return nil
}

func (t *pgTx) ApplyDelta(ctx context.Context, id models.PlayerID, delta int, expectedVersion int64) (int, error) {
	q := `
		UPDATE players
		SET rating = rating + $2, version = version + 1
		WHERE id = $1 AND version = $3
		RETURNING rating
	`
	var rating int
	err := t.tx.QueryRow(ctx, q, id.Key(), delta, expectedVersion).Scan(&rating)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if e := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM players WHERE id = $1)`, id.Key()).Scan(&exists); e != nil {
			return 0, fmt.Errorf("check player %s: %w", id, e)
		}
		if !exists {
			return 0, fmt.Errorf("player %s: %w", id, store.ErrNotFound)
		}
		return 0, fmt.Errorf("player %s changed since version %d: %w", id, expectedVersion, store.ErrVersionConflict)
	}
	if err != nil {
		return 0, fmt.Errorf("update rating of %s: %w", id, err)
	}
	return rating, nil
}

func scanPlayer(row pgx.Row) (*models.Player, error) {
	var (
		p      models.Player
		key    string
		kind   string
		userID *int64
		botID  *string
	)
	if err := row.Scan(&key, &kind, &userID, &botID, &p.Name, &p.Rating, &p.Version, &p.CreatedAt); err != nil {
		return nil, err
	}
	id, err := models.ParsePlayerID(key)
	if err != nil {
		return nil, fmt.Errorf("stored player id %q: %w", key, err)
	}
	p.ID = id
	return &p, nil
}

func scanGame(row pgx.Row) (*models.Game, error) {
	var (
		g               models.Game
		p1, p2, outcome string
		p1Old, p1New    int
		p2Old, p2New    int
	)
	err := row.Scan(
		&g.ID, &g.Seq, &p1, &p2, &outcome, &g.Payload, &g.IdempotencyKey, &g.Fingerprint,
		&p1Old, &p1New, &p2Old, &p2New, &g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if g.Player1, err = models.ParsePlayerID(p1); err != nil {
		return nil, fmt.Errorf("stored player1 %q: %w", p1, err)
	}
	if g.Player2, err = models.ParsePlayerID(p2); err != nil {
		return nil, fmt.Errorf("stored player2 %q: %w", p2, err)
	}
	if g.Outcome, err = models.ParseOutcome(outcome); err != nil {
		return nil, err
	}
	g.Player1Update = models.NewRatingUpdate(g.Player1, p1Old, p1New)
	g.Player2Update = models.NewRatingUpdate(g.Player2, p2Old, p2New)
	return &g, nil
}

// isViolation reports whether err is a Postgres error with the given code and,
// when constraint is non-empty, on that constraint.
func isViolation(err error, code, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != code {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
