package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/eloledger/internal/models"
)

// MemStore keeps players and games in memory. Transactions hold the write
// lock for their whole duration and stage their writes, so readers see either
// the state before a transaction or after it.
type MemStore struct {
	mu      sync.RWMutex
	players map[string]models.Player
	games   []models.Game
	byID    map[uuid.UUID]int
	byKey   map[string]int
	seq     int64
	now     func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		players: make(map[string]models.Player),
		byID:    make(map[uuid.UUID]int),
		byKey:   make(map[string]int),
		now:     time.Now,
	}
}

func (s *MemStore) GetPlayer(ctx context.Context, id models.PlayerID) (*models.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id.Key()]
	if !ok {
		return nil, fmt.Errorf("player %s: %w", id, ErrNotFound)
	}
	return &p, nil
}

func (s *MemStore) TopPlayers(ctx context.Context, limit int) ([]models.Player, error) {
	s.mu.RLock()
	out := make([]models.Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].ID.Key() < out[j].ID.Key()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) CreatePlayer(ctx context.Context, p *models.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := p.ID.Key()
	if _, ok := s.players[key]; ok {
		return fmt.Errorf("player %s: %w", p.ID, ErrAlreadyExists)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	s.players[key] = *p
	return nil
}

func (s *MemStore) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	g := copyGame(s.games[i])
	return &g, nil
}

func (s *MemStore) GetGameByKey(ctx context.Context, idempotencyKey string) (*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byKey[idempotencyKey]
	if !ok {
		return nil, fmt.Errorf("game with key %q: %w", idempotencyKey, ErrNotFound)
	}
	g := copyGame(s.games[i])
	return &g, nil
}

func (s *MemStore) GamesByPlayer(ctx context.Context, id models.PlayerID, limit int) ([]models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Game
	for i := len(s.games) - 1; i >= 0; i-- {
		g := s.games[i]
		if g.Player1 != id && g.Player2 != id {
			continue
		}
		out = append(out, copyGame(g))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemStore) GamesAfter(ctx context.Context, afterSeq int64, limit int) ([]models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// games is ordered by Seq and Seq starts at 1 with no gaps.
	start := int(afterSeq)
	if start < 0 {
		start = 0
	}
	if start >= len(s.games) {
		return nil, nil
	}
	end := len(s.games)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	out := make([]models.Game, 0, end-start)
	for _, g := range s.games[start:end] {
		out = append(out, copyGame(g))
	}
	return out, nil
}

func (s *MemStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s, players: make(map[string]models.Player)}
	if err := fn(tx); err != nil {
		return err
	}
	// a caller that gave up before commit must not see its game recorded
	if err := ctx.Err(); err != nil {
		return err
	}

	for key, p := range tx.players {
		s.players[key] = p
	}
	for _, g := range tx.games {
		s.byID[g.ID] = len(s.games)
		s.byKey[g.IdempotencyKey] = len(s.games)
		s.games = append(s.games, g)
	}
	s.seq += int64(len(tx.games))
	return nil
}

func (s *MemStore) Close() error { return nil }

// memTx stages writes until MemStore.WithTx commits them. The store's write
// lock is held for the lifetime of a memTx.
type memTx struct {
	s       *MemStore
	players map[string]models.Player
	games   []models.Game
}

func (tx *memTx) InsertGame(ctx context.Context, g *models.Game) error {
	if _, ok := tx.s.byKey[g.IdempotencyKey]; ok {
		return fmt.Errorf("game with key %q: %w", g.IdempotencyKey, ErrDuplicateKey)
	}
	for _, staged := range tx.games {
		if staged.IdempotencyKey == g.IdempotencyKey {
			return fmt.Errorf("game with key %q: %w", g.IdempotencyKey, ErrDuplicateKey)
		}
	}
	for _, id := range []models.PlayerID{g.Player1, g.Player2} {
		if _, err := tx.player(id); err != nil {
			return err
		}
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = tx.s.now().UTC()
	}
	g.Seq = tx.s.seq + int64(len(tx.games)) + 1
	tx.games = append(tx.games, copyGame(*g))
	return nil
}

func (tx *memTx) ApplyDelta(ctx context.Context, id models.PlayerID, delta int, expectedVersion int64) (int, error) {
	p, err := tx.player(id)
	if err != nil {
		return 0, err
	}
	if p.Version != expectedVersion {
		return 0, fmt.Errorf("player %s at version %d, expected %d: %w", id, p.Version, expectedVersion, ErrVersionConflict)
	}
	next := p.Rating + delta
	if next < 0 {
		return 0, fmt.Errorf("player %s rating would become %d", id, next)
	}
	p.Rating = next
	p.Version++
	tx.players[id.Key()] = p
	return next, nil
}

func (tx *memTx) player(id models.PlayerID) (models.Player, error) {
	if p, ok := tx.players[id.Key()]; ok {
		return p, nil
	}
	p, ok := tx.s.players[id.Key()]
	if !ok {
		return models.Player{}, fmt.Errorf("player %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func copyGame(g models.Game) models.Game {
	if g.Payload != nil {
		g.Payload = append([]byte(nil), g.Payload...)
	}
	return g
}
