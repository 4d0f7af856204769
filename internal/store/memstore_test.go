package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/eloledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPlayers(t *testing.T, s *MemStore, ids ...models.PlayerID) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, s.CreatePlayer(context.Background(), &models.Player{ID: id, Name: id.Key(), Rating: models.DefaultRating}))
	}
}

func TestMemStoreCreatePlayerDuplicate(t *testing.T) {
	s := NewMemStore()
	seedPlayers(t, s, models.UserPlayer(1))

	err := s.CreatePlayer(context.Background(), &models.Player{ID: models.UserPlayer(1), Name: "again"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = s.GetPlayer(context.Background(), models.UserPlayer(2))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStoreTxRollback(t *testing.T) {
	s := NewMemStore()
	p1, p2 := models.UserPlayer(1), models.BotPlayer("b")
	seedPlayers(t, s, p1, p2)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx Tx) error {
		g := &models.Game{ID: uuid.New(), Player1: p1, Player2: p2, Outcome: models.Draw, IdempotencyKey: "a"}
		require.NoError(t, tx.InsertGame(ctx, g))
		_, err := tx.ApplyDelta(ctx, p1, 10, 0)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, err := s.GetPlayer(ctx, p1)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultRating, p.Rating)
	assert.Equal(t, int64(0), p.Version)
	_, err = s.GetGameByKey(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStoreVersionAndDuplicateKey(t *testing.T) {
	s := NewMemStore()
	p1, p2 := models.UserPlayer(1), models.UserPlayer(2)
	seedPlayers(t, s, p1, p2)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertGame(ctx, &models.Game{ID: uuid.New(), Player1: p1, Player2: p2, Outcome: models.Draw, IdempotencyKey: "a"}); err != nil {
			return err
		}
		r, err := tx.ApplyDelta(ctx, p1, 16, 0)
		if err != nil {
			return err
		}
		assert.Equal(t, 1516, r)
		return nil
	})
	require.NoError(t, err)

	err = s.WithTx(ctx, func(tx Tx) error {
		_, err := tx.ApplyDelta(ctx, p1, 1, 0)
		return err
	})
	assert.ErrorIs(t, err, ErrVersionConflict)

	err = s.WithTx(ctx, func(tx Tx) error {
		return tx.InsertGame(ctx, &models.Game{ID: uuid.New(), Player1: p1, Player2: p2, Outcome: models.Draw, IdempotencyKey: "a"})
	})
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestMemStoreGamesAfterAndTopPlayers(t *testing.T) {
	s := NewMemStore()
	p1, p2, p3 := models.UserPlayer(1), models.UserPlayer(2), models.UserPlayer(3)
	seedPlayers(t, s, p1, p2, p3)
	ctx := context.Background()

	for i, key := range []string{"a", "b", "c"} {
		err := s.WithTx(ctx, func(tx Tx) error {
			g := &models.Game{ID: uuid.New(), Player1: p1, Player2: p2, Outcome: models.Player1Win, IdempotencyKey: key}
			if err := tx.InsertGame(ctx, g); err != nil {
				return err
			}
			assert.Equal(t, int64(i+1), g.Seq)
			_, err := tx.ApplyDelta(ctx, p1, 5, int64(i))
			return err
		})
		require.NoError(t, err)
	}

	games, err := s.GamesAfter(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "b", games[0].IdempotencyKey)

	games, err = s.GamesAfter(ctx, 3, 10)
	require.NoError(t, err)
	assert.Empty(t, games)

	top, err := s.TopPlayers(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, p1, top[0].ID)
	assert.Equal(t, 1515, top[0].Rating)
	assert.Equal(t, p2, top[1].ID, "ties broken by id")
}

func TestMemStoreCancelledTx(t *testing.T) {
	s := NewMemStore()
	p1, p2 := models.UserPlayer(1), models.UserPlayer(2)
	seedPlayers(t, s, p1, p2)

	ctx, cancel := context.WithCancel(context.Background())
	err := s.WithTx(ctx, func(tx Tx) error {
		cancel()
		return tx.InsertGame(ctx, &models.Game{ID: uuid.New(), Player1: p1, Player2: p2, Outcome: models.Draw, IdempotencyKey: "x"})
	})
	require.ErrorIs(t, err, context.Canceled)

	_, err = s.GetGameByKey(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotFound)
}
