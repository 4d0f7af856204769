package registry

import (
	"context"
	"strings"
	"testing"

	"github.com/jason-s-yu/eloledger/internal/models"
	"github.com/jason-s-yu/eloledger/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T, opts ...Option) (*Registry, *store.MemStore, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	s := store.NewMemStore()
	return New(s, logger, opts...), s, hook
}

func TestRegisterUser(t *testing.T) {
	r, _, hook := newRegistry(t)
	ctx := context.Background()

	p, err := r.Register(ctx, models.UserPlayer(42), "  alice ")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Name)
	assert.Equal(t, models.DefaultRating, p.Rating)

	rating, err := r.GetRating(ctx, models.UserPlayer(42))
	require.NoError(t, err)
	assert.Equal(t, models.DefaultRating, rating)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "user:42", entry.Data["player"])
}

func TestRegisterDuplicateFails(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()

	_, err := r.Register(ctx, models.UserPlayer(1), "first")
	require.NoError(t, err)
	_, err = r.Register(ctx, models.UserPlayer(1), "second")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	p, err := r.Get(ctx, models.UserPlayer(1))
	require.NoError(t, err)
	assert.Equal(t, "first", p.Name, "duplicate registration changes nothing")
}

func TestRegisterValidation(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()

	_, err := r.Register(ctx, models.UserPlayer(0), "zero")
	assert.ErrorIs(t, err, models.ErrInvalidPlayerID)

	_, err = r.Register(ctx, models.UserPlayer(1), " ")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = r.Register(ctx, models.UserPlayer(1), strings.Repeat("é", MaxNameLength+1))
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = r.Register(ctx, models.UserPlayer(1), strings.Repeat("é", MaxNameLength))
	assert.NoError(t, err, "length is counted in runes")
}

func TestRegisterBotSeedRating(t *testing.T) {
	r, _, _ := newRegistry(t, WithSeedRatings(map[string]int{"knight-fury": 500}))
	ctx := context.Background()

	p, err := r.Register(ctx, models.BotPlayer("knight-fury"), "")
	require.NoError(t, err)
	assert.Equal(t, "knight-fury", p.Name)
	assert.Equal(t, 500, p.Rating)

	p, err = r.Register(ctx, models.BotPlayer("random-rook"), "Random Rook")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultRating, p.Rating)

	// seeds apply to bots only
	assert.Equal(t, models.DefaultRating, r.StartingRating(models.UserPlayer(500)))
}

func TestGetUnknown(t *testing.T) {
	r, _, _ := newRegistry(t)
	_, err := r.Get(context.Background(), models.BotPlayer("ghost"))
	assert.ErrorIs(t, err, ErrUnknownPlayer)

	_, err = r.GetRating(context.Background(), models.PlayerID{})
	assert.ErrorIs(t, err, models.ErrInvalidPlayerID)
}

func TestApplyDeltaAndLeaderboard(t *testing.T) {
	r, s, _ := newRegistry(t)
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		_, err := r.Register(ctx, models.UserPlayer(i), "p")
		require.NoError(t, err)
	}

	err := s.WithTx(ctx, func(tx store.Tx) error {
		got, err := r.ApplyDelta(ctx, tx, models.UserPlayer(2), 40, 0)
		assert.Equal(t, 1540, got)
		return err
	})
	require.NoError(t, err)

	top, err := r.Leaderboard(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, models.UserPlayer(2), top[0].ID)
	assert.Equal(t, models.UserPlayer(1), top[1].ID)
}
