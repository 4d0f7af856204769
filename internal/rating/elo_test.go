package rating

import (
	"testing"

	"github.com/jason-s-yu/eloledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, k int) *Engine {
	t.Helper()
	e, err := NewEngine(Config{UserKFactor: k, BotKFactor: k})
	require.NoError(t, err)
	return e
}

func TestComputeEqualRatingsWin(t *testing.T) {
	e := newTestEngine(t, 32)

	newA, newB, err := e.Compute(1500, 1500, models.Player1Win)
	require.NoError(t, err)
	assert.Equal(t, 1516, newA)
	assert.Equal(t, 1484, newB)

	newA, newB, err = e.Compute(1500, 1500, models.Player2Win)
	require.NoError(t, err)
	assert.Equal(t, 1484, newA)
	assert.Equal(t, 1516, newB)
}

func TestComputeEqualRatingsHalfK(t *testing.T) {
	for _, k := range []int{10, 16, 20, 32, 40} {
		e := newTestEngine(t, k)
		for _, r := range []int{0, 800, 1500, 2400} {
			newA, newB, err := e.Compute(r, r, models.Player1Win)
			require.NoError(t, err)
			assert.Equal(t, r+k/2, newA, "k=%d r=%d", k, r)
			if r-k/2 >= 0 {
				assert.Equal(t, r-k/2, newB, "k=%d r=%d", k, r)
			}

			newA, newB, err = e.Compute(r, r, models.Draw)
			require.NoError(t, err)
			assert.Equal(t, r, newA)
			assert.Equal(t, r, newB)
		}
	}
}

func TestComputeDeterministic(t *testing.T) {
	e := newTestEngine(t, 32)
	cases := []struct {
		a, b    int
		outcome models.Outcome
	}{
		{1500, 1500, models.Player1Win},
		{1200, 1800, models.Player1Win},
		{1800, 1200, models.Draw},
		{2500, 500, models.Player2Win},
	}
	for _, c := range cases {
		a1, b1, err := e.Compute(c.a, c.b, c.outcome)
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			a2, b2, err := e.Compute(c.a, c.b, c.outcome)
			require.NoError(t, err)
			assert.Equal(t, a1, a2)
			assert.Equal(t, b1, b2)
		}
	}
}

func TestComputeUnderdogGainsMore(t *testing.T) {
	e := newTestEngine(t, 32)

	upsetA, _, err := e.Compute(1200, 1800, models.Player1Win)
	require.NoError(t, err)
	favA, _, err := e.Compute(1800, 1200, models.Player1Win)
	require.NoError(t, err)

	assert.Greater(t, upsetA-1200, favA-1800)
	assert.Equal(t, 1231, upsetA)
	assert.Equal(t, 1801, favA)
}

func TestExpectedScoreSymmetry(t *testing.T) {
	for _, pair := range [][2]int{{1500, 1500}, {1000, 2000}, {0, 3000}, {2100, 1900}} {
		eA := ExpectedScore(pair[0], pair[1])
		eB := ExpectedScore(pair[1], pair[0])
		assert.InDelta(t, 1.0, eA+eB, 1e-12)
	}
	assert.InDelta(t, 0.5, ExpectedScore(1500, 1500), 1e-12)
}

func TestComputeClampsAtZero(t *testing.T) {
	e := newTestEngine(t, 32)

	newA, newB, err := e.Compute(0, 0, models.Player2Win)
	require.NoError(t, err)
	assert.Equal(t, 0, newA)
	assert.Equal(t, 16, newB)

	newA, _, err = e.Compute(5, 5, models.Player2Win)
	require.NoError(t, err)
	assert.Equal(t, 0, newA)
}

func TestComputeExtremeRatings(t *testing.T) {
	e := newTestEngine(t, 32)

	newA, newB, err := e.Compute(MaxRating, 0, models.Player1Win)
	require.NoError(t, err)
	assert.Equal(t, MaxRating, newA)
	assert.Equal(t, 0, newB)

	newA, newB, err = e.Compute(0, MaxRating, models.Player1Win)
	require.NoError(t, err)
	assert.Equal(t, 32, newA)
	assert.Equal(t, MaxRating-32, newB)
}

func TestComputeRejectsBadInput(t *testing.T) {
	e := newTestEngine(t, 32)

	_, _, err := e.Compute(1500, 1500, models.Outcome("forfeit"))
	assert.ErrorIs(t, err, models.ErrInvalidOutcome)

	_, _, err = e.Compute(-1, 1500, models.Draw)
	assert.ErrorIs(t, err, ErrInvalidRating)
}

func TestComputeForUsesClassK(t *testing.T) {
	e, err := NewEngine(Config{UserKFactor: 32, BotKFactor: 16})
	require.NoError(t, err)

	user := models.UserPlayer(1)
	bot := models.BotPlayer("knight-fury")

	newUser, newBot, err := e.ComputeFor(user, bot, 1500, 1500, models.Player1Win)
	require.NoError(t, err)
	assert.Equal(t, 1516, newUser)
	assert.Equal(t, 1492, newBot)
}

func TestNewEngineRejectsNonPositiveK(t *testing.T) {
	_, err := NewEngine(Config{UserKFactor: 0, BotKFactor: 32})
	assert.Error(t, err)
	_, err = NewEngine(Config{UserKFactor: 32, BotKFactor: -4})
	assert.Error(t, err)
}
