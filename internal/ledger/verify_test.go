package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/jason-s-yu/eloledger/internal/models"
	"github.com/jason-s-yu/eloledger/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestVerifyReproducesRatings(t *testing.T) {
	f := newFixture(t, nil)
	f.registerUsers(t, 1, 2, 3)
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 30; i++ {
		i := i
		g.Go(func() error {
			p1 := models.UserPlayer(int64(1 + i%3))
			var p2 models.PlayerID
			switch i % 3 {
			case 0:
				p2 = models.BotPlayer("endgame-expert")
			case 1:
				p2 = models.UserPlayer(3)
			default:
				p2 = models.UserPlayer(1)
			}
			_, err := f.ledger.SubmitGame(ctx, Submission{
				Player1: p1,
				Player2: p2,
				Outcome: []models.Outcome{models.Player1Win, models.Draw, models.Player2Win}[i%3],
				Payload: []byte(fmt.Sprintf("g%d", i)),
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	report, err := f.ledger.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK(), "mismatches: %+v", report.Mismatches)
	assert.Equal(t, 30, report.Games)
	assert.Len(t, report.Ratings, 4)
	assert.Equal(t, f.rating(t, models.BotPlayer("endgame-expert")), report.Ratings[models.BotPlayer("endgame-expert")])
}

func TestVerifyEmptyLedger(t *testing.T) {
	f := newFixture(t, nil)
	report, err := f.ledger.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Zero(t, report.Games)
}

func TestVerifyDetectsOutOfBandChange(t *testing.T) {
	f := newFixture(t, nil)
	f.registerUsers(t, 1, 2)
	ctx := context.Background()

	_, err := f.ledger.SubmitGame(ctx, Submission{Player1: models.UserPlayer(1), Player2: models.UserPlayer(2), Outcome: models.Player1Win})
	require.NoError(t, err)

	// bump a rating without going through the ledger
	p, err := f.mem.GetPlayer(ctx, models.UserPlayer(2))
	require.NoError(t, err)
	require.NoError(t, f.mem.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.ApplyDelta(ctx, p.ID, 100, p.Version)
		return err
	}))

	report, err := f.ledger.Verify(ctx)
	require.NoError(t, err)
	require.False(t, report.OK())
	require.Len(t, report.Mismatches, 1)
	m := report.Mismatches[0]
	assert.Equal(t, int64(0), m.Seq)
	assert.Equal(t, models.UserPlayer(2), m.Player)
	assert.Equal(t, 1584, m.Stored)
	assert.Equal(t, 1484, m.Replay)
}
