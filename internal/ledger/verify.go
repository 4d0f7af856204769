package ledger

import (
	"context"
	"fmt"

	"github.com/jason-s-yu/eloledger/internal/models"
	"github.com/sirupsen/logrus"
)

const verifyBatch = 500

// Mismatch is a rating that replaying the ledger does not reproduce. Seq is
// zero when the mismatch is against the player's current rating.
type Mismatch struct {
	Seq    int64
	Player models.PlayerID
	Stored int
	Replay int
}

// VerifyReport summarizes a ledger replay.
type VerifyReport struct {
	Games      int
	Ratings    map[models.PlayerID]int
	Mismatches []Mismatch
}

func (r *VerifyReport) OK() bool { return len(r.Mismatches) == 0 }

// Verify replays every game in seq order from each player's starting rating
// and compares the result with the stored snapshots and current ratings.
// It must not run concurrently with submissions.
func (l *Ledger) Verify(ctx context.Context) (*VerifyReport, error) {
	report := &VerifyReport{Ratings: make(map[models.PlayerID]int)}
	current := func(id models.PlayerID) int {
		if r, ok := report.Ratings[id]; ok {
			return r
		}
		return l.registry.StartingRating(id)
	}
	check := func(seq int64, id models.PlayerID, stored, replay int) {
		if stored != replay {
			report.Mismatches = append(report.Mismatches, Mismatch{Seq: seq, Player: id, Stored: stored, Replay: replay})
		}
	}

	var after int64
	for {
		games, err := l.Games(ctx, after, verifyBatch)
		if err != nil {
			return nil, err
		}
		for i := range games {
			g := &games[i]
			r1, r2 := current(g.Player1), current(g.Player2)
			check(g.Seq, g.Player1, g.Player1Update.OldRating, r1)
			check(g.Seq, g.Player2, g.Player2Update.OldRating, r2)

			new1, new2, err := l.engine.ComputeFor(g.Player1, g.Player2, r1, r2, g.Outcome)
			if err != nil {
				return nil, fmt.Errorf("replaying game %s: %w", g.ID, err)
			}
			check(g.Seq, g.Player1, g.Player1Update.NewRating, new1)
			check(g.Seq, g.Player2, g.Player2Update.NewRating, new2)

			report.Ratings[g.Player1] = new1
			report.Ratings[g.Player2] = new2
			report.Games++
			after = g.Seq
		}
		if len(games) < verifyBatch {
			break
		}
	}

	for id, replay := range report.Ratings {
		stored, err := l.registry.GetRating(ctx, id)
		if err != nil {
			return nil, wrapLookup(err)
		}
		check(0, id, stored, replay)
	}

	l.logger.WithFields(logrus.Fields{
		"games":      report.Games,
		"players":    len(report.Ratings),
		"mismatches": len(report.Mismatches),
	}).Info("ledger verified")
	return report, nil
}
