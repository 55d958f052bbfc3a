package notify_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/alejandrodnm/battlewager/internal/adapters/notify"
	"github.com/alejandrodnm/battlewager/internal/application/settlement"
	"github.com/alejandrodnm/battlewager/internal/domain"
	"github.com/stretchr/testify/assert"
)

func duelComputation() *settlement.Computation {
	b := domain.Battle{
		ID:               "b1",
		Title:            "Friday pull-ups",
		Mode:             domain.ModeDuel,
		ParticipantIDs:   []string{"ana", "bo"},
		RepetitionTarget: 3,
		PointsPerRep:     4,
	}
	return &settlement.Computation{
		Battle: b,
		Tallies: domain.Tallies{
			Participants: []string{"ana", "bo"},
			ByParticipant: map[string]domain.Tally{
				"ana": {Attempts: 3, Successes: 3},
				"bo":  {Attempts: 3, Successes: 1},
			},
		},
		Outcome:       domain.Outcome{Winners: []string{"ana"}, Losers: []string{"bo"}, Lead: 2, TopScore: 3, RunnerUp: 1},
		Pool:          8,
		Apportionment: domain.Apportionment{Collected: 8},
		Deltas:        map[string]int{"ana": 8, "bo": -8},
		Balances:      map[string]int{"ana": 0, "bo": 100},
		Complete:      true,
	}
}

func TestConsole_PrintPreview(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	c.PrintPreview(&settlement.PreviewResult{Computation: duelComputation()})

	out := buf.String()
	assert.Contains(t, out, "PREVIEW b1")
	assert.Contains(t, out, "Friday pull-ups")
	assert.Contains(t, out, "ana wins 3-1 (lead 2)")
	assert.Contains(t, out, "pool: 8 (rate)")
	assert.Contains(t, out, "+8")
	assert.Contains(t, out, "-8")
	assert.Contains(t, out, "92")
	assert.NotContains(t, out, "incomplete")
}

func TestConsole_PrintPreview_Incomplete(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	comp := duelComputation()
	comp.Complete = false
	comp.Tallies.ByParticipant["bo"] = domain.Tally{Attempts: 1, Successes: 1}

	c.PrintPreview(&settlement.PreviewResult{Computation: comp})
	assert.Contains(t, buf.String(), "incomplete: waiting on bo")
}

func TestConsole_PrintPreview_RateLimited(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	comp := duelComputation()
	comp.WouldMove = comp.Deltas
	comp.Deltas = map[string]int{"ana": 0, "bo": 0}

	c.PrintPreview(&settlement.PreviewResult{Computation: comp, RateLimited: true})

	out := buf.String()
	assert.Contains(t, out, "anti-abuse")
	assert.Contains(t, out, "suppressed: ana +8, bo -8")
	assert.Contains(t, out, "100")
}

func TestConsole_PrintSettlement(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	c.PrintSettlement(&settlement.SettleResult{
		BattleID:    "b1",
		Settled:     true,
		Computation: duelComputation(),
		Entries:     make([]domain.LedgerEntry, 2),
		Snapshot: []domain.SnapshotEntry{
			{ParticipantID: "ana", PointsBefore: 0, PointsAfter: 8, Delta: 8},
			{ParticipantID: "bo", PointsBefore: 100, PointsAfter: 92, Delta: -8},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "SETTLED b1")
	assert.Contains(t, out, "* ana")
	assert.Contains(t, out, "ledger rows: 2")
}

func TestConsole_PrintSettlement_RateLimited(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	comp := duelComputation()
	comp.Awards = []domain.MvpAward{{ParticipantID: "ana", Kind: domain.AwardBonus, Points: 10}}
	c.PrintSettlement(&settlement.SettleResult{
		BattleID:    "b1",
		Settled:     true,
		RateLimited: true,
		Computation: comp,
		Snapshot: []domain.SnapshotEntry{
			{ParticipantID: "ana", PointsBefore: 0, PointsAfter: 0},
			{ParticipantID: "bo", PointsBefore: 100, PointsAfter: 100},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "no points moved")
	assert.NotContains(t, out, "MVP", "suppressed awards are not shown")
	assert.Contains(t, out, "ledger rows: 0")
}

func TestConsole_PrintSettlement_AlreadySettled(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	c.PrintSettlement(&settlement.SettleResult{BattleID: "b1", AlreadySettled: true})
	assert.Contains(t, buf.String(), "already settled")
}

func TestConsole_PrintTallies_LongTitleTruncated(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	comp := duelComputation()
	comp.Battle.Title = strings.Repeat("A", 50)
	c.PrintTallies(comp.Battle, comp.Tallies)

	out := buf.String()
	assert.Contains(t, out, "...")
	assert.Contains(t, out, "3/3")
	assert.Contains(t, out, "33%")
}
