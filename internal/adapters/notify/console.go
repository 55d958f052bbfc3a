package notify

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/battlewager/internal/application/settlement"
	"github.com/alejandrodnm/battlewager/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console imprime previews y settlements como tablas.
type Console struct {
	out io.Writer
}

// NewConsole crea un Console que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un Console para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// PrintPreview muestra lo que haría Settle si corriera ahora.
func (c *Console) PrintPreview(p *settlement.PreviewResult) {
	b := p.Battle
	fmt.Fprintf(c.out, "\n[%s] PREVIEW %s %s (%s, target %d)\n",
		time.Now().Format("15:04:05"), b.ID, title(b), b.Mode, b.RepetitionTarget)

	switch {
	case p.Settled:
		fmt.Fprintln(c.out, "  already settled: nothing would move")
	case !p.Complete:
		fmt.Fprintf(c.out, "  incomplete: waiting on %s\n", strings.Join(p.Tallies.Missing(b.RepetitionTarget), ", "))
	case p.RateLimited:
		fmt.Fprintln(c.out, "  anti-abuse: settle would record the result without moving points")
		ids := p.Tallies.Participants
		moves := make([]string, 0, len(ids))
		for _, id := range ids {
			if d := p.WouldMove[id]; d != 0 {
				moves = append(moves, id+" "+signed(d))
			}
		}
		if len(moves) > 0 {
			fmt.Fprintf(c.out, "  suppressed: %s\n", strings.Join(moves, ", "))
		}
	}

	c.printOutcome(p.Computation)
	c.printParticipants(p.Computation, nil)
	c.printAwards(p.Awards)
}

// PrintSettlement muestra el resultado de un Settle.
func (c *Console) PrintSettlement(r *settlement.SettleResult) {
	now := time.Now().Format("15:04:05")
	if r.AlreadySettled {
		fmt.Fprintf(c.out, "[%s] %s already settled, nothing applied\n", now, r.BattleID)
		return
	}
	if r.Computation == nil {
		fmt.Fprintf(c.out, "[%s] %s not settled\n", now, r.BattleID)
		return
	}

	b := r.Computation.Battle
	fmt.Fprintf(c.out, "\n[%s] SETTLED %s %s (%s)\n", now, b.ID, title(b), b.Mode)
	if r.RateLimited {
		fmt.Fprintln(c.out, "  anti-abuse: result recorded, no points moved")
	}

	c.printOutcome(r.Computation)
	snap := make(map[string]domain.SnapshotEntry, len(r.Snapshot))
	for _, s := range r.Snapshot {
		snap[s.ParticipantID] = s
	}
	c.printParticipants(r.Computation, snap)
	if !r.RateLimited {
		c.printAwards(r.Computation.Awards)
	}
	fmt.Fprintf(c.out, "  ledger rows: %d\n\n", len(r.Entries))
}

// PrintTallies muestra el marcador en vivo de una batalla.
func (c *Console) PrintTallies(b domain.Battle, t domain.Tallies) {
	fmt.Fprintf(c.out, "\n%s %s (%s, target %d)\n", b.ID, title(b), b.Mode, b.RepetitionTarget)

	table := tablewriter.NewWriter(c.out)
	table.Header("Participant", "Group", "Reps", "Successes", "Rate")
	groupOf := memberGroups(t.Groups)
	for _, id := range t.Participants {
		tl := t.Of(id)
		table.Append(id, groupOf[id], fmt.Sprintf("%d/%d", tl.Attempts, b.RepetitionTarget),
			fmt.Sprintf("%d", tl.Successes), fmt.Sprintf("%.0f%%", tl.SuccessRate()*100))
	}
	table.Render()

	for _, g := range t.Groups {
		fmt.Fprintf(c.out, "  %s: %d\n", g.Name, g.Successes)
	}
}

func (c *Console) printOutcome(comp *settlement.Computation) {
	o := comp.Outcome
	switch {
	case o.IsTie || !o.HasWinner():
		fmt.Fprintf(c.out, "  result: tie at %d\n", o.TopScore)
	case o.WinningGroup != "":
		fmt.Fprintf(c.out, "  result: %s wins %d-%d (lead %d)\n", o.WinningGroup, o.TopScore, o.RunnerUp, o.Lead)
	default:
		fmt.Fprintf(c.out, "  result: %s wins %d-%d (lead %d)\n", strings.Join(o.Winners, ", "), o.TopScore, o.RunnerUp, o.Lead)
	}

	kind := "rate"
	if !comp.Battle.RateMode() {
		kind = "wager"
	}
	fmt.Fprintf(c.out, "  pool: %d (%s)  collected: %d\n", comp.Pool, kind, comp.Apportionment.Collected)
}

// printParticipants imprime una fila por participante; snap nil = preview.
func (c *Console) printParticipants(comp *settlement.Computation, snap map[string]domain.SnapshotEntry) {
	table := tablewriter.NewWriter(c.out)
	if snap == nil {
		table.Header("Participant", "Group", "Reps", "Successes", "Balance", "Delta", "Projected")
	} else {
		table.Header("Participant", "Group", "Reps", "Successes", "Before", "Delta", "After")
	}

	groupOf := memberGroups(comp.Tallies.Groups)
	for _, id := range comp.Tallies.Participants {
		tl := comp.Tallies.Of(id)
		before, delta := comp.Balances[id], comp.Deltas[id]
		if snap != nil {
			before, delta = snap[id].PointsBefore, snap[id].Delta
		}
		table.Append(
			marker(comp.Outcome, id),
			groupOf[id],
			fmt.Sprintf("%d", tl.Attempts),
			fmt.Sprintf("%d", tl.Successes),
			fmt.Sprintf("%d", before),
			signed(delta),
			fmt.Sprintf("%d", before+delta),
		)
	}
	table.Render()
}

func (c *Console) printAwards(awards []domain.MvpAward) {
	if len(awards) == 0 {
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("MVP", "Group", "Kind", "Base", "Bonus", "Points")
	for _, a := range awards {
		bonus := "-"
		if a.Kind == domain.AwardBonus {
			bonus = fmt.Sprintf("%d (%d%%)", a.Bonus, a.BonusPct)
		}
		table.Append(a.ParticipantID, a.Group, string(a.Kind),
			fmt.Sprintf("%d", a.Base), bonus, fmt.Sprintf("%d", a.Points))
	}
	table.Render()
}

// --- helpers ---

func title(b domain.Battle) string {
	if b.Title == "" {
		return ""
	}
	return fmt.Sprintf("%q", truncate(b.Title, 40))
}

func marker(o domain.Outcome, id string) string {
	if o.IsWinner(id) {
		return "* " + id
	}
	return id
}

func memberGroups(groups []domain.GroupTally) map[string]string {
	out := make(map[string]string)
	for _, g := range groups {
		for _, m := range g.Members {
			out[m] = g.Name
		}
	}
	return out
}

func signed(n int) string {
	if n > 0 {
		return fmt.Sprintf("+%d", n)
	}
	return fmt.Sprintf("%d", n)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
