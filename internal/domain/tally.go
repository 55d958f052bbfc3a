package domain

// Tally counts the logged attempts of one participant.
type Tally struct {
	Attempts  int
	Successes int
}

// SuccessRate returns successes/attempts, 0 when nothing was logged.
func (t Tally) SuccessRate() float64 {
	if t.Attempts == 0 {
		return 0
	}
	return float64(t.Successes) / float64(t.Attempts)
}

// GroupTally is the summed score of a group.
type GroupTally struct {
	Name      string
	Members   []string
	Successes int
}

// Tallies is the aggregated view of a battle's attempt log.
type Tallies struct {
	Participants  []string // same order as Battle.ParticipantIDs
	ByParticipant map[string]Tally
	Groups        []GroupTally // empty for duels
}

// Of returns the tally for id ({0,0} when unknown).
func (t Tallies) Of(id string) Tally {
	return t.ByParticipant[id]
}

// Complete reports whether every participant reached target attempts.
func (t Tallies) Complete(target int) bool {
	for _, id := range t.Participants {
		if t.ByParticipant[id].Attempts < target {
			return false
		}
	}
	return true
}

// Missing returns the participants still short of target, in participant order.
func (t Tallies) Missing(target int) []string {
	var out []string
	for _, id := range t.Participants {
		if t.ByParticipant[id].Attempts < target {
			out = append(out, id)
		}
	}
	return out
}

// Aggregate turns the attempt log of battleID into per-participant tallies and,
// when groups are given, per-group success sums. Events of other battles or of
// people outside participants are ignored.
func Aggregate(battleID string, events []AttemptEvent, participants []string, groups []Group) Tallies {
	by := make(map[string]Tally, len(participants))
	for _, id := range participants {
		by[id] = Tally{}
	}

	for _, ev := range events {
		if ev.BattleID != battleID {
			continue
		}
		t, ok := by[ev.ParticipantID]
		if !ok {
			continue
		}
		t.Attempts++
		if ev.Success {
			t.Successes++
		}
		by[ev.ParticipantID] = t
	}

	var gt []GroupTally
	for _, g := range groups {
		sum := 0
		for _, m := range g.Members {
			sum += by[m].Successes
		}
		gt = append(gt, GroupTally{
			Name:      g.Name,
			Members:   append([]string(nil), g.Members...),
			Successes: sum,
		})
	}

	return Tallies{
		Participants:  append([]string(nil), participants...),
		ByParticipant: by,
		Groups:        gt,
	}
}

// AggregateBattle is Aggregate with the participant set and partition taken from b.
func AggregateBattle(b Battle, events []AttemptEvent) Tallies {
	var groups []Group
	if b.Mode.Grouped() {
		groups = b.Partition()
	}
	return Aggregate(b.ID, events, b.ParticipantIDs, groups)
}
