package domain

import (
	"fmt"
	"time"
)

// Mode decides how the winner set of a battle is resolved.
type Mode string

const (
	ModeDuel  Mode = "duel"
	ModeTeams Mode = "teams"
	ModeLanes Mode = "lanes"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeDuel, ModeTeams, ModeLanes:
		return true
	}
	return false
}

// Grouped is true for modes that score by group instead of by participant.
func (m Mode) Grouped() bool {
	return m == ModeTeams || m == ModeLanes
}

// MinPointsPerRep is the floor applied to a battle's points_per_rep in rate mode.
const MinPointsPerRep = 3

// Group is a named subset of a battle's participants (a team or a lane).
type Group struct {
	Name    string   `json:"name" yaml:"name"`
	Members []string `json:"members" yaml:"members"`
}

// Battle is a repetition contest between two or more participants.
type Battle struct {
	ID               string
	Title            string
	Slug             string // url-safe form of Title
	Mode             Mode
	ParticipantIDs   []string // orden de inscripción, usado como tie-break estable
	Groups           []Group  // explicit partition; empty = halves split
	RepetitionTarget int
	WagerAmount      int // 0 = rate mode
	PointsPerRep     int
	CreatedBy        string
	CreatedAt        time.Time

	SettledAt  *time.Time
	WinnerID   string // only for a duel with a single winner
	Settlement *SettlementRecord
}

// IsSettled reports whether the battle already reached its terminal state.
func (b Battle) IsSettled() bool {
	return b.SettledAt != nil
}

// RateMode is true when the payout pool is driven by the lead instead of a wager.
func (b Battle) RateMode() bool {
	return b.WagerAmount == 0
}

// EffectivePointsPerRep returns PointsPerRep floored at min (MinPointsPerRep when min <= 0).
func (b Battle) EffectivePointsPerRep(min int) int {
	if min <= 0 {
		min = MinPointsPerRep
	}
	if b.PointsPerRep < min {
		return min
	}
	return b.PointsPerRep
}

// Partition returns the groups used to score a grouped battle. When no explicit
// partition was recorded the participants are split in halves: the first
// ceil(n/2) ids form group "A", the rest group "B".
func (b Battle) Partition() []Group {
	if len(b.Groups) >= 2 {
		return b.Groups
	}
	n := len(b.ParticipantIDs)
	if n == 0 {
		return nil
	}
	half := (n + 1) / 2
	first := append([]string(nil), b.ParticipantIDs[:half]...)
	second := append([]string(nil), b.ParticipantIDs[half:]...)
	return []Group{
		{Name: "A", Members: first},
		{Name: "B", Members: second},
	}
}

// HasParticipant reports whether id takes part in the battle.
func (b Battle) HasParticipant(id string) bool {
	for _, p := range b.ParticipantIDs {
		if p == id {
			return true
		}
	}
	return false
}

// Validate rejects battles the settlement stages cannot work with.
func (b Battle) Validate() error {
	if !b.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidBattle, b.Mode)
	}
	if len(b.ParticipantIDs) == 0 {
		return fmt.Errorf("%w: no participants", ErrInvalidBattle)
	}
	seen := make(map[string]bool, len(b.ParticipantIDs))
	for _, id := range b.ParticipantIDs {
		if id == "" {
			return fmt.Errorf("%w: empty participant id", ErrInvalidBattle)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate participant %q", ErrInvalidBattle, id)
		}
		seen[id] = true
	}
	if b.Mode == ModeDuel && len(b.ParticipantIDs) < 2 {
		return fmt.Errorf("%w: a duel needs at least two participants", ErrInvalidBattle)
	}
	if b.RepetitionTarget < 1 {
		return fmt.Errorf("%w: repetition target must be >= 1", ErrInvalidBattle)
	}
	if b.WagerAmount < 0 {
		return fmt.Errorf("%w: negative wager", ErrInvalidBattle)
	}
	if b.Mode.Grouped() && len(b.Groups) > 0 {
		if err := validateGroups(b.Groups, seen); err != nil {
			return err
		}
	}
	return nil
}

// validateGroups checks that groups form a partition of the participant set.
func validateGroups(groups []Group, participants map[string]bool) error {
	if len(groups) < 2 {
		return fmt.Errorf("%w: need at least two groups", ErrInvalidBattle)
	}
	assigned := make(map[string]string, len(participants))
	for _, g := range groups {
		if g.Name == "" {
			return fmt.Errorf("%w: unnamed group", ErrInvalidBattle)
		}
		if len(g.Members) == 0 {
			return fmt.Errorf("%w: group %q is empty", ErrInvalidBattle, g.Name)
		}
		for _, m := range g.Members {
			if !participants[m] {
				return fmt.Errorf("%w: group %q member %q is not a participant", ErrInvalidBattle, g.Name, m)
			}
			if other, dup := assigned[m]; dup {
				return fmt.Errorf("%w: %q is in groups %q and %q", ErrInvalidBattle, m, other, g.Name)
			}
			assigned[m] = g.Name
		}
	}
	if len(assigned) != len(participants) {
		return fmt.Errorf("%w: %d participants without a group", ErrInvalidBattle, len(participants)-len(assigned))
	}
	return nil
}

// AttemptEvent is one logged repetition attempt. Append-only.
type AttemptEvent struct {
	ID            int64
	BattleID      string
	ParticipantID string
	Success       bool
	OccurredAt    time.Time
	LoggedBy      string // operator who logged the rep
}

// Rules groups the tunable constants of the MVP flow and rate-mode pool.
type Rules struct {
	MinPointsPerRep   int
	MVPMinSuccessRate float64
	RefundCap         int
	ConsolationPoints int
}

// DefaultRules devuelve las constantes documentadas del motor.
func DefaultRules() Rules {
	return Rules{
		MinPointsPerRep:   MinPointsPerRep,
		MVPMinSuccessRate: 0.6,
		RefundCap:         50,
		ConsolationPoints: 10,
	}
}
