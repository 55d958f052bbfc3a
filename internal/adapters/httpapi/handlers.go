package httpapi

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/battlewager/internal/application/settlement"
	"github.com/alejandrodnm/battlewager/internal/application/tracker"
	"github.com/alejandrodnm/battlewager/internal/domain"
	"github.com/gofiber/fiber/v2"
)

// --- response bodies ---

type tallyJSON struct {
	ParticipantID string  `json:"participant_id"`
	Attempts      int     `json:"attempts"`
	Successes     int     `json:"successes"`
	SuccessRate   float64 `json:"success_rate"`
}

type groupJSON struct {
	Name      string   `json:"name"`
	Members   []string `json:"members"`
	Successes int      `json:"successes"`
}

type battleJSON struct {
	ID               string                   `json:"id"`
	Title            string                   `json:"title"`
	Slug             string                   `json:"slug,omitempty"`
	Mode             domain.Mode              `json:"mode"`
	ParticipantIDs   []string                 `json:"participant_ids"`
	Groups           []domain.Group           `json:"groups,omitempty"`
	RepetitionTarget int                      `json:"repetition_target"`
	WagerAmount      int                      `json:"wager_amount"`
	PointsPerRep     int                      `json:"points_per_rep"`
	CreatedBy        string                   `json:"created_by"`
	CreatedAt        time.Time                `json:"created_at"`
	SettledAt        *time.Time               `json:"settled_at,omitempty"`
	WinnerID         string                   `json:"winner_id,omitempty"`
	Settlement       *domain.SettlementRecord `json:"settlement,omitempty"`
	Tallies          []tallyJSON              `json:"tallies,omitempty"`
	GroupScores      []groupJSON              `json:"group_scores,omitempty"`
}

type awardJSON struct {
	ParticipantID string `json:"participant_id"`
	Group         string `json:"group,omitempty"`
	Kind          string `json:"kind"`
	Base          int    `json:"base"`
	Bonus         int    `json:"bonus"`
	BonusPct      int    `json:"bonus_pct"`
	Points        int    `json:"points"`
}

type previewJSON struct {
	BattleID     string         `json:"battle_id"`
	Complete     bool           `json:"complete"`
	Settled      bool           `json:"settled"`
	RateLimited  bool           `json:"rate_limited"`
	Winners      []string       `json:"winners"`
	WinningGroup string         `json:"winning_group,omitempty"`
	Lead         int            `json:"lead"`
	Pool         int            `json:"pool"`
	Deltas       map[string]int `json:"deltas"`
	WouldMove    map[string]int `json:"would_move,omitempty"` // suppressed transfer when rate limited
	MvpAwards    []awardJSON    `json:"mvp_awards"`
	Missing      []string       `json:"missing,omitempty"`
}

type settleJSON struct {
	BattleID       string                 `json:"battle_id"`
	Settled        bool                   `json:"settled"`
	AlreadySettled bool                   `json:"already_settled"`
	RateLimited    bool                   `json:"rate_limited"`
	Snapshot       []domain.SnapshotEntry `json:"snapshot,omitempty"`
}

type ledgerJSON struct {
	ID        string    `json:"id"`
	Points    int       `json:"points"`
	Note      string    `json:"note"`
	Category  string    `json:"category"`
	BattleID  string    `json:"battle_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type attemptRequest struct {
	ParticipantID string `json:"participant_id"`
	Success       *bool  `json:"success"`
}

// --- handlers ---

func (s *Server) createBattle(c *fiber.Ctx) error {
	var nb tracker.NewBattle
	if err := c.BodyParser(&nb); err != nil {
		return fail(c, fmt.Errorf("%w: %v", domain.ErrInvalidBattle, err))
	}
	if nb.CreatedBy == "" {
		nb.CreatedBy = operatorID(c)
	}

	b, err := s.tracker.CreateBattle(c.UserContext(), nb)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toBattleJSON(b, nil))
}

func (s *Server) getBattle(c *fiber.Ctx) error {
	b, tallies, err := s.tracker.Tally(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(toBattleJSON(b, &tallies))
}

func (s *Server) logAttempt(c *fiber.Ctx) error {
	var req attemptRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body", "cause": err.Error()})
	}
	if req.ParticipantID == "" || req.Success == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "participant_id and success are required"})
	}

	ev, err := s.tracker.LogAttempt(c.UserContext(), c.Params("id"), req.ParticipantID, *req.Success, operatorID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":             ev.ID,
		"battle_id":      ev.BattleID,
		"participant_id": ev.ParticipantID,
		"success":        ev.Success,
		"occurred_at":    ev.OccurredAt,
		"logged_by":      ev.LoggedBy,
	})
}

func (s *Server) preview(c *fiber.Ctx) error {
	p, err := s.settler.Preview(c.UserContext(), c.Params("id"), operatorID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(toPreviewJSON(p))
}

func (s *Server) settle(c *fiber.Ctx) error {
	res, err := s.settler.Settle(c.UserContext(), c.Params("id"), operatorID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(settleJSON{
		BattleID:       res.BattleID,
		Settled:        res.Settled,
		AlreadySettled: res.AlreadySettled,
		RateLimited:    res.RateLimited,
		Snapshot:       res.Snapshot,
	})
}

func (s *Server) balance(c *fiber.Ctx) error {
	id := c.Params("id")
	balances, err := s.ledger.GetParticipantBalances(c.UserContext(), []string{id})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"participant_id": id, "points": balances[id]})
}

func (s *Server) ledgerHistory(c *fiber.Ctx) error {
	entries, err := s.ledger.GetLedger(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	out := make([]ledgerJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, ledgerJSON{
			ID:        e.ID,
			Points:    e.Points,
			Note:      e.Note,
			Category:  string(e.Category),
			BattleID:  e.BattleID,
			CreatedAt: e.CreatedAt,
		})
	}
	return c.JSON(out)
}

// --- mapping ---

func toBattleJSON(b domain.Battle, t *domain.Tallies) battleJSON {
	out := battleJSON{
		ID:               b.ID,
		Title:            b.Title,
		Slug:             b.Slug,
		Mode:             b.Mode,
		ParticipantIDs:   b.ParticipantIDs,
		Groups:           b.Groups,
		RepetitionTarget: b.RepetitionTarget,
		WagerAmount:      b.WagerAmount,
		PointsPerRep:     b.PointsPerRep,
		CreatedBy:        b.CreatedBy,
		CreatedAt:        b.CreatedAt,
		SettledAt:        b.SettledAt,
		WinnerID:         b.WinnerID,
		Settlement:       b.Settlement,
	}
	if t == nil {
		return out
	}
	for _, id := range t.Participants {
		tl := t.Of(id)
		out.Tallies = append(out.Tallies, tallyJSON{
			ParticipantID: id,
			Attempts:      tl.Attempts,
			Successes:     tl.Successes,
			SuccessRate:   tl.SuccessRate(),
		})
	}
	for _, g := range t.Groups {
		out.GroupScores = append(out.GroupScores, groupJSON{Name: g.Name, Members: g.Members, Successes: g.Successes})
	}
	return out
}

func toPreviewJSON(p *settlement.PreviewResult) previewJSON {
	winners := p.Outcome.Winners
	if winners == nil {
		winners = []string{}
	}
	out := previewJSON{
		BattleID:     p.Battle.ID,
		Complete:     p.Complete,
		Settled:      p.Settled,
		RateLimited:  p.RateLimited,
		Winners:      winners,
		WinningGroup: p.Outcome.WinningGroup,
		Lead:         p.Outcome.Lead,
		Pool:         p.Pool,
		Deltas:       p.Deltas,
		WouldMove:    p.WouldMove,
		MvpAwards:    make([]awardJSON, 0, len(p.Awards)),
		Missing:      p.Tallies.Missing(p.Battle.RepetitionTarget),
	}
	for _, a := range p.Awards {
		out.MvpAwards = append(out.MvpAwards, awardJSON{
			ParticipantID: a.ParticipantID,
			Group:         a.Group,
			Kind:          string(a.Kind),
			Base:          a.Base,
			Bonus:         a.Bonus,
			BonusPct:      a.BonusPct,
			Points:        a.Points,
		})
	}
	return out
}
