package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/battlewager/internal/domain"
	"github.com/alejandrodnm/battlewager/internal/ports"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// NewBattle is the input to CreateBattle.
type NewBattle struct {
	Title            string         `json:"title"`
	Mode             domain.Mode    `json:"mode"`
	ParticipantIDs   []string       `json:"participant_ids"`
	Groups           []domain.Group `json:"groups,omitempty"`
	RepetitionTarget int            `json:"repetition_target"`
	WagerAmount      int            `json:"wager_amount"`
	PointsPerRep     int            `json:"points_per_rep"`
	CreatedBy        string         `json:"created_by"`
}

// Service creates battles and logs attempts against them.
type Service struct {
	store ports.TrackerStore
	now   func() time.Time
}

// New creates a tracker service.
func New(store ports.TrackerStore) *Service {
	return &Service{store: store, now: time.Now}
}

// CreateBattle validates nb and stores it as an active battle.
func (s *Service) CreateBattle(ctx context.Context, nb NewBattle) (domain.Battle, error) {
	b := domain.Battle{
		ID:               uuid.New().String(),
		Title:            nb.Title,
		Slug:             slug.Make(nb.Title),
		Mode:             nb.Mode,
		ParticipantIDs:   nb.ParticipantIDs,
		Groups:           nb.Groups,
		RepetitionTarget: nb.RepetitionTarget,
		WagerAmount:      nb.WagerAmount,
		PointsPerRep:     nb.PointsPerRep,
		CreatedBy:        nb.CreatedBy,
		CreatedAt:        s.now().UTC(),
	}
	if !b.Mode.Grouped() {
		b.Groups = nil
	}
	if err := b.Validate(); err != nil {
		return domain.Battle{}, fmt.Errorf("tracker.CreateBattle: %w", err)
	}
	if err := s.store.CreateBattle(ctx, b); err != nil {
		return domain.Battle{}, fmt.Errorf("tracker.CreateBattle: %w", err)
	}

	slog.Info("tracker: battle created",
		"battle", b.ID, "mode", b.Mode, "participants", len(b.ParticipantIDs),
		"target", b.RepetitionTarget, "wager", b.WagerAmount)
	return b, nil
}

// LogAttempt appends one repetition attempt for participantID.
func (s *Service) LogAttempt(ctx context.Context, battleID, participantID string, success bool, operatorID string) (domain.AttemptEvent, error) {
	b, err := s.store.GetBattle(ctx, battleID)
	if err != nil {
		return domain.AttemptEvent{}, fmt.Errorf("tracker.LogAttempt: %w", err)
	}
	if b.IsSettled() {
		return domain.AttemptEvent{}, fmt.Errorf("tracker.LogAttempt %s: %w", battleID, domain.ErrBattleClosed)
	}
	if !b.HasParticipant(participantID) {
		return domain.AttemptEvent{}, fmt.Errorf("tracker.LogAttempt %s: %q: %w", battleID, participantID, domain.ErrNotParticipant)
	}

	ev := domain.AttemptEvent{
		BattleID:      battleID,
		ParticipantID: participantID,
		Success:       success,
		OccurredAt:    s.now().UTC(),
		LoggedBy:      operatorID,
	}
	id, err := s.store.AppendAttempt(ctx, ev)
	if err != nil {
		return domain.AttemptEvent{}, fmt.Errorf("tracker.LogAttempt: %w", err)
	}
	ev.ID = id

	slog.Debug("tracker: attempt logged",
		"battle", battleID, "participant", participantID, "success", success, "operator", operatorID)
	return ev, nil
}

// Tally returns the live tallies of a battle.
func (s *Service) Tally(ctx context.Context, battleID string) (domain.Battle, domain.Tallies, error) {
	b, err := s.store.GetBattle(ctx, battleID)
	if err != nil {
		return domain.Battle{}, domain.Tallies{}, fmt.Errorf("tracker.Tally: %w", err)
	}
	attempts, err := s.store.GetAttempts(ctx, battleID)
	if err != nil {
		return domain.Battle{}, domain.Tallies{}, fmt.Errorf("tracker.Tally: %w", err)
	}
	return b, domain.AggregateBattle(b, attempts), nil
}
