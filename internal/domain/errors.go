package domain

import "errors"

var (
	// ErrNotFound: the battle (or a participant of it) does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadySettled is returned by storage when the settled_at check-and-set
	// loses. Callers above the engine see it as AlreadySettled=true, not as an error.
	ErrAlreadySettled = errors.New("battle already settled")

	// ErrIncomplete: some participant has fewer attempts than the repetition target.
	ErrIncomplete = errors.New("battle incomplete")

	// ErrStorage wraps any failed read or write against the store.
	ErrStorage = errors.New("storage failure")

	// ErrInvalidBattle rejects input the pure stages cannot handle.
	ErrInvalidBattle = errors.New("invalid battle")

	// ErrBattleClosed: attempts cannot be logged on a settled battle.
	ErrBattleClosed = errors.New("battle closed")

	// ErrNotParticipant: the attempt names someone outside the battle.
	ErrNotParticipant = errors.New("not a participant")
)
