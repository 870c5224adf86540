package progress

import (
	"errors"
	"fmt"

	"github.com/kasuganosora/learnquest/game/badge"
	"github.com/kasuganosora/learnquest/game/catalog"
	"github.com/kasuganosora/learnquest/game/ledger"
	"github.com/kasuganosora/learnquest/game/xp"
)

var (
	// ErrNotFound is returned when a referenced task, quest, user or badge
	// does not exist.
	ErrNotFound = errors.New("progress: not found")
	// ErrNotStarted is returned when completing a task that was never started
	// or detailing a quest the user has not touched.
	ErrNotStarted = errors.New("progress: not started")
	// ErrInvalidState is returned for a corrupt progress record.
	ErrInvalidState = errors.New("progress: invalid state")
	// ErrBusy is returned when the user's progress lock could not be taken
	// within the configured wait.
	ErrBusy = errors.New("progress: user busy")
)

// classify maps store sentinels onto the progress taxonomy. The original
// error stays in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotStarted),
		errors.Is(err, ErrInvalidState), errors.Is(err, ErrBusy):
		return err
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, xp.ErrNotFound),
		errors.Is(err, badge.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

// resultLabel names err for the operations counter.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotStarted):
		return "not_started"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrBusy):
		return "busy"
	}
	return "error"
}
