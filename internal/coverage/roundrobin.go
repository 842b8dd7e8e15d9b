package coverage

import (
	"context"
	"log/slog"
	"math/rand/v2"

	"github.com/google/uuid"
)

// Runner is a sweep that can be advanced one batch at a time. Every Engine
// is a Runner.
type Runner interface {
	ServiceName() string
	Step(ctx context.Context, cursor Cursor) (Cursor, bool, error)
	FinishSweep(ctx context.Context, runID string) error
}

// RoundRobin alternates between runners one batch at a time, in a freshly
// shuffled order each round, until every sweep is complete. A runner is
// stamped as soon as its own sweep finishes.
func RoundRobin(ctx context.Context, runners ...Runner) error {
	type state struct {
		runner Runner
		cursor Cursor
		runID  string
	}

	pending := make([]*state, 0, len(runners))
	for _, r := range runners {
		pending = append(pending, &state{runner: r, runID: uuid.NewString()})
	}

	for len(pending) > 0 {
		rand.Shuffle(len(pending), func(i, j int) {
			pending[i], pending[j] = pending[j], pending[i]
		})

		remaining := pending[:0]
		for _, s := range pending {
			slog.Debug("Running provider", "service", s.runner.ServiceName(), "pass", s.cursor.Pass, "offset", s.cursor.Offset)
			next, done, err := s.runner.Step(ctx, s.cursor)
			if err != nil {
				return err
			}
			if done {
				if err := s.runner.FinishSweep(ctx, s.runID); err != nil {
					return err
				}
				slog.Debug("Provider finished", "service", s.runner.ServiceName())
				continue
			}
			s.cursor = next
			remaining = append(remaining, s)
		}
		pending = remaining
	}
	return nil
}
