package engine

import (
	"context"
	"errors"
	"time"

	"playmaker/internal/domain"
	"playmaker/internal/repo"
)

// Progress uses one canonical strategy per template posture, configured in
// playmaker.yml: "time" divides elapsed days by the move timeframe, "metric"
// mirrors the task-completion ratio. The two are never mixed for one move.
// Manual moves (no template) use the time strategy.

// MoveStatus returns the move with freshly computed progress. Unlike
// EvaluateRollup it persists nothing and never transitions: reads stay reads,
// and the act -> review auto-advance fires only on the task-completion path.
func (e Engine) MoveStatus(ctx context.Context, moveID string) (domain.Move, error) {
	m, err := e.Repo.GetMove(ctx, moveID)
	if err != nil {
		return m, err
	}
	if err := e.refreshProgress(ctx, &m); err != nil {
		return m, err
	}
	return m, nil
}

func (e Engine) refreshProgress(ctx context.Context, m *domain.Move) error {
	m.DaysElapsed = e.daysElapsed(*m)
	switch m.State {
	case StateCompleted:
		m.ProgressPercent = 100
		return nil
	case StateCancelled:
		return nil
	}
	strategy := "time"
	if m.TemplateID != nil {
		tpl, err := e.Repo.GetTemplate(ctx, *m.TemplateID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if err == nil {
			strategy = e.Config.ProgressStrategy(tpl.Posture)
		}
	}
	switch strategy {
	case "metric":
		ratio, err := e.Tasks.GetCompletionRatio(ctx, m.ID)
		if err != nil {
			return err
		}
		m.ProgressPercent = clampPercent(ratio * 100)
	default:
		if m.TimeframeDays <= 0 {
			m.ProgressPercent = 0
			return nil
		}
		elapsed := m.DaysElapsed
		if elapsed > m.TimeframeDays {
			elapsed = m.TimeframeDays
		}
		m.ProgressPercent = clampPercent(float64(elapsed) / float64(m.TimeframeDays) * 100)
	}
	return nil
}

func (e Engine) daysElapsed(m domain.Move) int {
	created, err := time.Parse(time.RFC3339, m.CreatedAt)
	if err != nil {
		return m.DaysElapsed
	}
	d := int(e.now().UTC().Sub(created).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
