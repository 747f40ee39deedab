package engine_test

import (
	"testing"
	"time"

	"playmaker/internal/engine"
)

func TestTimeProgressTracksElapsedDays(t *testing.T) {
	env := newTestEnv(t)
	// tpl_welcome_series is posture nurture -> time strategy, 14 days.
	m := mustCreateMove(t, env, engine.InstantiateOptions{
		TemplateID:      "tpl_welcome_series",
		PrimaryCohortID: "coh_new_signups",
	})

	env.Engine.Now = func() time.Time { return time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC) }
	m, err := env.Engine.EvaluateRollup(env.Ctx, m.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if m.DaysElapsed != 7 {
		t.Fatalf("days elapsed = %d, want 7", m.DaysElapsed)
	}
	if m.ProgressPercent != 50 {
		t.Fatalf("progress = %v, want 50 (7 of 14 days)", m.ProgressPercent)
	}

	// Past the timeframe the percentage caps at 100.
	env.Engine.Now = func() time.Time { return time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC) }
	m, err = env.Engine.EvaluateRollup(env.Ctx, m.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if m.ProgressPercent != 100 {
		t.Fatalf("progress = %v, want capped 100", m.ProgressPercent)
	}
	if m.State != engine.StatePlanning {
		t.Fatalf("time progress must not transition the move, state = %q", m.State)
	}
}

func TestMetricProgressTracksTaskRollup(t *testing.T) {
	env := newTestEnv(t)
	// tpl_flash_promo is posture conversion -> metric strategy.
	m := mustCreateMove(t, env, engine.InstantiateOptions{
		TemplateID:      "tpl_flash_promo",
		PrimaryCohortID: "coh_new_signups",
	})
	t1, err := env.Engine.AddMoveTask(env.Ctx, m.ID, "pick discount", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddMoveTask(env.Ctx, m.ID, "announce", "tester"); err != nil {
		t.Fatal(err)
	}

	m, err = env.Engine.CompleteMoveTask(env.Ctx, m.ID, t1.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if m.ProgressPercent != 50 {
		t.Fatalf("progress = %v, want 50 (1 of 2 tasks)", m.ProgressPercent)
	}

	// Time passing alone must not move a metric-strategy percentage.
	env.Engine.Now = func() time.Time { return time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC) }
	m, err = env.Engine.EvaluateRollup(env.Ctx, m.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if m.ProgressPercent != 50 {
		t.Fatalf("metric progress moved with time: %v", m.ProgressPercent)
	}
}

func TestMoveStatusIsReadOnly(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreateMove(t, env, engine.InstantiateOptions{
		TemplateID:      "tpl_welcome_series",
		PrimaryCohortID: "coh_new_signups",
	})

	env.Engine.Now = func() time.Time { return time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC) }
	status, err := env.Engine.MoveStatus(env.Ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if status.ProgressPercent != 50 {
		t.Fatalf("status progress = %v, want 50", status.ProgressPercent)
	}
	if status.State != engine.StatePlanning {
		t.Fatalf("status must not transition the move, state = %q", status.State)
	}

	// The stored row is untouched: progress persists only through the
	// rollup and transition paths.
	stored, err := env.Engine.Repo.GetMove(env.Ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.ProgressPercent != m.ProgressPercent || stored.DaysElapsed != m.DaysElapsed {
		t.Fatalf("read rewrote the move row: progress=%v days=%d", stored.ProgressPercent, stored.DaysElapsed)
	}
}

func TestCompletedMoveReportsFullProgress(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreateMove(t, env, engine.InstantiateOptions{
		TemplateID:      "tpl_welcome_series",
		PrimaryCohortID: "coh_new_signups",
	})
	for _, next := range []string{
		engine.StateSetup, engine.StateObserve, engine.StateOrient,
		engine.StateDecide, engine.StateAct, engine.StateReview, engine.StateCompleted,
	} {
		var err error
		m, err = env.Engine.AdvanceMove(env.Ctx, m.ID, next, "tester")
		if err != nil {
			t.Fatal(err)
		}
	}
	if m.ProgressPercent != 100 {
		t.Fatalf("completed move progress = %v, want 100", m.ProgressPercent)
	}
}
