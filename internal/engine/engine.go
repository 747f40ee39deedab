package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"playmaker/internal/config"
	"playmaker/internal/domain"
	"playmaker/internal/events"
	"playmaker/internal/repo"
)

// TaskCompletionSource reports how much of a move's task checklist is done.
// The default implementation reads the move_tasks table; tests substitute
// their own.
type TaskCompletionSource interface {
	GetCompletionRatio(ctx context.Context, moveID string) (float64, error)
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Tasks  TaskCompletionSource
	Now    func() time.Time

	locks *moveLocks
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Events: events.Writer{DB: db},
		Config: cfg,
		Tasks:  repoCompletion{r: r},
		Now:    time.Now,
		locks:  newMoveLocks(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

type repoCompletion struct{ r repo.Repo }

func (c repoCompletion) GetCompletionRatio(ctx context.Context, moveID string) (float64, error) {
	return c.r.CompletionRatio(ctx, moveID)
}

// moveLocks serializes mutation per move id: single-writer discipline so a
// manual advance cannot race a rollup auto-advance into a lost update.
type moveLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func newMoveLocks() *moveLocks {
	return &moveLocks{m: map[string]*sync.Mutex{}}
}

func (l *moveLocks) lock(id string) func() {
	l.mu.Lock()
	mu, ok := l.m[id]
	if !ok {
		mu = &sync.Mutex{}
		l.m[id] = mu
	}
	l.mu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// --- lifecycle states ---

const (
	StatePlanning  = "planning"
	StateSetup     = "setup"
	StateObserve   = "observe"
	StateOrient    = "orient"
	StateDecide    = "decide"
	StateAct       = "act"
	StateReview    = "review"
	StateCompleted = "completed"
	StatePaused    = "paused"
	StateCancelled = "cancelled"
)

var successor = map[string]string{
	StatePlanning: StateSetup,
	StateSetup:    StateObserve,
	StateObserve:  StateOrient,
	StateOrient:   StateDecide,
	StateDecide:   StateAct,
	StateAct:      StateReview,
	StateReview:   StateCompleted,
}

// IsTerminal reports whether a state admits no further transitions.
func IsTerminal(state string) bool {
	return state == StateCompleted || state == StateCancelled
}

// ensureMoveTransition enforces the lifecycle graph: forward one step at a
// time, pause from any active state, resume only to the paused-from state,
// cancel from anywhere non-terminal.
func ensureMoveTransition(m domain.Move, target string) error {
	if IsTerminal(m.State) {
		return InvalidTransitionError{Current: m.State, Requested: target}
	}
	if target == StateCancelled {
		return nil
	}
	if m.State == StatePaused {
		if m.PausedFrom != nil && target == *m.PausedFrom {
			return nil
		}
		return InvalidTransitionError{Current: m.State, Requested: target}
	}
	if target == StatePaused {
		return nil
	}
	if successor[m.State] == target {
		return nil
	}
	return InvalidTransitionError{Current: m.State, Requested: target}
}

// --- campaign bootstrap ---

// InitCampaign creates a campaign and seeds capabilities, templates and
// cohorts from config. Migrations must already have run.
func (e Engine) InitCampaign(ctx context.Context, campaignID, name, actorID string) (domain.Campaign, error) {
	if e.Config == nil {
		return domain.Campaign{}, errors.New("config not loaded")
	}
	if name == "" {
		name = e.Config.Campaign.Name
	}
	timeframe := e.Config.Campaign.TimeframeDays
	if timeframe == 0 {
		timeframe = 14
	}
	c := domain.Campaign{
		ID:            campaignID,
		Name:          name,
		Status:        "active",
		TimeframeDays: timeframe,
		CreatedAt:     e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Campaign{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertCampaign(ctx, tx, c); err != nil {
		return domain.Campaign{}, fmt.Errorf("insert campaign: %w", err)
	}
	if err := e.seedReferenceData(ctx, tx); err != nil {
		return domain.Campaign{}, err
	}
	if err := e.Events.Append(ctx, tx, "campaign.init", c.ID, "campaign", c.ID, actorID, events.EventPayload{"status": c.Status}); err != nil {
		return domain.Campaign{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Campaign{}, err
	}
	return c, nil
}

func (e Engine) seedReferenceData(ctx context.Context, tx *sql.Tx) error {
	now := e.now().UTC().Format(time.RFC3339)
	for _, cap := range e.Config.TechTree.Capabilities {
		node := domain.CapabilityNode{ID: cap.ID, Name: cap.Name, Unlocked: cap.Unlocked}
		if cap.Unlocked {
			node.UnlockedAt = &now
		}
		if err := e.Repo.UpsertCapability(ctx, tx, node); err != nil {
			return fmt.Errorf("seed capability %s: %w", cap.ID, err)
		}
	}
	for _, t := range e.Config.Catalog.Templates {
		intensity := t.Intensity
		if intensity == "" {
			intensity = "standard"
		}
		tpl := domain.ManeuverTemplate{
			ID:                    t.ID,
			Name:                  t.Name,
			Description:           t.Description,
			Posture:               t.Posture,
			Tier:                  t.Tier,
			EngagementRole:        t.Role,
			DurationDays:          t.DurationDays,
			Intensity:             intensity,
			RequiredCapabilityIDs: t.Requires,
			AudienceTags:          t.AudienceTags,
			Objectives:            t.Objectives,
			Promise:               t.Promise,
			Actions:               t.Actions,
			ImpactMin:             t.ImpactMin,
			ImpactMax:             t.ImpactMax,
			Tradeoffs:             t.Tradeoffs,
		}
		if err := e.Repo.UpsertTemplate(ctx, tx, tpl); err != nil {
			return fmt.Errorf("seed template %s: %w", t.ID, err)
		}
	}
	for _, co := range e.Config.Cohorts {
		if err := e.Repo.UpsertCohort(ctx, tx, domain.Cohort{ID: co.ID, Name: co.Name, Tags: co.Tags}); err != nil {
			return fmt.Errorf("seed cohort %s: %w", co.ID, err)
		}
	}
	return nil
}

// SetCapabilityUnlocked flips a tech-tree node. Stands in for the external
// tech-tree process, which owns the unlocked flag.
func (e Engine) SetCapabilityUnlocked(ctx context.Context, id string, unlocked bool) (domain.CapabilityNode, error) {
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.SetCapabilityUnlocked(ctx, id, unlocked, now); err != nil {
		return domain.CapabilityNode{}, err
	}
	return e.Repo.GetCapability(ctx, id)
}

// SyncTechTree reconciles stored capability nodes with an externally
// maintained tree. New nodes are inserted, changed unlock flags are applied,
// and each change is logged as a capability.synced event.
func (e Engine) SyncTechTree(ctx context.Context, caps []config.Capability, campaignID, actorID string) ([]domain.CapabilityNode, error) {
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	for _, c := range caps {
		if c.ID == "" {
			return nil, ValidationError{Field: "capabilities", Reason: "capability with empty id"}
		}
		existing, err := e.Repo.GetCapability(ctx, c.ID)
		known := err == nil
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
		if known && existing.Unlocked == c.Unlocked && existing.Name == c.Name {
			continue
		}
		node := domain.CapabilityNode{ID: c.ID, Name: c.Name, Unlocked: c.Unlocked}
		if c.Unlocked {
			if known && existing.UnlockedAt != nil {
				node.UnlockedAt = existing.UnlockedAt
			} else {
				node.UnlockedAt = &now
			}
		}
		if err := e.Repo.UpsertCapability(ctx, tx, node); err != nil {
			return nil, fmt.Errorf("sync capability %s: %w", c.ID, err)
		}
		if err := e.Events.Append(ctx, tx, "capability.synced", campaignID, "capability", c.ID, actorID, events.EventPayload{
			"unlocked": c.Unlocked,
		}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return e.Repo.ListCapabilities(ctx)
}

// --- move factory ---

// InstantiateOptions parameterize move creation. TemplateID empty means a
// manually-built move, which must carry its own name and tempo.
type InstantiateOptions struct {
	CampaignID          string
	TemplateID          string
	Name                string
	PrimaryObjective    string
	SecondaryObjectives []string
	PrimaryCohortID     string
	SecondaryCohortIDs  []string
	Tempo               *domain.Tempo
	RequestToken        string
	ActorID             string
}

// Instantiate materializes a template (or manual spec) into a tracked move.
// The capability gate is enforced here unconditionally: a locked template
// returns CapabilityGateError and performs no mutation. Replaying the same
// RequestToken returns the originally created move.
func (e Engine) Instantiate(ctx context.Context, opts InstantiateOptions) (domain.Move, error) {
	if e.Config == nil {
		return domain.Move{}, errors.New("config not loaded")
	}
	if opts.RequestToken != "" {
		existing, err := e.Repo.GetMoveByToken(ctx, opts.RequestToken)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return domain.Move{}, err
		}
	}
	if opts.CampaignID == "" {
		return domain.Move{}, ValidationError{Field: "campaign_id", Reason: "required"}
	}
	if _, err := e.Repo.GetCampaign(ctx, opts.CampaignID); err != nil {
		return domain.Move{}, err
	}
	if opts.PrimaryCohortID == "" {
		return domain.Move{}, ValidationError{Field: "primary_cohort_id", Reason: "exactly one primary cohort is required"}
	}
	if _, err := e.Repo.GetCohort(ctx, opts.PrimaryCohortID); err != nil {
		return domain.Move{}, fmt.Errorf("primary cohort %s: %w", opts.PrimaryCohortID, err)
	}
	secondaryCohorts := dedupeExcluding(opts.SecondaryCohortIDs, opts.PrimaryCohortID)
	for _, id := range secondaryCohorts {
		if _, err := e.Repo.GetCohort(ctx, id); err != nil {
			return domain.Move{}, fmt.Errorf("secondary cohort %s: %w", id, err)
		}
	}

	m := domain.Move{
		ID:                  uuid.New().String(),
		CampaignID:          opts.CampaignID,
		Name:                opts.Name,
		State:               StatePlanning,
		PrimaryObjective:    opts.PrimaryObjective,
		SecondaryObjectives: dedupeExcluding(opts.SecondaryObjectives, opts.PrimaryObjective),
		PrimaryCohortID:     opts.PrimaryCohortID,
		SecondaryCohortIDs:  secondaryCohorts,
	}
	if opts.RequestToken != "" {
		token := opts.RequestToken
		m.RequestToken = &token
	}

	if opts.TemplateID != "" {
		tpl, err := e.Repo.GetTemplate(ctx, opts.TemplateID)
		if err != nil {
			return domain.Move{}, fmt.Errorf("template %s: %w", opts.TemplateID, err)
		}
		snap, err := e.Snapshot(ctx)
		if err != nil {
			return domain.Move{}, err
		}
		if !snap.IsUnlocked(tpl) {
			return domain.Move{}, CapabilityGateError{TemplateID: tpl.ID, Missing: snap.MissingCapabilities(tpl)}
		}
		m.TemplateID = &tpl.ID
		if m.Name == "" {
			m.Name = tpl.Name
		}
		if m.PrimaryObjective == "" && len(tpl.Objectives) > 0 {
			m.PrimaryObjective = tpl.Objectives[0]
			m.SecondaryObjectives = dedupeExcluding(tpl.Objectives[1:], m.PrimaryObjective)
		}
		m.TimeframeDays = tpl.DurationDays
		m.Intensity = tpl.Intensity
	}
	if opts.Tempo != nil {
		if !config.ValidTimeframe(opts.Tempo.TimeframeDays) {
			return domain.Move{}, ValidationError{Field: "tempo.timeframe_days", Reason: "must be 7, 14 or 28"}
		}
		if !config.ValidIntensity(opts.Tempo.Intensity) {
			return domain.Move{}, ValidationError{Field: "tempo.intensity", Reason: "must be light, standard or aggressive"}
		}
		m.TimeframeDays = opts.Tempo.TimeframeDays
		m.Intensity = opts.Tempo.Intensity
	}
	if opts.TemplateID == "" && opts.Tempo == nil {
		return domain.Move{}, ValidationError{Field: "tempo", Reason: "required for manually-built moves"}
	}
	if m.Name == "" {
		return domain.Move{}, ValidationError{Field: "name", Reason: "required"}
	}
	if m.PrimaryObjective == "" {
		return domain.Move{}, ValidationError{Field: "primary_objective", Reason: "required"}
	}

	now := e.now().UTC().Format(time.RFC3339)
	m.CreatedAt = now
	m.StateEnteredAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Move{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertMove(ctx, tx, m); err != nil {
		// A concurrent retry may have won the token race; the unique
		// constraint makes the replay safe to resolve after rollback.
		if opts.RequestToken != "" {
			if existing, lookupErr := e.Repo.GetMoveByToken(ctx, opts.RequestToken); lookupErr == nil {
				return existing, nil
			}
		}
		return domain.Move{}, fmt.Errorf("insert move: %w", err)
	}
	payload := events.EventPayload{"name": m.Name, "state": m.State}
	if m.TemplateID != nil {
		payload["template_id"] = *m.TemplateID
	}
	if err := e.Events.Append(ctx, tx, "move.created", m.CampaignID, "move", m.ID, opts.ActorID, payload); err != nil {
		return domain.Move{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Move{}, err
	}
	return m, nil
}

// --- lifecycle transitions ---

// AdvanceMove applies an explicit transition command. Target must be the
// immediate successor, paused, cancelled, or the resume state; an empty
// target means the immediate successor.
func (e Engine) AdvanceMove(ctx context.Context, moveID, target, actorID string) (domain.Move, error) {
	unlock := e.locks.lock(moveID)
	defer unlock()
	if target == "" {
		m, err := e.Repo.GetMove(ctx, moveID)
		if err != nil {
			return m, err
		}
		next, ok := successor[m.State]
		if !ok {
			return m, InvalidTransitionError{Current: m.State, Requested: "advance"}
		}
		target = next
	}
	return e.transition(ctx, moveID, target, actorID, "move.advanced")
}

func (e Engine) transition(ctx context.Context, moveID, target, actorID, evtType string) (domain.Move, error) {
	m, err := e.Repo.GetMove(ctx, moveID)
	if err != nil {
		return m, err
	}
	if err := ensureMoveTransition(m, target); err != nil {
		return m, err
	}
	from := m.State
	switch target {
	case StatePaused:
		paused := m.State
		m.PausedFrom = &paused
	case StateCancelled:
		m.PausedFrom = nil
	default:
		m.PausedFrom = nil
	}
	m.State = target
	m.StateEnteredAt = e.now().UTC().Format(time.RFC3339)
	if err := e.refreshProgress(ctx, &m); err != nil {
		return m, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return m, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateMove(ctx, tx, m); err != nil {
		return m, err
	}
	if err := e.Events.Append(ctx, tx, evtType, m.CampaignID, "move", m.ID, actorID, events.EventPayload{
		"from": from,
		"to":   m.State,
	}); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

// PauseMove suspends an active move; ResumeMove returns it to the state it
// paused from; CancelMove terminates it.
func (e Engine) PauseMove(ctx context.Context, moveID, actorID string) (domain.Move, error) {
	unlock := e.locks.lock(moveID)
	defer unlock()
	return e.transition(ctx, moveID, StatePaused, actorID, "move.paused")
}

func (e Engine) ResumeMove(ctx context.Context, moveID, actorID string) (domain.Move, error) {
	unlock := e.locks.lock(moveID)
	defer unlock()
	m, err := e.Repo.GetMove(ctx, moveID)
	if err != nil {
		return m, err
	}
	if m.State != StatePaused || m.PausedFrom == nil {
		return m, InvalidTransitionError{Current: m.State, Requested: "resume"}
	}
	return e.transition(ctx, moveID, *m.PausedFrom, actorID, "move.resumed")
}

func (e Engine) CancelMove(ctx context.Context, moveID, actorID string) (domain.Move, error) {
	unlock := e.locks.lock(moveID)
	defer unlock()
	return e.transition(ctx, moveID, StateCancelled, actorID, "move.cancelled")
}

// EvaluateRollup reads the task-completion ratio and applies the single
// automatic transition in the lifecycle: act -> review at 100%.
func (e Engine) EvaluateRollup(ctx context.Context, moveID, actorID string) (domain.Move, error) {
	unlock := e.locks.lock(moveID)
	defer unlock()
	m, err := e.Repo.GetMove(ctx, moveID)
	if err != nil {
		return m, err
	}
	ratio, err := e.Tasks.GetCompletionRatio(ctx, moveID)
	if err != nil {
		return m, err
	}
	if m.State == StateAct && ratio >= 1.0 {
		return e.transition(ctx, moveID, StateReview, actorID, "move.auto_advanced")
	}
	// No transition; still refresh progress so metric-strategy moves track
	// the rollup.
	if err := e.refreshProgress(ctx, &m); err != nil {
		return m, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return m, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateMove(ctx, tx, m); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

// --- move tasks ---

func (e Engine) AddMoveTask(ctx context.Context, moveID, title, actorID string) (domain.MoveTask, error) {
	if title == "" {
		return domain.MoveTask{}, ValidationError{Field: "title", Reason: "required"}
	}
	m, err := e.Repo.GetMove(ctx, moveID)
	if err != nil {
		return domain.MoveTask{}, err
	}
	if IsTerminal(m.State) {
		return domain.MoveTask{}, ValidationError{Field: "move", Reason: "terminal moves are immutable"}
	}
	t := domain.MoveTask{
		ID:        uuid.New().String(),
		MoveID:    moveID,
		Title:     title,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertMoveTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "move.task.added", m.CampaignID, "move_task", t.ID, actorID, events.EventPayload{"title": title}); err != nil {
		return t, err
	}
	return t, tx.Commit()
}

// CompleteMoveTask marks a task done and re-evaluates the rollup, which may
// auto-advance the move out of act.
func (e Engine) CompleteMoveTask(ctx context.Context, moveID, taskID, actorID string) (domain.Move, error) {
	m, err := e.Repo.GetMove(ctx, moveID)
	if err != nil {
		return m, err
	}
	if IsTerminal(m.State) {
		return m, ValidationError{Field: "move", Reason: "terminal moves are immutable"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return m, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetMoveTaskDone(ctx, tx, taskID, true); err != nil {
		return m, err
	}
	if err := e.Events.Append(ctx, tx, "move.task.done", m.CampaignID, "move_task", taskID, actorID, nil); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return e.EvaluateRollup(ctx, moveID, actorID)
}

// --- helpers ---

func dedupeExcluding(in []string, exclude string) []string {
	var out []string
	seen := map[string]bool{exclude: true}
	for _, v := range in {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
