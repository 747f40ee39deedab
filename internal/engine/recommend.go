package engine

import (
	"context"
	"sort"
	"time"

	"playmaker/internal/domain"
)

// RecommendationRequest carries the wizard's declared objectives (first is
// primary), cohort binding, and tempo.
type RecommendationRequest struct {
	Objectives         []string
	PrimaryCohortID    string
	SecondaryCohortIDs []string
	Tempo              domain.Tempo
}

func (r RecommendationRequest) primaryObjective() string {
	if len(r.Objectives) == 0 {
		return ""
	}
	return r.Objectives[0]
}

// Scorer ranks unlocked templates for a request. Implementations must be
// deterministic: equal inputs produce equal order.
type Scorer interface {
	Score(t domain.ManeuverTemplate, req RecommendationRequest) Score
}

// Score orders candidates: matching objectives descending, then tier
// distance ascending, then timeframe delta ascending, then template id
// ascending as the final deterministic tiebreak.
type Score struct {
	ObjectiveMatches int
	TierDistance     int
	TimeframeDelta   int
}

func (s Score) less(o Score, idA, idB string) bool {
	if s.ObjectiveMatches != o.ObjectiveMatches {
		return s.ObjectiveMatches > o.ObjectiveMatches
	}
	if s.TierDistance != o.TierDistance {
		return s.TierDistance < o.TierDistance
	}
	if s.TimeframeDelta != o.TimeframeDelta {
		return s.TimeframeDelta < o.TimeframeDelta
	}
	return idA < idB
}

// CatalogScorer is the default Scorer over the maneuver catalog. Requested
// intensity maps to a target tier (light=1, standard=2, aggressive=3) for
// the proximity term.
type CatalogScorer struct{}

func (CatalogScorer) Score(t domain.ManeuverTemplate, req RecommendationRequest) Score {
	wanted := map[string]bool{}
	for _, o := range req.Objectives {
		wanted[o] = true
	}
	matches := 0
	for _, o := range t.Objectives {
		if wanted[o] {
			matches++
		}
	}
	return Score{
		ObjectiveMatches: matches,
		TierDistance:     abs(t.Tier - tierForIntensity(req.Tempo.Intensity)),
		TimeframeDelta:   abs(t.DurationDays - req.Tempo.TimeframeDays),
	}
}

func tierForIntensity(intensity string) int {
	switch intensity {
	case "light":
		return 1
	case "aggressive":
		return 3
	default:
		return 2
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// CompatibilityNoteFor applies the deterministic cohort-overlap rule: no note
// without secondary cohorts, ok for one or two, warning beyond that. The list
// is counted after dropping empties and duplicates so a repeated id cannot
// escalate the tone.
func CompatibilityNoteFor(secondaryCohorts []string) *domain.CompatibilityNote {
	distinct := dedupeExcluding(secondaryCohorts, "")
	switch n := len(distinct); {
	case n == 0:
		return nil
	case n <= 2:
		return &domain.CompatibilityNote{
			Tone:    "ok",
			Message: "cohorts share enough overlap; build variations",
		}
	default:
		return &domain.CompatibilityNote{
			Tone:    "warning",
			Message: "multiple secondary cohorts selected; keep messaging distinct",
		}
	}
}

// GenerateRecommendations scores the unlocked catalog against the request
// and returns ranked candidates. Generation is pure — nothing persists until
// a candidate is accepted through Instantiate — and honors the context
// deadline: on expiry the candidates scored so far are returned alongside
// ErrGenerationTimeout.
func (e Engine) GenerateRecommendations(ctx context.Context, req RecommendationRequest) ([]domain.Candidate, error) {
	if req.primaryObjective() == "" {
		return nil, ValidationError{Field: "objectives", Reason: "at least one objective is required"}
	}
	if req.PrimaryCohortID == "" {
		return nil, ValidationError{Field: "primary_cohort_id", Reason: "required"}
	}
	if _, err := e.Repo.GetCohort(ctx, req.PrimaryCohortID); err != nil {
		return nil, err
	}
	if budget := e.recommendationBudget(); budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	snap, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	templates, err := e.Repo.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}

	scorer := e.scorer()
	note := CompatibilityNoteFor(dedupeExcluding(req.SecondaryCohortIDs, req.PrimaryCohortID))
	type scored struct {
		tpl   domain.ManeuverTemplate
		score Score
	}
	var ranked []scored
	timedOut := false
	for _, t := range templates {
		if ctx.Err() != nil {
			timedOut = true
			break
		}
		if !snap.IsUnlocked(t) {
			continue
		}
		s := scorer.Score(t, req)
		if s.ObjectiveMatches == 0 {
			continue
		}
		ranked = append(ranked, scored{tpl: t, score: s})
	}
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].score.less(ranked[j].score, ranked[i].tpl.ID, ranked[j].tpl.ID)
	})
	if max := e.maxResults(); len(ranked) > max {
		ranked = ranked[:max]
	}

	candidates := make([]domain.Candidate, 0, len(ranked))
	for _, s := range ranked {
		candidates = append(candidates, domain.Candidate{
			TemplateID:    s.tpl.ID,
			Name:          s.tpl.Name,
			Objectives:    s.tpl.Objectives,
			Promise:       s.tpl.Promise,
			Actions:       s.tpl.Actions,
			ImpactMin:     s.tpl.ImpactMin,
			ImpactMax:     s.tpl.ImpactMax,
			Tradeoffs:     s.tpl.Tradeoffs,
			Compatibility: note,
		})
	}
	if timedOut {
		return candidates, ErrGenerationTimeout
	}
	if len(candidates) == 0 {
		return e.archetypeFallback(req, note), nil
	}
	return candidates, nil
}

// archetypeFallback serves the static archetype table when catalog scoring
// yields nothing for the primary objective.
func (e Engine) archetypeFallback(req RecommendationRequest, note *domain.CompatibilityNote) []domain.Candidate {
	var out []domain.Candidate
	for _, a := range e.Config.Recommendations.Archetypes {
		if a.Objective != req.primaryObjective() {
			continue
		}
		out = append(out, domain.Candidate{
			Name:          a.Name,
			Objectives:    []string{a.Objective},
			Promise:       a.Promise,
			Actions:       a.Actions,
			ImpactMin:     a.ImpactMin,
			ImpactMax:     a.ImpactMax,
			Tradeoffs:     a.Tradeoffs,
			Compatibility: note,
		})
	}
	return out
}

func (e Engine) scorer() Scorer {
	return CatalogScorer{}
}

func (e Engine) recommendationBudget() time.Duration {
	if e.Config == nil || e.Config.Recommendations.Budget == "" {
		return 0
	}
	d, err := time.ParseDuration(e.Config.Recommendations.Budget)
	if err != nil {
		return 0
	}
	return d
}

func (e Engine) maxResults() int {
	if e.Config == nil || e.Config.Recommendations.MaxResults <= 0 {
		return 5
	}
	return e.Config.Recommendations.MaxResults
}
