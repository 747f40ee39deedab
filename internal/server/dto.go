package server

import (
	"playmaker/internal/domain"
	"playmaker/internal/engine"
)

// --- requests ---

type CreateCampaignRequest struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type CreateMoveRequest struct {
	TemplateID          string        `json:"template_id,omitempty"`
	Name                string        `json:"name,omitempty"`
	PrimaryObjective    string        `json:"primary_objective,omitempty"`
	SecondaryObjectives []string      `json:"secondary_objectives,omitempty"`
	PrimaryCohortID     string        `json:"primary_cohort_id"`
	SecondaryCohortIDs  []string      `json:"secondary_cohort_ids,omitempty"`
	Tempo               *domain.Tempo `json:"tempo,omitempty"`
	RequestToken        string        `json:"request_token,omitempty"`
}

type RecommendationsRequest struct {
	Objectives         []string      `json:"objectives"`
	PrimaryCohortID    string        `json:"primary_cohort_id"`
	SecondaryCohortIDs []string      `json:"secondary_cohort_ids,omitempty"`
	Tempo              *domain.Tempo `json:"tempo,omitempty"`
}

// --- responses ---

type CampaignResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Status        string `json:"status"`
	TimeframeDays int    `json:"timeframe_days,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type CapabilityResponse struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Unlocked   bool    `json:"unlocked"`
	UnlockedAt *string `json:"unlocked_at,omitempty"`
}

type CohortResponse struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Tags []string `json:"tags,omitempty"`
}

type CatalogResponse struct {
	Available []engine.TemplateView `json:"available"`
	Locked    []engine.TemplateView `json:"locked"`
}

type MoveResponse struct {
	ID                  string   `json:"id"`
	CampaignID          string   `json:"campaign_id"`
	TemplateID          *string  `json:"template_id,omitempty"`
	Name                string   `json:"name"`
	State               string   `json:"state"`
	PausedFrom          *string  `json:"paused_from,omitempty"`
	PrimaryObjective    string   `json:"primary_objective"`
	SecondaryObjectives []string `json:"secondary_objectives,omitempty"`
	PrimaryCohortID     string   `json:"primary_cohort_id"`
	SecondaryCohortIDs  []string `json:"secondary_cohort_ids,omitempty"`
	TimeframeDays       int      `json:"timeframe_days"`
	Intensity           string   `json:"intensity"`
	ProgressPercent     float64  `json:"progress_percent"`
	DaysElapsed         int      `json:"days_elapsed"`
	CreatedAt           string   `json:"created_at"`
	StateEnteredAt      string   `json:"state_entered_at"`
}

type MoveTaskResponse struct {
	ID        string `json:"id"`
	MoveID    string `json:"move_id"`
	Title     string `json:"title"`
	Done      bool   `json:"done"`
	CreatedAt string `json:"created_at"`
}

type RecommendationsResponse struct {
	Candidates []domain.Candidate `json:"candidates"`
	Degraded   bool               `json:"degraded"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	CampaignID string `json:"campaign_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type paginatedMoves struct {
	Items      []MoveResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// --- mapping ---

func campaignResponse(c domain.Campaign) CampaignResponse {
	return CampaignResponse{ID: c.ID, Name: c.Name, Status: c.Status, TimeframeDays: c.TimeframeDays, CreatedAt: c.CreatedAt}
}

func capabilityResponse(c domain.CapabilityNode) CapabilityResponse {
	return CapabilityResponse{ID: c.ID, Name: c.Name, Unlocked: c.Unlocked, UnlockedAt: c.UnlockedAt}
}

func cohortResponse(c domain.Cohort) CohortResponse {
	return CohortResponse{ID: c.ID, Name: c.Name, Tags: c.Tags}
}

// The request token is deliberately not echoed back; it is a caller-side
// dedupe handle, not move state.
func moveResponse(m domain.Move) MoveResponse {
	return MoveResponse{
		ID:                  m.ID,
		CampaignID:          m.CampaignID,
		TemplateID:          m.TemplateID,
		Name:                m.Name,
		State:               m.State,
		PausedFrom:          m.PausedFrom,
		PrimaryObjective:    m.PrimaryObjective,
		SecondaryObjectives: m.SecondaryObjectives,
		PrimaryCohortID:     m.PrimaryCohortID,
		SecondaryCohortIDs:  m.SecondaryCohortIDs,
		TimeframeDays:       m.TimeframeDays,
		Intensity:           m.Intensity,
		ProgressPercent:     m.ProgressPercent,
		DaysElapsed:         m.DaysElapsed,
		CreatedAt:           m.CreatedAt,
		StateEnteredAt:      m.StateEnteredAt,
	}
}

func moveTaskResponse(t domain.MoveTask) MoveTaskResponse {
	return MoveTaskResponse{ID: t.ID, MoveID: t.MoveID, Title: t.Title, Done: t.Done, CreatedAt: t.CreatedAt}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		CampaignID: e.CampaignID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}
