package domain

type Campaign struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Status        string `json:"status" enum:"active,archived"`
	TimeframeDays int    `json:"timeframe_days"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

// CapabilityNode is owned by the external tech-tree process; the engine only
// reads membership in the unlocked set.
type CapabilityNode struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Unlocked   bool    `json:"unlocked"`
	UnlockedAt *string `json:"unlocked_at,omitempty" format:"date-time"`
}

type ManeuverTemplate struct {
	ID                    string   `json:"id"`
	Name                  string   `json:"name"`
	Description           string   `json:"description,omitempty"`
	Posture               string   `json:"posture"`
	Tier                  int      `json:"tier"`
	EngagementRole        string   `json:"engagement_role,omitempty"`
	DurationDays          int      `json:"duration_days"`
	Intensity             string   `json:"intensity" enum:"light,standard,aggressive"`
	RequiredCapabilityIDs []string `json:"required_capability_ids,omitempty"`
	AudienceTags          []string `json:"audience_tags,omitempty"`
	Objectives            []string `json:"objectives,omitempty"`
	Promise               string   `json:"promise,omitempty"`
	Actions               []string `json:"actions,omitempty"`
	ImpactMin             int      `json:"impact_min,omitempty"`
	ImpactMax             int      `json:"impact_max,omitempty"`
	Tradeoffs             string   `json:"tradeoffs,omitempty"`
}

type Cohort struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Tags []string `json:"tags,omitempty"`
}

// Tempo is the (timeframe, intensity) pair governing a move's cadence.
type Tempo struct {
	TimeframeDays int    `json:"timeframe_days"`
	Intensity     string `json:"intensity" enum:"light,standard,aggressive"`
}

type Move struct {
	ID                  string   `json:"id"`
	CampaignID          string   `json:"campaign_id"`
	TemplateID          *string  `json:"template_id,omitempty"`
	Name                string   `json:"name"`
	State               string   `json:"state" enum:"planning,setup,observe,orient,decide,act,review,completed,paused,cancelled"`
	PausedFrom          *string  `json:"paused_from,omitempty"`
	PrimaryObjective    string   `json:"primary_objective"`
	SecondaryObjectives []string `json:"secondary_objectives,omitempty"`
	PrimaryCohortID     string   `json:"primary_cohort_id"`
	SecondaryCohortIDs  []string `json:"secondary_cohort_ids,omitempty"`
	TimeframeDays       int      `json:"timeframe_days"`
	Intensity           string   `json:"intensity"`
	ProgressPercent     float64  `json:"progress_percent"`
	DaysElapsed         int      `json:"days_elapsed"`
	RequestToken        *string  `json:"request_token,omitempty"`
	CreatedAt           string   `json:"created_at" format:"date-time"`
	StateEnteredAt      string   `json:"state_entered_at" format:"date-time"`
}

// MoveTask is a checklist item whose completion ratio drives the act->review
// auto-advance.
type MoveTask struct {
	ID        string `json:"id"`
	MoveID    string `json:"move_id"`
	Title     string `json:"title"`
	Done      bool   `json:"done"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	CampaignID string `json:"campaign_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Candidate is one ranked recommendation. Accepting a candidate flows through
// the move factory; rejecting one has no persisted side effect.
type Candidate struct {
	TemplateID    string             `json:"template_id"`
	Name          string             `json:"name"`
	Objectives    []string           `json:"objectives"`
	Promise       string             `json:"promise"`
	Actions       []string           `json:"actions"`
	ImpactMin     int                `json:"impact_min"`
	ImpactMax     int                `json:"impact_max"`
	Tradeoffs     string             `json:"tradeoffs,omitempty"`
	Compatibility *CompatibilityNote `json:"compatibility,omitempty"`
}

type CompatibilityNote struct {
	Tone    string `json:"tone" enum:"ok,warning"`
	Message string `json:"message"`
}
