package playmakersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Playmaker HTTP API client.
type Client struct {
	BaseURL     string
	CampaignID  string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, campaignID string) *Client {
	return &Client{
		BaseURL:    baseURL,
		CampaignID: campaignID,
		Timeout:    10 * time.Second,
	}
}

// Move represents the API move model (partial).
type Move struct {
	ID               string  `json:"id"`
	CampaignID       string  `json:"campaign_id"`
	TemplateID       *string `json:"template_id,omitempty"`
	Name             string  `json:"name"`
	State            string  `json:"state"`
	PrimaryObjective string  `json:"primary_objective"`
	PrimaryCohortID  string  `json:"primary_cohort_id"`
	TimeframeDays    int     `json:"timeframe_days"`
	Intensity        string  `json:"intensity"`
	ProgressPercent  float64 `json:"progress_percent"`
}

// Tempo is the timeframe/intensity pair of a move.
type Tempo struct {
	TimeframeDays int    `json:"timeframe_days"`
	Intensity     string `json:"intensity"`
}

// Candidate is one ranked recommendation.
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
	Tone    string `json:"tone"`
	Message string `json:"message"`
}

// Recommendations is the response of the recommendation endpoint. Degraded
// marks a partial result cut short by the server's latency budget.
type Recommendations struct {
	Candidates []Candidate `json:"candidates"`
	Degraded   bool        `json:"degraded"`
}

// TemplateView is a gated catalog entry.
type TemplateView struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Posture             string   `json:"posture"`
	Tier                int      `json:"tier"`
	DurationDays        int      `json:"duration_days"`
	Unlocked            bool     `json:"unlocked"`
	MissingCapabilities []string `json:"missing_capabilities,omitempty"`
}

// Catalog is the filtered catalog split by gate status.
type Catalog struct {
	Available []TemplateView `json:"available"`
	Locked    []TemplateView `json:"locked"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	CampaignID string `json:"campaign_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateMoveOptions parameterize CreateMove.
type CreateMoveOptions struct {
	TemplateID          string   `json:"template_id,omitempty"`
	Name                string   `json:"name,omitempty"`
	PrimaryObjective    string   `json:"primary_objective"`
	SecondaryObjectives []string `json:"secondary_objectives,omitempty"`
	PrimaryCohortID     string   `json:"primary_cohort_id"`
	SecondaryCohortIDs  []string `json:"secondary_cohort_ids,omitempty"`
	Tempo               *Tempo   `json:"tempo,omitempty"`
	RequestToken        string   `json:"request_token,omitempty"`
}

// CreateMove instantiates a template into a move. Pass a RequestToken to make
// the call safely retryable.
func (c *Client) CreateMove(ctx context.Context, opts CreateMoveOptions) (Move, error) {
	var resp Move
	err := c.do(ctx, http.MethodPost, c.campaignPath("moves"), opts, &resp)
	return resp, err
}

// GetMove fetches a move by id.
func (c *Client) GetMove(ctx context.Context, id string) (Move, error) {
	var resp Move
	err := c.do(ctx, http.MethodGet, c.campaignPath("moves/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

// AdvanceMove moves to the next lifecycle state, or to target when non-empty.
func (c *Client) AdvanceMove(ctx context.Context, id, target string) (Move, error) {
	body := map[string]any{}
	if target != "" {
		body["target"] = target
	}
	var resp Move
	err := c.do(ctx, http.MethodPost, c.campaignPath("moves/"+url.PathEscape(id)+"/advance"), body, &resp)
	return resp, err
}

// PauseMove suspends an active move.
func (c *Client) PauseMove(ctx context.Context, id string) (Move, error) {
	var resp Move
	err := c.do(ctx, http.MethodPost, c.campaignPath("moves/"+url.PathEscape(id)+"/pause"), map[string]any{}, &resp)
	return resp, err
}

// ResumeMove returns a paused move to the state it paused from.
func (c *Client) ResumeMove(ctx context.Context, id string) (Move, error) {
	var resp Move
	err := c.do(ctx, http.MethodPost, c.campaignPath("moves/"+url.PathEscape(id)+"/resume"), map[string]any{}, &resp)
	return resp, err
}

// CancelMove terminates a move.
func (c *Client) CancelMove(ctx context.Context, id string) (Move, error) {
	var resp Move
	err := c.do(ctx, http.MethodPost, c.campaignPath("moves/"+url.PathEscape(id)+"/cancel"), map[string]any{}, &resp)
	return resp, err
}

// Catalog queries the maneuver catalog. Empty filters return everything.
func (c *Client) Catalog(ctx context.Context, search, posture string, tier int) (Catalog, error) {
	q := url.Values{}
	if search != "" {
		q.Set("search", search)
	}
	if posture != "" {
		q.Set("posture", posture)
	}
	if tier > 0 {
		q.Set("tier", fmt.Sprintf("%d", tier))
	}
	endpoint := "v0/catalog"
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}
	var resp Catalog
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Recommend generates ranked candidates for the given objectives and cohorts.
func (c *Client) Recommend(ctx context.Context, objectives []string, primaryCohortID string, secondaryCohortIDs []string, tempo Tempo) (Recommendations, error) {
	body := map[string]any{
		"objectives":        objectives,
		"primary_cohort_id": primaryCohortID,
		"tempo":             tempo,
	}
	if len(secondaryCohortIDs) > 0 {
		body["secondary_cohort_ids"] = secondaryCohortIDs
	}
	var resp Recommendations
	err := c.do(ctx, http.MethodPost, c.campaignPath("recommendations"), body, &resp)
	return resp, err
}

// Events returns recent events for the client's campaign.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := fmt.Sprintf("v0/events?campaign_id=%s", url.QueryEscape(c.CampaignID))
	if limit > 0 {
		endpoint = fmt.Sprintf("%s&limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) campaignPath(p string) string {
	campaign := url.PathEscape(c.CampaignID)
	return fmt.Sprintf("v0/campaigns/%s/%s", campaign, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
