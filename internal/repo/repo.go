package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"playmaker/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// --- campaigns ---

func (r Repo) InsertCampaign(ctx context.Context, tx *sql.Tx, c domain.Campaign) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO campaigns(id,name,status,timeframe_days,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.Name, c.Status, c.TimeframeDays, c.CreatedAt)
	return err
}

func (r Repo) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	var c domain.Campaign
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,status,timeframe_days,created_at FROM campaigns WHERE id=?`, id).
		Scan(&c.ID, &c.Name, &c.Status, &c.TimeframeDays, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,status,timeframe_days,created_at FROM campaigns ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		if err := rows.Scan(&c.ID, &c.Name, &c.Status, &c.TimeframeDays, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) SingleCampaign(ctx context.Context) (domain.Campaign, error) {
	items, err := r.ListCampaigns(ctx)
	if err != nil {
		return domain.Campaign{}, err
	}
	if len(items) == 0 {
		return domain.Campaign{}, ErrNotFound
	}
	if len(items) > 1 {
		return domain.Campaign{}, fmt.Errorf("multiple campaigns exist; specify --campaign")
	}
	return items[0], nil
}

func (r Repo) UpdateCampaignStatus(ctx context.Context, id, status string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE campaigns SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- capabilities ---

func scanCapability(scan func(dest ...any) error) (domain.CapabilityNode, error) {
	var c domain.CapabilityNode
	var unlocked int
	var unlockedAt sql.NullString
	if err := scan(&c.ID, &c.Name, &unlocked, &unlockedAt); err != nil {
		return c, err
	}
	c.Unlocked = unlocked != 0
	if unlockedAt.Valid {
		c.UnlockedAt = &unlockedAt.String
	}
	return c, nil
}

func (r Repo) UpsertCapability(ctx context.Context, tx *sql.Tx, c domain.CapabilityNode) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO capabilities(id,name,unlocked,unlocked_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, unlocked=excluded.unlocked, unlocked_at=excluded.unlocked_at`,
		c.ID, c.Name, boolInt(c.Unlocked), nullableStringPtr(c.UnlockedAt))
	return err
}

func (r Repo) GetCapability(ctx context.Context, id string) (domain.CapabilityNode, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,name,unlocked,unlocked_at FROM capabilities WHERE id=?`, id)
	c, err := scanCapability(row.Scan)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) ListCapabilities(ctx context.Context) ([]domain.CapabilityNode, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,unlocked,unlocked_at FROM capabilities ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CapabilityNode
	for rows.Next() {
		c, err := scanCapability(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) SetCapabilityUnlocked(ctx context.Context, id string, unlocked bool, at string) error {
	var unlockedAt any
	if unlocked {
		unlockedAt = at
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE capabilities SET unlocked=?, unlocked_at=? WHERE id=?`,
		boolInt(unlocked), unlockedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- templates ---

const templateCols = `id,name,COALESCE(description,''),posture,tier,COALESCE(engagement_role,''),duration_days,intensity,required_capability_ids,audience_tags,objectives,COALESCE(promise,''),actions,impact_min,impact_max,COALESCE(tradeoffs,'')`

func scanTemplate(scan func(dest ...any) error) (domain.ManeuverTemplate, error) {
	var t domain.ManeuverTemplate
	var reqs, tags, objectives, actions sql.NullString
	if err := scan(&t.ID, &t.Name, &t.Description, &t.Posture, &t.Tier, &t.EngagementRole,
		&t.DurationDays, &t.Intensity, &reqs, &tags, &objectives, &t.Promise, &actions,
		&t.ImpactMin, &t.ImpactMax, &t.Tradeoffs); err != nil {
		return t, err
	}
	t.RequiredCapabilityIDs = decodeStringSlice(reqs)
	t.AudienceTags = decodeStringSlice(tags)
	t.Objectives = decodeStringSlice(objectives)
	t.Actions = decodeStringSlice(actions)
	return t, nil
}

func (r Repo) UpsertTemplate(ctx context.Context, tx *sql.Tx, t domain.ManeuverTemplate) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO templates(id,name,description,posture,tier,engagement_role,duration_days,intensity,required_capability_ids,audience_tags,objectives,promise,actions,impact_min,impact_max,tradeoffs)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, description=excluded.description, posture=excluded.posture,
tier=excluded.tier, engagement_role=excluded.engagement_role, duration_days=excluded.duration_days,
intensity=excluded.intensity, required_capability_ids=excluded.required_capability_ids,
audience_tags=excluded.audience_tags, objectives=excluded.objectives, promise=excluded.promise,
actions=excluded.actions, impact_min=excluded.impact_min, impact_max=excluded.impact_max, tradeoffs=excluded.tradeoffs`,
		t.ID, t.Name, nullable(t.Description), t.Posture, t.Tier, nullable(t.EngagementRole),
		t.DurationDays, t.Intensity, encodeStringSlice(t.RequiredCapabilityIDs), encodeStringSlice(t.AudienceTags),
		encodeStringSlice(t.Objectives), nullable(t.Promise), encodeStringSlice(t.Actions),
		t.ImpactMin, t.ImpactMax, nullable(t.Tradeoffs))
	return err
}

func (r Repo) GetTemplate(ctx context.Context, id string) (domain.ManeuverTemplate, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+templateCols+` FROM templates WHERE id=?`, id)
	t, err := scanTemplate(row.Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) ListTemplates(ctx context.Context) ([]domain.ManeuverTemplate, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+templateCols+` FROM templates ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ManeuverTemplate
	for rows.Next() {
		t, err := scanTemplate(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// --- cohorts ---

func (r Repo) UpsertCohort(ctx context.Context, tx *sql.Tx, c domain.Cohort) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO cohorts(id,name,tags) VALUES (?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, tags=excluded.tags`,
		c.ID, c.Name, encodeStringSlice(c.Tags))
	return err
}

func (r Repo) GetCohort(ctx context.Context, id string) (domain.Cohort, error) {
	var c domain.Cohort
	var tags sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,tags FROM cohorts WHERE id=?`, id).Scan(&c.ID, &c.Name, &tags)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	c.Tags = decodeStringSlice(tags)
	return c, err
}

func (r Repo) ListCohorts(ctx context.Context) ([]domain.Cohort, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,tags FROM cohorts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Cohort
	for rows.Next() {
		var c domain.Cohort
		var tags sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &tags); err != nil {
			return nil, err
		}
		c.Tags = decodeStringSlice(tags)
		res = append(res, c)
	}
	return res, rows.Err()
}

// --- moves ---

const moveCols = `id,campaign_id,template_id,name,state,paused_from,primary_objective,secondary_objectives,primary_cohort_id,secondary_cohort_ids,timeframe_days,intensity,progress_percent,days_elapsed,request_token,created_at,state_entered_at`

func scanMove(scan func(dest ...any) error) (domain.Move, error) {
	var m domain.Move
	var templateID, pausedFrom, token sql.NullString
	var secObjectives, secCohorts sql.NullString
	if err := scan(&m.ID, &m.CampaignID, &templateID, &m.Name, &m.State, &pausedFrom,
		&m.PrimaryObjective, &secObjectives, &m.PrimaryCohortID, &secCohorts,
		&m.TimeframeDays, &m.Intensity, &m.ProgressPercent, &m.DaysElapsed,
		&token, &m.CreatedAt, &m.StateEnteredAt); err != nil {
		return m, err
	}
	if templateID.Valid {
		m.TemplateID = &templateID.String
	}
	if pausedFrom.Valid {
		m.PausedFrom = &pausedFrom.String
	}
	if token.Valid {
		m.RequestToken = &token.String
	}
	m.SecondaryObjectives = decodeStringSlice(secObjectives)
	m.SecondaryCohortIDs = decodeStringSlice(secCohorts)
	return m, nil
}

func (r Repo) InsertMove(ctx context.Context, tx *sql.Tx, m domain.Move) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO moves(`+moveCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.CampaignID, nullableStringPtr(m.TemplateID), m.Name, m.State, nullableStringPtr(m.PausedFrom),
		m.PrimaryObjective, encodeStringSlice(m.SecondaryObjectives), m.PrimaryCohortID,
		encodeStringSlice(m.SecondaryCohortIDs), m.TimeframeDays, m.Intensity,
		m.ProgressPercent, m.DaysElapsed, nullableStringPtr(m.RequestToken), m.CreatedAt, m.StateEnteredAt)
	return err
}

func (r Repo) GetMove(ctx context.Context, id string) (domain.Move, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+moveCols+` FROM moves WHERE id=?`, id)
	m, err := scanMove(row.Scan)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

// GetMoveByToken looks up a move created under a given request token.
func (r Repo) GetMoveByToken(ctx context.Context, token string) (domain.Move, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+moveCols+` FROM moves WHERE request_token=?`, token)
	m, err := scanMove(row.Scan)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

type MoveFilters struct {
	CampaignID      string
	State           string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListMoves(ctx context.Context, f MoveFilters) ([]domain.Move, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.CampaignID != "" {
		clauses = append(clauses, "campaign_id=?")
		args = append(args, f.CampaignID)
	}
	if f.State != "" {
		clauses = append(clauses, "state=?")
		args = append(args, f.State)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + moveCols + ` FROM moves WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Move
	for rows.Next() {
		m, err := scanMove(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) UpdateMove(ctx context.Context, tx *sql.Tx, m domain.Move) error {
	res, err := tx.ExecContext(ctx, `UPDATE moves SET state=?, paused_from=?, progress_percent=?, days_elapsed=?, state_entered_at=? WHERE id=?`,
		m.State, nullableStringPtr(m.PausedFrom), m.ProgressPercent, m.DaysElapsed, m.StateEnteredAt, m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountMovesByState(ctx context.Context, campaignID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT state, COUNT(*) FROM moves WHERE campaign_id=? GROUP BY state`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

// --- move tasks ---

func (r Repo) InsertMoveTask(ctx context.Context, tx *sql.Tx, t domain.MoveTask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO move_tasks(id,move_id,title,done,created_at) VALUES (?,?,?,?,?)`,
		t.ID, t.MoveID, t.Title, boolInt(t.Done), t.CreatedAt)
	return err
}

func (r Repo) SetMoveTaskDone(ctx context.Context, tx *sql.Tx, id string, done bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE move_tasks SET done=? WHERE id=?`, boolInt(done), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListMoveTasks(ctx context.Context, moveID string) ([]domain.MoveTask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,move_id,title,done,created_at FROM move_tasks WHERE move_id=? ORDER BY created_at, id`, moveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.MoveTask
	for rows.Next() {
		var t domain.MoveTask
		var done int
		if err := rows.Scan(&t.ID, &t.MoveID, &t.Title, &done, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Done = done != 0
		res = append(res, t)
	}
	return res, rows.Err()
}

// CompletionRatio returns done/total for a move's tasks; 0 when no tasks exist.
func (r Repo) CompletionRatio(ctx context.Context, moveID string) (float64, error) {
	var total, done int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(done),0) FROM move_tasks WHERE move_id=?`, moveID).
		Scan(&total, &done)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	return float64(done) / float64(total), nil
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int, campaignID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if campaignID != "" {
		clauses = append(clauses, "campaign_id=?")
		args = append(args, campaignID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)
	query := `SELECT id,ts,type,COALESCE(campaign_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id DESC LIMIT ?`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.CampaignID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns events with id greater than the cursor in ascending
// order, for webhook delivery.
func (r Repo) EventsAfter(ctx context.Context, limit int, after int64, campaignID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,ts,type,COALESCE(campaign_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json
		 FROM events WHERE id > ? AND campaign_id=? ORDER BY id ASC LIMIT ?`,
		after, campaignID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.CampaignID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) LatestEventID(ctx context.Context, campaignID string) (int64, error) {
	var id sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events WHERE campaign_id=?`, campaignID).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id.Int64, nil
}

// --- helpers ---

func encodeStringSlice(in []string) any {
	if len(in) == 0 {
		return nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil
	}
	return string(b)
}

func decodeStringSlice(v sql.NullString) []string {
	if !v.Valid || v.String == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(v.String), &out)
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
