package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"playmaker/internal/config"
	"playmaker/internal/db"
	"playmaker/internal/engine"
	"playmaker/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, auth AuthConfig) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default("camp-1")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if _, err := e.InitCampaign(context.Background(), "camp-1", "Test Campaign", "tester"); err != nil {
		t.Fatalf("init campaign: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

var actorHeader = map[string]string{"X-Actor-Id": "tester"}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type errEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func TestHealthSkipsAuth(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{AllowLegacyActorHeader: true})
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/catalog", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	var env errEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if env.Error.Code != "unauthorized" {
		t.Fatalf("error code = %q, want unauthorized", env.Error.Code)
	}
}

func TestJWTBearerAuth(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{JWTSecret: "test-secret"})
	defer cleanup()
	client := srv.Client()

	claims := jwt.RegisteredClaims{
		Subject:   "jwt-user",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/catalog", nil, map[string]string{
		"Authorization": "Bearer " + signed,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("catalog with bearer: %d %s", res.StatusCode, string(data))
	}

	bad, badBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/catalog", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if bad.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d %s", bad.StatusCode, string(badBody))
	}
}

func TestCatalogPartition(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{AllowLegacyActorHeader: true})
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/catalog", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("catalog status %d: %s", res.StatusCode, string(data))
	}
	var cat CatalogResponse
	if err := json.Unmarshal(data, &cat); err != nil {
		t.Fatalf("unmarshal catalog: %v", err)
	}
	available := map[string]bool{}
	for _, tv := range cat.Available {
		available[tv.ID] = true
	}
	locked := map[string]bool{}
	for _, tv := range cat.Locked {
		locked[tv.ID] = true
	}
	if !available["tpl_flash_promo"] {
		t.Fatalf("tpl_flash_promo should be available, got %v", available)
	}
	if !locked["tpl_referral_blitz"] {
		t.Fatalf("tpl_referral_blitz should be locked, got %v", locked)
	}
}

func TestCreateMoveAndAdvance(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{AllowLegacyActorHeader: true})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/campaigns/camp-1/moves", map[string]any{
		"template_id":       "tpl_flash_promo",
		"primary_cohort_id": "coh_new_signups",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create move status %d: %s", res.StatusCode, string(data))
	}
	var created MoveResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal move: %v", err)
	}
	if created.State != "planning" {
		t.Fatalf("new move state = %q", created.State)
	}

	// Empty target advances one step.
	advRes, advBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/campaigns/camp-1/moves/"+created.ID+"/advance", map[string]any{}, actorHeader)
	if advRes.StatusCode != http.StatusOK {
		t.Fatalf("advance status %d: %s", advRes.StatusCode, string(advBody))
	}
	var advanced MoveResponse
	_ = json.Unmarshal(advBody, &advanced)
	if advanced.State != "setup" {
		t.Fatalf("advanced state = %q, want setup", advanced.State)
	}

	// Skipping ahead is rejected.
	skipRes, skipBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/campaigns/camp-1/moves/"+created.ID+"/advance", map[string]any{
		"target": "act",
	}, actorHeader)
	if skipRes.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict on skip, got %d: %s", skipRes.StatusCode, string(skipBody))
	}
	var env errEnvelope
	if err := json.Unmarshal(skipBody, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if env.Error.Code != "invalid_transition" {
		t.Fatalf("error code = %q, want invalid_transition", env.Error.Code)
	}
	if env.Error.Details["current"] != "setup" || env.Error.Details["requested"] != "act" {
		t.Fatalf("unexpected details: %v", env.Error.Details)
	}
}

func TestLockedTemplateConflictThenUnlock(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{AllowLegacyActorHeader: true})
	defer cleanup()
	client := srv.Client()

	body := map[string]any{
		"template_id":       "tpl_referral_blitz",
		"primary_cohort_id": "coh_power_users",
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/campaigns/camp-1/moves", body, actorHeader)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for locked template, got %d: %s", res.StatusCode, string(data))
	}
	var env errEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if env.Error.Code != "capability_locked" {
		t.Fatalf("error code = %q, want capability_locked", env.Error.Code)
	}
	missing, _ := env.Error.Details["missing"].([]any)
	if len(missing) != 2 {
		t.Fatalf("missing capabilities = %v, want two entries", env.Error.Details["missing"])
	}

	for _, capID := range []string{"cap_referral", "cap_analytics"} {
		unlockRes, unlockBody := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/techtree/capabilities/"+capID, map[string]any{
			"unlocked": true,
		}, actorHeader)
		if unlockRes.StatusCode != http.StatusOK {
			t.Fatalf("unlock %s: %d %s", capID, unlockRes.StatusCode, string(unlockBody))
		}
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/campaigns/camp-1/moves", body, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create after unlock: %d %s", res.StatusCode, string(data))
	}
}

func TestCreateMoveRequestTokenIdempotent(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{AllowLegacyActorHeader: true})
	defer cleanup()
	client := srv.Client()

	body := map[string]any{
		"template_id":       "tpl_welcome_series",
		"primary_cohort_id": "coh_new_signups",
		"request_token":     "tok-123",
	}
	res1, data1 := doJSON(t, client, http.MethodPost, srv.URL+"/v0/campaigns/camp-1/moves", body, actorHeader)
	if res1.StatusCode != http.StatusCreated {
		t.Fatalf("first create: %d %s", res1.StatusCode, string(data1))
	}
	res2, data2 := doJSON(t, client, http.MethodPost, srv.URL+"/v0/campaigns/camp-1/moves", body, actorHeader)
	if res2.StatusCode != http.StatusCreated {
		t.Fatalf("replay create: %d %s", res2.StatusCode, string(data2))
	}
	var m1, m2 MoveResponse
	_ = json.Unmarshal(data1, &m1)
	_ = json.Unmarshal(data2, &m2)
	if m1.ID == "" || m1.ID != m2.ID {
		t.Fatalf("replay returned a different move: %q vs %q", m1.ID, m2.ID)
	}

	listRes, listBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/campaigns/camp-1/moves", nil, actorHeader)
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list moves: %d %s", listRes.StatusCode, string(listBody))
	}
	var page paginatedMoves
	if err := json.Unmarshal(listBody, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected one move after replay, got %d", len(page.Items))
	}
}

func TestMoveTasksRollup(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{AllowLegacyActorHeader: true})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/campaigns/camp-1/moves", map[string]any{
		"template_id":       "tpl_flash_promo",
		"primary_cohort_id": "coh_new_signups",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create move: %d %s", res.StatusCode, string(data))
	}
	var m MoveResponse
	_ = json.Unmarshal(data, &m)

	taskRes, taskBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/campaigns/camp-1/moves/"+m.ID+"/tasks", map[string]any{
		"title": "write promo copy",
	}, actorHeader)
	if taskRes.StatusCode != http.StatusCreated {
		t.Fatalf("add task: %d %s", taskRes.StatusCode, string(taskBody))
	}
	var task MoveTaskResponse
	_ = json.Unmarshal(taskBody, &task)

	for _, target := range []string{"setup", "observe", "orient", "decide", "act"} {
		advRes, advBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/campaigns/camp-1/moves/"+m.ID+"/advance", map[string]any{
			"target": target,
		}, actorHeader)
		if advRes.StatusCode != http.StatusOK {
			t.Fatalf("advance to %s: %d %s", target, advRes.StatusCode, string(advBody))
		}
	}

	// Completing the only task at act auto-advances to review.
	doneRes, doneBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/campaigns/camp-1/moves/"+m.ID+"/tasks/"+task.ID+"/done", nil, actorHeader)
	if doneRes.StatusCode != http.StatusOK {
		t.Fatalf("complete task: %d %s", doneRes.StatusCode, string(doneBody))
	}
	var done MoveResponse
	_ = json.Unmarshal(doneBody, &done)
	if done.State != "review" {
		t.Fatalf("state after full rollup = %q, want review", done.State)
	}
}

func TestRecommendationsEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{AllowLegacyActorHeader: true})
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/campaigns/camp-1/recommendations", map[string]any{
		"objectives":        []string{"conversion"},
		"primary_cohort_id": "coh_new_signups",
		"tempo":             map[string]any{"timeframe_days": 7, "intensity": "aggressive"},
	}, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("recommendations status %d: %s", res.StatusCode, string(data))
	}
	var rec RecommendationsResponse
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("unmarshal recommendations: %v", err)
	}
	if rec.Degraded {
		t.Fatalf("unexpected degraded response: %s", string(data))
	}
	if len(rec.Candidates) == 0 {
		t.Fatal("expected at least one candidate")
	}
	if rec.Candidates[0].TemplateID != "tpl_flash_promo" {
		t.Fatalf("top candidate = %q, want tpl_flash_promo", rec.Candidates[0].TemplateID)
	}
}
