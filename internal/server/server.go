package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"playmaker/internal/domain"
	"playmaker/internal/engine"
	"playmaker/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"capability_locked"`
	Message string         `json:"message" example:"template tpl_referral_blitz requires locked capabilities"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"missing\":[\"Premium Tier\"]}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Playmaker API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(instrumentHTTP)
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Playmaker API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	registerHealth(group)
	registerCampaigns(group, cfg.Engine)
	registerTechTree(group, cfg.Engine)
	registerCatalog(group, cfg.Engine)
	registerCohorts(group, cfg.Engine)
	registerMoves(group, cfg.Engine)
	registerMoveTasks(group, cfg.Engine)
	registerRecommendations(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ge engine.CapabilityGateError
	if errors.As(err, &ge) {
		return newAPIError(http.StatusConflict, "capability_locked", err.Error(), map[string]any{
			"template_id": ge.TemplateID,
			"missing":     ge.Missing,
		})
	}
	var te engine.InvalidTransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{
			"current":   te.Current,
			"requested": te.Requested,
		})
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": ve.Field})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Playmaker API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerCampaigns(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-campaign",
		Method:        http.MethodPost,
		Path:          "/campaigns",
		Summary:       "Create campaign",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateCampaignRequest `json:"body"`
	}) (*struct {
		Body CampaignResponse `json:"body"`
	}, error) {
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.InitCampaign(ctx, input.Body.ID, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CampaignResponse `json:"body"`
		}{Body: campaignResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-campaigns",
		Method:      http.MethodGet,
		Path:        "/campaigns",
		Summary:     "List campaigns",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []CampaignResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListCampaigns(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]CampaignResponse, 0, len(items))
		for _, c := range items {
			res = append(res, campaignResponse(c))
		}
		return &struct {
			Body []CampaignResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-campaign",
		Method:      http.MethodGet,
		Path:        "/campaigns/{campaign_id}",
		Summary:     "Get campaign",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
	}) (*struct {
		Body CampaignResponse `json:"body"`
	}, error) {
		c, err := e.Repo.GetCampaign(ctx, input.CampaignID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CampaignResponse `json:"body"`
		}{Body: campaignResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "campaign-status",
		Method:      http.MethodGet,
		Path:        "/campaigns/{campaign_id}/status",
		Summary:     "Campaign status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		c, err := e.Repo.GetCampaign(ctx, input.CampaignID)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountMovesByState(ctx, c.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"campaign_id": c.ID,
			"status":      c.Status,
			"move_counts": counts,
		}}, nil
	})
}

func registerTechTree(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-capabilities",
		Method:      http.MethodGet,
		Path:        "/techtree/capabilities",
		Summary:     "List capability nodes",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []CapabilityResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListCapabilities(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]CapabilityResponse, 0, len(items))
		for _, c := range items {
			res = append(res, capabilityResponse(c))
		}
		return &struct {
			Body []CapabilityResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-capability-unlocked",
		Method:      http.MethodPatch,
		Path:        "/techtree/capabilities/{id}",
		Summary:     "Set capability unlock state",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body struct {
			Unlocked bool `json:"unlocked"`
		} `json:"body"`
	}) (*struct {
		Body CapabilityResponse `json:"body"`
	}, error) {
		c, err := e.SetCapabilityUnlocked(ctx, input.ID, input.Body.Unlocked)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CapabilityResponse `json:"body"`
		}{Body: capabilityResponse(c)}, nil
	})
}

func registerCatalog(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "query-catalog",
		Method:      http.MethodGet,
		Path:        "/catalog",
		Summary:     "Query maneuver catalog",
		Description: "Filters the catalog and partitions it into available and locked against the current capability snapshot.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Search  string `query:"search"`
		Posture string `query:"posture"`
		Tier    int    `query:"tier"`
		Role    string `query:"role"`
	}) (*struct {
		Body CatalogResponse `json:"body"`
	}, error) {
		filters := engine.CatalogFilters{
			Search:  input.Search,
			Posture: engine.FilterFrom(input.Posture),
			Tier:    engine.AnyTier(),
			Role:    engine.FilterFrom(input.Role),
		}
		if input.Tier > 0 {
			filters.Tier = engine.TierEquals(input.Tier)
		}
		part, err := e.CatalogQuery(ctx, filters)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CatalogResponse `json:"body"`
		}{Body: CatalogResponse{Available: part.Available, Locked: part.Locked}}, nil
	})
}

func registerCohorts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-cohorts",
		Method:      http.MethodGet,
		Path:        "/cohorts",
		Summary:     "List cohorts",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []CohortResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListCohorts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]CohortResponse, 0, len(items))
		for _, c := range items {
			res = append(res, cohortResponse(c))
		}
		return &struct {
			Body []CohortResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerMoves(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-move",
		Method:        http.MethodPost,
		Path:          "/campaigns/{campaign_id}/moves",
		Summary:       "Create move",
		Description:   "Instantiates a catalog template (or a manual spec) into a tracked move. The capability gate is enforced unconditionally. A request_token makes the call idempotent.",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CampaignID string            `path:"campaign_id"`
		Body       CreateMoveRequest `json:"body"`
	}) (*struct {
		Body MoveResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.InstantiateOptions{
			CampaignID:          input.CampaignID,
			TemplateID:          input.Body.TemplateID,
			Name:                input.Body.Name,
			PrimaryObjective:    input.Body.PrimaryObjective,
			SecondaryObjectives: input.Body.SecondaryObjectives,
			PrimaryCohortID:     input.Body.PrimaryCohortID,
			SecondaryCohortIDs:  input.Body.SecondaryCohortIDs,
			Tempo:               input.Body.Tempo,
			RequestToken:        input.Body.RequestToken,
			ActorID:             actorID,
		}
		m, err := e.Instantiate(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		movesCreated.Inc()
		return &struct {
			Body MoveResponse `json:"body"`
		}{Body: moveResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-moves",
		Method:      http.MethodGet,
		Path:        "/campaigns/{campaign_id}/moves",
		Summary:     "List moves",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
		State      string `query:"state"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedMoves `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		moves, err := e.Repo.ListMoves(ctx, repo.MoveFilters{
			CampaignID:      input.CampaignID,
			State:           input.State,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedMoves{Items: []MoveResponse{}}
		if len(moves) > limit {
			resp.NextCursor = composeCursor(moves[limit].CreatedAt, moves[limit].ID)
			moves = moves[:limit]
		}
		for _, m := range moves {
			resp.Items = append(resp.Items, moveResponse(m))
		}
		return &struct {
			Body paginatedMoves `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-move",
		Method:      http.MethodGet,
		Path:        "/campaigns/{campaign_id}/moves/{id}",
		Summary:     "Get move",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
		ID         string `path:"id"`
	}) (*struct {
		Body MoveResponse `json:"body"`
	}, error) {
		m, err := e.MoveStatus(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if !campaignMatches(input.CampaignID, m.CampaignID) {
			return nil, newAPIError(http.StatusNotFound, "not_found", "move not found in campaign", nil)
		}
		return &struct {
			Body MoveResponse `json:"body"`
		}{Body: moveResponse(m)}, nil
	})

	type movePath struct {
		CampaignID string `path:"campaign_id"`
		ID         string `path:"id"`
	}
	transitionOp := func(opID, pathSuffix, summary string, do func(ctx context.Context, moveID, actorID string) (domain.Move, error)) {
		huma.Register(api, huma.Operation{
			OperationID: opID,
			Method:      http.MethodPost,
			Path:        "/campaigns/{campaign_id}/moves/{id}/" + pathSuffix,
			Summary:     summary,
			Errors: []int{
				http.StatusBadRequest,
				http.StatusNotFound,
				http.StatusConflict,
				http.StatusInternalServerError,
			},
		}, func(ctx context.Context, input *movePath) (*struct {
			Body MoveResponse `json:"body"`
		}, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			m, err := do(ctx, input.ID, actorID)
			if err != nil {
				return nil, handleError(err)
			}
			if !campaignMatches(input.CampaignID, m.CampaignID) {
				return nil, newAPIError(http.StatusNotFound, "not_found", "move not found in campaign", nil)
			}
			moveTransitions.WithLabelValues(m.State).Inc()
			return &struct {
				Body MoveResponse `json:"body"`
			}{Body: moveResponse(m)}, nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "advance-move",
		Method:      http.MethodPost,
		Path:        "/campaigns/{campaign_id}/moves/{id}/advance",
		Summary:     "Advance move",
		Description: "Moves to the next state in the lifecycle, or to an explicit target. Skipping and backward jumps are rejected.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
		ID         string `path:"id"`
		Body       struct {
			Target string `json:"target,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body MoveResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.AdvanceMove(ctx, input.ID, input.Body.Target, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		if !campaignMatches(input.CampaignID, m.CampaignID) {
			return nil, newAPIError(http.StatusNotFound, "not_found", "move not found in campaign", nil)
		}
		moveTransitions.WithLabelValues(m.State).Inc()
		return &struct {
			Body MoveResponse `json:"body"`
		}{Body: moveResponse(m)}, nil
	})

	transitionOp("pause-move", "pause", "Pause move", e.PauseMove)
	transitionOp("resume-move", "resume", "Resume move", e.ResumeMove)
	transitionOp("cancel-move", "cancel", "Cancel move", e.CancelMove)
}

func registerMoveTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-move-task",
		Method:        http.MethodPost,
		Path:          "/campaigns/{campaign_id}/moves/{id}/tasks",
		Summary:       "Add move task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
		ID         string `path:"id"`
		Body       struct {
			Title string `json:"title"`
		} `json:"body"`
	}) (*struct {
		Body MoveTaskResponse `json:"body"`
	}, error) {
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.AddMoveTask(ctx, input.ID, input.Body.Title, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MoveTaskResponse `json:"body"`
		}{Body: moveTaskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-move-tasks",
		Method:      http.MethodGet,
		Path:        "/campaigns/{campaign_id}/moves/{id}/tasks",
		Summary:     "List move tasks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
		ID         string `path:"id"`
	}) (*struct {
		Body []MoveTaskResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetMove(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListMoveTasks(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]MoveTaskResponse, 0, len(items))
		for _, t := range items {
			res = append(res, moveTaskResponse(t))
		}
		return &struct {
			Body []MoveTaskResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-move-task",
		Method:      http.MethodPost,
		Path:        "/campaigns/{campaign_id}/moves/{id}/tasks/{task_id}/done",
		Summary:     "Complete move task",
		Description: "Marks a checklist item done and re-evaluates the rollup; a move in act at 100% auto-advances to review.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
		ID         string `path:"id"`
		TaskID     string `path:"task_id"`
	}) (*struct {
		Body MoveResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.CompleteMoveTask(ctx, input.ID, input.TaskID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MoveResponse `json:"body"`
		}{Body: moveResponse(m)}, nil
	})
}

func registerRecommendations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "generate-recommendations",
		Method:      http.MethodPost,
		Path:        "/campaigns/{campaign_id}/recommendations",
		Summary:     "Generate move recommendations",
		Description: "Deterministic, stateless scoring of the unlocked catalog. On latency budget expiry the candidates scored so far are returned with degraded=true.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CampaignID string                 `path:"campaign_id"`
		Body       RecommendationsRequest `json:"body"`
	}) (*struct {
		Body RecommendationsResponse `json:"body"`
	}, error) {
		req := engine.RecommendationRequest{
			Objectives:         input.Body.Objectives,
			PrimaryCohortID:    input.Body.PrimaryCohortID,
			SecondaryCohortIDs: input.Body.SecondaryCohortIDs,
		}
		if input.Body.Tempo != nil {
			req.Tempo = *input.Body.Tempo
		}
		start := time.Now()
		candidates, err := e.GenerateRecommendations(ctx, req)
		recommendationDuration.Observe(time.Since(start).Seconds())
		degraded := false
		if err != nil {
			if !errors.Is(err, engine.ErrGenerationTimeout) {
				return nil, handleError(err)
			}
			degraded = true
			recommendationTimeouts.Inc()
		}
		return &struct {
			Body RecommendationsResponse `json:"body"`
		}{Body: RecommendationsResponse{Candidates: candidates, Degraded: degraded}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" default:"20"`
		CampaignID string `query:"campaign_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		items, err := e.Repo.LatestEvents(ctx, input.Limit, input.CampaignID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]EventResponse, 0, len(items))
		for _, evt := range items {
			res = append(res, eventResponse(evt))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: res}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}

func campaignMatches(expected, actual string) bool {
	if expected == "" {
		return true
	}
	return expected == actual
}
