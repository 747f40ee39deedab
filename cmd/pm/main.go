package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"playmaker/internal/app"
	"playmaker/internal/config"
	"playmaker/internal/db"
	"playmaker/internal/domain"
	"playmaker/internal/engine"
	"playmaker/internal/migrate"
	"playmaker/internal/repo"
	"playmaker/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pm",
	Short: "Playmaker CLI",
	Long: `Playmaker plans marketing campaign moves from a gated maneuver catalog.
Core concepts:
- Workspace: your .playmaker directory holding the database; playmaker.yml carries the catalog, tech tree and cohorts.
- Campaign: the top-level container that owns moves and the event log.
- Tech tree: capability nodes unlocked outside of move planning; locked capabilities gate catalog templates.
- Catalog: maneuver templates, always shown split into available and locked.
- Move: one instantiated maneuver going planning -> setup -> observe -> orient -> decide -> act -> review -> completed; pause and cancel are commands, act -> review is the only automatic step.
- Tasks: a move's checklist; completing all of them at act rolls the move into review.
- Recommendations: deterministic ranking of unlocked templates for an objective/cohort/tempo triple; accepting one goes through 'pm move create'.
- Event log: diary of changes, view with 'pm log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PLAYMAKER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("campaign", "", "campaign id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("campaign", rootCmd.PersistentFlags().Lookup("campaign"))
}

func registerCommands() {
	rootCmd.AddCommand(campaignCmd())
	rootCmd.AddCommand(techtreeCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(cohortCmd())
	rootCmd.AddCommand(moveCmd())
	rootCmd.AddCommand(recommendCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- campaign ---

func campaignCmd() *cobra.Command {
	c := &cobra.Command{Use: "campaign", Short: "Manage campaigns"}
	c.AddCommand(campaignInitCmd())
	c.AddCommand(campaignListCmd())
	c.AddCommand(campaignShowCmd())
	c.AddCommand(campaignStatusCmd())
	return c
}

func campaignInitCmd() *cobra.Command {
	var id, name string
	var writeConfig bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a campaign and seed reference data from config",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = config.Default(id)
				if writeConfig {
					if err := os.WriteFile(config.Path(workspace), []byte(config.GenerateDefault(id)), 0o644); err != nil {
						return err
					}
					fmt.Printf("wrote %s\n", config.Path(workspace))
				}
			}
			cfg.Campaign.ID = id
			e := engine.New(conn, cfg)
			c, err := e.InitCampaign(cmd.Context(), id, name, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(c)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "campaign id")
	cmd.Flags().StringVar(&name, "name", "", "campaign name")
	cmd.Flags().BoolVar(&writeConfig, "write-config", false, "write a default playmaker.yml when none exists")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func campaignListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListCampaigns(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func campaignShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.Repo.GetCampaign(ctx, e.Config.Campaign.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func campaignStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Move counts per state and workspace schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				counts, err := e.Repo.CountMovesByState(ctx, e.Config.Campaign.ID)
				if err != nil {
					return err
				}
				schema, err := migrate.Version(e.DB)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"campaign_id":    e.Config.Campaign.ID,
					"move_counts":    counts,
					"schema_version": schema,
				})
			})
		},
	}
}

// --- tech tree ---

func techtreeCmd() *cobra.Command {
	c := &cobra.Command{Use: "techtree", Short: "Inspect and sync capability nodes"}
	c.AddCommand(techtreeListCmd())
	c.AddCommand(techtreeSetCmd("unlock", true))
	c.AddCommand(techtreeSetCmd("lock", false))
	c.AddCommand(techtreeSyncCmd())
	return c
}

func techtreeSyncCmd() *cobra.Command {
	var file string
	c := &cobra.Command{
		Use:   "sync",
		Short: "Sync capability nodes from a config file",
		Long:  "Reconciles stored capability nodes with the tech tree in a config file (defaults to the workspace playmaker.yml). Unlock decisions are made outside move planning; sync is how they arrive here.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				caps := e.Config.TechTree.Capabilities
				if file != "" {
					loaded, err := config.FromFile(file)
					if err != nil {
						return err
					}
					caps = loaded.TechTree.Capabilities
				}
				items, err := e.SyncTechTree(ctx, caps, e.Config.Campaign.ID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Unlocked"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Name, c.Unlocked})
				}
				tw.Render()
				return nil
			})
		},
	}
	c.Flags().StringVar(&file, "file", "", "config file to sync from (default: workspace config)")
	return c
}

func techtreeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List capability nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListCapabilities(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Unlocked"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Name, c.Unlocked})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func techtreeSetCmd(verb string, unlocked bool) *cobra.Command {
	short := "Unlock a capability node"
	if !unlocked {
		short = "Lock a capability node"
	}
	return &cobra.Command{
		Use:   verb + " <capability-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.SetCapabilityUnlocked(ctx, args[0], unlocked)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

// --- catalog ---

func catalogCmd() *cobra.Command {
	c := &cobra.Command{Use: "catalog", Short: "Query the maneuver catalog"}
	c.AddCommand(catalogListCmd())
	return c
}

func catalogListCmd() *cobra.Command {
	var search, posture, role string
	var tier int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates split by gate status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				filters := engine.CatalogFilters{
					Search:  search,
					Posture: engine.FilterFrom(posture),
					Tier:    engine.AnyTier(),
					Role:    engine.FilterFrom(role),
				}
				if tier > 0 {
					filters.Tier = engine.TierEquals(tier)
				}
				part, err := e.CatalogQuery(ctx, filters)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(part)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Posture", "Tier", "Days", "Status"})
				for _, t := range part.Available {
					tw.AppendRow(table.Row{t.ID, t.Name, t.Posture, t.Tier, t.DurationDays, "available"})
				}
				for _, t := range part.Locked {
					missing := strings.Join(t.MissingCapabilities, ", ")
					tw.AppendRow(table.Row{t.ID, t.Name, t.Posture, t.Tier, t.DurationDays, "locked: " + missing})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "substring over name and description")
	cmd.Flags().StringVar(&posture, "posture", "", "posture filter")
	cmd.Flags().IntVar(&tier, "tier", 0, "tier filter")
	cmd.Flags().StringVar(&role, "role", "", "engagement role filter")
	return cmd
}

// --- cohorts ---

func cohortCmd() *cobra.Command {
	c := &cobra.Command{Use: "cohort", Short: "Inspect cohorts"}
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cohorts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListCohorts(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	return c
}

// --- moves ---

func moveCmd() *cobra.Command {
	c := &cobra.Command{Use: "move", Short: "Manage moves"}
	c.AddCommand(moveCreateCmd())
	c.AddCommand(moveListCmd())
	c.AddCommand(moveShowCmd())
	c.AddCommand(moveTransitionCmd("advance", "Advance to the next lifecycle state", func(e engine.Engine, ctx context.Context, id, target, actor string) (domain.Move, error) {
		return e.AdvanceMove(ctx, id, target, actor)
	}))
	c.AddCommand(moveTransitionCmd("pause", "Pause an active move", func(e engine.Engine, ctx context.Context, id, _, actor string) (domain.Move, error) {
		return e.PauseMove(ctx, id, actor)
	}))
	c.AddCommand(moveTransitionCmd("resume", "Resume a paused move", func(e engine.Engine, ctx context.Context, id, _, actor string) (domain.Move, error) {
		return e.ResumeMove(ctx, id, actor)
	}))
	c.AddCommand(moveTransitionCmd("cancel", "Cancel a move", func(e engine.Engine, ctx context.Context, id, _, actor string) (domain.Move, error) {
		return e.CancelMove(ctx, id, actor)
	}))
	c.AddCommand(moveTaskCmd())
	return c
}

func moveCreateCmd() *cobra.Command {
	var templateID, name, objective, primaryCohort, token, intensity string
	var secondaryObjectives, secondaryCohorts []string
	var timeframe int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Instantiate a template (or manual spec) into a move",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.InstantiateOptions{
					CampaignID:          e.Config.Campaign.ID,
					TemplateID:          templateID,
					Name:                name,
					PrimaryObjective:    objective,
					SecondaryObjectives: secondaryObjectives,
					PrimaryCohortID:     primaryCohort,
					SecondaryCohortIDs:  secondaryCohorts,
					RequestToken:        token,
					ActorID:             viper.GetString("actor-id"),
				}
				if timeframe > 0 || intensity != "" {
					opts.Tempo = &domain.Tempo{TimeframeDays: timeframe, Intensity: intensity}
				}
				m, err := e.Instantiate(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&templateID, "template", "", "catalog template id (empty builds a manual move)")
	cmd.Flags().StringVar(&name, "name", "", "move name (required for manual moves)")
	cmd.Flags().StringVar(&objective, "objective", "", "primary objective")
	cmd.Flags().StringSliceVar(&secondaryObjectives, "secondary-objective", nil, "secondary objective (repeatable)")
	cmd.Flags().StringVar(&primaryCohort, "cohort", "", "primary cohort id")
	cmd.Flags().StringSliceVar(&secondaryCohorts, "secondary-cohort", nil, "secondary cohort id (repeatable)")
	cmd.Flags().IntVar(&timeframe, "timeframe", 0, "timeframe in days (7, 14 or 28)")
	cmd.Flags().StringVar(&intensity, "intensity", "", "intensity: light, standard or aggressive")
	cmd.Flags().StringVar(&token, "request-token", "", "idempotency token")
	_ = cmd.MarkFlagRequired("objective")
	_ = cmd.MarkFlagRequired("cohort")
	return cmd
}

func moveListCmd() *cobra.Command {
	var state string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List moves",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				moves, err := e.Repo.ListMoves(ctx, repo.MoveFilters{
					CampaignID: e.Config.Campaign.ID,
					State:      state,
					Limit:      limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(moves)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "State", "Objective", "Cohort", "Progress"})
				for _, m := range moves {
					tw.AppendRow(table.Row{m.ID, m.Name, m.State, m.PrimaryObjective, m.PrimaryCohortID, fmt.Sprintf("%.0f%%", m.ProgressPercent)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "state filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max results")
	return cmd
}

func moveShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <move-id>",
		Short: "Show a move with freshly computed progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.MoveStatus(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
}

func moveTransitionCmd(verb, short string, do func(engine.Engine, context.Context, string, string, string) (domain.Move, error)) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   verb + " <move-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := do(e, ctx, args[0], target, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	if verb == "advance" {
		cmd.Flags().StringVar(&target, "to", "", "explicit target state (default: next)")
	}
	return cmd
}

func moveTaskCmd() *cobra.Command {
	c := &cobra.Command{Use: "task", Short: "Manage a move's checklist"}

	var title string
	add := &cobra.Command{
		Use:   "add <move-id>",
		Short: "Add a checklist item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.AddMoveTask(ctx, args[0], title, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	add.Flags().StringVar(&title, "title", "", "task title")
	_ = add.MarkFlagRequired("title")
	c.AddCommand(add)

	c.AddCommand(&cobra.Command{
		Use:   "list <move-id>",
		Short: "List checklist items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListMoveTasks(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})

	c.AddCommand(&cobra.Command{
		Use:   "done <move-id> <task-id>",
		Short: "Complete a checklist item and re-evaluate the rollup",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.CompleteMoveTask(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	})
	return c
}

// --- recommendations ---

func recommendCmd() *cobra.Command {
	var primaryCohort, intensity string
	var objectives, secondaryCohorts []string
	var timeframe int
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Generate ranked move recommendations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req := engine.RecommendationRequest{
					Objectives:         objectives,
					PrimaryCohortID:    primaryCohort,
					SecondaryCohortIDs: secondaryCohorts,
					Tempo:              domain.Tempo{TimeframeDays: timeframe, Intensity: intensity},
				}
				candidates, err := e.GenerateRecommendations(ctx, req)
				degraded := false
				if err != nil {
					if !errors.Is(err, engine.ErrGenerationTimeout) {
						return err
					}
					degraded = true
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"candidates": candidates, "degraded": degraded})
				}
				if degraded {
					fmt.Println("note: generation hit the latency budget; results are partial")
				}
				for i, c := range candidates {
					fmt.Printf("%d. %s\n", i+1, c.Name)
					fmt.Printf("   promise: %s\n", c.Promise)
					fmt.Printf("   expected impact: %d-%d\n", c.ImpactMin, c.ImpactMax)
					for _, a := range c.Actions {
						fmt.Printf("   - %s\n", a)
					}
					if c.Tradeoffs != "" {
						fmt.Printf("   tradeoffs: %s\n", c.Tradeoffs)
					}
					if c.Compatibility != nil {
						fmt.Printf("   compatibility (%s): %s\n", c.Compatibility.Tone, c.Compatibility.Message)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&objectives, "objective", nil, "objective (repeatable, first is primary)")
	cmd.Flags().StringVar(&primaryCohort, "cohort", "", "primary cohort id")
	cmd.Flags().StringSliceVar(&secondaryCohorts, "secondary-cohort", nil, "secondary cohort id (repeatable)")
	cmd.Flags().IntVar(&timeframe, "timeframe", 14, "timeframe in days")
	cmd.Flags().StringVar(&intensity, "intensity", "standard", "intensity: light, standard or aggressive")
	_ = cmd.MarkFlagRequired("objective")
	_ = cmd.MarkFlagRequired("cohort")
	return cmd
}

// --- log ---

func logCmd() *cobra.Command {
	c := &cobra.Command{Use: "log", Short: "Event log"}
	c.AddCommand(logTailCmd())
	return c
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Campaign.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			_, cfg, err := app.ResolveCampaign(cmd.Context(), conn, workspace, viper.GetString("campaign"), viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("PLAYMAKER_JWT_SECRET"),
				AllowLegacyActorHeader: os.Getenv("PLAYMAKER_ALLOW_ACTOR_HEADER") == "1",
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
				return fmt.Errorf("PLAYMAKER_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Playmaker API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	_, cfg, err := app.ResolveCampaign(ctx, conn, workspace, viper.GetString("campaign"), viper.GetString("actor-id"))
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
