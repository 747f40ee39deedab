package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"playmaker/internal/config"
	"playmaker/internal/engine"
	"playmaker/internal/repo"
)

// ResolveCampaign picks the active campaign and ensures it exists in the DB,
// creating and seeding it from the workspace config when missing. It prefers
// the override, then the single-campaign DB.
func ResolveCampaign(ctx context.Context, db *sql.DB, workspace, campaignOverride, actorID string) (string, *config.Config, error) {
	r := repo.Repo{DB: db}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, err
	}

	campaignID := campaignOverride
	if campaignID == "" {
		if cfg != nil && cfg.Campaign.ID != "" {
			campaignID = cfg.Campaign.ID
		} else if c, err := r.SingleCampaign(ctx); err == nil {
			campaignID = c.ID
		} else {
			return "", nil, fmt.Errorf("campaign not specified; use --campaign")
		}
	}
	if cfg == nil {
		cfg = config.Default(campaignID)
	}
	cfg.Campaign.ID = campaignID

	e := engine.New(db, cfg)
	if _, err := r.GetCampaign(ctx, campaignID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if _, err := e.InitCampaign(ctx, campaignID, cfg.Campaign.Name, actorID); err != nil {
			return "", nil, fmt.Errorf("init campaign: %w", err)
		}
	}
	return campaignID, cfg, nil
}
