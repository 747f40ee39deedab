package config

import (
	"strings"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault("camp-1")))
	if err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Campaign.ID != "camp-1" {
		t.Fatalf("campaign id = %q", cfg.Campaign.ID)
	}
	if len(cfg.Catalog.Templates) == 0 || len(cfg.TechTree.Capabilities) == 0 {
		t.Fatal("default config must seed a catalog and a tech tree")
	}
	if len(cfg.Cohorts) == 0 {
		t.Fatal("default config must seed cohorts")
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing campaign id",
			yaml: "campaign:\n  name: x\ncatalog:\n  templates:\n    - id: t1\n      name: T\n      posture: nurture\n      duration_days: 7\n",
			want: "campaign.id",
		},
		{
			name: "empty catalog",
			yaml: "campaign:\n  id: c1\n",
			want: "catalog.templates",
		},
		{
			name: "duplicate template",
			yaml: "campaign:\n  id: c1\ncatalog:\n  templates:\n    - id: t1\n      name: T\n      posture: nurture\n      duration_days: 7\n    - id: t1\n      name: T2\n      posture: nurture\n      duration_days: 7\n",
			want: "duplicate template",
		},
		{
			name: "bad intensity",
			yaml: "campaign:\n  id: c1\ncatalog:\n  templates:\n    - id: t1\n      name: T\n      posture: nurture\n      duration_days: 7\n      intensity: frantic\n",
			want: "unknown intensity",
		},
		{
			name: "bad timeframe",
			yaml: "campaign:\n  id: c1\n  timeframe_days: 10\ncatalog:\n  templates:\n    - id: t1\n      name: T\n      posture: nurture\n      duration_days: 7\n",
			want: "7, 14 or 28",
		},
		{
			name: "bad progress strategy",
			yaml: "campaign:\n  id: c1\ncatalog:\n  templates:\n    - id: t1\n      name: T\n      posture: nurture\n      duration_days: 7\nprogress:\n  strategies:\n    nurture: vibes\n",
			want: "must be time or metric",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestProgressStrategyDefaultsToTime(t *testing.T) {
	cfg := Default("camp-1")
	if got := cfg.ProgressStrategy("conversion"); got != "metric" {
		t.Fatalf("conversion strategy = %q, want metric", got)
	}
	if got := cfg.ProgressStrategy("unheard-of"); got != "time" {
		t.Fatalf("unknown posture strategy = %q, want time", got)
	}
}

func TestTempoValidators(t *testing.T) {
	for _, d := range []int{7, 14, 28} {
		if !ValidTimeframe(d) {
			t.Fatalf("timeframe %d should be valid", d)
		}
	}
	if ValidTimeframe(10) || ValidIntensity("frantic") {
		t.Fatal("invalid tempo values accepted")
	}
}
