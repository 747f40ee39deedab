package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models playmaker.yml.
type Config struct {
	Campaign struct {
		ID            string `yaml:"id"`
		Name          string `yaml:"name"`
		TimeframeDays int    `yaml:"timeframe_days"`
	} `yaml:"campaign"`
	TechTree struct {
		Capabilities []Capability `yaml:"capabilities"`
	} `yaml:"tech_tree"`
	Catalog struct {
		Templates []Template `yaml:"templates"`
	} `yaml:"catalog"`
	Cohorts []Cohort `yaml:"cohorts"`
	Progress struct {
		// Strategy per posture: "time" or "metric". Postures not listed
		// fall back to "time".
		Strategies map[string]string `yaml:"strategies"`
	} `yaml:"progress"`
	Recommendations struct {
		Budget     string      `yaml:"budget"` // generation latency budget, e.g. "2s"
		MaxResults int         `yaml:"max_results"`
		Archetypes []Archetype `yaml:"archetypes"`
	} `yaml:"recommendations"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

// WebhookConfig describes one outbound event subscription. An empty Events
// list means every event type.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret,omitempty"`
	Events         []string `yaml:"events,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
}

type Capability struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Unlocked bool   `yaml:"unlocked"`
}

type Template struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Posture      string   `yaml:"posture"`
	Tier         int      `yaml:"tier"`
	Role         string   `yaml:"role"`
	DurationDays int      `yaml:"duration_days"`
	Intensity    string   `yaml:"intensity"`
	Requires     []string `yaml:"requires"`
	AudienceTags []string `yaml:"audience_tags"`
	Objectives   []string `yaml:"objectives"`
	Promise      string   `yaml:"promise"`
	Actions      []string `yaml:"actions"`
	ImpactMin    int      `yaml:"impact_min"`
	ImpactMax    int      `yaml:"impact_max"`
	Tradeoffs    string   `yaml:"tradeoffs"`
}

type Cohort struct {
	ID   string   `yaml:"id"`
	Name string   `yaml:"name"`
	Tags []string `yaml:"tags"`
}

// Archetype is a canned fallback candidate keyed by primary objective, used
// only when catalog scoring yields nothing.
type Archetype struct {
	Objective string   `yaml:"objective"`
	Name      string   `yaml:"name"`
	Promise   string   `yaml:"promise"`
	Actions   []string `yaml:"actions"`
	ImpactMin int      `yaml:"impact_min"`
	ImpactMax int      `yaml:"impact_max"`
	Tradeoffs string   `yaml:"tradeoffs"`
}

var validIntensities = map[string]bool{"light": true, "standard": true, "aggressive": true}
var validTimeframes = map[int]bool{7: true, 14: true, 28: true}

// ValidIntensity reports whether s is a known intensity level.
func ValidIntensity(s string) bool { return validIntensities[s] }

// ValidTimeframe reports whether d is a supported timeframe in days.
func ValidTimeframe(d int) bool { return validTimeframes[d] }

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with pm campaign config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure. Missing catalog or
// tech-tree data is a fatal configuration error; everything downstream
// assumes both exist.
func (c *Config) Validate() error {
	if c.Campaign.ID == "" {
		return fmt.Errorf("config.campaign.id is required")
	}
	if c.Campaign.TimeframeDays != 0 && !ValidTimeframe(c.Campaign.TimeframeDays) {
		return fmt.Errorf("config.campaign.timeframe_days must be 7, 14 or 28")
	}
	if len(c.Catalog.Templates) == 0 {
		return fmt.Errorf("config.catalog.templates is required")
	}
	caps := map[string]bool{}
	for _, cap := range c.TechTree.Capabilities {
		if cap.ID == "" {
			return fmt.Errorf("config.tech_tree.capabilities contains empty id")
		}
		if caps[cap.ID] {
			return fmt.Errorf("duplicate capability %s", cap.ID)
		}
		caps[cap.ID] = true
	}
	seen := map[string]bool{}
	for _, t := range c.Catalog.Templates {
		if t.ID == "" || t.Name == "" {
			return fmt.Errorf("catalog template missing id or name")
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate template %s", t.ID)
		}
		seen[t.ID] = true
		if t.Posture == "" {
			return fmt.Errorf("template %s missing posture", t.ID)
		}
		if t.DurationDays <= 0 {
			return fmt.Errorf("template %s duration_days must be positive", t.ID)
		}
		if t.Intensity != "" && !ValidIntensity(t.Intensity) {
			return fmt.Errorf("template %s has unknown intensity %s", t.ID, t.Intensity)
		}
		for _, req := range t.Requires {
			if req == "" {
				return fmt.Errorf("template %s has empty capability requirement", t.ID)
			}
		}
	}
	cohorts := map[string]bool{}
	for _, co := range c.Cohorts {
		if co.ID == "" {
			return fmt.Errorf("config.cohorts contains empty id")
		}
		if cohorts[co.ID] {
			return fmt.Errorf("duplicate cohort %s", co.ID)
		}
		cohorts[co.ID] = true
	}
	for posture, strategy := range c.Progress.Strategies {
		if strategy != "time" && strategy != "metric" {
			return fmt.Errorf("progress strategy for posture %s must be time or metric, got %s", posture, strategy)
		}
	}
	for _, a := range c.Recommendations.Archetypes {
		if a.Objective == "" || a.Name == "" {
			return fmt.Errorf("recommendation archetype missing objective or name")
		}
	}
	return nil
}

// ProgressStrategy returns the canonical progress strategy for a posture.
func (c *Config) ProgressStrategy(posture string) string {
	if s, ok := c.Progress.Strategies[posture]; ok {
		return s
	}
	return "time"
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "playmaker.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(campaignID string) string {
	return fmt.Sprintf(defaultTemplate, campaignID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a campaign.
func Default(campaignID string) *Config {
	var cfg Config
	cfg.Campaign.ID = campaignID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, campaignID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `campaign:
  id: %s
  name: Default campaign
  timeframe_days: 14

tech_tree:
  capabilities:
    - id: cap_email
      name: Email Outreach
      unlocked: true
    - id: cap_social
      name: Social Presence
      unlocked: true
    - id: cap_analytics
      name: Audience Analytics
      unlocked: false
    - id: cap_paid_media
      name: Paid Media
      unlocked: false
    - id: cap_premium
      name: Premium Tier
      unlocked: false
    - id: cap_referral
      name: Referral Program
      unlocked: false

catalog:
  templates:
    - id: tpl_welcome_series
      name: Welcome Drip Series
      description: Automated three-touch email drip for new signups
      posture: nurture
      tier: 1
      role: retention
      duration_days: 14
      intensity: light
      requires: [cap_email]
      audience_tags: [new, engaged]
      objectives: [activation, retention]
      promise: Turn fresh signups into active users within two weeks
      actions:
        - Draft three onboarding emails
        - Configure send schedule
        - Wire activation tracking link
      impact_min: 5
      impact_max: 12
      tradeoffs: Slow burn; little effect on dormant users
    - id: tpl_flash_promo
      name: Flash Promotion
      description: Short high-intensity discount push across owned channels
      posture: conversion
      tier: 1
      role: acquisition
      duration_days: 7
      intensity: aggressive
      requires: [cap_email, cap_social]
      audience_tags: [engaged, price-sensitive]
      objectives: [conversion]
      promise: Spike short-term conversions with a limited-time offer
      actions:
        - Pick discount depth and expiry
        - Announce on social and email
        - Stand up countdown landing block
      impact_min: 8
      impact_max: 20
      tradeoffs: Trains discount-waiting behavior if overused
    - id: tpl_retarget_sweep
      name: Retargeting Sweep
      description: Paid retargeting against recent non-converting visitors
      posture: conversion
      tier: 2
      role: acquisition
      duration_days: 14
      intensity: standard
      requires: [cap_paid_media, cap_analytics]
      audience_tags: [visitors, warm]
      objectives: [conversion, awareness]
      promise: Recover warm visitors before they go cold
      actions:
        - Build visitor audience segment
        - Launch two ad variants
        - Review spend pacing mid-flight
      impact_min: 10
      impact_max: 25
      tradeoffs: Spend scales with audience size; fatigue after two weeks
    - id: tpl_community_spotlight
      name: Community Spotlight
      description: Weekly spotlight of customer stories on social channels
      posture: awareness
      tier: 1
      role: engagement
      duration_days: 28
      intensity: light
      requires: [cap_social]
      audience_tags: [community, engaged]
      objectives: [awareness, retention]
      promise: Keep the brand in feeds without ad spend
      actions:
        - Collect three customer stories
        - Schedule weekly posts
        - Reply to every comment within a day
      impact_min: 3
      impact_max: 10
      tradeoffs: Compounds slowly; needs steady content supply
    - id: tpl_referral_blitz
      name: Referral Blitz
      description: Double-sided referral rewards for the most active cohort
      posture: growth
      tier: 2
      role: acquisition
      duration_days: 28
      intensity: standard
      requires: [cap_referral, cap_analytics]
      audience_tags: [advocates, engaged]
      objectives: [acquisition, conversion]
      promise: Let happy customers do the acquisition work
      actions:
        - Define both-sides reward
        - Email the advocate segment
        - Track referral codes weekly
      impact_min: 12
      impact_max: 30
      tradeoffs: Reward cost per acquisition; fraud screening needed
    - id: tpl_concierge_onboarding
      name: Concierge Onboarding
      description: White-glove onboarding calls for high-value accounts
      posture: nurture
      tier: 3
      role: retention
      duration_days: 28
      intensity: standard
      requires: [cap_premium, cap_analytics]
      audience_tags: [high-value, new]
      objectives: [retention, activation]
      promise: Lock in the accounts that matter most
      actions:
        - Identify top accounts from analytics
        - Book onboarding calls
        - Log adoption blockers per account
      impact_min: 15
      impact_max: 35
      tradeoffs: Does not scale; consumes founder time

cohorts:
  - id: coh_new_signups
    name: New Signups
    tags: [new, engaged]
  - id: coh_power_users
    name: Power Users
    tags: [advocates, engaged, high-value]
  - id: coh_dormant
    name: Dormant Accounts
    tags: [dormant, price-sensitive]
  - id: coh_visitors
    name: Recent Visitors
    tags: [visitors, warm]

progress:
  strategies:
    conversion: metric
    growth: metric
    nurture: time
    awareness: time

recommendations:
  budget: 2s
  max_results: 5
  archetypes:
    - objective: conversion
      name: Limited-Time Offer
      promise: Create urgency with a clearly expiring deal
      actions:
        - Pick the offer and expiry
        - Announce everywhere you own
        - Follow up once before it ends
      impact_min: 5
      impact_max: 15
      tradeoffs: Margin cost; urgency fatigue if repeated
    - objective: awareness
      name: Founder Story Push
      promise: Put a face on the product across channels
      actions:
        - Write the origin story once
        - Cut it into three channel-sized posts
        - Pin the best performer
      impact_min: 2
      impact_max: 8
      tradeoffs: Hard to attribute; slow compounding
    - objective: retention
      name: Win-Back Nudge
      promise: Bring lapsed users back with a single useful nudge
      actions:
        - Segment users inactive 30+ days
        - Send one value-first email
        - Measure reactivation after a week
      impact_min: 3
      impact_max: 10
      tradeoffs: List hygiene required; unsubscribe risk
`
