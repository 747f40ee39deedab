package engine

import (
	"context"
	"strings"

	"playmaker/internal/domain"
)

// Filter is a tagged match value: either match-any or an exact match. This
// replaces the "all" wildcard strings the UI layer used to thread through
// every comparison.
type Filter struct {
	any   bool
	value string
}

// MatchAny returns a filter that accepts every value.
func MatchAny() Filter { return Filter{any: true} }

// Equals returns a filter that accepts exactly v.
func Equals(v string) Filter { return Filter{value: v} }

// FilterFrom maps an optional query parameter to a Filter; empty means any.
func FilterFrom(v string) Filter {
	if v == "" {
		return MatchAny()
	}
	return Equals(v)
}

func (f Filter) Matches(v string) bool {
	return f.any || f.value == v
}

// TierFilter matches an integer tier.
type TierFilter struct {
	any  bool
	tier int
}

func AnyTier() TierFilter { return TierFilter{any: true} }

func TierEquals(t int) TierFilter { return TierFilter{tier: t} }

func (f TierFilter) Matches(t int) bool {
	return f.any || f.tier == t
}

// CatalogFilters narrows the maneuver catalog before gating partitions it.
type CatalogFilters struct {
	Search  string // case-insensitive substring over name+description
	Posture Filter
	Tier    TierFilter
	Role    Filter
}

// TemplateView is a gated catalog entry. Capability requirements travel as
// opaque ids plus a derived unlocked flag; names are resolved only here, at
// the boundary, so a consumer can never hold stale resolutions.
type TemplateView struct {
	domain.ManeuverTemplate
	Unlocked            bool     `json:"unlocked"`
	MissingCapabilities []string `json:"missing_capabilities,omitempty"`
}

// CatalogPartition is the filtered catalog split by gate status. Both sides
// can be empty independently and are reported as such.
type CatalogPartition struct {
	Available []TemplateView `json:"available"`
	Locked    []TemplateView `json:"locked"`
}

func (f CatalogFilters) matches(t domain.ManeuverTemplate) bool {
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(t.Name), needle) &&
			!strings.Contains(strings.ToLower(t.Description), needle) {
			return false
		}
	}
	return f.Posture.Matches(t.Posture) && f.Tier.Matches(t.Tier) && f.Role.Matches(t.EngagementRole)
}

// CatalogQuery filters the catalog and partitions it by gate status against a
// single capability snapshot. O(T*R) for T templates, R requirements each.
func (e Engine) CatalogQuery(ctx context.Context, f CatalogFilters) (CatalogPartition, error) {
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return CatalogPartition{}, err
	}
	templates, err := e.Repo.ListTemplates(ctx)
	if err != nil {
		return CatalogPartition{}, err
	}
	return PartitionCatalog(templates, f, snap), nil
}

// PartitionCatalog is the pure core of CatalogQuery.
func PartitionCatalog(templates []domain.ManeuverTemplate, f CatalogFilters, snap CapabilitySnapshot) CatalogPartition {
	part := CatalogPartition{Available: []TemplateView{}, Locked: []TemplateView{}}
	for _, t := range templates {
		if !f.matches(t) {
			continue
		}
		if snap.IsUnlocked(t) {
			part.Available = append(part.Available, TemplateView{ManeuverTemplate: t, Unlocked: true})
		} else {
			part.Locked = append(part.Locked, TemplateView{
				ManeuverTemplate:    t,
				Unlocked:            false,
				MissingCapabilities: snap.MissingCapabilities(t),
			})
		}
	}
	return part
}
