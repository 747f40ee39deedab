package engine_test

import (
	"testing"

	"playmaker/internal/domain"
	"playmaker/internal/engine"
)

func catalogFixture() []domain.ManeuverTemplate {
	return []domain.ManeuverTemplate{
		{ID: "tpl_a", Name: "Welcome Drip", Description: "email drip", Posture: "nurture", Tier: 1, EngagementRole: "retention", RequiredCapabilityIDs: []string{"cap_analytics"}},
		{ID: "tpl_b", Name: "Flash Promo", Description: "discount push", Posture: "conversion", Tier: 1, EngagementRole: "acquisition", RequiredCapabilityIDs: []string{"cap_premium"}},
		{ID: "tpl_c", Name: "Retarget Sweep", Description: "paid retargeting", Posture: "conversion", Tier: 2, EngagementRole: "acquisition"},
	}
}

func anyFilters() engine.CatalogFilters {
	return engine.CatalogFilters{
		Posture: engine.MatchAny(),
		Tier:    engine.AnyTier(),
		Role:    engine.MatchAny(),
	}
}

func TestPartitionCatalogSplitsByGate(t *testing.T) {
	part := engine.PartitionCatalog(catalogFixture(), anyFilters(), snapshotFixture())
	if len(part.Available) != 2 {
		t.Fatalf("available = %d, want 2", len(part.Available))
	}
	if len(part.Locked) != 1 || part.Locked[0].ID != "tpl_b" {
		t.Fatalf("locked = %+v, want tpl_b only", part.Locked)
	}
	if part.Locked[0].MissingCapabilities[0] != "Premium Tier" {
		t.Fatalf("locked entry missing names = %v", part.Locked[0].MissingCapabilities)
	}
}

func TestPartitionCatalogFilters(t *testing.T) {
	f := anyFilters()
	f.Posture = engine.Equals("conversion")
	part := engine.PartitionCatalog(catalogFixture(), f, snapshotFixture())
	if len(part.Available) != 1 || part.Available[0].ID != "tpl_c" {
		t.Fatalf("available = %+v", part.Available)
	}
	if len(part.Locked) != 1 || part.Locked[0].ID != "tpl_b" {
		t.Fatalf("locked = %+v", part.Locked)
	}

	f = anyFilters()
	f.Tier = engine.TierEquals(2)
	part = engine.PartitionCatalog(catalogFixture(), f, snapshotFixture())
	if len(part.Available) != 1 || part.Available[0].ID != "tpl_c" {
		t.Fatalf("tier filter: available = %+v", part.Available)
	}

	f = anyFilters()
	f.Search = "RETARGET"
	part = engine.PartitionCatalog(catalogFixture(), f, snapshotFixture())
	if len(part.Available) != 1 || part.Available[0].ID != "tpl_c" {
		t.Fatalf("search is case-insensitive: %+v", part.Available)
	}
}

func TestPartitionCatalogEmptySidesAreNotNil(t *testing.T) {
	f := anyFilters()
	f.Search = "no such maneuver"
	part := engine.PartitionCatalog(catalogFixture(), f, snapshotFixture())
	if part.Available == nil || part.Locked == nil {
		t.Fatalf("partitions must be empty slices, not nil")
	}
	if len(part.Available) != 0 || len(part.Locked) != 0 {
		t.Fatalf("expected empty partitions, got %+v", part)
	}
}

func TestFilterFrom(t *testing.T) {
	if !engine.FilterFrom("").Matches("anything") {
		t.Fatalf("empty filter should match all")
	}
	if engine.FilterFrom("nurture").Matches("conversion") {
		t.Fatalf("value filter should only match itself")
	}
	if !engine.FilterFrom("nurture").Matches("nurture") {
		t.Fatalf("value filter should match its value")
	}
}
