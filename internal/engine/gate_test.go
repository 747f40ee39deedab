package engine_test

import (
	"testing"

	"playmaker/internal/domain"
	"playmaker/internal/engine"
)

func snapshotFixture() engine.CapabilitySnapshot {
	return engine.SnapshotFromNodes([]domain.CapabilityNode{
		{ID: "cap_analytics", Name: "Audience Analytics", Unlocked: true},
		{ID: "cap_premium", Name: "Premium Tier", Unlocked: false},
		{ID: "cap_email", Name: "Email Outreach", Unlocked: false},
	})
}

func TestIsUnlocked(t *testing.T) {
	snap := snapshotFixture()
	cases := []struct {
		name     string
		requires []string
		want     bool
	}{
		{"no requirements", nil, true},
		{"all unlocked", []string{"cap_analytics"}, true},
		{"one locked", []string{"cap_analytics", "cap_premium"}, false},
		{"unknown id counts as locked", []string{"cap_mystery"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tpl := domain.ManeuverTemplate{ID: "tpl", RequiredCapabilityIDs: tc.requires}
			if got := snap.IsUnlocked(tpl); got != tc.want {
				t.Fatalf("IsUnlocked(%v) = %v, want %v", tc.requires, got, tc.want)
			}
		})
	}
}

func TestMissingCapabilitiesDeclaredOrder(t *testing.T) {
	snap := snapshotFixture()
	tpl := domain.ManeuverTemplate{
		ID:                    "tpl",
		RequiredCapabilityIDs: []string{"cap_email", "cap_analytics", "cap_premium"},
	}
	got := snap.MissingCapabilities(tpl)
	want := []string{"Email Outreach", "Premium Tier"}
	if len(got) != len(want) {
		t.Fatalf("missing = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("missing = %v, want %v", got, want)
		}
	}
}

func TestMissingCapabilitiesUnknownIDFallsBack(t *testing.T) {
	snap := snapshotFixture()
	tpl := domain.ManeuverTemplate{
		ID:                    "tpl",
		RequiredCapabilityIDs: []string{"cap_ghost"},
	}
	got := snap.MissingCapabilities(tpl)
	if len(got) != 1 || got[0] != "cap_ghost" {
		t.Fatalf("unknown id should surface raw, got %v", got)
	}
}
