package engine

import (
	"context"
	"log"

	"playmaker/internal/domain"
)

// CapabilitySnapshot is a point-in-time view of the tech tree. A single user
// operation takes one snapshot so every gate decision inside it sees the same
// unlocked set, even if the external tech-tree source updates mid-request.
type CapabilitySnapshot struct {
	unlocked map[string]bool
	names    map[string]string
}

// Snapshot reads the capability graph once.
func (e Engine) Snapshot(ctx context.Context) (CapabilitySnapshot, error) {
	nodes, err := e.Repo.ListCapabilities(ctx)
	if err != nil {
		return CapabilitySnapshot{}, err
	}
	snap := CapabilitySnapshot{
		unlocked: make(map[string]bool, len(nodes)),
		names:    make(map[string]string, len(nodes)),
	}
	for _, n := range nodes {
		snap.names[n.ID] = n.Name
		if n.Unlocked {
			snap.unlocked[n.ID] = true
		}
	}
	return snap, nil
}

// SnapshotFromNodes builds a snapshot without a repo round-trip.
func SnapshotFromNodes(nodes []domain.CapabilityNode) CapabilitySnapshot {
	snap := CapabilitySnapshot{
		unlocked: make(map[string]bool, len(nodes)),
		names:    make(map[string]string, len(nodes)),
	}
	for _, n := range nodes {
		snap.names[n.ID] = n.Name
		if n.Unlocked {
			snap.unlocked[n.ID] = true
		}
	}
	return snap
}

// IsUnlocked reports whether every declared requirement is unlocked. A
// template with no requirements is always unlocked.
func (s CapabilitySnapshot) IsUnlocked(t domain.ManeuverTemplate) bool {
	for _, id := range t.RequiredCapabilityIDs {
		if !s.unlocked[id] {
			return false
		}
	}
	return true
}

// MissingCapabilities returns the names of requirements not yet unlocked, in
// the template's declared order. An id without a graph node falls back to the
// raw id; that is a data-integrity signal worth surfacing in the log.
func (s CapabilitySnapshot) MissingCapabilities(t domain.ManeuverTemplate) []string {
	var missing []string
	for _, id := range t.RequiredCapabilityIDs {
		if s.unlocked[id] {
			continue
		}
		name, ok := s.names[id]
		if !ok {
			log.Printf("capability %s referenced by template %s has no tech-tree node", id, t.ID)
			name = id
		}
		missing = append(missing, name)
	}
	return missing
}

// Name resolves a capability id to its display name, falling back to the id.
func (s CapabilitySnapshot) Name(id string) string {
	if name, ok := s.names[id]; ok {
		return name
	}
	return id
}
