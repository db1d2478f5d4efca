package world

import "sort"

// stuckPriority preempts any distance-derived priority: chronically blocked
// robots win contested cells.
const stuckPriority = 1 << 20

// MoveProposal is one robot's intended single step for this tick.
type MoveProposal struct {
	EntityID string
	From     Vec2i
	To       Vec2i
	Priority int
}

// resolveProposals grants each destination cell to at most one proposal.
//
// Every robot plans against a stale snapshot of the others, so two robots can
// propose the same cell, or try to swap through each other, in the same tick.
// Proposals are sorted by descending priority (ties broken by entity id so
// resolution is deterministic); a granted destination is removed from
// contention for the rest of the pass. A rejected proposal means "wait this
// tick", not an error.
//
// Swaps (A -> B.From while B -> A.From) are a mutual wait unless one side
// strictly dominates in priority.
func resolveProposals(proposals []MoveProposal) map[string]Vec2i {
	if len(proposals) == 0 {
		return nil
	}
	sorted := make([]MoveProposal, len(proposals))
	copy(sorted, proposals)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].EntityID < sorted[j].EntityID
	})

	byFrom := make(map[string]*MoveProposal, len(sorted))
	for i := range sorted {
		byFrom[sorted[i].From.Key()] = &sorted[i]
	}

	claimed := make(map[string]struct{}, len(sorted))
	approved := make(map[string]Vec2i, len(sorted))
	for _, p := range sorted {
		if _, taken := claimed[p.To.Key()]; taken {
			continue
		}
		if q, ok := byFrom[p.To.Key()]; ok && q.To == p.From && q.EntityID != p.EntityID {
			if p.Priority <= q.Priority {
				continue
			}
		}
		claimed[p.To.Key()] = struct{}{}
		approved[p.EntityID] = p.To
	}
	return approved
}
