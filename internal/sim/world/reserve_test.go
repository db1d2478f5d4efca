package world

import "testing"

func TestResolveContestedCellSingleGrant(t *testing.T) {
	cell := Vec2i{X: 5, Y: 5}
	approved := resolveProposals([]MoveProposal{
		{EntityID: "a", From: Vec2i{X: 4, Y: 5}, To: cell, Priority: -1},
		{EntityID: "b", From: Vec2i{X: 5, Y: 4}, To: cell, Priority: -3},
		{EntityID: "c", From: Vec2i{X: 6, Y: 5}, To: cell, Priority: -3},
	})
	if len(approved) != 1 {
		t.Fatalf("grants: %v", approved)
	}
	// Highest priority wins.
	if to, ok := approved["a"]; !ok || to != cell {
		t.Fatalf("winner: %v", approved)
	}
}

func TestResolveTieBreaksByEntityID(t *testing.T) {
	cell := Vec2i{X: 5, Y: 5}
	approved := resolveProposals([]MoveProposal{
		{EntityID: "z", From: Vec2i{X: 4, Y: 5}, To: cell, Priority: -2},
		{EntityID: "a", From: Vec2i{X: 6, Y: 5}, To: cell, Priority: -2},
	})
	if _, ok := approved["a"]; !ok {
		t.Fatalf("tie should go to the lexicographically smaller id: %v", approved)
	}
	if _, ok := approved["z"]; ok {
		t.Fatalf("both sides granted: %v", approved)
	}
}

func TestResolveStuckPriorityPreempts(t *testing.T) {
	cell := Vec2i{X: 5, Y: 5}
	approved := resolveProposals([]MoveProposal{
		{EntityID: "a", From: Vec2i{X: 4, Y: 5}, To: cell, Priority: -1},
		{EntityID: "stuck", From: Vec2i{X: 6, Y: 5}, To: cell, Priority: stuckPriority},
	})
	if _, ok := approved["stuck"]; !ok {
		t.Fatalf("escalated proposal lost: %v", approved)
	}
}

func TestResolveSwapIsMutualWait(t *testing.T) {
	a := Vec2i{X: 4, Y: 5}
	b := Vec2i{X: 5, Y: 5}
	approved := resolveProposals([]MoveProposal{
		{EntityID: "a", From: a, To: b, Priority: -2},
		{EntityID: "b", From: b, To: a, Priority: -2},
	})
	if len(approved) != 0 {
		t.Fatalf("equal-priority swap must stall both: %v", approved)
	}
}

func TestResolveSwapDominatedByPriority(t *testing.T) {
	a := Vec2i{X: 4, Y: 5}
	b := Vec2i{X: 5, Y: 5}
	approved := resolveProposals([]MoveProposal{
		{EntityID: "a", From: a, To: b, Priority: stuckPriority},
		{EntityID: "b", From: b, To: a, Priority: -2},
	})
	if to, ok := approved["a"]; !ok || to != b {
		t.Fatalf("dominating side must advance: %v", approved)
	}
	if _, ok := approved["b"]; ok {
		t.Fatalf("dominated side must wait: %v", approved)
	}
}

func TestResolveIndependentMovesAllGranted(t *testing.T) {
	approved := resolveProposals([]MoveProposal{
		{EntityID: "a", From: Vec2i{X: 0, Y: 0}, To: Vec2i{X: 1, Y: 0}, Priority: -5},
		{EntityID: "b", From: Vec2i{X: 3, Y: 3}, To: Vec2i{X: 3, Y: 4}, Priority: -1},
		{EntityID: "c", From: Vec2i{X: 9, Y: 9}, To: Vec2i{X: 8, Y: 9}, Priority: -9},
	})
	if len(approved) != 3 {
		t.Fatalf("independent grants: %v", approved)
	}
}

func TestResolveEmpty(t *testing.T) {
	if got := resolveProposals(nil); got != nil {
		t.Fatalf("nil proposals: %v", got)
	}
}
