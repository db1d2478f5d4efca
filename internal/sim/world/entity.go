package world

import (
	"fmt"
	"time"
)

type EntityKind string

const (
	KindPlayer EntityKind = "PLAYER"
	KindRobot  EntityKind = "ROBOT"
	KindWall   EntityKind = "WALL"
)

var knownKinds = map[EntityKind]struct{}{
	KindPlayer: {},
	KindRobot:  {},
	KindWall:   {},
}

func validateKinds() error {
	for k := range knownKinds {
		if k == "" {
			return fmt.Errorf("empty entity kind")
		}
	}
	if len(knownKinds) != 3 {
		return fmt.Errorf("entity kinds: got=%d want=3", len(knownKinds))
	}
	return nil
}

type ConvState string

const (
	ConvIdle           ConvState = "IDLE"
	ConvPendingRequest ConvState = "PENDING_REQUEST"
	ConvWalking        ConvState = "WALKING_TO_CONVERSATION"
	ConvActive         ConvState = "IN_CONVERSATION"
)

// Entity is the only mutable unit of state. Avatars (PLAYER/ROBOT) occupy a
// 2-wide x 1-tall hitbox anchored at Pos; a WALL occupies its single cell.
type Entity struct {
	ID   string
	Kind EntityKind
	Name string

	Pos Vec2i

	// Dir is the current movement intent, single-axis only.
	Dir Vec2i
	// Facing is sticky: the last nonzero direction, kept while stationary.
	Facing Vec2i

	AI   AIState
	Conv ConversationState

	// Reason carried from BeginConversationApproach until the in-range
	// request fires.
	pendingConvReason string
}

// AIState is robot-only bookkeeping; a PLAYER simply carries the zero value.
type AIState struct {
	Target      *Vec2i
	TargetSetAt time.Time

	// Progress tracking for the no-progress liveness timeout.
	BestTargetDist int
	LastProgressAt time.Time

	// Fixed-size ring of recently occupied cell keys.
	History []string

	StuckCounter int

	PlannedPath   []Vec2i
	PathPlannedAt time.Time
	LastMovedAt   time.Time

	NextDecisionAt time.Time
}

type ConversationState struct {
	State ConvState
	// TargetID is who this entity requested (or is walking toward).
	TargetID string
	// PartnerID is the active conversation partner; symmetric once both
	// sides are IN_CONVERSATION.
	PartnerID        string
	PendingRequestID string
}

func (c *ConversationState) reset() {
	*c = ConversationState{State: ConvIdle}
}

func (e *Entity) isAvatar() bool {
	return e.Kind == KindPlayer || e.Kind == KindRobot
}

// Cells returns the hitbox cells for collision and pathfinding. The second
// avatar cell may fall outside the map at the right edge; callers treat an
// out-of-bounds cell as unobstructed.
func (e *Entity) Cells() []Vec2i {
	if !e.isAvatar() {
		return []Vec2i{e.Pos}
	}
	return []Vec2i{e.Pos, {X: e.Pos.X + 1, Y: e.Pos.Y}}
}

func hitboxCells(anchor Vec2i) [2]Vec2i {
	return [2]Vec2i{anchor, {X: anchor.X + 1, Y: anchor.Y}}
}

func (ai *AIState) recordCell(key string, size int) {
	ai.History = append(ai.History, key)
	if len(ai.History) > size {
		ai.History = ai.History[len(ai.History)-size:]
	}
}

// loopDetected reports whether any cell recurs at least `repeats` times in
// the history window.
func (ai *AIState) loopDetected(repeats int) bool {
	if len(ai.History) == 0 {
		return false
	}
	counts := make(map[string]int, len(ai.History))
	for _, k := range ai.History {
		counts[k]++
		if counts[k] >= repeats {
			return true
		}
	}
	return false
}

func (ai *AIState) recentlyVisited(key string) bool {
	for _, k := range ai.History {
		if k == key {
			return true
		}
	}
	return false
}

func (ai *AIState) clearTarget() {
	ai.Target = nil
	ai.PlannedPath = nil
	ai.BestTargetDist = 0
}
