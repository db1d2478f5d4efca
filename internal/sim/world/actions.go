package world

import (
	"math"

	"tiletown.ai/internal/protocol"
)

type ActionKind string

const (
	ActionMove         ActionKind = "MOVE"
	ActionSetDirection ActionKind = "SET_DIRECTION"
)

// Action is one actor's intent for a single pipeline pass. Which fields are
// meaningful depends on Kind.
type Action struct {
	Kind ActionKind

	// MOVE destination. Float because it arrives from the wire; validation
	// rejects non-finite values before anything is mutated.
	X float64
	Y float64

	// SET_DIRECTION axes.
	DX int
	DY int
}

// SubmitAction is validate-then-apply, strictly ordered: a validation failure
// is terminal and guarantees zero mutation.
func (w *World) SubmitAction(actorID string, act Action) ([]protocol.Event, error) {
	if err := w.validateAction(actorID, act); err != nil {
		return nil, err
	}
	return w.applyAction(w.entities[actorID], act), nil
}

func (w *World) validateAction(actorID string, act Action) *protocol.CodeError {
	e, ok := w.entities[actorID]
	if !ok {
		return protocol.Errf(protocol.ErrActorNotFound, "actor %q not found", actorID)
	}
	// Walls are scenery, not actors.
	if !e.isAvatar() {
		return protocol.Errf(protocol.ErrBadRequest, "%s %q cannot act", e.Kind, actorID)
	}
	switch act.Kind {
	case ActionMove:
		if math.IsNaN(act.X) || math.IsInf(act.X, 0) || math.IsNaN(act.Y) || math.IsInf(act.Y, 0) {
			return protocol.Errf(protocol.ErrInvalidCoordinates, "non-finite move target")
		}
	case ActionSetDirection:
		// Always valid; out-of-range axes are clamped on apply.
	default:
		return protocol.Errf(protocol.ErrBadRequest, "unknown action kind %q", act.Kind)
	}
	return nil
}

func (w *World) applyAction(e *Entity, act Action) []protocol.Event {
	nowTick := w.tick.Load()
	switch act.Kind {
	case ActionMove:
		dest := w.mapDef.Clamp(Vec2i{X: int(act.X), Y: int(act.Y)})
		if w.wallBlocked(dest) {
			// Movement is advisory intent, not a hard command: blocked moves
			// are a silent no-op.
			return nil
		}
		if dest == e.Pos {
			return nil
		}
		e.Pos = dest
		return []protocol.Event{{
			Type:     protocol.EventEntityMoved,
			Tick:     nowTick,
			EntityID: e.ID,
			X:        e.Pos.X,
			Y:        e.Pos.Y,
			FacingX:  e.Facing.X,
			FacingY:  e.Facing.Y,
		}}

	case ActionSetDirection:
		dir := Vec2i{X: clampAxis(act.DX), Y: clampAxis(act.DY)}
		// Diagonal intent collapses to x-priority.
		if dir.X != 0 && dir.Y != 0 {
			dir.Y = 0
		}
		e.Dir = dir
		if dir.IsZero() || dir == e.Facing {
			return nil
		}
		e.Facing = dir
		return []protocol.Event{{
			Type:     protocol.EventEntityTurned,
			Tick:     nowTick,
			EntityID: e.ID,
			X:        e.Pos.X,
			Y:        e.Pos.Y,
			FacingX:  e.Facing.X,
			FacingY:  e.Facing.Y,
		}}
	}
	return nil
}

func clampAxis(v int) int {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// wallBlocked reports whether any hitbox cell of an avatar anchored at dest
// is occupied by a WALL entity. Non-wall entities may overlap.
func (w *World) wallBlocked(dest Vec2i) bool {
	for _, c := range hitboxCells(dest) {
		if !w.mapDef.InBounds(c) {
			continue
		}
		if _, ok := w.wallCells[c.Key()]; ok {
			return true
		}
	}
	return false
}
