package world

import (
	"time"

	"tiletown.ai/internal/protocol"
)

// Tick advances the simulation by one step and returns every event emitted.
// Tick itself cannot fail: an unreachable path or a rejected move degrades to
// a no-op for that entity for this tick.
//
// Sequence: per-robot bookkeeping -> replan -> propose; resolve all proposals;
// apply approved moves through the action pipeline; unstuck fallbacks;
// in-range conversation approaches; intent-derived moves for every entity
// with a nonzero direction.
func (w *World) Tick(now time.Time) []protocol.Event {
	var events []protocol.Event

	robots := make([]*Entity, 0, len(w.entities))
	for _, e := range w.sortedEntities() {
		if e.Kind == KindRobot {
			robots = append(robots, e)
		}
	}

	proposals := make([]MoveProposal, 0, len(robots))
	proposed := make(map[string]bool, len(robots))
	for _, e := range robots {
		if p, ok := w.planRobotStep(e, now); ok {
			proposals = append(proposals, p)
			proposed[e.ID] = true
		}
	}

	approved := resolveProposals(proposals)

	for _, e := range robots {
		to, ok := approved[e.ID]
		if !ok {
			if proposed[e.ID] {
				// Lost the cell this tick: wait, and escalate if chronic.
				e.AI.StuckCounter++
				if e.AI.StuckCounter > w.cfg.StuckEscalation {
					events = append(events, w.unstuckStep(e, now)...)
				}
			}
			continue
		}
		events = append(events, w.stepRobotTo(e, to, now)...)
	}

	// Robots walking to a conversation issue the request once in range.
	for _, e := range robots {
		events = append(events, w.maybeRequestOnApproach(e, now)...)
	}

	// Intent-derived movement for every entity with a nonzero direction
	// (human-controlled avatars steer this way).
	for _, e := range w.sortedEntities() {
		if !e.isAvatar() || e.Dir.IsZero() || e.Kind == KindRobot {
			continue
		}
		dest := e.Pos.Add(e.Dir)
		evs, err := w.SubmitAction(e.ID, Action{Kind: ActionMove, X: float64(dest.X), Y: float64(dest.Y)})
		if err == nil {
			events = append(events, evs...)
		}
	}

	w.tick.Add(1)
	return events
}

// planRobotStep updates stuck/timeout bookkeeping, replans the cached path if
// needed, and contributes at most one move proposal.
func (w *World) planRobotStep(e *Entity, now time.Time) (MoveProposal, bool) {
	ai := &e.AI
	ai.recordCell(e.Pos.Key(), w.cfg.HistorySize)

	if ai.Target == nil {
		ai.StuckCounter = 0
		return MoveProposal{}, false
	}
	target := *ai.Target

	dist := Manhattan(e.Pos, target)
	if dist == 0 {
		ai.clearTarget()
		ai.StuckCounter = 0
		return MoveProposal{}, false
	}
	if dist < ai.BestTargetDist {
		ai.BestTargetDist = dist
		ai.LastProgressAt = now
	}
	// Liveness: a target that sees no forward progress for the whole window
	// is abandoned. This breaks structural deadlocks (cyclic waits, enclosed
	// goals) that reservation priorities alone cannot.
	if now.Sub(ai.LastProgressAt) >= w.cfg.NoProgressWindow {
		ai.clearTarget()
		ai.StuckCounter = 0
		if e.Conv.State == ConvWalking {
			e.Conv.reset()
		}
		return MoveProposal{}, false
	}

	// Stuck in a loop: discard the cached path to force a replan and let the
	// escalated priority preempt contested cells.
	if ai.loopDetected(w.cfg.LoopRepeats) {
		ai.PlannedPath = nil
		if ai.StuckCounter < w.cfg.StuckEscalation {
			ai.StuckCounter = w.cfg.StuckEscalation
		}
	}

	if len(ai.PlannedPath) == 0 || now.Sub(ai.PathPlannedAt) >= w.cfg.PathReplanEvery {
		ai.PlannedPath = FindPath(w.mapDef, e.Pos, target, w.obstaclesFor(e))
		ai.PathPlannedAt = now
	}
	if len(ai.PlannedPath) == 0 {
		return MoveProposal{}, false
	}

	next := ai.PlannedPath[0]
	prio := -Manhattan(next, target)
	if ai.StuckCounter >= w.cfg.StuckEscalation {
		prio = stuckPriority
	}
	return MoveProposal{EntityID: e.ID, From: e.Pos, To: next, Priority: prio}, true
}

// stepRobotTo applies one granted step through the ordinary action pipeline,
// whose wall check remains the final authority.
func (w *World) stepRobotTo(e *Entity, to Vec2i, now time.Time) []protocol.Event {
	var events []protocol.Event
	delta := Vec2i{X: clampAxis(to.X - e.Pos.X), Y: clampAxis(to.Y - e.Pos.Y)}
	if !delta.IsZero() {
		evs, err := w.SubmitAction(e.ID, Action{Kind: ActionSetDirection, DX: delta.X, DY: delta.Y})
		if err == nil {
			events = append(events, evs...)
		}
	}
	from := e.Pos
	evs, err := w.SubmitAction(e.ID, Action{Kind: ActionMove, X: float64(to.X), Y: float64(to.Y)})
	if err == nil {
		events = append(events, evs...)
	}
	if e.Pos != from {
		if len(e.AI.PlannedPath) > 0 && e.AI.PlannedPath[0] == e.Pos {
			e.AI.PlannedPath = e.AI.PlannedPath[1:]
		}
		e.AI.StuckCounter = 0
		e.AI.LastMovedAt = now
	} else {
		// The cell was granted but a wall vetoed it: the cached path is
		// stale.
		e.AI.PlannedPath = nil
		e.AI.StuckCounter++
	}
	return events
}

// unstuckStep is the last-resort fallback for robots whose escalated
// proposals keep losing: a randomized single step among directions not
// recently visited, breaking symmetric deadlocks (e.g. a head-on corridor
// jam) that priority ordering cannot.
func (w *World) unstuckStep(e *Entity, now time.Time) []protocol.Event {
	order := w.rng.Perm(len(cardinalDirs))
	for _, i := range order {
		dest := e.Pos.Add(cardinalDirs[i])
		if !w.mapDef.InBounds(dest) || w.wallBlocked(dest) {
			continue
		}
		if e.AI.recentlyVisited(dest.Key()) {
			continue
		}
		e.AI.PlannedPath = nil
		return w.stepRobotTo(e, dest, now)
	}
	return nil
}

// obstaclesFor builds the obstacle set for one robot's replan: wall cells
// plus a (possibly stale by next tick) snapshot of other avatars' hitboxes.
func (w *World) obstaclesFor(mover *Entity) map[string]struct{} {
	obstacles := make(map[string]struct{}, len(w.wallCells)+2*len(w.entities))
	for key := range w.wallCells {
		obstacles[key] = struct{}{}
	}
	for _, e := range w.entities {
		if e.ID == mover.ID || !e.isAvatar() {
			continue
		}
		for _, c := range e.Cells() {
			obstacles[c.Key()] = struct{}{}
		}
	}
	return obstacles
}

func (w *World) maybeRequestOnApproach(e *Entity, now time.Time) []protocol.Event {
	if e.Conv.State != ConvWalking || e.Conv.TargetID == "" {
		return nil
	}
	target, ok := w.entities[e.Conv.TargetID]
	if !ok {
		e.Conv.reset()
		e.AI.clearTarget()
		return nil
	}
	// Track a moving target.
	if e.AI.Target != nil && *e.AI.Target != target.Pos {
		w.setTarget(e, target.Pos, now)
	}
	if !w.withinConversationRange(e, target) {
		return nil
	}
	e.Dir = Vec2i{}
	e.AI.clearTarget()
	reason := e.pendingConvReason
	e.pendingConvReason = ""
	evs, err := w.RequestConversation(e.ID, target.ID, reason, now)
	if err != nil {
		// Target got busy or the pair cooled down while walking; give up.
		e.Conv.reset()
		return nil
	}
	return evs
}
