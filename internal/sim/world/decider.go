package world

import (
	"fmt"
	"time"

	"tiletown.ai/internal/protocol"
)

type DecisionKind string

const (
	DecideMove                DecisionKind = "MOVE"
	DecideStandStill          DecisionKind = "STAND_STILL"
	DecideRequestConversation DecisionKind = "REQUEST_CONVERSATION"
	DecideAcceptConversation  DecisionKind = "ACCEPT_CONVERSATION"
	DecideRejectConversation  DecisionKind = "REJECT_CONVERSATION"
	DecideEndConversation     DecisionKind = "END_CONVERSATION"
)

var knownDecisionKinds = map[DecisionKind]struct{}{
	DecideMove:                {},
	DecideStandStill:          {},
	DecideRequestConversation: {},
	DecideAcceptConversation:  {},
	DecideRejectConversation:  {},
	DecideEndConversation:     {},
}

func validateDecisionKinds() error {
	if len(knownDecisionKinds) != 6 {
		return fmt.Errorf("decision kinds: got=%d want=6", len(knownDecisionKinds))
	}
	return nil
}

// Decision is one action chosen for a robot by a Decider.
type Decision struct {
	Kind DecisionKind

	// MOVE goal.
	Target Vec2i

	// Conversation verbs.
	TargetEntityID string
	RequestID      string
	Reason         string

	// HoldFor delays the next decision for this robot.
	HoldFor time.Duration
}

// DecisionContext is the summary handed to a Decider. It is a copy: deciders
// never touch engine state directly.
type DecisionContext struct {
	EntityID string
	Name     string
	Pos      Vec2i
	Map      MapDef
	Now      time.Time

	InConversation bool
	Nearby         []protocol.EntitySummary
	Pending        *protocol.ConversationRequestView
	Locations      []Location
}

// Decider picks the next action for an idle robot. Implemented in
// internal/sim/brain; a nil decider leaves robots inert.
type Decider interface {
	Decide(ctx DecisionContext) (Decision, bool)
}

// DecisionRecord is the audit row written to the tick log for every decision
// a robot commits to.
type DecisionRecord struct {
	EntityID string       `json:"entity_id"`
	Kind     DecisionKind `json:"kind"`
	TargetX  int          `json:"target_x,omitempty"`
	TargetY  int          `json:"target_y,omitempty"`
	TargetID string       `json:"target_id,omitempty"`
	Reason   string       `json:"reason,omitempty"`
}

// runDeciders consults the decider for every robot that is due one and
// translates the decision into engine calls.
func (w *World) runDeciders(now time.Time) ([]protocol.Event, []DecisionRecord) {
	if w.decider == nil {
		return nil, nil
	}
	var events []protocol.Event
	var records []DecisionRecord
	for _, e := range w.sortedEntities() {
		if e.Kind != KindRobot {
			continue
		}
		if now.Before(e.AI.NextDecisionAt) {
			continue
		}
		if e.Conv.State == ConvWalking {
			continue
		}
		busyWalking := e.AI.Target != nil && e.Conv.State == ConvIdle
		pending, hasPending := w.PendingRequestFor(e.ID)
		inConv := e.Conv.State == ConvActive
		// A robot mid-walk with nothing to answer keeps walking.
		if busyWalking && !hasPending && !inConv {
			continue
		}

		ctx := DecisionContext{
			EntityID:       e.ID,
			Name:           e.Name,
			Pos:            e.Pos,
			Map:            w.mapDef,
			Now:            now,
			InConversation: inConv,
			Nearby:         w.EntitiesInRange(e.ID, 2*w.cfg.ConversationRadius),
			Locations:      w.cfg.Locations,
		}
		if hasPending {
			ctx.Pending = &pending
		}
		d, ok := w.decider.Decide(ctx)
		if !ok {
			continue
		}
		events = append(events, w.applyDecision(e, d, now)...)
		records = append(records, DecisionRecord{
			EntityID: e.ID,
			Kind:     d.Kind,
			TargetX:  d.Target.X,
			TargetY:  d.Target.Y,
			TargetID: d.TargetEntityID,
			Reason:   d.Reason,
		})
		if d.HoldFor > 0 {
			e.AI.NextDecisionAt = now.Add(d.HoldFor)
		}
	}
	return events, records
}

func (w *World) applyDecision(e *Entity, d Decision, now time.Time) []protocol.Event {
	switch d.Kind {
	case DecideMove:
		w.setTarget(e, d.Target, now)
	case DecideStandStill:
		e.AI.clearTarget()
		e.Dir = Vec2i{}
	case DecideRequestConversation:
		if d.TargetEntityID == "" {
			return nil
		}
		evs, err := w.RequestConversation(e.ID, d.TargetEntityID, d.Reason, now)
		if err != nil {
			if protocol.CodeOf(err) == protocol.ErrOutOfRange {
				// Walk into range first, then request.
				_ = w.BeginConversationApproach(e.ID, d.TargetEntityID, d.Reason, now)
			}
			return nil
		}
		return evs
	case DecideAcceptConversation:
		evs, err := w.AcceptConversation(e.ID, d.RequestID, d.Reason, now)
		if err != nil {
			return nil
		}
		return evs
	case DecideRejectConversation:
		evs, err := w.RejectConversation(e.ID, d.RequestID, d.Reason, now)
		if err != nil {
			return nil
		}
		return evs
	case DecideEndConversation:
		evs, err := w.EndConversation(e.ID, e.Name, d.Reason, now)
		if err != nil {
			return nil
		}
		return evs
	}
	return nil
}
