package world

import (
	"testing"
	"time"

	"tiletown.ai/internal/protocol"
)

// scriptedDecider returns a fixed queue of decisions, one per call.
type scriptedDecider struct {
	decisions []Decision
	calls     []DecisionContext
}

func (s *scriptedDecider) Decide(ctx DecisionContext) (Decision, bool) {
	s.calls = append(s.calls, ctx)
	if len(s.decisions) == 0 {
		return Decision{}, false
	}
	d := s.decisions[0]
	s.decisions = s.decisions[1:]
	return d, true
}

func TestRunDecidersMoveDecision(t *testing.T) {
	w := newTestWorld(t, WorldConfig{Width: 20, Height: 20})
	r := mustAdd(t, w, "r", KindRobot, Vec2i{X: 2, Y: 2})
	mustAdd(t, w, "p", KindPlayer, Vec2i{X: 3, Y: 2})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sd := &scriptedDecider{decisions: []Decision{
		{Kind: DecideMove, Target: Vec2i{X: 9, Y: 9}, HoldFor: 30 * time.Second},
	}}
	w.SetDecider(sd)
	w.runDeciders(now)

	if len(sd.calls) != 1 {
		t.Fatalf("decider calls: %d", len(sd.calls))
	}
	ctx := sd.calls[0]
	if ctx.EntityID != "r" || ctx.Pos != (Vec2i{X: 2, Y: 2}) {
		t.Fatalf("context: %+v", ctx)
	}
	if len(ctx.Nearby) != 1 || ctx.Nearby[0].ID != "p" {
		t.Fatalf("nearby: %+v", ctx.Nearby)
	}
	if r.AI.Target == nil || *r.AI.Target != (Vec2i{X: 9, Y: 9}) {
		t.Fatalf("target not set: %+v", r.AI.Target)
	}
	if !r.AI.NextDecisionAt.Equal(now.Add(30 * time.Second)) {
		t.Fatalf("hold not applied: %v", r.AI.NextDecisionAt)
	}

	// Held robots are not consulted again.
	w.runDeciders(now.Add(10 * time.Second))
	if len(sd.calls) != 1 {
		t.Fatalf("held robot consulted: %d calls", len(sd.calls))
	}
	// Past the hold the robot is still walking, so it is left alone until the
	// walk finishes.
	w.runDeciders(now.Add(31 * time.Second))
	if len(sd.calls) != 1 {
		t.Fatalf("walking robot consulted: %d calls", len(sd.calls))
	}
	r.AI.clearTarget()
	w.runDeciders(now.Add(32 * time.Second))
	if len(sd.calls) != 2 {
		t.Fatalf("post-walk consult: %d calls", len(sd.calls))
	}
}

func TestRunDecidersSkipsWalkingRobots(t *testing.T) {
	w := newTestWorld(t, WorldConfig{Width: 40, Height: 40})
	mustAdd(t, w, "r", KindRobot, Vec2i{X: 0, Y: 0})
	mustAdd(t, w, "p", KindPlayer, Vec2i{X: 30, Y: 0})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := w.BeginConversationApproach("r", "p", "", now); err != nil {
		t.Fatalf("BeginConversationApproach: %v", err)
	}
	sd := &scriptedDecider{}
	w.SetDecider(sd)
	w.runDeciders(now)
	if len(sd.calls) != 0 {
		t.Fatalf("walking robot consulted: %+v", sd.calls)
	}
}

func TestRunDecidersDeliversPendingRequest(t *testing.T) {
	w := newTestWorld(t, WorldConfig{Width: 40, Height: 40})
	mustAdd(t, w, "p", KindPlayer, Vec2i{X: 10, Y: 10})
	r := mustAdd(t, w, "r", KindRobot, Vec2i{X: 12, Y: 10})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	evs, err := w.RequestConversation("p", "r", "hey", now)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	sd := &scriptedDecider{decisions: []Decision{
		{Kind: DecideAcceptConversation, RequestID: evs[0].RequestID},
	}}
	w.SetDecider(sd)
	out, recs := w.runDeciders(now.Add(time.Second))

	if len(recs) != 1 || recs[0].EntityID != "r" || recs[0].Kind != DecideAcceptConversation {
		t.Fatalf("audit records: %+v", recs)
	}
	if len(sd.calls) != 1 || sd.calls[0].Pending == nil {
		t.Fatalf("pending not delivered: %+v", sd.calls)
	}
	if sd.calls[0].Pending.InitiatorKind != string(KindPlayer) {
		t.Fatalf("initiator kind: %q", sd.calls[0].Pending.InitiatorKind)
	}
	if r.Conv.State != ConvActive || r.Conv.PartnerID != "p" {
		t.Fatalf("accept not applied: %+v", r.Conv)
	}
	var started bool
	for _, ev := range out {
		if ev.Type == protocol.EventConversationStarted {
			started = true
		}
	}
	if !started {
		t.Fatalf("no CONVERSATION_STARTED in decider events: %+v", out)
	}
}

func TestRequestDecisionFallsBackToApproach(t *testing.T) {
	w := newTestWorld(t, WorldConfig{Width: 60, Height: 10})
	r := mustAdd(t, w, "r", KindRobot, Vec2i{X: 0, Y: 0})
	mustAdd(t, w, "p", KindPlayer, Vec2i{X: 50, Y: 0})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sd := &scriptedDecider{decisions: []Decision{
		{Kind: DecideRequestConversation, TargetEntityID: "p", Reason: "hi"},
	}}
	w.SetDecider(sd)
	w.runDeciders(now)

	// Target beyond the radius: the decision degrades into an approach walk.
	if r.Conv.State != ConvWalking || r.Conv.TargetID != "p" {
		t.Fatalf("no approach fallback: %+v", r.Conv)
	}
}
