package world

import (
	"testing"
	"time"

	"tiletown.ai/internal/protocol"
)

func convWorld(t *testing.T) (*World, time.Time) {
	t.Helper()
	w := newTestWorld(t, WorldConfig{Width: 40, Height: 40})
	return w, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestConversationFullHandshake(t *testing.T) {
	w, now := convWorld(t)
	a := mustAdd(t, w, "a", KindRobot, Vec2i{X: 10, Y: 10})
	b := mustAdd(t, w, "b", KindPlayer, Vec2i{X: 12, Y: 10})

	evs, err := w.RequestConversation("a", "b", "hello", now)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if len(evs) != 1 || evs[0].Type != protocol.EventConversationRequested {
		t.Fatalf("request events: %+v", evs)
	}
	reqID := evs[0].RequestID
	if reqID == "" {
		t.Fatalf("empty request id")
	}
	if b.Conv.State != ConvPendingRequest || b.Conv.PendingRequestID != reqID {
		t.Fatalf("target state: %+v", b.Conv)
	}

	evs, err = w.AcceptConversation("b", reqID, "", now.Add(time.Second))
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if len(evs) != 2 ||
		evs[0].Type != protocol.EventConversationAccepted ||
		evs[1].Type != protocol.EventConversationStarted {
		t.Fatalf("accept events: %+v", evs)
	}
	// Partner ids are symmetric.
	if a.Conv.State != ConvActive || b.Conv.State != ConvActive {
		t.Fatalf("states: a=%s b=%s", a.Conv.State, b.Conv.State)
	}
	if a.Conv.PartnerID != "b" || b.Conv.PartnerID != "a" {
		t.Fatalf("partners: a=%q b=%q", a.Conv.PartnerID, b.Conv.PartnerID)
	}

	evs, err = w.EndConversation("b", "b", "done", now.Add(2*time.Second))
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if len(evs) != 1 || evs[0].Type != protocol.EventConversationEnded || evs[0].EndedBy != "b" {
		t.Fatalf("end events: %+v", evs)
	}
	if a.Conv.State != ConvIdle || b.Conv.State != ConvIdle {
		t.Fatalf("states after end: a=%s b=%s", a.Conv.State, b.Conv.State)
	}
}

func TestRequestTargetBusy(t *testing.T) {
	w, now := convWorld(t)
	mustAdd(t, w, "a", KindRobot, Vec2i{X: 10, Y: 10})
	mustAdd(t, w, "b", KindPlayer, Vec2i{X: 12, Y: 10})
	mustAdd(t, w, "c", KindRobot, Vec2i{X: 11, Y: 11})

	if _, err := w.RequestConversation("a", "b", "", now); err != nil {
		t.Fatalf("first request: %v", err)
	}
	// b now has a pending request; a second suitor is refused.
	_, err := w.RequestConversation("c", "b", "", now)
	if protocol.CodeOf(err) != protocol.ErrTargetBusy {
		t.Fatalf("busy target: got %v", err)
	}
}

func TestRequestOutOfRange(t *testing.T) {
	w, now := convWorld(t)
	mustAdd(t, w, "a", KindRobot, Vec2i{X: 0, Y: 0})
	mustAdd(t, w, "b", KindPlayer, Vec2i{X: 20, Y: 20})

	_, err := w.RequestConversation("a", "b", "", now)
	if protocol.CodeOf(err) != protocol.ErrOutOfRange {
		t.Fatalf("out of range: got %v", err)
	}
}

func TestRequestRejectStartsPairCooldown(t *testing.T) {
	w, now := convWorld(t)
	mustAdd(t, w, "a", KindRobot, Vec2i{X: 10, Y: 10})
	mustAdd(t, w, "b", KindPlayer, Vec2i{X: 12, Y: 10})

	evs, err := w.RequestConversation("a", "b", "", now)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	evs, err = w.RejectConversation("b", evs[0].RequestID, "busy", now.Add(time.Second))
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if len(evs) != 1 || evs[0].Type != protocol.EventConversationRejected || evs[0].CooldownUntilMs == 0 {
		t.Fatalf("reject events: %+v", evs)
	}

	// Cooldown binds the pair in both directions.
	_, err = w.RequestConversation("a", "b", "", now.Add(2*time.Second))
	if protocol.CodeOf(err) != protocol.ErrOnCooldown {
		t.Fatalf("within cooldown: got %v", err)
	}
	_, err = w.RequestConversation("b", "a", "", now.Add(2*time.Second))
	if protocol.CodeOf(err) != protocol.ErrOnCooldown {
		t.Fatalf("reverse direction within cooldown: got %v", err)
	}

	// After the cooldown elapses the pair may try again.
	if _, err := w.RequestConversation("a", "b", "", now.Add(2*time.Minute)); err != nil {
		t.Fatalf("after cooldown: %v", err)
	}
}

func TestAcceptExpiredRequest(t *testing.T) {
	w, now := convWorld(t)
	mustAdd(t, w, "a", KindRobot, Vec2i{X: 10, Y: 10})
	b := mustAdd(t, w, "b", KindPlayer, Vec2i{X: 12, Y: 10})

	evs, err := w.RequestConversation("a", "b", "", now)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	late := now.Add(31 * time.Second)
	_, err = w.AcceptConversation("b", evs[0].RequestID, "", late)
	if protocol.CodeOf(err) != protocol.ErrRequestExpired {
		t.Fatalf("expired accept: got %v", err)
	}
	if b.Conv.State != ConvIdle {
		t.Fatalf("target not reset after expiry: %s", b.Conv.State)
	}
}

func TestAcceptWrongTarget(t *testing.T) {
	w, now := convWorld(t)
	mustAdd(t, w, "a", KindRobot, Vec2i{X: 10, Y: 10})
	mustAdd(t, w, "b", KindPlayer, Vec2i{X: 12, Y: 10})
	mustAdd(t, w, "c", KindRobot, Vec2i{X: 14, Y: 10})

	evs, err := w.RequestConversation("a", "b", "", now)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	_, err = w.AcceptConversation("c", evs[0].RequestID, "", now)
	if protocol.CodeOf(err) != protocol.ErrRequestNotFound {
		t.Fatalf("misdirected accept: got %v", err)
	}
	_, err = w.AcceptConversation("b", "nope", "", now)
	if protocol.CodeOf(err) != protocol.ErrRequestNotFound {
		t.Fatalf("unknown request: got %v", err)
	}
}

func TestAcceptStaleRequestAfterInitiatorPairedElsewhere(t *testing.T) {
	w, now := convWorld(t)
	a := mustAdd(t, w, "a", KindRobot, Vec2i{X: 10, Y: 10})
	b := mustAdd(t, w, "b", KindPlayer, Vec2i{X: 12, Y: 10})
	c := mustAdd(t, w, "c", KindRobot, Vec2i{X: 10, Y: 12})

	evsAB, err := w.RequestConversation("a", "b", "", now)
	if err != nil {
		t.Fatalf("a->b request: %v", err)
	}
	evsCA, err := w.RequestConversation("c", "a", "", now)
	if err != nil {
		t.Fatalf("c->a request: %v", err)
	}
	if _, err := w.AcceptConversation("a", evsCA[0].RequestID, "", now.Add(time.Second)); err != nil {
		t.Fatalf("a accepts c: %v", err)
	}

	// Pairing voids a's outstanding request, so b is free again.
	if b.Conv.State != ConvIdle {
		t.Fatalf("b still holds the voided request: %+v", b.Conv)
	}
	_, err = w.AcceptConversation("b", evsAB[0].RequestID, "", now.Add(2*time.Second))
	if protocol.CodeOf(err) != protocol.ErrRequestNotFound {
		t.Fatalf("stale accept: got %v", err)
	}

	// The a/c pair is untouched and symmetric; b was never dragged in.
	if a.Conv.State != ConvActive || a.Conv.PartnerID != "c" {
		t.Fatalf("a: %+v", a.Conv)
	}
	if c.Conv.State != ConvActive || c.Conv.PartnerID != "a" {
		t.Fatalf("c: %+v", c.Conv)
	}
	if b.Conv.State != ConvIdle || b.Conv.PartnerID != "" {
		t.Fatalf("b: %+v", b.Conv)
	}
}

func TestAcceptRefusedWhenInitiatorAlreadyConversing(t *testing.T) {
	w, now := convWorld(t)
	a := mustAdd(t, w, "a", KindRobot, Vec2i{X: 10, Y: 10})
	b := mustAdd(t, w, "b", KindPlayer, Vec2i{X: 12, Y: 10})
	c := mustAdd(t, w, "c", KindRobot, Vec2i{X: 10, Y: 12})

	evsAB, err := w.RequestConversation("a", "b", "", now)
	if err != nil {
		t.Fatalf("a->b request: %v", err)
	}
	// Force a into a conversation without going through the accept path, so
	// the a->b request survives as a live map entry.
	a.Conv = ConversationState{State: ConvActive, PartnerID: "c"}
	c.Conv = ConversationState{State: ConvActive, PartnerID: "a"}

	_, err = w.AcceptConversation("b", evsAB[0].RequestID, "", now.Add(time.Second))
	if protocol.CodeOf(err) != protocol.ErrTargetBusy {
		t.Fatalf("accept against busy initiator: got %v", err)
	}
	if a.Conv.PartnerID != "c" || c.Conv.PartnerID != "a" {
		t.Fatalf("existing pair disturbed: a=%+v c=%+v", a.Conv, c.Conv)
	}
	if b.Conv.State != ConvIdle {
		t.Fatalf("b not reset after refused accept: %+v", b.Conv)
	}
}

func TestEndRequiresActiveConversation(t *testing.T) {
	w, now := convWorld(t)
	mustAdd(t, w, "a", KindRobot, Vec2i{X: 10, Y: 10})

	_, err := w.EndConversation("a", "", "", now)
	if protocol.CodeOf(err) != protocol.ErrNotInConversation {
		t.Fatalf("idle end: got %v", err)
	}
}

func TestExpireConversationsSweep(t *testing.T) {
	w, now := convWorld(t)
	mustAdd(t, w, "a", KindRobot, Vec2i{X: 10, Y: 10})
	b := mustAdd(t, w, "b", KindPlayer, Vec2i{X: 12, Y: 10})

	if _, err := w.RequestConversation("a", "b", "", now); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if n := w.ExpireConversations(now.Add(time.Second)); n != 0 {
		t.Fatalf("premature expiry: %d", n)
	}
	if n := w.ExpireConversations(now.Add(time.Minute)); n != 1 {
		t.Fatalf("sweep: got %d want 1", n)
	}
	if b.Conv.State != ConvIdle {
		t.Fatalf("target not reset: %s", b.Conv.State)
	}
	// A fresh request is allowed; expiry carries no cooldown.
	if _, err := w.RequestConversation("a", "b", "", now.Add(time.Minute)); err != nil {
		t.Fatalf("request after expiry: %v", err)
	}
}

func TestWallsCannotConverse(t *testing.T) {
	w, now := convWorld(t)
	mustAdd(t, w, "a", KindRobot, Vec2i{X: 10, Y: 10})
	mustAdd(t, w, "wall-1", KindWall, Vec2i{X: 11, Y: 10})

	_, err := w.RequestConversation("a", "wall-1", "", now)
	if protocol.CodeOf(err) != protocol.ErrBadRequest {
		t.Fatalf("wall target: got %v", err)
	}
	_, err = w.RequestConversation("a", "a", "", now)
	if protocol.CodeOf(err) != protocol.ErrBadRequest {
		t.Fatalf("self target: got %v", err)
	}
}

func TestRemoveEntityDetachesConversation(t *testing.T) {
	w, now := convWorld(t)
	a := mustAdd(t, w, "a", KindRobot, Vec2i{X: 10, Y: 10})
	mustAdd(t, w, "b", KindPlayer, Vec2i{X: 12, Y: 10})

	evs, err := w.RequestConversation("a", "b", "", now)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if _, err := w.AcceptConversation("b", evs[0].RequestID, "", now); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, err := w.RemoveEntity("b"); err != nil {
		t.Fatalf("RemoveEntity: %v", err)
	}
	if a.Conv.State != ConvIdle || a.Conv.PartnerID != "" {
		t.Fatalf("survivor not reset: %+v", a.Conv)
	}
}

func TestPendingRequestForView(t *testing.T) {
	w, now := convWorld(t)
	mustAdd(t, w, "a", KindPlayer, Vec2i{X: 10, Y: 10})
	mustAdd(t, w, "b", KindRobot, Vec2i{X: 12, Y: 10})

	if _, ok := w.PendingRequestFor("b"); ok {
		t.Fatalf("phantom pending request")
	}
	evs, err := w.RequestConversation("a", "b", "lunch?", now)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	view, ok := w.PendingRequestFor("b")
	if !ok {
		t.Fatalf("pending request missing")
	}
	if view.RequestID != evs[0].RequestID || view.InitiatorID != "a" ||
		view.InitiatorKind != string(KindPlayer) || view.Reason != "lunch?" {
		t.Fatalf("view: %+v", view)
	}
}

func TestBeginConversationApproach(t *testing.T) {
	w, now := convWorld(t)
	r := mustAdd(t, w, "r", KindRobot, Vec2i{X: 0, Y: 0})
	mustAdd(t, w, "p", KindPlayer, Vec2i{X: 30, Y: 0})

	if err := w.BeginConversationApproach("r", "p", "hi", now); err != nil {
		t.Fatalf("BeginConversationApproach: %v", err)
	}
	if r.Conv.State != ConvWalking || r.Conv.TargetID != "p" {
		t.Fatalf("walking state: %+v", r.Conv)
	}
	if r.AI.Target == nil || *r.AI.Target != (Vec2i{X: 30, Y: 0}) {
		t.Fatalf("walk target: %+v", r.AI.Target)
	}
}
