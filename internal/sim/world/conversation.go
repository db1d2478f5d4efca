package world

import (
	"time"

	"github.com/google/uuid"

	"tiletown.ai/internal/protocol"
)

// conversationRequest is a pending request -> accept/reject handshake.
// Expiry is an absolute deadline compared against a caller-supplied now;
// there are no internal timers.
type conversationRequest struct {
	ID          string
	InitiatorID string
	TargetID    string
	Reason      string
	ExpiresAt   time.Time
}

// pairKey is order-independent: a rejection cooldown binds the exact pair
// regardless of who initiated.
func pairKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}

func (w *World) withinConversationRange(a, b *Entity) bool {
	return Manhattan(a.Pos, b.Pos) <= w.cfg.ConversationRadius
}

// RequestConversation starts the pairwise handshake. The request expires at
// now+RequestTimeout unless accepted or rejected first.
func (w *World) RequestConversation(initiatorID, targetID, reason string, now time.Time) ([]protocol.Event, error) {
	initiator, ok := w.entities[initiatorID]
	if !ok {
		return nil, protocol.Errf(protocol.ErrActorNotFound, "initiator %q not found", initiatorID)
	}
	target, ok := w.entities[targetID]
	if !ok {
		return nil, protocol.Errf(protocol.ErrEntityNotFound, "target %q not found", targetID)
	}
	if initiatorID == targetID || !initiator.isAvatar() || !target.isAvatar() {
		return nil, protocol.Errf(protocol.ErrBadRequest, "cannot converse with %q", targetID)
	}

	// A request the target never answered may have expired by now; clear it
	// before judging busyness.
	w.expireRequestFor(target, now)

	if target.Conv.State != ConvIdle {
		return nil, protocol.Errf(protocol.ErrTargetBusy, "target %q is %s", targetID, target.Conv.State)
	}
	if initiator.Conv.State == ConvActive || initiator.Conv.State == ConvPendingRequest {
		return nil, protocol.Errf(protocol.ErrTargetBusy, "initiator %q is %s", initiatorID, initiator.Conv.State)
	}
	if !w.withinConversationRange(initiator, target) {
		return nil, protocol.Errf(protocol.ErrOutOfRange, "target %q beyond radius %d", targetID, w.cfg.ConversationRadius)
	}
	pk := pairKey(initiatorID, targetID)
	if until, ok := w.rejectionCooldowns[pk]; ok {
		if now.Before(until) {
			return nil, protocol.Errf(protocol.ErrOnCooldown, "pair on cooldown until %s", until.Format(time.RFC3339))
		}
		delete(w.rejectionCooldowns, pk)
	}

	req := &conversationRequest{
		ID:          uuid.NewString(),
		InitiatorID: initiatorID,
		TargetID:    targetID,
		Reason:      reason,
		ExpiresAt:   now.Add(w.cfg.RequestTimeout),
	}
	w.convRequests[req.ID] = req

	target.Conv.State = ConvPendingRequest
	target.Conv.PendingRequestID = req.ID
	target.Conv.TargetID = initiatorID
	initiator.Conv.TargetID = targetID

	return []protocol.Event{{
		Type:        protocol.EventConversationRequested,
		Tick:        w.tick.Load(),
		RequestID:   req.ID,
		InitiatorID: initiatorID,
		TargetID:    targetID,
		Reason:      reason,
		ExpiresAtMs: req.ExpiresAt.UnixMilli(),
	}}, nil
}

// AcceptConversation atomically sets both participants IN_CONVERSATION with
// mutually consistent partner ids.
func (w *World) AcceptConversation(accepterID, requestID, reason string, now time.Time) ([]protocol.Event, error) {
	accepter, ok := w.entities[accepterID]
	if !ok {
		return nil, protocol.Errf(protocol.ErrActorNotFound, "accepter %q not found", accepterID)
	}
	req, err := w.takeRequest(accepter, requestID, now)
	if err != nil {
		return nil, err
	}
	initiator, ok := w.entities[req.InitiatorID]
	if !ok {
		// Initiator left while the request was pending.
		accepter.Conv.reset()
		return nil, protocol.Errf(protocol.ErrEntityNotFound, "initiator %q no longer present", req.InitiatorID)
	}
	// The initiator may have paired up with someone else while this request
	// sat unanswered; pairing over their current conversation would leave the
	// third party with a dangling partner id.
	if initiator.Conv.State == ConvActive || initiator.Conv.State == ConvPendingRequest {
		accepter.Conv.reset()
		return nil, protocol.Errf(protocol.ErrTargetBusy, "initiator %q is %s", initiator.ID, initiator.Conv.State)
	}

	accepter.Conv = ConversationState{State: ConvActive, PartnerID: initiator.ID}
	initiator.Conv = ConversationState{State: ConvActive, PartnerID: accepter.ID}
	// The initiator stops walking: the pair is formed where they stand.
	initiator.Dir = Vec2i{}
	initiator.AI.clearTarget()
	accepter.Dir = Vec2i{}
	accepter.AI.clearTarget()
	// Requests either participant had outstanding elsewhere are void now.
	w.dropOutgoingRequests(accepter.ID)
	w.dropOutgoingRequests(initiator.ID)

	nowTick := w.tick.Load()
	return []protocol.Event{
		{
			Type:        protocol.EventConversationAccepted,
			Tick:        nowTick,
			RequestID:   req.ID,
			InitiatorID: req.InitiatorID,
			TargetID:    req.TargetID,
			Reason:      reason,
		},
		{
			Type:        protocol.EventConversationStarted,
			Tick:        nowTick,
			InitiatorID: req.InitiatorID,
			PartnerID:   accepter.ID,
			EntityID:    initiator.ID,
		},
	}, nil
}

// RejectConversation clears the request and starts the pairwise rejection
// cooldown.
func (w *World) RejectConversation(rejecterID, requestID, reason string, now time.Time) ([]protocol.Event, error) {
	rejecter, ok := w.entities[rejecterID]
	if !ok {
		return nil, protocol.Errf(protocol.ErrActorNotFound, "rejecter %q not found", rejecterID)
	}
	req, err := w.takeRequest(rejecter, requestID, now)
	if err != nil {
		return nil, err
	}
	rejecter.Conv.reset()
	if initiator, ok := w.entities[req.InitiatorID]; ok {
		initiator.Conv.TargetID = ""
		if initiator.Conv.State == ConvWalking {
			initiator.Conv.State = ConvIdle
			initiator.AI.clearTarget()
		}
	}
	until := now.Add(w.cfg.RejectionCooldown)
	w.rejectionCooldowns[pairKey(req.InitiatorID, req.TargetID)] = until

	return []protocol.Event{{
		Type:            protocol.EventConversationRejected,
		Tick:            w.tick.Load(),
		RequestID:       req.ID,
		InitiatorID:     req.InitiatorID,
		TargetID:        req.TargetID,
		Reason:          reason,
		CooldownUntilMs: until.UnixMilli(),
	}}, nil
}

// EndConversation resets both participants to IDLE.
func (w *World) EndConversation(participantID, endedByName, reason string, now time.Time) ([]protocol.Event, error) {
	participant, ok := w.entities[participantID]
	if !ok {
		return nil, protocol.Errf(protocol.ErrActorNotFound, "participant %q not found", participantID)
	}
	if participant.Conv.State != ConvActive {
		return nil, protocol.Errf(protocol.ErrNotInConversation, "%q is %s", participantID, participant.Conv.State)
	}
	partnerID := participant.Conv.PartnerID
	participant.Conv.reset()
	if partner, ok := w.entities[partnerID]; ok {
		partner.Conv.reset()
	}
	if endedByName == "" {
		endedByName = participant.Name
	}
	return []protocol.Event{{
		Type:      protocol.EventConversationEnded,
		Tick:      w.tick.Load(),
		EntityID:  participantID,
		PartnerID: partnerID,
		EndedBy:   endedByName,
		Reason:    reason,
	}}, nil
}

// takeRequest validates and consumes a pending request addressed to e.
func (w *World) takeRequest(e *Entity, requestID string, now time.Time) (*conversationRequest, *protocol.CodeError) {
	req, ok := w.convRequests[requestID]
	if !ok {
		return nil, protocol.Errf(protocol.ErrRequestNotFound, "request %q not found", requestID)
	}
	if req.TargetID != e.ID {
		return nil, protocol.Errf(protocol.ErrRequestNotFound, "request %q is not addressed to %q", requestID, e.ID)
	}
	if now.After(req.ExpiresAt) {
		w.dropRequest(req)
		return nil, protocol.Errf(protocol.ErrRequestExpired, "request %q expired", requestID)
	}
	delete(w.convRequests, requestID)
	return req, nil
}

func (w *World) dropRequest(req *conversationRequest) {
	delete(w.convRequests, req.ID)
	if target, ok := w.entities[req.TargetID]; ok && target.Conv.PendingRequestID == req.ID {
		target.Conv.reset()
	}
	if initiator, ok := w.entities[req.InitiatorID]; ok && initiator.Conv.TargetID == req.TargetID {
		initiator.Conv.TargetID = ""
		if initiator.Conv.State == ConvWalking {
			initiator.Conv.State = ConvIdle
			initiator.AI.clearTarget()
		}
	}
}

// dropOutgoingRequests voids every pending request the entity initiated,
// releasing the targets that were holding a slot for it.
func (w *World) dropOutgoingRequests(entityID string) {
	var stale []*conversationRequest
	for _, req := range w.convRequests {
		if req.InitiatorID == entityID {
			stale = append(stale, req)
		}
	}
	for _, req := range stale {
		w.dropRequest(req)
	}
}

func (w *World) expireRequestFor(e *Entity, now time.Time) {
	if e.Conv.State != ConvPendingRequest || e.Conv.PendingRequestID == "" {
		return
	}
	req, ok := w.convRequests[e.Conv.PendingRequestID]
	if !ok {
		e.Conv.reset()
		return
	}
	if now.After(req.ExpiresAt) {
		w.dropRequest(req)
	}
}

// ExpireConversations sweeps timed-out requests. The engine keeps deadlines
// as data only; running this periodically is the caller's responsibility.
func (w *World) ExpireConversations(now time.Time) int {
	var expired []*conversationRequest
	for _, req := range w.convRequests {
		if now.After(req.ExpiresAt) {
			expired = append(expired, req)
		}
	}
	for _, req := range expired {
		w.dropRequest(req)
	}
	return len(expired)
}

// PendingRequestFor returns the pending request addressed to the given
// entity, if any.
func (w *World) PendingRequestFor(entityID string) (protocol.ConversationRequestView, bool) {
	e, ok := w.entities[entityID]
	if !ok || e.Conv.State != ConvPendingRequest {
		return protocol.ConversationRequestView{}, false
	}
	req, ok := w.convRequests[e.Conv.PendingRequestID]
	if !ok {
		return protocol.ConversationRequestView{}, false
	}
	view := protocol.ConversationRequestView{
		RequestID:   req.ID,
		InitiatorID: req.InitiatorID,
		Reason:      req.Reason,
		ExpiresAtMs: req.ExpiresAt.UnixMilli(),
	}
	if initiator, ok := w.entities[req.InitiatorID]; ok {
		view.InitiatorKind = string(initiator.Kind)
	}
	return view, true
}

// BeginConversationApproach puts a robot into WALKING_TO_CONVERSATION toward
// another avatar; once within range the tick loop issues the actual request.
func (w *World) BeginConversationApproach(robotID, targetID, reason string, now time.Time) error {
	robot, ok := w.entities[robotID]
	if !ok {
		return protocol.Errf(protocol.ErrActorNotFound, "robot %q not found", robotID)
	}
	target, ok := w.entities[targetID]
	if !ok {
		return protocol.Errf(protocol.ErrEntityNotFound, "target %q not found", targetID)
	}
	if robot.Kind != KindRobot || !target.isAvatar() {
		return protocol.Errf(protocol.ErrBadRequest, "approach requires a robot and an avatar")
	}
	if robot.Conv.State == ConvActive || robot.Conv.State == ConvPendingRequest {
		return protocol.Errf(protocol.ErrTargetBusy, "robot %q is %s", robotID, robot.Conv.State)
	}
	robot.Conv.State = ConvWalking
	robot.Conv.TargetID = targetID
	robot.pendingConvReason = reason
	w.setTarget(robot, target.Pos, now)
	return nil
}
