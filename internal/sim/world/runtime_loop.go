package world

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tiletown.ai/internal/protocol"
)

// Run owns the world loop: all engine calls are serialized here, which is the
// concurrency model the engine requires.
func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingActions []ActionEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []LeaveRequest

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case req := <-w.leave:
			pendingLeaves = append(pendingLeaves, req)
		case env := <-w.inbox:
			pendingActions = append(pendingActions, env)
		case <-ticker.C:
			w.step(pendingJoins, pendingLeaves, pendingActions, time.Now())
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingActions = pendingActions[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// step applies queued joins/leaves/actions at the tick boundary, in arrival
// order, then advances the simulation and broadcasts the event batch.
func (w *World) step(joins []JoinRequest, leaves []LeaveRequest, actions []ActionEnvelope, now time.Time) {
	started := time.Now()
	defer func() { w.stepMicros.Store(time.Since(started).Microseconds()) }()

	nowTick := w.tick.Load()
	var events []protocol.Event

	for _, req := range leaves {
		events = append(events, w.handleLeave(req)...)
	}
	for _, req := range joins {
		events = append(events, w.handleJoin(req)...)
	}
	for _, env := range actions {
		res, evs := w.applyEnvelope(env)
		events = append(events, evs...)
		if env.Resp != nil {
			env.Resp <- res
		}
	}

	if nowTick%uint64(w.cfg.SweepEveryTicks) == 0 {
		w.ExpireConversations(now)
	}
	var decisions []DecisionRecord
	if nowTick%uint64(w.cfg.DecideEveryTicks) == 0 {
		var evs []protocol.Event
		evs, decisions = w.runDeciders(now)
		events = append(events, evs...)
	}

	events = append(events, w.Tick(now)...)

	if len(events) > 0 || len(w.clients) > 0 {
		w.broadcast(nowTick, events)
	}
	if w.tickLogger != nil && (len(events) > 0 || len(decisions) > 0) {
		_ = w.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Events: events, Decisions: decisions})
	}
	if w.positionSink != nil && nowTick%uint64(w.cfg.PositionFlushTicks) == 0 {
		select {
		case w.positionSink <- w.positionRows():
		default:
			// Drop the flush if the store is backed up.
		}
	}
}

// applyEnvelope routes one client ACT into the engine. The result goes back to
// the originating client only; the events join the tick's broadcast batch.
func (w *World) applyEnvelope(env ActionEnvelope) (protocol.ActResultMsg, []protocol.Event) {
	res := protocol.ActResultMsg{
		Type:            protocol.TypeActResult,
		ProtocolVersion: protocol.Version,
		ID:              env.Act.ID,
		OK:              true,
	}
	fail := func(err error) (protocol.ActResultMsg, []protocol.Event) {
		res.OK = false
		res.Code = protocol.CodeOf(err)
		res.Message = err.Error()
		return res, nil
	}

	now := time.Now()
	switch {
	case env.Act.Move != nil:
		evs, err := w.SubmitAction(env.EntityID, Action{Kind: ActionMove, X: env.Act.Move.X, Y: env.Act.Move.Y})
		if err != nil {
			return fail(err)
		}
		return res, evs
	case env.Act.Direction != nil:
		evs, err := w.SubmitAction(env.EntityID, Action{Kind: ActionSetDirection, DX: env.Act.Direction.DX, DY: env.Act.Direction.DY})
		if err != nil {
			return fail(err)
		}
		return res, evs
	case env.Act.Conversation != nil:
		c := env.Act.Conversation
		var evs []protocol.Event
		var err error
		switch c.Verb {
		case protocol.ConvVerbRequest:
			evs, err = w.RequestConversation(env.EntityID, c.TargetID, c.Reason, now)
		case protocol.ConvVerbAccept:
			evs, err = w.AcceptConversation(env.EntityID, c.RequestID, c.Reason, now)
		case protocol.ConvVerbReject:
			evs, err = w.RejectConversation(env.EntityID, c.RequestID, c.Reason, now)
		case protocol.ConvVerbEnd:
			evs, err = w.EndConversation(env.EntityID, "", c.Reason, now)
		default:
			err = protocol.Errf(protocol.ErrProtoBadRequest, "unknown conversation verb %q", c.Verb)
		}
		if err != nil {
			return fail(err)
		}
		return res, evs
	default:
		return fail(protocol.Errf(protocol.ErrProtoBadRequest, "ACT carries no action"))
	}
}

// handleJoin resolves a human join: reuse the persisted avatar entity when it
// is already in the world as a ROBOT (seamless control handover), otherwise
// create it.
func (w *World) handleJoin(req JoinRequest) []protocol.Event {
	var events []protocol.Event

	entityID := req.AvatarID
	if entityID == "" {
		entityID = fmt.Sprintf("avatar-%s", uuid.NewString())
	}

	if e, ok := w.entities[entityID]; ok {
		if err := w.UpdateEntityKind(entityID, KindPlayer); err != nil {
			if req.Resp != nil {
				req.Resp <- JoinResponse{Err: err}
			}
			return nil
		}
		if req.Name != "" {
			e.Name = req.Name
		}
	} else {
		name := req.Name
		if name == "" {
			name = "visitor"
		}
		_, evs, err := w.AddEntity(entityID, KindPlayer, name, req.Pos)
		if err != nil {
			if req.Resp != nil {
				req.Resp <- JoinResponse{Err: err}
			}
			return nil
		}
		events = append(events, evs...)
	}

	if req.Out != nil {
		w.clients[entityID] = &clientState{Out: req.Out}
		w.clientCount.Store(int64(len(w.clients)))
	}
	if req.Resp != nil {
		req.Resp <- JoinResponse{
			Welcome: protocol.WelcomeMsg{
				Type:            protocol.TypeWelcome,
				ProtocolVersion: protocol.Version,
				EntityID:        entityID,
				WorldParams: protocol.WorldParams{
					WorldID:            w.cfg.ID,
					Width:              w.cfg.Width,
					Height:             w.cfg.Height,
					TickRateHz:         w.cfg.TickRateHz,
					ConversationRadius: w.cfg.ConversationRadius,
					Seed:               w.cfg.Seed,
				},
			},
			Snapshot: w.Snapshot(),
		}
	}
	return events
}

// handleLeave hands a disconnecting player back to robot control, or removes
// the entity outright for genuine departure.
func (w *World) handleLeave(req LeaveRequest) []protocol.Event {
	delete(w.clients, req.EntityID)
	w.clientCount.Store(int64(len(w.clients)))
	if req.Remove {
		evs, err := w.RemoveEntity(req.EntityID)
		if err != nil {
			return nil
		}
		return evs
	}
	_ = w.UpdateEntityKind(req.EntityID, KindRobot)
	return nil
}

func (w *World) broadcast(tick uint64, events []protocol.Event) {
	msg := protocol.EventsMsg{
		Type:            protocol.TypeEvents,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		Events:          events,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for _, cl := range w.clients {
		sendLatest(cl.Out, b)
	}
}

// sendLatest never blocks the world loop: when a client queue is full the
// oldest batch is dropped in favor of the newest.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
