package world

import (
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"tiletown.ai/internal/protocol"
)

// World is a single-threaded authoritative simulation of a shared tile grid.
// All state must be accessed only from the world loop goroutine; the engine
// provides no internal locking and depends on a totally ordered call
// sequence for determinism.
type World struct {
	cfg    WorldConfig
	mapDef MapDef

	tick atomic.Uint64

	entities map[string]*Entity
	// wallCells indexes WALL entities by cell key for O(1) collision checks.
	wallCells map[string]string

	convRequests       map[string]*conversationRequest
	rejectionCooldowns map[string]time.Time

	// Deterministic per seed; used only for unstuck fallback steps.
	rng *rand.Rand

	clients map[string]*clientState

	inbox chan ActionEnvelope
	join  chan JoinRequest
	leave chan LeaveRequest
	stop  chan struct{}

	nextEntityNum atomic.Uint64

	// Gauges safe to read off-loop.
	entityCount atomic.Int64
	clientCount atomic.Int64
	stepMicros  atomic.Int64

	// Optional robot decider (may be nil). Implemented in internal/sim/brain.
	decider Decider

	// Optional tick logger (may be nil). Implemented in internal/persistence/log.
	tickLogger TickLogger

	// Optional position sink (may be nil); drained by internal/persistence/profiles.
	positionSink chan<- []PositionRow
}

type clientState struct {
	Out chan []byte
}

type JoinRequest struct {
	AvatarID string
	Name     string
	Pos      Vec2i
	Out      chan []byte
	Resp     chan JoinResponse
}

type JoinResponse struct {
	Welcome  protocol.WelcomeMsg
	Snapshot protocol.SnapshotMsg
	Err      error
}

type LeaveRequest struct {
	EntityID string
	// Genuine departure removes the entity; an ordinary disconnect hands
	// control back to the robot brain instead.
	Remove bool
}

type ActionEnvelope struct {
	EntityID string
	Act      protocol.ActMsg
	Resp     chan protocol.ActResultMsg
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type TickLogEntry struct {
	Tick      uint64           `json:"tick"`
	Events    []protocol.Event `json:"events,omitempty"`
	Decisions []DecisionRecord `json:"decisions,omitempty"`
}

// PositionRow is the per-avatar row flushed to the profiles store.
type PositionRow struct {
	EntityID string
	Kind     string
	Name     string
	X        int
	Y        int
	FacingX  int
	FacingY  int
}

func New(cfg WorldConfig) (*World, error) {
	cfg.applyDefaults()
	if err := validateKinds(); err != nil {
		return nil, err
	}
	if err := validateDecisionKinds(); err != nil {
		return nil, err
	}
	w := &World{
		cfg:                cfg,
		mapDef:             MapDef{Width: cfg.Width, Height: cfg.Height},
		entities:           map[string]*Entity{},
		wallCells:          map[string]string{},
		convRequests:       map[string]*conversationRequest{},
		rejectionCooldowns: map[string]time.Time{},
		rng:                rand.New(rand.NewSource(cfg.Seed)),
		clients:            map[string]*clientState{},
		inbox:              make(chan ActionEnvelope, 256),
		join:               make(chan JoinRequest, 16),
		leave:              make(chan LeaveRequest, 16),
		stop:               make(chan struct{}),
	}
	return w, nil
}

func (w *World) ID() string          { return w.cfg.ID }
func (w *World) Map() MapDef         { return w.mapDef }
func (w *World) TickRateHz() int     { return w.cfg.TickRateHz }
func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) Inbox() chan<- ActionEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest     { return w.join }
func (w *World) Leave() chan<- LeaveRequest   { return w.leave }

func (w *World) SetDecider(d Decider)                    { w.decider = d }
func (w *World) SetTickLogger(l TickLogger)              { w.tickLogger = l }
func (w *World) SetPositionSink(ch chan<- []PositionRow) { w.positionSink = ch }

// WorldMetrics is a point-in-time reading of loop health gauges.
type WorldMetrics struct {
	Tick     uint64  `json:"tick"`
	Entities int64   `json:"entities"`
	Clients  int64   `json:"clients"`
	StepMS   float64 `json:"step_ms"`
	Inbox    int     `json:"inbox_depth"`
}

func (w *World) Metrics() WorldMetrics {
	return WorldMetrics{
		Tick:     w.tick.Load(),
		Entities: w.entityCount.Load(),
		Clients:  w.clientCount.Load(),
		StepMS:   float64(w.stepMicros.Load()) / 1000,
		Inbox:    len(w.inbox),
	}
}

// AddEntity creates an entity at a clamped position and emits ENTITY_JOINED.
func (w *World) AddEntity(id string, kind EntityKind, name string, pos Vec2i) (*Entity, []protocol.Event, error) {
	if _, ok := knownKinds[kind]; !ok {
		return nil, nil, protocol.Errf(protocol.ErrBadRequest, "unknown entity kind %q", kind)
	}
	if id == "" {
		return nil, nil, protocol.Errf(protocol.ErrBadRequest, "empty entity id")
	}
	if _, ok := w.entities[id]; ok {
		return nil, nil, protocol.Errf(protocol.ErrEntityExists, "entity %q already exists", id)
	}
	e := &Entity{
		ID:     id,
		Kind:   kind,
		Name:   name,
		Pos:    w.mapDef.Clamp(pos),
		Facing: Vec2i{X: 0, Y: 1},
		Conv:   ConversationState{State: ConvIdle},
	}
	w.entities[id] = e
	w.entityCount.Store(int64(len(w.entities)))
	if kind == KindWall {
		w.wallCells[e.Pos.Key()] = id
	}
	return e, []protocol.Event{{
		Type:     protocol.EventEntityJoined,
		Tick:     w.tick.Load(),
		EntityID: id,
		Kind:     string(kind),
		Name:     name,
		X:        e.Pos.X,
		Y:        e.Pos.Y,
	}}, nil
}

// RemoveEntity deletes an entity for genuine departure. Ordinary disconnects
// go through UpdateEntityKind instead so observers see no discontinuity.
func (w *World) RemoveEntity(id string) ([]protocol.Event, error) {
	e, ok := w.entities[id]
	if !ok {
		return nil, protocol.Errf(protocol.ErrEntityNotFound, "entity %q not found", id)
	}
	events := w.detachFromConversations(e)
	if e.Kind == KindWall {
		delete(w.wallCells, e.Pos.Key())
	}
	delete(w.entities, id)
	delete(w.clients, id)
	w.entityCount.Store(int64(len(w.entities)))
	w.clientCount.Store(int64(len(w.clients)))
	return append(events, protocol.Event{
		Type:     protocol.EventEntityLeft,
		Tick:     w.tick.Load(),
		EntityID: id,
		Kind:     string(e.Kind),
		Name:     e.Name,
		X:        e.Pos.X,
		Y:        e.Pos.Y,
	}), nil
}

func (w *World) detachFromConversations(e *Entity) []protocol.Event {
	var events []protocol.Event
	if e.Conv.State == ConvActive {
		evs, err := w.EndConversation(e.ID, e.Name, "left the world", time.Time{})
		if err == nil {
			events = append(events, evs...)
		}
	}
	// Drop any request this entity is a party to.
	for _, req := range w.convRequests {
		if req.InitiatorID == e.ID || req.TargetID == e.ID {
			w.dropRequest(req)
		}
	}
	return events
}

// UpdateEntityKind rewrites only the kind field and resets kind-specific
// sub-state. Identity, position, facing and conversation state are kept, so
// PLAYER<->ROBOT control handover is seamless for observers.
func (w *World) UpdateEntityKind(id string, kind EntityKind) error {
	e, ok := w.entities[id]
	if !ok {
		return protocol.Errf(protocol.ErrEntityNotFound, "entity %q not found", id)
	}
	if kind != KindPlayer && kind != KindRobot {
		return protocol.Errf(protocol.ErrBadRequest, "cannot convert to kind %q", kind)
	}
	if !e.isAvatar() {
		return protocol.Errf(protocol.ErrBadRequest, "cannot convert a %s", e.Kind)
	}
	if e.Kind == kind {
		return nil
	}
	e.Kind = kind
	e.AI = AIState{}
	e.Dir = Vec2i{}
	return nil
}

// SetEntityTarget assigns an AI goal, clearing any cached path.
func (w *World) SetEntityTarget(id string, target Vec2i, now time.Time) error {
	e, ok := w.entities[id]
	if !ok {
		return protocol.Errf(protocol.ErrEntityNotFound, "entity %q not found", id)
	}
	w.setTarget(e, target, now)
	return nil
}

func (w *World) setTarget(e *Entity, target Vec2i, now time.Time) {
	t := w.mapDef.Clamp(target)
	e.AI.Target = &t
	e.AI.TargetSetAt = now
	e.AI.BestTargetDist = Manhattan(e.Pos, t)
	e.AI.LastProgressAt = now
	e.AI.PlannedPath = nil
}

// ClearEntityTarget abandons the current AI goal.
func (w *World) ClearEntityTarget(id string) error {
	e, ok := w.entities[id]
	if !ok {
		return protocol.Errf(protocol.ErrEntityNotFound, "entity %q not found", id)
	}
	e.AI.clearTarget()
	return nil
}

// SetEntityNextDecision defers the next decider pass for an entity.
func (w *World) SetEntityNextDecision(id string, at time.Time) error {
	e, ok := w.entities[id]
	if !ok {
		return protocol.Errf(protocol.ErrEntityNotFound, "entity %q not found", id)
	}
	e.AI.NextDecisionAt = at
	return nil
}

// GetEntity returns a read-only view of one entity.
func (w *World) GetEntity(id string) (protocol.EntityView, bool) {
	e, ok := w.entities[id]
	if !ok {
		return protocol.EntityView{}, false
	}
	return entityView(e), true
}

// Snapshot returns a full read-only copy of map + entities, sorted by id.
func (w *World) Snapshot() protocol.SnapshotMsg {
	views := make([]protocol.EntityView, 0, len(w.entities))
	for _, e := range w.sortedEntities() {
		views = append(views, entityView(e))
	}
	return protocol.SnapshotMsg{
		Type:            protocol.TypeSnapshot,
		ProtocolVersion: protocol.Version,
		Tick:            w.tick.Load(),
		Entities:        views,
	}
}

// EntitiesInRange summarizes avatars within a Manhattan radius of the given
// entity, nearest first.
func (w *World) EntitiesInRange(id string, radius int) []protocol.EntitySummary {
	e, ok := w.entities[id]
	if !ok {
		return nil
	}
	var out []protocol.EntitySummary
	for _, other := range w.sortedEntities() {
		if other.ID == id || !other.isAvatar() {
			continue
		}
		d := Manhattan(e.Pos, other.Pos)
		if d > radius {
			continue
		}
		out = append(out, protocol.EntitySummary{
			ID:       other.ID,
			Kind:     string(other.Kind),
			Name:     other.Name,
			X:        other.Pos.X,
			Y:        other.Pos.Y,
			Distance: d,
			Busy:     other.Conv.State != ConvIdle,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}

// Locations exposes the configured interactable spots to deciders.
func (w *World) Locations() []Location { return w.cfg.Locations }

func entityView(e *Entity) protocol.EntityView {
	return protocol.EntityView{
		ID:                e.ID,
		Kind:              string(e.Kind),
		Name:              e.Name,
		X:                 e.Pos.X,
		Y:                 e.Pos.Y,
		FacingX:           e.Facing.X,
		FacingY:           e.Facing.Y,
		ConversationState: string(e.Conv.State),
		PartnerID:         e.Conv.PartnerID,
	}
}

func (w *World) sortedEntities() []*Entity {
	out := make([]*Entity, 0, len(w.entities))
	for _, e := range w.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// positionRows snapshots avatar positions for the profiles store.
func (w *World) positionRows() []PositionRow {
	rows := make([]PositionRow, 0, len(w.entities))
	for _, e := range w.sortedEntities() {
		if !e.isAvatar() {
			continue
		}
		rows = append(rows, PositionRow{
			EntityID: e.ID,
			Kind:     string(e.Kind),
			Name:     e.Name,
			X:        e.Pos.X,
			Y:        e.Pos.Y,
			FacingX:  e.Facing.X,
			FacingY:  e.Facing.Y,
		})
	}
	return rows
}
