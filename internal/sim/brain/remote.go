package brain

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"tiletown.ai/internal/protocol"
	"tiletown.ai/internal/sim/world"
)

// decisionRequest is the JSON body sent to the external decision service.
type decisionRequest struct {
	EntityID       string                            `json:"entity_id"`
	Name           string                            `json:"name"`
	X              int                               `json:"x"`
	Y              int                               `json:"y"`
	MapWidth       int                               `json:"map_width"`
	MapHeight      int                               `json:"map_height"`
	InConversation bool                              `json:"in_conversation"`
	Nearby         []protocol.EntitySummary          `json:"nearby,omitempty"`
	Pending        *protocol.ConversationRequestView `json:"pending_request,omitempty"`
	Locations      []remoteLocation                  `json:"locations,omitempty"`
}

type remoteLocation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

type decisionResponse struct {
	Action         string `json:"action"`
	TargetX        int    `json:"target_x"`
	TargetY        int    `json:"target_y"`
	TargetEntityID string `json:"target_entity_id"`
	RequestID      string `json:"request_id"`
	Reason         string `json:"reason"`
	HoldSecs       int    `json:"hold_secs"`
}

// RemoteDecider consults an external HTTP decision service and falls back to
// a local engine when the service is down, slow, or answers nonsense. Robots
// keep moving either way.
type RemoteDecider struct {
	url      string
	client   *http.Client
	fallback world.Decider
	logger   *log.Logger

	// After a failure the remote is skipped until this deadline so a dead
	// service does not add per-robot request latency to every cycle.
	skipUntil time.Time
}

func NewRemoteDecider(url string, timeout time.Duration, fallback world.Decider, logger *log.Logger) *RemoteDecider {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RemoteDecider{
		url:      url,
		client:   &http.Client{Timeout: timeout},
		fallback: fallback,
		logger:   logger,
	}
}

func (r *RemoteDecider) Decide(ctx world.DecisionContext) (world.Decision, bool) {
	if ctx.Now.Before(r.skipUntil) {
		return r.fallback.Decide(ctx)
	}
	d, ok := r.tryRemote(ctx)
	if !ok {
		r.skipUntil = ctx.Now.Add(30 * time.Second)
		return r.fallback.Decide(ctx)
	}
	return d, true
}

func (r *RemoteDecider) tryRemote(ctx world.DecisionContext) (world.Decision, bool) {
	req := decisionRequest{
		EntityID:       ctx.EntityID,
		Name:           ctx.Name,
		X:              ctx.Pos.X,
		Y:              ctx.Pos.Y,
		MapWidth:       ctx.Map.Width,
		MapHeight:      ctx.Map.Height,
		InConversation: ctx.InConversation,
		Nearby:         ctx.Nearby,
		Pending:        ctx.Pending,
	}
	for _, loc := range ctx.Locations {
		req.Locations = append(req.Locations, remoteLocation{
			ID: loc.ID, Name: loc.Name, Type: loc.Type, X: loc.Pos.X, Y: loc.Pos.Y,
		})
	}
	body, err := json.Marshal(req)
	if err != nil {
		return world.Decision{}, false
	}
	resp, err := r.client.Post(r.url, "application/json", bytes.NewReader(body))
	if err != nil {
		if r.logger != nil {
			r.logger.Printf("decision service unreachable, using local brain: %v", err)
		}
		return world.Decision{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		if r.logger != nil {
			r.logger.Printf("decision service status=%d, using local brain", resp.StatusCode)
		}
		return world.Decision{}, false
	}
	var out decisionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return world.Decision{}, false
	}

	kind := world.DecisionKind(out.Action)
	if !isRemoteKind(kind) {
		if r.logger != nil {
			r.logger.Printf("decision service returned unknown action %q", out.Action)
		}
		return world.Decision{}, false
	}
	return world.Decision{
		Kind:           kind,
		Target:         world.Vec2i{X: out.TargetX, Y: out.TargetY},
		TargetEntityID: out.TargetEntityID,
		RequestID:      out.RequestID,
		Reason:         out.Reason,
		HoldFor:        time.Duration(out.HoldSecs) * time.Second,
	}, true
}

func isRemoteKind(k world.DecisionKind) bool {
	switch k {
	case world.DecideMove, world.DecideStandStill,
		world.DecideRequestConversation, world.DecideAcceptConversation,
		world.DecideRejectConversation, world.DecideEndConversation:
		return true
	}
	return false
}
