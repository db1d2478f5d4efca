package brain

import (
	"math"
	"time"

	"tiletown.ai/internal/protocol"
	"tiletown.ai/internal/sim/world"
)

type candidateKind int

const (
	candIdle candidateKind = iota
	candWander
	candGoToLocation
	candTalkTo
)

// candidate is one scoreable option for a robot this decision cycle.
type candidate struct {
	kind     candidateKind
	location world.Location
	person   protocol.EntitySummary
	utility  float64
}

// candidates enumerates everything the robot could plausibly do right now.
func (e *Engine) candidates(m *mind, ctx world.DecisionContext) []candidate {
	cands := []candidate{
		{kind: candIdle},
		{kind: candWander},
	}
	for _, loc := range ctx.Locations {
		if until, ok := m.locationCooldowns[loc.ID]; ok && ctx.Now.Before(until) {
			continue
		}
		cands = append(cands, candidate{kind: candGoToLocation, location: loc})
	}
	for _, p := range ctx.Nearby {
		if p.Busy {
			continue
		}
		// A soured relationship takes the option off the table.
		if mem, ok := m.memories[p.ID]; ok && mem.Sentiment < -0.5 {
			continue
		}
		cands = append(cands, candidate{kind: candTalkTo, person: p})
	}
	return cands
}

// score fills c.utility as a weighted sum of need relief, personality fit,
// social pull, and a small random kick.
func (e *Engine) score(c *candidate, m *mind, ctx world.DecisionContext) {
	cfg := &e.cfg
	p := m.personality
	n := m.needs

	var need, personality, social float64

	switch c.kind {
	case candIdle:
		// Resting recovers energy; attractive only when tired.
		need = (1 - n.Energy) * 0.6
		personality = (1 - p.EnergyBaseline) * 0.3

	case candWander:
		need = 0.15
		personality = p.Curiosity * 0.5
		// Restless baseline keeps high-energy robots from freezing in place.
		need += n.Energy * 0.2

	case candGoToLocation:
		// Relief is how much the location's effects reduce current distress.
		for name, delta := range c.location.Effects {
			switch name {
			case "energy":
				need += delta * (1 - n.Energy)
			case "hunger":
				need += -delta * n.Hunger
			case "loneliness":
				need += -delta * n.Loneliness
			case "mood":
				need += delta * 0.3
			}
		}
		if c.location.Type == world.LocationKaraoke {
			personality = p.Sociability * 0.4
		}
		if aff, ok := p.Affinities[c.location.Type]; ok {
			need += cfg.AffinityWeight * aff
		}
		// Far locations are less tempting.
		d := world.Manhattan(ctx.Pos, c.location.Pos)
		need -= float64(d) * 0.01

	case candTalkTo:
		need = n.Loneliness
		if n.Loneliness > cfg.HighLoneliness {
			need *= 1.5
		}
		personality = p.Sociability * 0.8
		if mem, ok := m.memories[c.person.ID]; ok {
			social = mem.Sentiment*0.6 + mem.Familiarity*0.2
			// Just talked; let it rest a while.
			if ctx.Now.Sub(mem.LastInteraction) < cfg.RecentInteraction {
				social -= cfg.RecencyWeight
			}
		} else {
			// Strangers appeal to the curious.
			social = p.Curiosity * 0.3
		}
		social -= float64(c.person.Distance) * 0.01
	}

	c.utility = cfg.NeedWeight*need +
		cfg.PersonalityWeight*personality +
		cfg.SocialWeight*social +
		cfg.RandomnessWeight*(e.rng.Float64()-0.5)
}

// softmaxSelect samples a candidate with probability proportional to
// exp(utility/temperature).
func (e *Engine) softmaxSelect(cands []candidate) candidate {
	if len(cands) == 1 {
		return cands[0]
	}
	maxU := cands[0].utility
	for _, c := range cands[1:] {
		if c.utility > maxU {
			maxU = c.utility
		}
	}
	weights := make([]float64, len(cands))
	var total float64
	for i, c := range cands {
		w := math.Exp((c.utility - maxU) / e.cfg.SoftmaxTemperature)
		weights[i] = w
		total += w
	}
	r := e.rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r <= 0 {
			return cands[i]
		}
	}
	return cands[len(cands)-1]
}

// commit turns the winning candidate into a world.Decision and applies any
// immediate state the choice implies.
func (e *Engine) commit(m *mind, ctx world.DecisionContext, c candidate) world.Decision {
	switch c.kind {
	case candWander:
		return world.Decision{
			Kind:    world.DecideMove,
			Target:  e.wanderTarget(m, ctx),
			HoldFor: e.cfg.WanderHold,
		}
	case candGoToLocation:
		return e.walkToLocation(m, ctx, c.location)
	case candTalkTo:
		m.talkUntil = ctx.Now.Add(e.cfg.ConversationDuration)
		m.talkPartner = c.person.ID
		return world.Decision{
			Kind:           world.DecideRequestConversation,
			TargetEntityID: c.person.ID,
			Reason:         "wants to chat",
			HoldFor:        5 * time.Second,
		}
	default:
		return world.Decision{Kind: world.DecideStandStill, HoldFor: e.cfg.IdleHold}
	}
}

// wanderTarget blends a random offset with a pull toward avatars this robot
// likes, then clamps to the map with a margin.
func (e *Engine) wanderTarget(m *mind, ctx world.DecisionContext) world.Vec2i {
	angle := e.rng.Float64() * 2 * math.Pi
	dist := 5 + e.rng.Float64()*10
	dx := math.Cos(angle) * dist
	dy := math.Sin(angle) * dist

	var sx, sy, weight float64
	for _, p := range ctx.Nearby {
		mem, ok := m.memories[p.ID]
		if !ok || mem.Sentiment <= 0 {
			continue
		}
		sx += float64(p.X-ctx.Pos.X) * mem.Sentiment
		sy += float64(p.Y-ctx.Pos.Y) * mem.Sentiment
		weight += mem.Sentiment
	}
	if weight > 0 {
		inf := e.cfg.SocialWanderInfluence * m.personality.Sociability
		dx = dx*(1-inf) + (sx/weight)*inf
		dy = dy*(1-inf) + (sy/weight)*inf
	}

	t := world.Vec2i{
		X: ctx.Pos.X + int(math.Round(dx)),
		Y: ctx.Pos.Y + int(math.Round(dy)),
	}
	if t.X < 2 {
		t.X = 2
	}
	if t.X > ctx.Map.Width-3 {
		t.X = ctx.Map.Width - 3
	}
	if t.Y < 2 {
		t.Y = 2
	}
	if t.Y > ctx.Map.Height-3 {
		t.Y = ctx.Map.Height - 3
	}
	return t
}
