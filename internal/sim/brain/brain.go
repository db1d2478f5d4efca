// Package brain implements the robot decision engine: a utility scorer over
// candidate actions with softmax selection, plugged into the world loop
// through the world.Decider interface.
package brain

import (
	"hash/fnv"
	"math/rand"
	"time"

	"tiletown.ai/internal/sim/world"
)

type Config struct {
	// Scoring weights.
	NeedWeight        float64
	PersonalityWeight float64
	SocialWeight      float64
	AffinityWeight    float64
	RecencyWeight     float64
	RandomnessWeight  float64

	// Softmax temperature: lower is more deterministic.
	SoftmaxTemperature float64

	// Thresholds.
	CriticalHunger float64
	CriticalEnergy float64
	HighLoneliness float64

	// Social parameters.
	ConversationRadius int
	RecentInteraction  time.Duration

	// Need drift per 5-minute interval.
	EnergyDecay      float64
	HungerGrowth     float64
	LonelinessGrowth float64

	// How much sentiment steers wander targets (remainder is random).
	SocialWanderInfluence float64

	ConversationDuration time.Duration
	IdleHold             time.Duration
	WanderHold           time.Duration
}

func (c *Config) applyDefaults() {
	if c.NeedWeight == 0 {
		c.NeedWeight = 1.0
	}
	if c.PersonalityWeight == 0 {
		c.PersonalityWeight = 0.6
	}
	if c.SocialWeight == 0 {
		c.SocialWeight = 0.4
	}
	if c.AffinityWeight == 0 {
		c.AffinityWeight = 0.5
	}
	if c.RecencyWeight == 0 {
		c.RecencyWeight = 0.3
	}
	if c.RandomnessWeight == 0 {
		c.RandomnessWeight = 0.2
	}
	if c.SoftmaxTemperature == 0 {
		c.SoftmaxTemperature = 0.5
	}
	if c.CriticalHunger == 0 {
		c.CriticalHunger = 0.8
	}
	if c.CriticalEnergy == 0 {
		c.CriticalEnergy = 0.15
	}
	if c.HighLoneliness == 0 {
		c.HighLoneliness = 0.7
	}
	if c.ConversationRadius == 0 {
		c.ConversationRadius = 8
	}
	if c.RecentInteraction == 0 {
		c.RecentInteraction = 2 * time.Hour
	}
	if c.EnergyDecay == 0 {
		c.EnergyDecay = 0.02
	}
	if c.HungerGrowth == 0 {
		c.HungerGrowth = 0.015
	}
	if c.LonelinessGrowth == 0 {
		c.LonelinessGrowth = 0.02
	}
	if c.SocialWanderInfluence == 0 {
		c.SocialWanderInfluence = 0.5
	}
	if c.ConversationDuration == 0 {
		c.ConversationDuration = 2 * time.Minute
	}
	if c.IdleHold == 0 {
		c.IdleHold = 30 * time.Second
	}
	if c.WanderHold == 0 {
		c.WanderHold = 12 * time.Second
	}
}

// Personality is fixed per robot; traits are in [0,1].
type Personality struct {
	Sociability    float64
	Curiosity      float64
	Agreeableness  float64
	EnergyBaseline float64
	Affinities     map[string]float64
}

// SocialMemory is the relationship record toward one other avatar.
type SocialMemory struct {
	Sentiment       float64 // -1..1
	Familiarity     float64 // 0..1
	Interactions    int
	LastInteraction time.Time
}

// mind is the private per-robot state the decider keeps between calls.
type mind struct {
	needs       Needs
	personality Personality
	memories    map[string]*SocialMemory

	lastDecayAt       time.Time
	locationCooldowns map[string]time.Time
	talkUntil         time.Time
	talkPartner       string
}

type Engine struct {
	cfg   Config
	rng   *rand.Rand
	minds map[string]*mind
}

func NewEngine(cfg Config, seed int64) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(seed)),
		minds: map[string]*mind{},
	}
}

// SetPersonality overrides the derived personality for one robot.
func (e *Engine) SetPersonality(entityID string, p Personality) {
	m := e.mindFor(entityID, time.Time{})
	m.personality = p
}

func (e *Engine) mindFor(entityID string, now time.Time) *mind {
	if m, ok := e.minds[entityID]; ok {
		return m
	}
	m := &mind{
		needs:             Needs{Energy: 0.9, Hunger: 0.2, Loneliness: 0.3, Mood: 0.2},
		personality:       derivePersonality(entityID),
		memories:          map[string]*SocialMemory{},
		locationCooldowns: map[string]time.Time{},
		lastDecayAt:       now,
	}
	e.minds[entityID] = m
	return m
}

// derivePersonality hashes the entity id into stable traits so restarts keep
// each robot recognizable without a personality store.
func derivePersonality(entityID string) Personality {
	h := fnv.New64a()
	_, _ = h.Write([]byte(entityID))
	r := rand.New(rand.NewSource(int64(h.Sum64())))
	return Personality{
		Sociability:    0.2 + 0.8*r.Float64(),
		Curiosity:      0.2 + 0.8*r.Float64(),
		Agreeableness:  0.3 + 0.7*r.Float64(),
		EnergyBaseline: 0.3 + 0.7*r.Float64(),
		Affinities:     map[string]float64{},
	}
}

// Decide implements world.Decider: interrupts first, then scored candidates
// with softmax selection.
func (e *Engine) Decide(ctx world.DecisionContext) (world.Decision, bool) {
	m := e.mindFor(ctx.EntityID, ctx.Now)
	m.decay(&e.cfg, ctx.Now)

	if d, ok := e.checkInterrupts(m, ctx); ok {
		return d, true
	}

	cands := e.candidates(m, ctx)
	if len(cands) == 0 {
		return world.Decision{}, false
	}
	for i := range cands {
		e.score(&cands[i], m, ctx)
	}
	// Prefer positive-utility actions unless everything scores negative.
	positive := cands[:0:0]
	for _, c := range cands {
		if c.utility > 0 {
			positive = append(positive, c)
		}
	}
	if len(positive) > 0 {
		cands = positive
	}
	chosen := e.softmaxSelect(cands)
	return e.commit(m, ctx, chosen), true
}

func (e *Engine) checkInterrupts(m *mind, ctx world.DecisionContext) (world.Decision, bool) {
	// Answer pending requests before anything else: humans are always
	// accepted, robots pass an agreeableness roll.
	if ctx.Pending != nil {
		accept := ctx.Pending.InitiatorKind == string(world.KindPlayer) ||
			e.rng.Float64() < m.personality.Agreeableness
		kind := world.DecideRejectConversation
		if accept {
			kind = world.DecideAcceptConversation
			m.talkUntil = ctx.Now.Add(e.cfg.ConversationDuration)
			m.talkPartner = ctx.Pending.InitiatorID
		}
		return world.Decision{
			Kind:      kind,
			RequestID: ctx.Pending.RequestID,
			HoldFor:   2 * time.Second,
		}, true
	}

	if ctx.InConversation {
		if ctx.Now.After(m.talkUntil) {
			m.recordInteraction(m.talkPartner, 0.1, 0.1, ctx.Now)
			m.talkPartner = ""
			m.needs = m.needs.withEffects(map[string]float64{"loneliness": -0.2, "mood": 0.05})
			return world.Decision{Kind: world.DecideEndConversation, Reason: "time to go", HoldFor: 5 * time.Second}, true
		}
		return world.Decision{Kind: world.DecideStandStill, HoldFor: 5 * time.Second}, true
	}

	// Critical needs override scoring entirely.
	if m.needs.Hunger > e.cfg.CriticalHunger {
		if loc, ok := m.closestLocation(ctx, world.LocationFood); ok {
			return e.walkToLocation(m, ctx, loc), true
		}
	}
	if m.needs.Energy < e.cfg.CriticalEnergy {
		if loc, ok := m.closestLocation(ctx, world.LocationRest); ok {
			return e.walkToLocation(m, ctx, loc), true
		}
		return world.Decision{Kind: world.DecideStandStill, HoldFor: e.cfg.IdleHold}, true
	}

	return world.Decision{}, false
}

// walkToLocation either moves toward the location or, on arrival, applies
// its effects and starts the cooldown.
func (e *Engine) walkToLocation(m *mind, ctx world.DecisionContext, loc world.Location) world.Decision {
	if world.Manhattan(ctx.Pos, loc.Pos) <= 2 {
		m.needs = m.needs.withEffects(loc.Effects)
		if loc.CooldownSecs > 0 {
			m.locationCooldowns[loc.ID] = ctx.Now.Add(time.Duration(loc.CooldownSecs) * time.Second)
		}
		return world.Decision{Kind: world.DecideStandStill, HoldFor: e.cfg.IdleHold}
	}
	return world.Decision{Kind: world.DecideMove, Target: loc.Pos, HoldFor: e.cfg.WanderHold}
}

func (m *mind) closestLocation(ctx world.DecisionContext, typ string) (world.Location, bool) {
	best := world.Location{}
	bestDist := -1
	for _, loc := range ctx.Locations {
		if loc.Type != typ {
			continue
		}
		if until, ok := m.locationCooldowns[loc.ID]; ok && ctx.Now.Before(until) {
			continue
		}
		d := world.Manhattan(ctx.Pos, loc.Pos)
		if bestDist < 0 || d < bestDist {
			best, bestDist = loc, d
		}
	}
	return best, bestDist >= 0
}

func (m *mind) recordInteraction(partnerID string, sentimentDelta, familiarityDelta float64, now time.Time) {
	if partnerID == "" {
		return
	}
	mem, ok := m.memories[partnerID]
	if !ok {
		mem = &SocialMemory{}
		m.memories[partnerID] = mem
	}
	mem.Sentiment = clampF(mem.Sentiment+sentimentDelta, -1, 1)
	mem.Familiarity = clampF(mem.Familiarity+familiarityDelta, 0, 1)
	mem.Interactions++
	mem.LastInteraction = now
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
