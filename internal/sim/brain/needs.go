package brain

import "time"

// Needs are the drives behind utility scoring, each in [0,1]. Mood is the
// exception: it runs -1..1.
type Needs struct {
	Energy     float64 `json:"energy"`
	Hunger     float64 `json:"hunger"`
	Loneliness float64 `json:"loneliness"`
	Mood       float64 `json:"mood"`
}

// decay drifts needs toward discomfort proportionally to wall-clock time
// since the previous decision. Rates in Config are per 5 minutes.
func (m *mind) decay(cfg *Config, now time.Time) {
	if m.lastDecayAt.IsZero() {
		m.lastDecayAt = now
		return
	}
	elapsed := now.Sub(m.lastDecayAt)
	if elapsed <= 0 {
		return
	}
	m.lastDecayAt = now
	intervals := elapsed.Minutes() / 5

	m.needs.Energy = clampF(m.needs.Energy-cfg.EnergyDecay*intervals, 0, 1)
	m.needs.Hunger = clampF(m.needs.Hunger+cfg.HungerGrowth*intervals, 0, 1)
	m.needs.Loneliness = clampF(m.needs.Loneliness+cfg.LonelinessGrowth*intervals, 0, 1)
	// Mood regresses to neutral.
	m.needs.Mood *= 1 - clampF(0.05*intervals, 0, 1)
}

// withEffects applies a location's (or event's) effect deltas by need name.
func (n Needs) withEffects(effects map[string]float64) Needs {
	for name, delta := range effects {
		switch name {
		case "energy":
			n.Energy = clampF(n.Energy+delta, 0, 1)
		case "hunger":
			n.Hunger = clampF(n.Hunger+delta, 0, 1)
		case "loneliness":
			n.Loneliness = clampF(n.Loneliness+delta, 0, 1)
		case "mood":
			n.Mood = clampF(n.Mood+delta, -1, 1)
		}
	}
	return n
}
