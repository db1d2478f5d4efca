package world

import "time"

type WorldConfig struct {
	ID         string
	Width      int
	Height     int
	TickRateHz int
	Seed       int64

	// Conversation protocol.
	ConversationRadius int
	RequestTimeout     time.Duration
	RejectionCooldown  time.Duration

	// Robot movement.
	PathReplanEvery  time.Duration
	NoProgressWindow time.Duration
	HistorySize      int
	LoopRepeats      int
	StuckEscalation  int

	// Run-loop cadence (not used by Tick itself).
	DecideEveryTicks   int
	SweepEveryTicks    int
	PositionFlushTicks int

	// Interactable locations handed to AI deciders. The engine itself never
	// reads them.
	Locations []Location
}

// Location types understood by the stock deciders.
const (
	LocationFood    = "FOOD"
	LocationKaraoke = "KARAOKE"
	LocationRest    = "REST_AREA"
)

// Location is a named interactable spot on the map (food, rest, karaoke).
type Location struct {
	ID           string
	Name         string
	Type         string
	Pos          Vec2i
	Effects      map[string]float64
	CooldownSecs int
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "town_1"
	}
	if c.Width <= 0 {
		c.Width = 75
	}
	if c.Height <= 0 {
		c.Height = 56
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 5
	}
	if c.ConversationRadius <= 0 {
		c.ConversationRadius = 8
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.RejectionCooldown <= 0 {
		c.RejectionCooldown = 60 * time.Second
	}
	if c.PathReplanEvery <= 0 {
		c.PathReplanEvery = 500 * time.Millisecond
	}
	if c.NoProgressWindow <= 0 {
		c.NoProgressWindow = 5 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 10
	}
	if c.LoopRepeats <= 0 {
		c.LoopRepeats = 5
	}
	if c.StuckEscalation <= 0 {
		c.StuckEscalation = 5
	}
	if c.DecideEveryTicks <= 0 {
		c.DecideEveryTicks = 25
	}
	if c.SweepEveryTicks <= 0 {
		c.SweepEveryTicks = 50
	}
	if c.PositionFlushTicks <= 0 {
		c.PositionFlushTicks = 100
	}
}
