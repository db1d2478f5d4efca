package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"tiletown.ai/internal/sim/world"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	WorldID    string `yaml:"world_id"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	TickRateHz int    `yaml:"tick_rate_hz"`
	Seed       int64  `yaml:"seed"`

	Conversation Conversation `yaml:"conversation"`
	Movement     Movement     `yaml:"movement"`

	Locations []Location `yaml:"locations"`
	Walls     []Wall     `yaml:"walls"`

	Robots []Robot `yaml:"robots"`
}

type Conversation struct {
	Radius             int `yaml:"radius"`
	RequestTimeoutSecs int `yaml:"request_timeout_secs"`
	RejectCooldownSecs int `yaml:"reject_cooldown_secs"`
}

type Movement struct {
	PathReplanMs       int `yaml:"path_replan_ms"`
	NoProgressSecs     int `yaml:"no_progress_secs"`
	HistorySize        int `yaml:"history_size"`
	LoopRepeats        int `yaml:"loop_repeats"`
	StuckEscalation    int `yaml:"stuck_escalation"`
	DecideEveryTicks   int `yaml:"decide_every_ticks"`
	SweepEveryTicks    int `yaml:"sweep_every_ticks"`
	PositionFlushTicks int `yaml:"position_flush_ticks"`
}

type Location struct {
	ID           string             `yaml:"id"`
	Name         string             `yaml:"name"`
	Type         string             `yaml:"type"`
	X            int                `yaml:"x"`
	Y            int                `yaml:"y"`
	Effects      map[string]float64 `yaml:"effects"`
	CooldownSecs int                `yaml:"cooldown_secs"`
}

// Wall is an axis-aligned run of wall cells.
type Wall struct {
	X   int `yaml:"x"`
	Y   int `yaml:"y"`
	ToX int `yaml:"to_x"`
	ToY int `yaml:"to_y"`
}

type Robot struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	X    int    `yaml:"x"`
	Y    int    `yaml:"y"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// WorldConfig maps the tuning file onto engine configuration. Zero-valued
// fields keep engine defaults.
func (t Tuning) WorldConfig() world.WorldConfig {
	cfg := world.WorldConfig{
		ID:                 t.WorldID,
		Width:              t.Width,
		Height:             t.Height,
		TickRateHz:         t.TickRateHz,
		Seed:               t.Seed,
		ConversationRadius: t.Conversation.Radius,
		RequestTimeout:     time.Duration(t.Conversation.RequestTimeoutSecs) * time.Second,
		RejectionCooldown:  time.Duration(t.Conversation.RejectCooldownSecs) * time.Second,
		PathReplanEvery:    time.Duration(t.Movement.PathReplanMs) * time.Millisecond,
		NoProgressWindow:   time.Duration(t.Movement.NoProgressSecs) * time.Second,
		HistorySize:        t.Movement.HistorySize,
		LoopRepeats:        t.Movement.LoopRepeats,
		StuckEscalation:    t.Movement.StuckEscalation,
		DecideEveryTicks:   t.Movement.DecideEveryTicks,
		SweepEveryTicks:    t.Movement.SweepEveryTicks,
		PositionFlushTicks: t.Movement.PositionFlushTicks,
	}
	for _, l := range t.Locations {
		cfg.Locations = append(cfg.Locations, world.Location{
			ID:           l.ID,
			Name:         l.Name,
			Type:         l.Type,
			Pos:          world.Vec2i{X: l.X, Y: l.Y},
			Effects:      l.Effects,
			CooldownSecs: l.CooldownSecs,
		})
	}
	return cfg
}

// WallCells expands every wall run into individual cells.
func (t Tuning) WallCells() []world.Vec2i {
	var cells []world.Vec2i
	for _, w := range t.Walls {
		x2, y2 := w.ToX, w.ToY
		if x2 == 0 && y2 == 0 {
			x2, y2 = w.X, w.Y
		}
		if x2 < w.X {
			x2 = w.X
		}
		if y2 < w.Y {
			y2 = w.Y
		}
		for y := w.Y; y <= y2; y++ {
			for x := w.X; x <= x2; x++ {
				cells = append(cells, world.Vec2i{X: x, Y: y})
			}
		}
	}
	return cells
}
