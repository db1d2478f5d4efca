package world

import "strconv"

type Vec2i struct {
	X int
	Y int
}

func (v Vec2i) Add(o Vec2i) Vec2i { return Vec2i{X: v.X + o.X, Y: v.Y + o.Y} }

func (v Vec2i) IsZero() bool { return v.X == 0 && v.Y == 0 }

// Key encodes a cell as "x,y" for obstacle sets and position history.
func (v Vec2i) Key() string {
	return strconv.Itoa(v.X) + "," + strconv.Itoa(v.Y)
}

func Manhattan(a, b Vec2i) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

var cardinalDirs = [...]Vec2i{
	{X: 0, Y: -1},
	{X: 1, Y: 0},
	{X: 0, Y: 1},
	{X: -1, Y: 0},
}
