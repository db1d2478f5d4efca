package world

// MapDef is the static grid: dimensions only, immutable after creation.
type MapDef struct {
	Width  int
	Height int
}

func (m MapDef) InBounds(p Vec2i) bool {
	return p.X >= 0 && p.X < m.Width && p.Y >= 0 && p.Y < m.Height
}

// Clamp forces the anchor cell into bounds.
func (m MapDef) Clamp(p Vec2i) Vec2i {
	if p.X < 0 {
		p.X = 0
	}
	if p.X >= m.Width {
		p.X = m.Width - 1
	}
	if p.Y < 0 {
		p.Y = 0
	}
	if p.Y >= m.Height {
		p.Y = m.Height - 1
	}
	return p
}
