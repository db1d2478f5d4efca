package world

// FindPath runs an unweighted BFS over the grid from start to goal, against a
// caller-supplied obstacle set of encoded cell keys. A candidate step is valid
// only when both cells of the mover's 2x1 hitbox are obstacle-free (an
// out-of-bounds second cell counts as free). Returns the shortest path as
// ordered waypoints excluding start, or nil when the goal is unreachable.
//
// BFS rather than A* is deliberate: maps are tens of tiles per side and
// exactness beats any heuristic speedup at that scale.
func FindPath(m MapDef, start, goal Vec2i, obstacles map[string]struct{}) []Vec2i {
	if !m.InBounds(start) || !m.InBounds(goal) {
		return nil
	}
	if start == goal {
		return nil
	}
	if hitboxBlocked(m, goal, obstacles) {
		return nil
	}

	parent := map[Vec2i]Vec2i{start: start}
	queue := []Vec2i{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == goal {
			break
		}
		for _, d := range cardinalDirs {
			next := cur.Add(d)
			if !m.InBounds(next) {
				continue
			}
			if _, seen := parent[next]; seen {
				continue
			}
			if hitboxBlocked(m, next, obstacles) {
				continue
			}
			parent[next] = cur
			queue = append(queue, next)
		}
	}

	if _, ok := parent[goal]; !ok {
		return nil
	}
	var path []Vec2i
	for p := goal; p != start; p = parent[p] {
		path = append(path, p)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

func hitboxBlocked(m MapDef, anchor Vec2i, obstacles map[string]struct{}) bool {
	for _, c := range hitboxCells(anchor) {
		if !m.InBounds(c) {
			continue
		}
		if _, ok := obstacles[c.Key()]; ok {
			return true
		}
	}
	return false
}
