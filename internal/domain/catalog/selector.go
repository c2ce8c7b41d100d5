package catalog

import "sort"

// SelectForWindow returns every question whose own window overlaps w, ordered
// by (module order, question order). Ties keep catalog insertion order.
func SelectForWindow(c *Catalog, w AgeWindow) []Question {
	return c.selectOrdered(func(q Question) bool {
		return q.Window.Overlaps(w)
	})
}

// SelectByWeek returns the questions of modules bound to week.
func SelectByWeek(c *Catalog, week int) []Question {
	return c.selectOrdered(func(q Question) bool {
		m := c.modules[c.moduleIdx[q.ModuleID]]
		return m.HasWeek() && m.WeekNumber == week
	})
}

// SelectByMonth returns the questions whose window contains month.
func SelectByMonth(c *Catalog, month int) []Question {
	return c.selectOrdered(func(q Question) bool {
		return q.Window.Contains(month)
	})
}

// FilterByTrail keeps the questions whose module belongs to trail.
func FilterByTrail(c *Catalog, questions []Question, trail Trail) []Question {
	out := make([]Question, 0, len(questions))
	for _, q := range questions {
		if c.modules[c.moduleIdx[q.ModuleID]].Trail == trail {
			out = append(out, q)
		}
	}
	return out
}

func (c *Catalog) selectOrdered(keep func(Question) bool) []Question {
	out := make([]Question, 0)
	for _, q := range c.questions {
		if keep(q) {
			out = append(out, q)
		}
	}

	// c.questions is already in insertion order, so a stable sort keeps it for ties.
	sort.SliceStable(out, func(i, j int) bool {
		mi := c.modules[c.moduleIdx[out[i].ModuleID]].OrderIndex
		mj := c.modules[c.moduleIdx[out[j].ModuleID]].OrderIndex
		if mi != mj {
			return mi < mj
		}
		return out[i].OrderIndex < out[j].OrderIndex
	})
	return out
}
