package coordinator

import (
	"sort"

	"quorumkv/internal/logging"
)

// detectDeadlock prunes stale wait-for edges, then finds and resolves
// cycles one at a time until none remain. Resolution kills the
// youngest participant — the one with the largest startTick — per
// spec.md §4.4.
func (c *Coordinator) detectDeadlock() {
	c.pruneGhostEdges()
	for {
		cycle := c.findCycle()
		if cycle == nil {
			return
		}
		victim := c.youngest(cycle)
		c.log.Info("deadlock detected, aborting youngest participant",
			logging.F("cycle", cycle), logging.F("victim", victim))
		t, ok := c.transactions[victim]
		if !ok {
			return
		}
		c.finishAbort(t)
		c.pruneGhostEdges()
	}
}

// pruneGhostEdges drops wait-for entries pointing at transactions no
// longer present — committed, aborted, or deadlock victims from a
// prior scan (spec.md invariant 7).
func (c *Coordinator) pruneGhostEdges() {
	for id, targets := range c.waitFor {
		if _, alive := c.transactions[id]; !alive {
			delete(c.waitFor, id)
			continue
		}
		for target := range targets {
			if target == siteWait {
				continue
			}
			if _, alive := c.transactions[target]; !alive {
				delete(targets, target)
			}
		}
		if len(targets) == 0 {
			delete(c.waitFor, id)
		}
	}
}

// findCycle runs a depth-first search over the wait-for graph and
// returns the first cycle found (as the ordered list of transaction
// ids it traverses), or nil if the graph is acyclic. siteWait is a
// sink, never a cycle participant, and is skipped.
func (c *Coordinator) findCycle() []int {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[int]int, len(c.waitFor))
	var stack []int

	var visit func(id int) []int
	visit = func(id int) []int {
		state[id] = inStack
		stack = append(stack, id)

		for target := range c.waitFor[id] {
			if target == siteWait {
				continue
			}
			switch state[target] {
			case inStack:
				for i, s := range stack {
					if s == target {
						return append([]int(nil), stack[i:]...)
					}
				}
			case unvisited:
				if cycle := visit(target); cycle != nil {
					return cycle
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	ids := make([]int, 0, len(c.waitFor))
	for id := range c.waitFor {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if state[id] == unvisited {
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// youngest returns the transaction in cycle with the largest
// startTick, ties broken by the larger transaction id (an
// implementation-defined but deterministic choice, per spec.md §4.4).
func (c *Coordinator) youngest(cycle []int) int {
	best := cycle[0]
	for _, id := range cycle[1:] {
		bt, bok := c.transactions[best]
		t, ok := c.transactions[id]
		if !ok {
			continue
		}
		if !bok || t.StartTick > bt.StartTick ||
			(t.StartTick == bt.StartTick && id > best) {
			best = id
		}
	}
	return best
}
