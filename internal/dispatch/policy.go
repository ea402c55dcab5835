package dispatch

import (
	"math/rand"
	"sync"
)

// SelectionPolicy picks the agent (by api key) that should receive the
// next task, out of the currently connected ones. Returns "" when no
// agent should be picked.
type SelectionPolicy interface {
	Pick(candidates []string) string
}

// RandomPolicy picks a uniformly random connected agent.
type RandomPolicy struct{}

func (RandomPolicy) Pick(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	return candidates[rand.Intn(len(candidates))]
}

// RoundRobinPolicy cycles through the candidate list. The cursor is
// positional, so agents joining or leaving between calls shift the
// rotation; that is acceptable for load spreading.
type RoundRobinPolicy struct {
	mu   sync.Mutex
	next int
}

func (p *RoundRobinPolicy) Pick(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	pick := candidates[p.next%len(candidates)]
	p.next++
	return pick
}
