package throttling

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidWeight is returned when registering an executor with a weight
// below one.
var ErrInvalidWeight = errors.New("throttling: weight must be positive")

// Throttled is anything whose CPU ceiling can be changed.
type Throttled interface {
	SetMaximumCPUUsage(maxCPU float64)
}

// Coordinator splits one overall CPU ceiling between several executors in
// proportion to their weights. Every change recomputes all shares.
type Coordinator struct {
	mu      sync.Mutex
	maxCPU  float64
	weights map[Throttled]int
}

// NewCoordinator creates a coordinator distributing maxCPU cores.
func NewCoordinator(maxCPU float64) *Coordinator {
	return &Coordinator{maxCPU: maxCPU, weights: make(map[Throttled]int)}
}

// Add registers e with weight, or changes its weight.
func (c *Coordinator) Add(e Throttled, weight int) error {
	if weight <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWeight, weight)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.weights[e] = weight
	c.recomputeLocked()
	return nil
}

// Remove unregisters e. Its ceiling keeps the last assigned share.
func (c *Coordinator) Remove(e Throttled) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.weights[e]; !ok {
		return false
	}
	delete(c.weights, e)
	c.recomputeLocked()
	return true
}

// Weight returns the weight e is registered with.
func (c *Coordinator) Weight(e Throttled) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.weights[e]
	return w, ok
}

// Len returns the number of registered executors.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.weights)
}

// MaximumCPUUsage returns the overall ceiling.
func (c *Coordinator) MaximumCPUUsage() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxCPU
}

// SetMaximumCPUUsage changes the overall ceiling and redistributes it.
func (c *Coordinator) SetMaximumCPUUsage(maxCPU float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxCPU = maxCPU
	c.recomputeLocked()
}

func (c *Coordinator) recomputeLocked() {
	total := 0
	for _, w := range c.weights {
		total += w
	}
	for e, w := range c.weights {
		e.SetMaximumCPUUsage(c.maxCPU * float64(w) / float64(total))
	}
}
