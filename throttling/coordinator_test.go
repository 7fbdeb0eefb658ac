package throttling

import (
	"errors"
	"testing"

	"github.com/Swind/go-executors/core"
)

type ceiling struct{ v float64 }

func (c *ceiling) SetMaximumCPUUsage(v float64) { c.v = v }

// TestCoordinator_SharesByWeight verifies the overall ceiling is split by weight
// Given: A coordinator of 1 core
// When: Two executors are registered with weights 1 and 4
// Then: They get 0.2 and 0.8 of a core
func TestCoordinator_SharesByWeight(t *testing.T) {
	// Arrange
	e1 := NewExecutor(core.DefaultPoolConfig("e1", 1), 0)
	e2 := NewExecutor(core.DefaultPoolConfig("e2", 1), 0)
	c := NewCoordinator(1)

	// Act
	if err := c.Add(e1, 1); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := c.Add(e2, 4); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	// Assert
	if got := int(e1.MaximumCPUUsage()*100 + 0.5); got != 20 {
		t.Errorf("e1 usage = %d%%, want 20%%", got)
	}
	if got := int(e2.MaximumCPUUsage()*100 + 0.5); got != 80 {
		t.Errorf("e2 usage = %d%%, want 80%%", got)
	}
}

func TestCoordinator_RecomputesOnChange(t *testing.T) {
	a, b := &ceiling{}, &ceiling{}
	c := NewCoordinator(2)
	_ = c.Add(a, 1)
	_ = c.Add(b, 1)

	if a.v != 1 || b.v != 1 {
		t.Fatalf("shares = %v/%v, want 1/1", a.v, b.v)
	}

	c.SetMaximumCPUUsage(4)
	if a.v != 2 || b.v != 2 {
		t.Errorf("after SetMaximumCPUUsage shares = %v/%v, want 2/2", a.v, b.v)
	}

	if !c.Remove(b) {
		t.Fatal("Remove failed")
	}
	if a.v != 4 {
		t.Errorf("after Remove a = %v, want 4", a.v)
	}
	if c.Remove(b) {
		t.Error("removing twice should fail")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if w, ok := c.Weight(a); !ok || w != 1 {
		t.Errorf("Weight(a) = %d, %v, want 1, true", w, ok)
	}
}

func TestCoordinator_InvalidWeight(t *testing.T) {
	c := NewCoordinator(1)

	err := c.Add(&ceiling{}, 0)

	if !errors.Is(err, ErrInvalidWeight) {
		t.Errorf("Add with weight 0 error = %v, want ErrInvalidWeight", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}
