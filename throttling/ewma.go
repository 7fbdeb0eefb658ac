package throttling

import (
	"github.com/VividCortex/ewma"

	"github.com/Swind/go-executors/core"
)

// Default ages of the usage averages, in samples.
const (
	DefaultCPUUsageAge = 100
	DefaultDurationAge = 100
)

// EWMAFactory creates exponentially weighted moving averages. Any age other
// than 30 yields a variable EWMA that reports 0 for its first ten samples.
type EWMAFactory struct {
	CPUUsageAge float64
	DurationAge float64
}

var _ core.AverageComputationFactory = EWMAFactory{}

// DefaultAverageFactory returns an EWMAFactory with the default ages.
func DefaultAverageFactory() EWMAFactory {
	return EWMAFactory{CPUUsageAge: DefaultCPUUsageAge, DurationAge: DefaultDurationAge}
}

func (f EWMAFactory) NewCPUUsageAverage() core.AverageComputation {
	return newAverage(f.CPUUsageAge)
}

func (f EWMAFactory) NewDurationAverage() core.AverageComputation {
	return newAverage(f.DurationAge)
}

func newAverage(age float64) *average {
	if age <= 0 {
		return &average{ewma.NewMovingAverage()}
	}
	return &average{ewma.NewMovingAverage(age)}
}

type average struct {
	ma ewma.MovingAverage
}

func (a *average) Update(value float64) { a.ma.Add(value) }
func (a *average) Average() float64     { return a.ma.Value() }
