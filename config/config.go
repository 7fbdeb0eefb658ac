// Package config loads executor definitions from YAML files.
//
// A file lists executors along with the logging and metrics settings of the
// process running them:
//
//	log:
//	  level: debug
//	metrics:
//	  addr: ":9090"
//	executors:
//	  - name: reports
//	    kind: cpu
//	    coreWorkers: 4
//	    maxCPU: 1.5
//	  - name: pipeline
//	    kind: ordered
//	    maxCPU: 0.5
//	    ewma:
//	      cpuUsageAge: 20
//
// Fields left out take the values of their default tags.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/Swind/go-executors/core"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid")

// Kind selects the executor built from an Executor definition.
type Kind string

const (
	// KindBatch spreads batches over their duration.
	KindBatch Kind = "batch"
	// KindCPU is KindBatch under a CPU ceiling.
	KindCPU Kind = "cpu"
	// KindOrdered is KindCPU honouring task predecessors.
	KindOrdered Kind = "ordered"
	// KindThrottling runs single tasks under a CPU ceiling.
	KindThrottling Kind = "throttling"
)

// File is the root of a configuration file.
type File struct {
	Log       Log        `yaml:"log"`
	Metrics   Metrics    `yaml:"metrics"`
	Executors []Executor `yaml:"executors"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"console"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Addr         string        `yaml:"addr" default:":9090"`
	Namespace    string        `yaml:"namespace" default:"executors"`
	PollInterval time.Duration `yaml:"pollInterval" default:"5s"`
}

// Executor defines one executor.
type Executor struct {
	Name string `yaml:"name" default:"batch"`
	Kind Kind   `yaml:"kind" default:"batch"`

	CoreWorkers   int           `yaml:"coreWorkers" default:"4"`
	MaxWorkers    int           `yaml:"maxWorkers"`
	KeepAlive     time.Duration `yaml:"keepAlive" default:"1m"`
	QueueCapacity int           `yaml:"queueCapacity"` // batch kinds only
	Rejection     string        `yaml:"rejection" default:"abort"`

	// MaxCPU is the ceiling in cores of the throttled kinds.
	MaxCPU float64 `yaml:"maxCPU" default:"1"`
	EWMA   EWMA    `yaml:"ewma"`
}

// EWMA holds the ages, in samples, of the CPU usage averages.
type EWMA struct {
	CPUUsageAge float64 `yaml:"cpuUsageAge" default:"100"`
	DurationAge float64 `yaml:"durationAge" default:"100"`
}

// UnmarshalYAML fills in the defaults before decoding, so list entries get
// them too.
func (e *Executor) UnmarshalYAML(n *yaml.Node) error {
	type plain Executor
	var p plain
	if err := defaults.Set(&p); err != nil {
		return err
	}
	if err := n.Decode(&p); err != nil {
		return err
	}
	*e = Executor(p)
	return nil
}

// New returns an Executor definition holding the defaults.
func New(name string, kind Kind) (Executor, error) {
	var e Executor
	if err := defaults.Set(&e); err != nil {
		return e, fmt.Errorf("config: defaults: %w", err)
	}
	e.Name, e.Kind = name, kind
	return e, nil
}

// Load reads and validates the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*File, error) {
	f := &File{}
	if err := defaults.Set(f); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks every executor and that their names are unique.
func (f *File) Validate() error {
	seen := make(map[string]bool, len(f.Executors))
	for i := range f.Executors {
		e := &f.Executors[i]
		if err := e.Validate(); err != nil {
			return err
		}
		if seen[e.Name] {
			return fmt.Errorf("%w: duplicate executor name %q", ErrInvalid, e.Name)
		}
		seen[e.Name] = true
	}
	return nil
}

// Validate checks the definition.
func (e *Executor) Validate() error {
	switch {
	case e.Name == "":
		return fmt.Errorf("%w: executor without name", ErrInvalid)
	case e.CoreWorkers < 0:
		return fmt.Errorf("%w: executor %s: coreWorkers %d below 0", ErrInvalid, e.Name, e.CoreWorkers)
	case e.MaxWorkers != 0 && e.MaxWorkers < e.CoreWorkers:
		return fmt.Errorf("%w: executor %s: maxWorkers %d below coreWorkers %d", ErrInvalid, e.Name, e.MaxWorkers, e.CoreWorkers)
	case e.MaxCPU < 0:
		return fmt.Errorf("%w: executor %s: maxCPU %v below 0", ErrInvalid, e.Name, e.MaxCPU)
	}
	switch e.Kind {
	case KindBatch, KindCPU, KindOrdered, KindThrottling:
	default:
		return fmt.Errorf("%w: executor %s: unknown kind %q", ErrInvalid, e.Name, e.Kind)
	}
	if _, err := core.ParseRejectionPolicy(e.Rejection); err != nil {
		return fmt.Errorf("%w: executor %s: %w", ErrInvalid, e.Name, err)
	}
	return nil
}

// PoolConfig converts the definition into pool settings. Handlers are the
// core defaults; callers replace Logger and Metrics as needed.
func (e *Executor) PoolConfig() core.PoolConfig {
	cfg := core.DefaultPoolConfig(e.Name, e.CoreWorkers)
	if e.MaxWorkers > 0 {
		cfg.MaxWorkers = e.MaxWorkers
	}
	cfg.KeepAlive = e.KeepAlive
	cfg.Rejection, _ = core.ParseRejectionPolicy(e.Rejection)
	return cfg
}
