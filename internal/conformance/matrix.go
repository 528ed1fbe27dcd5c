package conformance

import (
	"errors"
	"fmt"
	"os"

	"github.com/Swind/go-asap/core"
	"gopkg.in/yaml.v3"
)

// ErrEmptyMatrix is returned when a matrix lists no environment.
var ErrEmptyMatrix = errors.New("conformance: matrix has no environments")

// Environment describes one host the scenarios run against.
type Environment struct {
	Name string `yaml:"name"`

	// Observer exposes the change observer facility to schedulers.
	Observer bool `yaml:"observer"`

	// DropZeroDelay makes the host drop zero-delay timeouts.
	DropZeroDelay bool `yaml:"drop_zero_delay"`

	// Capacity overrides the scheduler compaction threshold.
	Capacity int `yaml:"capacity"`
}

func (e Environment) String() string {
	return e.Name
}

// Matrix is the set of environments a run covers.
type Matrix struct {
	Environments []Environment `yaml:"environments"`
}

// DefaultMatrix covers every host shape the schedulers support.
func DefaultMatrix() Matrix {
	return Matrix{Environments: []Environment{
		{Name: "observer", Observer: true},
		{Name: "timers", Observer: false},
		{Name: "worker", Observer: false, DropZeroDelay: true},
		{Name: "observer-small-capacity", Observer: true, Capacity: 16},
	}}
}

// ParseMatrix decodes a YAML matrix.
func ParseMatrix(data []byte) (Matrix, error) {
	var m Matrix
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Matrix{}, fmt.Errorf("parse matrix: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Matrix{}, err
	}
	return m, nil
}

// LoadMatrix reads a YAML matrix from path.
func LoadMatrix(path string) (Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Matrix{}, fmt.Errorf("read matrix: %w", err)
	}
	return ParseMatrix(data)
}

// Validate checks environment names and capacities.
func (m Matrix) Validate() error {
	if len(m.Environments) == 0 {
		return ErrEmptyMatrix
	}
	seen := make(map[string]bool, len(m.Environments))
	for i, env := range m.Environments {
		if env.Name == "" {
			return fmt.Errorf("environment %d: name is required", i)
		}
		if seen[env.Name] {
			return fmt.Errorf("environment %q: duplicate name", env.Name)
		}
		seen[env.Name] = true
		if env.Capacity < 0 {
			return fmt.Errorf("environment %q: %w", env.Name, core.ErrInvalidCapacity)
		}
	}
	return nil
}
