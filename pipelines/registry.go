package pipelines

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fieldryand/goflow/v2"

	"alphadip-config/types"
)

// Pipeline defines the interface that all pipelines must implement
type Pipeline interface {
	// Name returns the unique identifier for this pipeline
	Name() string

	// Description returns a human-readable description of the pipeline
	Description() string

	// ValidateConfig validates that all required configuration is present
	ValidateConfig() error

	// Job returns a goflow job factory function
	Job() func() *goflow.Job

	// Run executes the pipeline synchronously. The report is never nil.
	Run(ctx context.Context) (*types.CheckReport, error)
}

// Factory builds a pipeline bound to a state
type Factory func(state *State) Pipeline

// Descriptor provides metadata about a pipeline for listing/discovery
type Descriptor struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Flags       []string `json:"flags,omitempty"` // CLI flags the pipeline honours
}

var (
	factories   = make(map[string]Factory)
	descriptors = make(map[string]Descriptor)
	mu          sync.RWMutex
)

// Register adds a pipeline factory and its descriptor to the registry
func Register(d Descriptor, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	descriptors[d.Name] = d
	factories[d.Name] = f
}

// New builds the named pipeline for state
func New(name string, state *State) (Pipeline, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("pipeline %q not registered", name)
	}
	return f(state), nil
}

// GetDescriptor returns a pipeline descriptor by name
func GetDescriptor(name string) (Descriptor, bool) {
	mu.RLock()
	defer mu.RUnlock()
	d, ok := descriptors[name]
	return d, ok
}

// listNamesLocked returns sorted descriptor names. Caller must hold mu.
func listNamesLocked() []string {
	names := make([]string, 0, len(descriptors))
	for name := range descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns a sorted list of all registered pipeline names
func List() []string {
	mu.RLock()
	defer mu.RUnlock()
	return listNamesLocked()
}

// Descriptors returns all descriptors sorted by name
func Descriptors() []Descriptor {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Descriptor, 0, len(descriptors))
	for _, name := range listNamesLocked() {
		out = append(out, descriptors[name])
	}
	return out
}

// ListWithDescriptions returns a formatted string of all pipelines with descriptions
func ListWithDescriptions() string {
	mu.RLock()
	defer mu.RUnlock()

	if len(descriptors) == 0 {
		return "No pipelines registered"
	}

	var b strings.Builder
	b.WriteString("Available pipelines:\n")
	for _, name := range listNamesLocked() {
		d := descriptors[name]
		fmt.Fprintf(&b, "  %s - %s", name, d.Description)
		if len(d.Flags) > 0 {
			fmt.Fprintf(&b, " (flags: %s)", strings.Join(d.Flags, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
