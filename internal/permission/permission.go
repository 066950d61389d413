package permission

import (
	_ "embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Identifier is the plugin identifier every descriptor id is rooted at.
const Identifier = "com.omuapps/plugin-obssync"

//go:embed permissions.yaml
var descriptorsYAML []byte

// Level is how much a capability can change.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Descriptor declares one capability.
type Descriptor struct {
	ID    string            `yaml:"id" json:"id"`
	Level Level             `yaml:"level" json:"level"`
	Name  map[string]string `yaml:"name" json:"name"`
	Note  map[string]string `yaml:"note,omitempty" json:"note,omitempty"`
}

// Registry accepts descriptors. Hosts provide their own implementation.
type Registry interface {
	Register(descriptors ...Descriptor) error
}

var (
	// ErrDuplicate is returned when a descriptor id is registered twice.
	ErrDuplicate = errors.New("permission already registered")
	// ErrInvalid is returned for descriptors without an id or a known level.
	ErrInvalid = errors.New("invalid permission descriptor")
)

type descriptorFile struct {
	Identifier  string       `yaml:"identifier"`
	Permissions []Descriptor `yaml:"permissions"`
}

// Parse decodes a descriptor file. Relative ids are joined to the file's identifier.
func Parse(data []byte) ([]Descriptor, error) {
	var file descriptorFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse permissions: %w", err)
	}

	descriptors := make([]Descriptor, 0, len(file.Permissions))
	for _, d := range file.Permissions {
		if file.Identifier != "" {
			d.ID = path.Join(file.Identifier, d.ID)
		}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// Descriptors returns the plugin's embedded descriptors.
func Descriptors() []Descriptor {
	descriptors, err := Parse(descriptorsYAML)
	if err != nil {
		panic(err) // embedded file is covered by tests
	}
	return descriptors
}

// Validate checks the id and level.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalid)
	}
	switch d.Level {
	case LevelLow, LevelMedium, LevelHigh:
		return nil
	}
	return fmt.Errorf("%w: %s has level %q", ErrInvalid, d.ID, d.Level)
}

// MemoryRegistry keeps descriptors in memory.
type MemoryRegistry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{descriptors: make(map[string]Descriptor)}
}

// Register adds descriptors. Nothing is added if any of them is invalid or
// already registered.
func (r *MemoryRegistry) Register(descriptors ...Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			return err
		}
		if _, ok := r.descriptors[d.ID]; ok || seen[d.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicate, d.ID)
		}
		seen[d.ID] = true
	}
	for _, d := range descriptors {
		r.descriptors[d.ID] = d
	}
	return nil
}

// Get returns the descriptor with id.
func (r *MemoryRegistry) Get(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[id]
	return d, ok
}

// List returns all descriptors sorted by id.
func (r *MemoryRegistry) List() []Descriptor {
	return r.Match("**")
}

// Match returns the descriptors whose id matches the doublestar pattern,
// sorted by id.
func (r *MemoryRegistry) Match(pattern string) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Descriptor
	for id, d := range r.descriptors {
		if ok, _ := doublestar.Match(pattern, id); ok {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
