package layering

import (
	"errors"
	"fmt"
	"sort"

	settings "github.com/goliatone/go-settings"
)

// Layer pairs a scope definition with the normalized map stored for it.
type Layer struct {
	Scope      Scope
	Data       *settings.NormalizedMap
	SnapshotID string
}

// LayerOption configures optional metadata for a layer.
type LayerOption func(*Layer)

// WithSnapshotID sets the snapshot identifier used for auditing.
func WithSnapshotID(id string) LayerOption {
	return func(layer *Layer) {
		layer.SnapshotID = id
	}
}

// NewLayer constructs a Layer holding copies of both the scope metadata and
// the data.
func NewLayer(scope Scope, data *settings.NormalizedMap, opts ...LayerOption) Layer {
	layer := Layer{
		Scope: scope.clone(),
		Data:  cloneData(data),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&layer)
	}
	return layer
}

var (
	// ErrScopeNameRequired indicates a missing scope name.
	ErrScopeNameRequired = errors.New("scope: name must be provided")
	// ErrDuplicateScopeName indicates Stack construction received multiple
	// layers with the same scope name.
	ErrDuplicateScopeName = errors.New("scope: names must be unique")
	// ErrPriorityOrder indicates Stack construction detected duplicate
	// priorities.
	ErrPriorityOrder = errors.New("scope: priorities must be strictly ordered")
)

// Stack is an immutable layering configuration ordered from strongest to
// weakest precedence.
type Stack struct {
	layers []Layer
}

// NewStack validates and sorts layers so that the strongest scope (highest
// priority) is first.
func NewStack(layers ...Layer) (*Stack, error) {
	if len(layers) == 0 {
		return &Stack{}, nil
	}

	seenNames := make(map[string]struct{}, len(layers))
	copied := make([]Layer, len(layers))
	for i, layer := range layers {
		layer := cloneLayer(layer)
		if layer.Scope.Name == "" {
			return nil, ErrScopeNameRequired
		}
		if _, ok := seenNames[layer.Scope.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateScopeName, layer.Scope.Name)
		}
		seenNames[layer.Scope.Name] = struct{}{}
		copied[i] = layer
	}

	sort.Slice(copied, func(i, j int) bool {
		if copied[i].Scope.Priority == copied[j].Scope.Priority {
			return copied[i].Scope.Name < copied[j].Scope.Name
		}
		return copied[i].Scope.Priority > copied[j].Scope.Priority
	})

	for i := 1; i < len(copied); i++ {
		if copied[i-1].Scope.Priority <= copied[i].Scope.Priority {
			return nil, fmt.Errorf("%w: %d", ErrPriorityOrder, copied[i].Scope.Priority)
		}
	}

	return &Stack{layers: copied}, nil
}

// Layers returns copies of the underlying layers.
func (s *Stack) Layers() []Layer {
	if s == nil || len(s.layers) == 0 {
		return nil
	}
	out := make([]Layer, len(s.layers))
	for i := range s.layers {
		out[i] = cloneLayer(s.layers[i])
	}
	return out
}

// Len returns the number of layers in the stack.
func (s *Stack) Len() int {
	if s == nil {
		return 0
	}
	return len(s.layers)
}

// Result is a merged map plus the scope that supplied each key.
type Result struct {
	Data    *settings.NormalizedMap
	Sources map[string]string
}

// Source reports the scope name that supplied key.
func (r Result) Source(key string) (string, bool) {
	name, ok := r.Sources[key]
	return name, ok
}

// Merge resolves the stack into one normalized map. A key takes the value of
// the strongest layer that stores it; a stored null falls through to weaker
// layers. Keys keep the order of their first appearance, strongest first.
func (s *Stack) Merge() (Result, error) {
	if s == nil || len(s.layers) == 0 {
		return Result{}, fmt.Errorf("scope: stack must include at least one layer")
	}
	merged := settings.NewNormalizedMap()
	sources := map[string]string{}
	for _, layer := range s.layers {
		if layer.Data == nil {
			continue
		}
		var err error
		layer.Data.Range(func(key string, value any) bool {
			current, exists := merged.Get(key)
			if exists && current != nil {
				return true
			}
			if exists && value == nil {
				return true
			}
			if err = merged.Set(key, value); err != nil {
				return false
			}
			sources[key] = layer.Scope.Name
			return true
		})
		if err != nil {
			return Result{}, fmt.Errorf("scope: merge %s: %w", layer.Scope.Name, err)
		}
	}
	return Result{Data: merged, Sources: sources}, nil
}

func cloneLayer(layer Layer) Layer {
	return Layer{
		Scope:      layer.Scope.clone(),
		Data:       cloneData(layer.Data),
		SnapshotID: layer.SnapshotID,
	}
}

func cloneData(data *settings.NormalizedMap) *settings.NormalizedMap {
	if data == nil {
		return nil
	}
	return data.Clone()
}
