package models

import "fmt"

// Registry is an immutable, ordered set of model descriptors.
type Registry struct {
	ordered []Descriptor
	byID    map[string]Descriptor
}

// CategoryGroup is one section of the model picker.
type CategoryGroup struct {
	Category Category     `json:"category"`
	Models   []Descriptor `json:"models"`
}

// NewRegistry indexes descriptors by id. Duplicate or empty ids are rejected.
func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	r := &Registry{
		ordered: make([]Descriptor, 0, len(descriptors)),
		byID:    make(map[string]Descriptor, len(descriptors)),
	}
	for _, d := range descriptors {
		if d.ID == "" {
			return nil, fmt.Errorf("model %q has an empty id", d.Label)
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate model id %q", d.ID)
		}
		if d.MaxOutputTokens <= 0 {
			d.MaxOutputTokens = DefaultMaxOutputTokens
		}
		r.byID[d.ID] = d
		r.ordered = append(r.ordered, d)
	}
	return r, nil
}

var defaultRegistry = mustRegistry(catalog)

func mustRegistry(descriptors []Descriptor) *Registry {
	r, err := NewRegistry(descriptors)
	if err != nil {
		panic(err)
	}
	return r
}

// Default returns the production catalogue.
func Default() *Registry { return defaultRegistry }

// List returns every model in catalogue order. The slice is a copy.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Get looks up a model by id.
func (r *Registry) Get(id string) (Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// Len returns the number of models.
func (r *Registry) Len() int { return len(r.ordered) }

// ByCategory groups models Mini, Pro, Ultra. Empty categories are omitted.
func (r *Registry) ByCategory() []CategoryGroup {
	groups := make([]CategoryGroup, 0, len(categoryOrder))
	for _, c := range categoryOrder {
		var ms []Descriptor
		for _, d := range r.ordered {
			if d.Category == c {
				ms = append(ms, d)
			}
		}
		if len(ms) > 0 {
			groups = append(groups, CategoryGroup{Category: c, Models: ms})
		}
	}
	return groups
}
