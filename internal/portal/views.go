package portal

import (
	"github.com/learnio/learnio/internal/events"
)

// Group is one named partition of a collection
type Group[T any] struct {
	Status string
	Items  []T
}

// Partition splits items into buckets by exact match on status. Declared buckets come
// first in declared order, even when empty; any other value gets its own bucket appended
// in first-seen order. Every item lands in exactly one bucket.
func Partition[T any](items []T, status func(T) string, declared ...string) []Group[T] {
	groups := make([]Group[T], 0, len(declared))
	index := make(map[string]int, len(declared))
	for _, name := range declared {
		if _, dup := index[name]; dup {
			continue
		}
		index[name] = len(groups)
		groups = append(groups, Group[T]{Status: name})
	}

	for _, item := range items {
		s := status(item)
		i, ok := index[s]
		if !ok {
			i = len(groups)
			index[s] = i
			groups = append(groups, Group[T]{Status: s})
		}
		groups[i].Items = append(groups[i].Items, item)
	}
	return groups
}

// Placeholder replaces the table of an empty bucket
type Placeholder struct {
	Message string `json:"message"`
	Link    string `json:"link"`
}

// Row is one table row with the actions it offers
type Row[T any] struct {
	ID       string   `json:"id"`
	Item     T        `json:"item"`
	Actions  []string `json:"actions"`
	Disabled bool     `json:"disabled"`
}

// Bucket is a rendered partition
type Bucket[T any] struct {
	Status      string       `json:"status"`
	Count       int          `json:"count"`
	Rows        []Row[T]     `json:"rows"`
	Placeholder *Placeholder `json:"placeholder,omitempty"`
}

// ListView describes how a screen renders a collection
type ListView[T any] struct {
	Field   func(T) string
	Buckets []string
	ID      func(T) string
	// Actions lists the row actions; nil means a read-only table
	Actions func(T) []string
	// Kind identifies the mutation family whose in-flight rows are disabled
	Kind     events.EventType
	HubLink  string
	InFlight func(kind events.EventType, id string) bool
}

// Render partitions items and decorates every row
func (v ListView[T]) Render(items []T) []Bucket[T] {
	groups := Partition(items, v.Field, v.Buckets...)
	out := make([]Bucket[T], 0, len(groups))

	for _, g := range groups {
		b := Bucket[T]{Status: g.Status, Count: len(g.Items), Rows: make([]Row[T], 0, len(g.Items))}
		for _, item := range g.Items {
			row := Row[T]{ID: v.ID(item), Item: item, Actions: []string{}}
			if v.Actions != nil {
				row.Actions = v.Actions(item)
			}
			if v.InFlight != nil && v.Kind != "" && len(row.Actions) > 0 {
				row.Disabled = v.InFlight(v.Kind, row.ID)
			}
			b.Rows = append(b.Rows, row)
		}
		if b.Count == 0 {
			b.Placeholder = &Placeholder{Message: "No items", Link: v.HubLink}
		}
		out = append(out, b)
	}
	return out
}
