package rolling

import (
	"slices"
	"strings"
)

// Reasons is an ordered set of justifications for a rolling update.
// The zero value is empty and means no restart is needed.
type Reasons struct {
	items []string
}

// NewReasons returns a set holding items in first-seen order.
func NewReasons(items ...string) Reasons {
	return Reasons{}.With(items...)
}

// With returns a copy of r extended by items. Duplicates and blanks are dropped.
func (r Reasons) With(items ...string) Reasons {
	out := Reasons{items: slices.Clone(r.items)}
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || slices.Contains(out.items, item) {
			continue
		}
		out.items = append(out.items, item)
	}
	return out
}

// Union returns the reasons of r followed by the new ones of other.
func (r Reasons) Union(other Reasons) Reasons {
	return r.With(other.items...)
}

// Empty reports whether no reason was recorded.
func (r Reasons) Empty() bool {
	return len(r.items) == 0
}

// List returns a copy of the reasons in order.
func (r Reasons) List() []string {
	return slices.Clone(r.items)
}

func (r Reasons) String() string {
	return strings.Join(r.items, "; ")
}
