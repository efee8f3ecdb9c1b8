// Package models holds the derived, never-persisted results of chain
// resolution.
package models

import (
	"sort"
	"time"

	id "ownergraph/pkg/domain"
)

// Chain is one path from the subject up to a terminal node.
//
// Path[0] is the subject and Path[len-1] the terminal. Percentages[i] is the
// stake Path[i+1] holds in Path[i], so len(Percentages) == len(Path)-1 == Depth.
type Chain struct {
	Path               []id.EntityID `json:"path"`
	Percentages        []float64     `json:"percentages"`
	EffectiveOwnership float64       `json:"effective_ownership"`
	Depth              int           `json:"depth"`
	IsComplete         bool          `json:"is_complete"`
}

// NewChain computes effective ownership as the product of the percentages
// scaled back to 0-100: Π(p) / 100^(n-1).
func NewChain(path []id.EntityID, pcts []float64, complete bool) Chain {
	effective := 0.0
	if len(pcts) > 0 {
		effective = pcts[0]
		for _, p := range pcts[1:] {
			effective = effective * p / 100
		}
	}
	return Chain{
		Path:               path,
		Percentages:        pcts,
		EffectiveOwnership: effective,
		Depth:              len(pcts),
		IsComplete:         complete,
	}
}

// Terminal returns the last node of the path.
func (c Chain) Terminal() id.EntityID {
	return c.Path[len(c.Path)-1]
}

// WarningCode classifies a recoverable traversal condition.
type WarningCode string

const (
	WarningCycleDetected   WarningCode = "CYCLE_DETECTED"
	WarningDepthExceeded   WarningCode = "DEPTH_EXCEEDED"
	WarningBudgetExhausted WarningCode = "BUDGET_EXHAUSTED"
)

// Warning records a path the traversal abandoned or cut short. For cycles the
// path ends with the repeated node.
type Warning struct {
	Code    WarningCode   `json:"code"`
	Message string        `json:"message"`
	Path    []id.EntityID `json:"path,omitempty"`
}

// Result is the output of one resolution.
//
// Chains end at natural persons. Truncated chains hit the depth limit with
// owners still recorded above them. DeadEnds end at a non-person with no
// ownership data. Partial is set when the visit budget or the deadline cut the
// search short; such a result is never cached.
type Result struct {
	SubjectID     id.EntityID   `json:"subject_id"`
	AsOf          time.Time     `json:"as_of"`
	MaxDepth      int           `json:"max_depth"`
	MaxVisits     int           `json:"max_visits"`
	Chains        []Chain       `json:"chains"`
	Truncated     []Chain       `json:"truncated"`
	DeadEnds      []Chain       `json:"dead_ends"`
	Warnings      []Warning     `json:"warnings"`
	Partial       bool          `json:"partial"`
	NodesVisited  int           `json:"nodes_visited"`
	Visited       []id.EntityID `json:"visited"`
	GraphRevision int64         `json:"graph_revision"`
}

// TotalIdentified sums effective ownership over complete chains.
func (r *Result) TotalIdentified() float64 {
	total := 0.0
	for _, c := range r.Chains {
		total += c.EffectiveOwnership
	}
	return total
}

// HasWarning reports whether any warning carries code.
func (r *Result) HasWarning(code WarningCode) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// Owner folds every complete chain ending at one person.
type Owner struct {
	PersonID       id.EntityID `json:"person_id"`
	TotalOwnership float64     `json:"total_ownership"`
	ChainCount     int         `json:"chain_count"`
	MinDepth       int         `json:"min_depth"`
}

// Owners aggregates chains per terminal person, largest holding first.
func (r *Result) Owners() []Owner {
	byPerson := make(map[id.EntityID]*Owner)
	for _, c := range r.Chains {
		person := c.Terminal()
		o, ok := byPerson[person]
		if !ok {
			o = &Owner{PersonID: person, MinDepth: c.Depth}
			byPerson[person] = o
		}
		o.TotalOwnership += c.EffectiveOwnership
		o.ChainCount++
		if c.Depth < o.MinDepth {
			o.MinDepth = c.Depth
		}
	}
	out := make([]Owner, 0, len(byPerson))
	for _, o := range byPerson {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalOwnership != out[j].TotalOwnership {
			return out[i].TotalOwnership > out[j].TotalOwnership
		}
		return out[i].PersonID.String() < out[j].PersonID.String()
	})
	return out
}

// OwnersAbove returns the aggregated owners holding at least threshold percent.
func (r *Result) OwnersAbove(threshold float64) []Owner {
	var out []Owner
	for _, o := range r.Owners() {
		if o.TotalOwnership >= threshold-1e-9 {
			out = append(out, o)
		}
	}
	return out
}
