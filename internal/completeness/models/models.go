// Package models holds the completeness report derived from a chain
// resolution.
package models

import (
	"fmt"
	"strings"
	"time"

	graphmodels "ownergraph/internal/graph/models"
	resolvermodels "ownergraph/internal/resolver/models"
	id "ownergraph/pkg/domain"
)

// IssueCode is a machine-readable completeness finding.
type IssueCode string

const (
	IssueOwnershipGap          IssueCode = "OWNERSHIP_GAP"
	IssueIncompleteChain       IssueCode = "INCOMPLETE_CHAIN"
	IssueCycleDetected         IssueCode = "CYCLE_DETECTED"
	IssueDepthLimitReached     IssueCode = "DEPTH_LIMIT_REACHED"
	IssueResolutionPartial     IssueCode = "RESOLUTION_PARTIAL"
	IssueOverlappingEdgeWindow IssueCode = "OVERLAPPING_EDGE_WINDOWS"
	IssueOwnershipExceeds100   IssueCode = "OWNERSHIP_EXCEEDS_100"
)

// Severity tells analysts whether an issue blocks sign-off.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

const epsilon = 1e-9

// Issue is one finding with the ids that caused it.
type Issue struct {
	Code     IssueCode     `json:"code"`
	Severity Severity      `json:"severity"`
	Message  string        `json:"message"`
	Path     []id.EntityID `json:"path,omitempty"`
	EdgeIDs  []id.EdgeID   `json:"edge_ids,omitempty"`
}

// Report is the completeness verdict for one subject at one instant.
type Report struct {
	SubjectID            id.EntityID            `json:"subject_id"`
	AsOf                 time.Time              `json:"as_of"`
	Threshold            float64                `json:"threshold"`
	TotalIdentified      float64                `json:"total_identified"`
	Gap                  float64                `json:"gap"`
	IncompleteChainCount int                    `json:"incomplete_chain_count"`
	IsComplete           bool                   `json:"is_complete"`
	UBOsAboveThreshold   []resolvermodels.Owner `json:"ubos_above_threshold"`
	Issues               []Issue                `json:"issues"`
	Partial              bool                   `json:"partial"`
	GraphRevision        int64                  `json:"graph_revision"`
}

// HasIssue reports whether any issue carries code.
func (r *Report) HasIssue(code IssueCode) bool {
	for _, i := range r.Issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

// NewReport folds a resolution into a report. Every warning, dead end and
// truncation becomes an issue; nothing is dropped.
func NewReport(result *resolvermodels.Result, threshold float64, overlaps []graphmodels.EdgeOverlap) *Report {
	total := result.TotalIdentified()
	gap := 100 - total
	if gap < 0 {
		gap = 0
	}
	owners := result.OwnersAbove(threshold)
	if owners == nil {
		owners = []resolvermodels.Owner{}
	}

	r := &Report{
		SubjectID:            result.SubjectID,
		AsOf:                 result.AsOf,
		Threshold:            threshold,
		TotalIdentified:      total,
		Gap:                  gap,
		IncompleteChainCount: len(result.DeadEnds),
		IsComplete:           total >= 100-epsilon && len(result.DeadEnds) == 0,
		UBOsAboveThreshold:   owners,
		Issues:               []Issue{},
		Partial:              result.Partial,
		GraphRevision:        result.GraphRevision,
	}

	if gap > epsilon {
		r.Issues = append(r.Issues, Issue{
			Code:     IssueOwnershipGap,
			Severity: SeverityError,
			Message:  fmt.Sprintf("%.4g%% of ownership is not traced to a natural person", gap),
		})
	}
	for _, c := range result.DeadEnds {
		r.Issues = append(r.Issues, Issue{
			Code:     IssueIncompleteChain,
			Severity: SeverityError,
			Message: fmt.Sprintf("chain ends at %s with no ownership data recorded (%.4g%% effective)",
				c.Terminal(), c.EffectiveOwnership),
			Path: c.Path,
		})
	}
	for _, w := range result.Warnings {
		if w.Code != resolvermodels.WarningCycleDetected {
			continue
		}
		r.Issues = append(r.Issues, Issue{
			Code:     IssueCycleDetected,
			Severity: SeverityWarning,
			Message:  "circular ownership: " + joinPath(w.Path),
			Path:     w.Path,
		})
	}
	for _, c := range result.Truncated {
		r.Issues = append(r.Issues, Issue{
			Code:     IssueDepthLimitReached,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("depth limit %d reached at %s; owners above it were not traced", result.MaxDepth, c.Terminal()),
			Path:     c.Path,
		})
	}
	if result.Partial {
		r.Issues = append(r.Issues, Issue{
			Code:     IssueResolutionPartial,
			Severity: SeverityError,
			Message:  fmt.Sprintf("resolution stopped after %d nodes; figures are lower bounds", result.NodesVisited),
		})
	}
	for _, o := range overlaps {
		r.Issues = append(r.Issues, Issue{
			Code:     IssueOverlappingEdgeWindow,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("edge versions of %s have overlapping validity windows", o.Key),
			Path:     []id.EntityID{o.Key.OwnedID, o.Key.OwnerID},
			EdgeIDs:  []id.EdgeID{o.First, o.Second},
		})
	}
	if total > 100+epsilon {
		r.Issues = append(r.Issues, Issue{
			Code:     IssueOwnershipExceeds100,
			Severity: SeverityError,
			Message:  fmt.Sprintf("identified ownership totals %.4g%%", total),
		})
	}
	return r
}

func joinPath(path []id.EntityID) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = p.String()
	}
	return strings.Join(parts, " <- ")
}
