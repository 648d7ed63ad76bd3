package health

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"tradeops/internal/events"
)

// Registry holds all detected issues and their healing actions. Issues stay
// listed after resolution until an operator clears them.
type Registry struct {
	mu     sync.RWMutex
	issues map[string]*Issue // by id
	bus    *events.Bus
}

// NewRegistry creates an issue registry. The bus may be nil in tests.
func NewRegistry(bus *events.Bus) *Registry {
	return &Registry{
		issues: make(map[string]*Issue),
		bus:    bus,
	}
}

// Report records an issue. If an unresolved issue with the same type and
// component already exists it is returned unchanged, so repeated detections
// of the same fault never pile up duplicates.
func (r *Registry) Report(typ IssueType, component string, severity Severity, description string) *Issue {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, is := range r.issues {
		if !is.Resolved && is.Type == typ && is.Component == component {
			return is
		}
	}

	is := &Issue{
		ID:          uuid.NewString(),
		Type:        typ,
		Component:   component,
		Severity:    severity,
		Description: description,
		DetectedAt:  time.Now(),
	}
	r.issues[is.ID] = is
	if r.bus != nil {
		r.bus.Publish(events.EventIssueRaised, *is)
	}
	return is
}

// Resolve marks an issue resolved. Resolving twice is harmless.
func (r *Registry) Resolve(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	is, ok := r.issues[id]
	if !ok || is.Resolved {
		return
	}
	is.Resolved = true
	is.ResolvedAt = time.Now()
	if r.bus != nil {
		r.bus.Publish(events.EventIssueResolved, *is)
	}
}

// AddAction appends a healing action to an issue and returns its id.
func (r *Registry) AddAction(issueID, action string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	is, ok := r.issues[issueID]
	if !ok {
		return ""
	}
	a := HealingAction{
		ID:        uuid.NewString(),
		IssueID:   issueID,
		Action:    action,
		Status:    ActionPending,
		StartedAt: time.Now(),
	}
	is.Actions = append(is.Actions, a)
	return a.ID
}

// SetActionStatus transitions a healing action and records its result.
func (r *Registry) SetActionStatus(issueID, actionID string, status ActionStatus, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	is, ok := r.issues[issueID]
	if !ok {
		return
	}
	for i := range is.Actions {
		if is.Actions[i].ID != actionID {
			continue
		}
		is.Actions[i].Status = status
		is.Actions[i].Result = result
		if status == ActionCompleted || status == ActionFailed {
			is.Actions[i].EndedAt = time.Now()
		}
		return
	}
}

// Get returns a copy of one issue.
func (r *Registry) Get(id string) (Issue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	is, ok := r.issues[id]
	if !ok {
		return Issue{}, false
	}
	return cloneIssue(is), true
}

// Unresolved returns copies of all open issues.
func (r *Registry) Unresolved() []Issue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Issue
	for _, is := range r.issues {
		if !is.Resolved {
			out = append(out, cloneIssue(is))
		}
	}
	return out
}

// All returns copies of every issue, resolved included.
func (r *Registry) All() []Issue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Issue, 0, len(r.issues))
	for _, is := range r.issues {
		out = append(out, cloneIssue(is))
	}
	return out
}

// ClearResolved drops resolved issues and returns how many were removed.
func (r *Registry) ClearResolved() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, is := range r.issues {
		if is.Resolved {
			delete(r.issues, id)
			n++
		}
	}
	return n
}

func cloneIssue(is *Issue) Issue {
	cp := *is
	cp.Actions = append([]HealingAction(nil), is.Actions...)
	return cp
}
