package health

import "time"

// Class orders overall health from best to worst.
type Class string

const (
	ClassExcellent Class = "EXCELLENT"
	ClassGood      Class = "GOOD"
	ClassWarning   Class = "WARNING"
	ClassCritical  Class = "CRITICAL"
	ClassDown      Class = "DOWN"
)

// rank maps classes to a comparable order, best first.
func (c Class) rank() int {
	switch c {
	case ClassExcellent:
		return 0
	case ClassGood:
		return 1
	case ClassWarning:
		return 2
	case ClassCritical:
		return 3
	default:
		return 4
	}
}

// Worst returns the lower of two classes.
func Worst(a, b Class) Class {
	if a.rank() >= b.rank() {
		return a
	}
	return b
}

// IssueType groups issues by what subsystem failed.
type IssueType string

const (
	IssueConnectivity IssueType = "connectivity"
	IssueDeployment   IssueType = "deployment"
	IssueTradingAPI   IssueType = "trading_api"
	IssuePerformance  IssueType = "performance"
)

// Severity grades an issue.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ActionStatus is the lifecycle of a healing action.
type ActionStatus string

const (
	ActionPending   ActionStatus = "PENDING"
	ActionRunning   ActionStatus = "RUNNING"
	ActionCompleted ActionStatus = "COMPLETED"
	ActionFailed    ActionStatus = "FAILED"
)

// HealingAction is one remediation attempt against an issue.
type HealingAction struct {
	ID        string       `json:"id"`
	IssueID   string       `json:"issueId"`
	Action    string       `json:"action"`
	Status    ActionStatus `json:"status"`
	Result    string       `json:"result,omitempty"`
	StartedAt time.Time    `json:"startedAt"`
	EndedAt   time.Time    `json:"endedAt,omitempty"`
}

// Issue is a detected fault. At most one unresolved issue exists per
// {type, component} pair; re-detections update the existing one.
type Issue struct {
	ID          string          `json:"id"`
	Type        IssueType       `json:"type"`
	Component   string          `json:"component"`
	Severity    Severity        `json:"severity"`
	Description string          `json:"description"`
	Resolved    bool            `json:"resolved"`
	DetectedAt  time.Time       `json:"detectedAt"`
	ResolvedAt  time.Time       `json:"resolvedAt,omitempty"`
	Actions     []HealingAction `json:"actions"`
}

// Report is the outcome of one supervision cycle.
type Report struct {
	Class            Class     `json:"class"`
	Score            float64   `json:"score"`
	GatewayReachable bool      `json:"gatewayReachable"`
	UnresolvedIssues int       `json:"unresolvedIssues"`
	CheckedAt        time.Time `json:"checkedAt"`
}
