package events

// Event enumerates high-level topics inside the engine.
type Event string

const (
	EventStatusChange    Event = "status_change"
	EventDeployProgress  Event = "deploy.progress"
	EventDeployFinished  Event = "deploy.finished"
	EventTradeExecuted   Event = "trade.executed"
	EventTradeRejected   Event = "trade.rejected"
	EventPositionUpdate  Event = "position.update"
	EventIssueRaised     Event = "issue.raised"
	EventIssueResolved   Event = "issue.resolved"
	EventHealingStarted  Event = "healing.started"
	EventHealingFinished Event = "healing.finished"
	EventHealthReport    Event = "health.report"
)

// DeployProgress is the payload published on EventDeployProgress.
type DeployProgress struct {
	Progress float64 `json:"progress"`
	Step     string  `json:"step"`
}
