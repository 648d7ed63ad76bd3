package engine

import (
	"context"
	"log"

	"tradeops/internal/events"
	"tradeops/internal/health"
	"tradeops/pkg/db"
)

// startAuditWriter mirrors issue and healing-action events into the audit
// database. Trades and deployment attempts are written at the call sites; the
// health subsystem stays persistence-free, so the mirroring happens here.
func (e *Engine) startAuditWriter(ctx context.Context) {
	if e.audit == nil || e.bus == nil {
		return
	}
	raised, unsubRaised := e.bus.Subscribe(events.EventIssueRaised, 32)
	resolved, unsubResolved := e.bus.Subscribe(events.EventIssueResolved, 32)
	finished, unsubFinished := e.bus.Subscribe(events.EventHealingFinished, 32)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer unsubRaised()
		defer unsubResolved()
		defer unsubFinished()

		for {
			select {
			case msg := <-raised:
				if is, ok := msg.(health.Issue); ok {
					e.writeIssue(ctx, is)
				}
			case msg := <-resolved:
				if is, ok := msg.(health.Issue); ok {
					if err := e.audit.ResolveIssueRow(ctx, is.ID, is.ResolvedAt); err != nil {
						log.Printf("engine: audit resolve issue: %v", err)
					}
				}
			case msg := <-finished:
				if a, ok := msg.(health.HealingAction); ok {
					if err := e.audit.RecordHealingAction(ctx, a.ID, a.IssueID, a.Action,
						string(a.Status), a.Result, a.StartedAt, a.EndedAt); err != nil {
						log.Printf("engine: audit healing action: %v", err)
					}
				}
			case <-e.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (e *Engine) writeIssue(ctx context.Context, is health.Issue) {
	err := e.audit.RecordIssue(ctx, db.IssueRow{
		ID:          is.ID,
		Type:        string(is.Type),
		Component:   is.Component,
		Severity:    string(is.Severity),
		Description: is.Description,
		DetectedAt:  is.DetectedAt,
	})
	if err != nil {
		log.Printf("engine: audit issue: %v", err)
	}
}
