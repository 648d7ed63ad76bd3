package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TradeRow is the persisted form of a trade.
type TradeRow struct {
	Ticket     string
	OrderID    string
	Symbol     string
	Direction  string
	Volume     float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	ClosePrice sql.NullFloat64
	Profit     float64
	Status     string
	OpenedAt   time.Time
	ClosedAt   sql.NullTime
}

// IssueRow is the persisted form of a health issue.
type IssueRow struct {
	ID          string
	Type        string
	Component   string
	Severity    string
	Description string
	Resolved    bool
	DetectedAt  time.Time
	ResolvedAt  sql.NullTime
}

// RecordTrade inserts an opened trade.
func (d *Database) RecordTrade(ctx context.Context, t TradeRow) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT OR REPLACE INTO trades
		(ticket, order_id, symbol, direction, volume, entry_price, stop_loss, take_profit, profit, status, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Ticket, t.OrderID, t.Symbol, t.Direction, t.Volume, t.EntryPrice,
		t.StopLoss, t.TakeProfit, t.Profit, t.Status, t.OpenedAt)
	if err != nil {
		return fmt.Errorf("record trade: %w", err)
	}
	return nil
}

// CloseTradeRow marks a trade closed with its final price and profit.
func (d *Database) CloseTradeRow(ctx context.Context, ticket string, closePrice, profit float64, closedAt time.Time) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE trades SET status = 'CLOSED', close_price = ?, profit = ?, closed_at = ?
		WHERE ticket = ?`,
		closePrice, profit, closedAt, ticket)
	if err != nil {
		return fmt.Errorf("close trade row: %w", err)
	}
	return nil
}

// UpdateTradeProfit stores the latest recomputed profit of an open trade.
func (d *Database) UpdateTradeProfit(ctx context.Context, ticket string, profit float64) error {
	_, err := d.DB.ExecContext(ctx,
		`UPDATE trades SET profit = ? WHERE ticket = ? AND status = 'OPEN'`, profit, ticket)
	if err != nil {
		return fmt.Errorf("update trade profit: %w", err)
	}
	return nil
}

// ListTrades returns the most recent trades, newest first.
func (d *Database) ListTrades(ctx context.Context, limit int) ([]TradeRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT ticket, COALESCE(order_id,''), symbol, direction, volume, entry_price,
		       COALESCE(stop_loss,0), COALESCE(take_profit,0), close_price, profit, status, opened_at, closed_at
		FROM trades ORDER BY opened_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRow
	for rows.Next() {
		var t TradeRow
		if err := rows.Scan(&t.Ticket, &t.OrderID, &t.Symbol, &t.Direction, &t.Volume,
			&t.EntryPrice, &t.StopLoss, &t.TakeProfit, &t.ClosePrice, &t.Profit,
			&t.Status, &t.OpenedAt, &t.ClosedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RecordIssue inserts a detected issue.
func (d *Database) RecordIssue(ctx context.Context, i IssueRow) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT OR REPLACE INTO issues (id, type, component, severity, description, resolved, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.Type, i.Component, i.Severity, i.Description, i.Resolved, i.DetectedAt)
	if err != nil {
		return fmt.Errorf("record issue: %w", err)
	}
	return nil
}

// ResolveIssueRow marks an issue resolved.
func (d *Database) ResolveIssueRow(ctx context.Context, id string, at time.Time) error {
	_, err := d.DB.ExecContext(ctx,
		`UPDATE issues SET resolved = 1, resolved_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("resolve issue row: %w", err)
	}
	return nil
}

// RecordHealingAction upserts a healing action with its latest status.
func (d *Database) RecordHealingAction(ctx context.Context, id, issueID, action, status, result string, started, ended time.Time) error {
	var endedVal any
	if !ended.IsZero() {
		endedVal = ended
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT OR REPLACE INTO healing_actions (id, issue_id, action, status, result, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, issueID, action, status, result, started, endedVal)
	if err != nil {
		return fmt.Errorf("record healing action: %w", err)
	}
	return nil
}

// RecordDeploymentAttempt appends one poll attempt outcome.
func (d *Database) RecordDeploymentAttempt(ctx context.Context, accountID string, attempt int, state, detail string) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO deployment_attempts (account_id, attempt, state, detail)
		VALUES (?, ?, ?, ?)`,
		accountID, attempt, state, detail)
	if err != nil {
		return fmt.Errorf("record deployment attempt: %w", err)
	}
	return nil
}
