package session

import "time"

// ConnectionState describes the session's link to the trading gateway.
type ConnectionState string

const (
	ConnDisconnected ConnectionState = "DISCONNECTED"
	ConnConnecting   ConnectionState = "CONNECTING"
	ConnConnected    ConnectionState = "CONNECTED"
	ConnTrading      ConnectionState = "TRADING"
	ConnError        ConnectionState = "ERROR"
)

// DeploymentState tracks the broker-side account provisioning lifecycle.
type DeploymentState string

const (
	DeployUnregistered DeploymentState = "UNREGISTERED"
	DeployRegistered   DeploymentState = "REGISTERED"
	DeployDeploying    DeploymentState = "DEPLOYING"
	DeployDeployed     DeploymentState = "DEPLOYED"
	DeployFailed       DeploymentState = "FAILED"
)

// Direction is the order side.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// TradeStatus is the lifecycle status of a single trade. Rejected and
// Cancelled never enter the session's trade book; they appear only in the
// audit log, where failed order attempts are recorded.
type TradeStatus string

const (
	TradePending   TradeStatus = "PENDING"
	TradeOpen      TradeStatus = "OPEN"
	TradeClosed    TradeStatus = "CLOSED"
	TradeRejected  TradeStatus = "REJECTED"
	TradeCancelled TradeStatus = "CANCELLED"
)

// Trade is a single order tracked by the session.
type Trade struct {
	Ticket     string      `json:"ticket"`
	Symbol     string      `json:"symbol"`
	Direction  Direction   `json:"direction"`
	Volume     float64     `json:"volume"`
	EntryPrice float64     `json:"entryPrice"`
	StopLoss   float64     `json:"stopLoss"`
	TakeProfit float64     `json:"takeProfit"`
	OpenTime   time.Time   `json:"openTime"`
	CloseTime  time.Time   `json:"closeTime,omitempty"`
	ClosePrice float64     `json:"closePrice,omitempty"`
	Profit     float64     `json:"profit"`
	Status     TradeStatus `json:"status"`
}

// Snapshot is a point-in-time copy of the session for observers.
type Snapshot struct {
	AccountID       string          `json:"accountId"`
	Server          string          `json:"server"`
	ConnectionState ConnectionState `json:"connectionState"`
	ErrorReason     string          `json:"errorReason,omitempty"`
	DeploymentState DeploymentState `json:"deploymentState"`
	Balance         float64         `json:"balance"`
	Equity          float64         `json:"equity"`
	Margin          float64         `json:"margin"`
	FreeMargin      float64         `json:"freeMargin"`
	OpenTrades      []Trade         `json:"openTrades"`
	TradesExecuted  int             `json:"tradesExecuted"`
	LastTradeResult string          `json:"lastTradeResult,omitempty"`
	LastUpdated     time.Time       `json:"lastUpdated"`
}
