package gateway

// DeployState is the provisioning state the gateway reports for an account.
type DeployState string

const (
	StateDeployed   DeployState = "DEPLOYED"
	StateDeploying  DeployState = "DEPLOYING"
	StateUndeployed DeployState = "UNDEPLOYED"
	StateFailed     DeployState = "FAILED"
	// StateUnknown is reported when the gateway could not be reached.
	// An unreachable gateway is never treated as deployed.
	StateUnknown DeployState = "UNKNOWN"
)

// RegisterRequest carries the broker credentials for account registration.
// Credentials arrive from configuration, never from literals.
type RegisterRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Server   string `json:"server"`
	Platform string `json:"platform"`
	Magic    int    `json:"magic"`
}

// RegisterResult reports the account id and whether the account already
// existed. An existing account is a success, not an error.
type RegisterResult struct {
	AccountID     string
	AlreadyExists bool
}

// OrderRequest is a market order submission.
type OrderRequest struct {
	ActionType string  `json:"actionType"`
	Symbol     string  `json:"symbol"`
	Volume     float64 `json:"volume"`
	StopLoss   float64 `json:"stopLoss,omitempty"`
	TakeProfit float64 `json:"takeProfit,omitempty"`
	Comment    string  `json:"comment,omitempty"`
	ClientID   string  `json:"clientId,omitempty"`
	Magic      int     `json:"magic,omitempty"`
}

// OrderResult is the gateway's acknowledgement of an accepted order.
type OrderResult struct {
	OrderID    string `json:"orderId"`
	PositionID string `json:"positionId,omitempty"`
}

// AccountSnapshot holds the account figures the gateway reports.
type AccountSnapshot struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"freeMargin"`
}

// Price is a bid/ask quote for a symbol.
type Price struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

// Mid returns the quote midpoint.
func (p Price) Mid() float64 {
	return (p.Bid + p.Ask) / 2
}
