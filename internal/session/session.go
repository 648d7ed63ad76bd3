package session

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNotDeployed is returned when trading is requested before the broker
	// account reached the deployed state.
	ErrNotDeployed = errors.New("session: account not deployed")

	// ErrTradeNotFound is returned for operations on an unknown ticket.
	ErrTradeNotFound = errors.New("session: trade not found")
)

// Session is the shared account record. All mutation goes through its methods;
// each field has a single writing component while any component may read.
type Session struct {
	mu sync.RWMutex

	accountID string
	server    string

	connState  ConnectionState
	connReason string

	deployState DeploymentState

	balance    float64
	equity     float64
	margin     float64
	freeMargin float64

	trades map[string]*Trade

	tradesExecuted  int
	lastTradeResult string

	lastUpdated time.Time
}

// New creates a session in the disconnected, unregistered state.
func New(accountID, server string) *Session {
	return &Session{
		accountID:   accountID,
		server:      server,
		connState:   ConnDisconnected,
		deployState: DeployUnregistered,
		trades:      make(map[string]*Trade),
	}
}

// SetAccountID records the gateway-assigned account id once registration
// completes.
func (s *Session) SetAccountID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accountID = id
	s.touch()
}

// AccountID returns the gateway account id.
func (s *Session) AccountID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountID
}

// SetConnectionState moves the session link state. Entering Trading requires a
// deployed account. The reason is kept only for the Error state.
func (s *Session) SetConnectionState(state ConnectionState, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == ConnTrading && s.deployState != DeployDeployed {
		return ErrNotDeployed
	}
	s.connState = state
	if state == ConnError {
		s.connReason = reason
	} else {
		s.connReason = ""
	}
	s.touch()
	return nil
}

// ConnectionState returns the current link state and the error reason, which
// is empty outside the Error state.
func (s *Session) ConnectionState() (ConnectionState, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connState, s.connReason
}

// SetDeploymentState moves the provisioning lifecycle state.
func (s *Session) SetDeploymentState(state DeploymentState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deployState = state
	s.touch()
}

// DeploymentState returns the provisioning lifecycle state.
func (s *Session) DeploymentState() DeploymentState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deployState
}

// SetAccountFigures stores the latest balance, margin figures and recomputes
// equity from balance plus open profit.
func (s *Session) SetAccountFigures(balance, margin, freeMargin float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = balance
	s.margin = margin
	s.freeMargin = freeMargin
	s.equity = balance + s.openProfitLocked()
	s.touch()
}

// Balance returns the last known balance.
func (s *Session) Balance() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance
}

// Equity returns the last computed equity.
func (s *Session) Equity() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.equity
}

// AddTrade registers a trade and moves it to Open. The executed-trade counter
// increments here so observers see one count per accepted order.
func (s *Session) AddTrade(t Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Status = TradeOpen
	cp := t
	s.trades[t.Ticket] = &cp
	s.tradesExecuted++
	s.touch()
}

// UpdateTradeProfit overwrites the profit figure of an open trade and
// refreshes equity. Writing the same profit twice is harmless.
func (s *Session) UpdateTradeProfit(ticket string, profit float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[ticket]
	if !ok || t.Status != TradeOpen {
		return ErrTradeNotFound
	}
	t.Profit = profit
	s.equity = s.balance + s.openProfitLocked()
	s.touch()
	return nil
}

// CloseTrade marks a trade closed at the given price, folding its profit into
// the balance.
func (s *Session) CloseTrade(ticket string, price float64, at time.Time) (Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[ticket]
	if !ok || t.Status != TradeOpen {
		return Trade{}, ErrTradeNotFound
	}
	t.Status = TradeClosed
	t.ClosePrice = price
	t.CloseTime = at
	s.balance += t.Profit
	s.equity = s.balance + s.openProfitLocked()
	s.touch()
	return *t, nil
}

// OpenTrades returns copies of all open trades ordered by open time.
func (s *Session) OpenTrades() []Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Trade, 0, len(s.trades))
	for _, t := range s.trades {
		if t.Status == TradeOpen {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return out
}

// AllTrades returns copies of every trade the session has seen, open and
// closed, ordered by open time.
func (s *Session) AllTrades() []Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Trade, 0, len(s.trades))
	for _, t := range s.trades {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return out
}

// SetLastTradeResult records the outcome text of the most recent order
// attempt.
func (s *Session) SetLastTradeResult(result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTradeResult = result
	s.touch()
}

// TradesExecuted returns the accepted-order counter.
func (s *Session) TradesExecuted() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tradesExecuted
}

// Snapshot copies the whole session for observers.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	open := make([]Trade, 0, len(s.trades))
	for _, t := range s.trades {
		if t.Status == TradeOpen {
			open = append(open, *t)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].OpenTime.Before(open[j].OpenTime) })
	return Snapshot{
		AccountID:       s.accountID,
		Server:          s.server,
		ConnectionState: s.connState,
		ErrorReason:     s.connReason,
		DeploymentState: s.deployState,
		Balance:         s.balance,
		Equity:          s.equity,
		Margin:          s.margin,
		FreeMargin:      s.freeMargin,
		OpenTrades:      open,
		TradesExecuted:  s.tradesExecuted,
		LastTradeResult: s.lastTradeResult,
		LastUpdated:     s.lastUpdated,
	}
}

func (s *Session) openProfitLocked() float64 {
	var sum float64
	for _, t := range s.trades {
		if t.Status == TradeOpen {
			sum += t.Profit
		}
	}
	return sum
}

func (s *Session) touch() {
	s.lastUpdated = time.Now()
}
