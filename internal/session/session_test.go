package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradingRequiresDeployedAccount(t *testing.T) {
	s := New("acc-1", "Broker-Demo")

	err := s.SetConnectionState(ConnTrading, "")
	require.ErrorIs(t, err, ErrNotDeployed)

	s.SetDeploymentState(DeployDeployed)
	require.NoError(t, s.SetConnectionState(ConnTrading, ""))

	state, reason := s.ConnectionState()
	assert.Equal(t, ConnTrading, state)
	assert.Empty(t, reason)
}

func TestErrorReasonClearedOnRecovery(t *testing.T) {
	s := New("acc-1", "Broker-Demo")

	require.NoError(t, s.SetConnectionState(ConnError, "gateway unreachable"))
	_, reason := s.ConnectionState()
	assert.Equal(t, "gateway unreachable", reason)

	require.NoError(t, s.SetConnectionState(ConnConnected, ""))
	_, reason = s.ConnectionState()
	assert.Empty(t, reason)
}

func TestEquityIsBalancePlusOpenProfit(t *testing.T) {
	s := New("acc-1", "Broker-Demo")
	s.SetAccountFigures(10000, 0, 10000)

	s.AddTrade(Trade{Ticket: "t1", Symbol: "XAUUSD", Direction: Buy, Volume: 0.5, EntryPrice: 2370, OpenTime: time.Now()})
	s.AddTrade(Trade{Ticket: "t2", Symbol: "XAUUSD", Direction: Sell, Volume: 0.5, EntryPrice: 2380, OpenTime: time.Now()})

	require.NoError(t, s.UpdateTradeProfit("t1", 25))
	require.NoError(t, s.UpdateTradeProfit("t2", -10))

	assert.InDelta(t, 10015, s.Equity(), 1e-9)
	assert.InDelta(t, 10000, s.Balance(), 1e-9)
}

func TestProfitUpdateIsIdempotent(t *testing.T) {
	s := New("acc-1", "Broker-Demo")
	s.SetAccountFigures(5000, 0, 5000)
	s.AddTrade(Trade{Ticket: "t1", Symbol: "XAUUSD", Direction: Buy, EntryPrice: 2370, OpenTime: time.Now()})

	require.NoError(t, s.UpdateTradeProfit("t1", 12.5))
	require.NoError(t, s.UpdateTradeProfit("t1", 12.5))

	assert.InDelta(t, 5012.5, s.Equity(), 1e-9)
}

func TestCloseTradeFoldsProfitIntoBalance(t *testing.T) {
	s := New("acc-1", "Broker-Demo")
	s.SetAccountFigures(10000, 0, 10000)
	s.AddTrade(Trade{Ticket: "t1", Symbol: "XAUUSD", Direction: Buy, EntryPrice: 2370, OpenTime: time.Now()})
	require.NoError(t, s.UpdateTradeProfit("t1", 30))

	closed, err := s.CloseTrade("t1", 2373, time.Now())
	require.NoError(t, err)
	assert.Equal(t, TradeClosed, closed.Status)
	assert.InDelta(t, 2373, closed.ClosePrice, 1e-9)

	assert.InDelta(t, 10030, s.Balance(), 1e-9)
	assert.InDelta(t, 10030, s.Equity(), 1e-9)
	assert.Empty(t, s.OpenTrades())

	_, err = s.CloseTrade("t1", 2373, time.Now())
	assert.ErrorIs(t, err, ErrTradeNotFound)
}

func TestTradesExecutedCountsAcceptedOrders(t *testing.T) {
	s := New("acc-1", "Broker-Demo")

	s.AddTrade(Trade{Ticket: "t1", OpenTime: time.Now()})
	s.AddTrade(Trade{Ticket: "t2", OpenTime: time.Now()})

	assert.Equal(t, 2, s.TradesExecuted())
	snap := s.Snapshot()
	assert.Equal(t, 2, snap.TradesExecuted)
	assert.Len(t, snap.OpenTrades, 2)
}

func TestUpdateProfitUnknownTicket(t *testing.T) {
	s := New("acc-1", "Broker-Demo")
	assert.ErrorIs(t, s.UpdateTradeProfit("missing", 1), ErrTradeNotFound)
}
