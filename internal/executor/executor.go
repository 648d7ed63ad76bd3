package executor

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradeops/internal/events"
	"tradeops/internal/gateway"
	"tradeops/internal/monitor"
	"tradeops/internal/session"
	"tradeops/pkg/db"
)

// SignalFunc decides the direction of the next order.
type SignalFunc func() session.Direction

// RandomSignal is the default direction source.
func RandomSignal() session.Direction {
	if rand.Intn(2) == 0 {
		return session.Buy
	}
	return session.Sell
}

// Gateway is the slice of the gateway client the executor needs.
type Gateway interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
	SubmitOrder(ctx context.Context, accountID string, req gateway.OrderRequest) (gateway.OrderResult, error)
}

// Config tunes the trade loop.
type Config struct {
	Interval         time.Duration
	Symbol           string
	Volume           float64
	StopLossOffset   float64
	TakeProfitOffset float64
	Comment          string
	Magic            int
}

// Executor places at most one market order per tick. The loop runs the tick
// work inline, so ticks never overlap; a slow gateway call simply delays the
// next tick.
type Executor struct {
	cfg     Config
	gw      Gateway
	sess    *session.Session
	bus     *events.Bus
	metrics *monitor.SystemMetrics
	audit   *db.Database
	signal  SignalFunc

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates an executor. bus, metrics and audit may be nil; signal defaults
// to RandomSignal.
func New(cfg Config, gw Gateway, sess *session.Session, bus *events.Bus, metrics *monitor.SystemMetrics, audit *db.Database, signal SignalFunc) *Executor {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if signal == nil {
		signal = RandomSignal
	}
	return &Executor{
		cfg:     cfg,
		gw:      gw,
		sess:    sess,
		bus:     bus,
		metrics: metrics,
		audit:   audit,
		signal:  signal,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the trade loop.
func (e *Executor) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.cfg.Interval)
		defer ticker.Stop()
		log.Printf("executor: started, interval=%s symbol=%s", e.cfg.Interval, e.cfg.Symbol)

		for {
			select {
			case <-ticker.C:
				e.executeTick(ctx)
			case <-e.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the loop and waits for any in-flight tick to finish.
func (e *Executor) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

// ExecuteTick runs one tick immediately. Exposed for the engine's manual
// trigger and for tests.
func (e *Executor) ExecuteTick(ctx context.Context) {
	e.executeTick(ctx)
}

func (e *Executor) executeTick(ctx context.Context) {
	if e.metrics != nil {
		e.metrics.IncrementTicks()
	}

	state, _ := e.sess.ConnectionState()
	if state != session.ConnTrading {
		// Not an error; the account is simply not in a tradable state.
		return
	}

	price, err := e.gw.CurrentPrice(ctx, e.cfg.Symbol)
	if err != nil {
		// Fallback price keeps the tick alive; a stale quote beats a
		// skipped execution here.
		log.Printf("executor: price fetch failed, using fallback %.2f: %v", price, err)
	}

	direction := e.signal()
	req := gateway.OrderRequest{
		ActionType: string(direction),
		Symbol:     e.cfg.Symbol,
		Volume:     e.cfg.Volume,
		StopLoss:   price + e.offsetFor(direction, e.cfg.StopLossOffset),
		TakeProfit: price + e.offsetFor(direction, e.cfg.TakeProfitOffset),
		Comment:    e.cfg.Comment,
		ClientID:   uuid.NewString(),
		Magic:      e.cfg.Magic,
	}

	res, err := e.gw.SubmitOrder(ctx, e.sess.AccountID(), req)
	if err != nil {
		e.recordFailure(ctx, req, price, err)
		return
	}

	trade := session.Trade{
		Ticket:     res.OrderID,
		Symbol:     e.cfg.Symbol,
		Direction:  direction,
		Volume:     e.cfg.Volume,
		EntryPrice: price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		OpenTime:   time.Now(),
		Status:     session.TradePending,
	}
	e.sess.AddTrade(trade)
	e.sess.SetLastTradeResult(fmt.Sprintf("%s %s %.2f @ %.2f ok", direction, e.cfg.Symbol, e.cfg.Volume, price))
	log.Printf("executor: order accepted, ticket=%s %s %.2f @ %.2f", res.OrderID, direction, e.cfg.Volume, price)

	if e.metrics != nil {
		e.metrics.IncrementOrders()
	}
	if e.bus != nil {
		e.bus.Publish(events.EventTradeExecuted, trade)
	}
	if e.audit != nil {
		if err := e.audit.RecordTrade(ctx, db.TradeRow{
			Ticket:     trade.Ticket,
			OrderID:    res.OrderID,
			Symbol:     trade.Symbol,
			Direction:  string(trade.Direction),
			Volume:     trade.Volume,
			EntryPrice: trade.EntryPrice,
			StopLoss:   trade.StopLoss,
			TakeProfit: trade.TakeProfit,
			Status:     string(session.TradeOpen),
			OpenedAt:   trade.OpenTime,
		}); err != nil {
			log.Printf("executor: audit write failed: %v", err)
		}
	}
}

// recordFailure logs the rejection, publishes it for the health supervisor,
// and leaves a REJECTED row in the audit log under the client order id. The
// session's trade book never sees the attempt, and no retry happens within
// the tick.
func (e *Executor) recordFailure(ctx context.Context, req gateway.OrderRequest, price float64, err error) {
	reason := "order failed"
	switch gateway.KindOf(err) {
	case gateway.KindRejected:
		reason = "order rejected"
	case gateway.KindTimeout:
		reason = "order timed out"
	case gateway.KindNetwork:
		reason = "gateway unreachable"
	}
	e.sess.SetLastTradeResult(fmt.Sprintf("%s %s: %s", req.ActionType, e.cfg.Symbol, reason))
	log.Printf("executor: %s: %v", reason, err)

	if e.metrics != nil {
		e.metrics.IncrementRejections()
		e.metrics.IncrementErrors()
	}
	if e.bus != nil {
		e.bus.Publish(events.EventTradeRejected, err.Error())
	}
	if e.audit != nil {
		if dbErr := e.audit.RecordTrade(ctx, db.TradeRow{
			Ticket:     req.ClientID,
			Symbol:     req.Symbol,
			Direction:  req.ActionType,
			Volume:     req.Volume,
			EntryPrice: price,
			StopLoss:   req.StopLoss,
			TakeProfit: req.TakeProfit,
			Status:     string(session.TradeRejected),
			OpenedAt:   time.Now(),
		}); dbErr != nil {
			log.Printf("executor: audit write failed: %v", dbErr)
		}
	}
}

// offsetFor mirrors the SL/TP distances for sells.
func (e *Executor) offsetFor(d session.Direction, offset float64) float64 {
	if d == session.Sell {
		return -offset
	}
	return offset
}
