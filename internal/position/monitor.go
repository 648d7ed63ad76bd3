package position

import (
	"context"
	"log"
	"sync"
	"time"

	"tradeops/internal/events"
	"tradeops/internal/gateway"
	"tradeops/internal/session"
	"tradeops/pkg/db"
)

// Gateway is the slice of the gateway client the monitor needs.
type Gateway interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
	FetchAccountSnapshot(ctx context.Context, accountID string) (gateway.AccountSnapshot, error)
}

// Config tunes the position loop.
type Config struct {
	Interval time.Duration
	// Window bounds how long each trade is profit-tracked after opening.
	// Past the window the trade stays open but its profit freezes.
	Window      time.Duration
	PipValue    float64
	VolumeScale float64
}

// Monitor recomputes open-trade profit from scratch each tick and keeps the
// session equity consistent with balance plus open profit.
type Monitor struct {
	cfg   Config
	gw    Gateway
	sess  *session.Session
	bus   *events.Bus
	audit *db.Database

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a monitor. bus and audit may be nil.
func New(cfg Config, gw Gateway, sess *session.Session, bus *events.Bus, audit *db.Database) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Minute
	}
	if cfg.PipValue <= 0 {
		cfg.PipValue = 0.10
	}
	if cfg.VolumeScale <= 0 {
		cfg.VolumeScale = 100
	}
	return &Monitor{
		cfg:    cfg,
		gw:     gw,
		sess:   sess,
		bus:    bus,
		audit:  audit,
		stopCh: make(chan struct{}),
	}
}

// Start launches the position loop.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		log.Printf("position: started, interval=%s window=%s", m.cfg.Interval, m.cfg.Window)

		for {
			select {
			case <-ticker.C:
				m.refresh(ctx)
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the loop and waits for the in-flight refresh.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// Refresh runs one monitoring pass immediately. Exposed for tests.
func (m *Monitor) Refresh(ctx context.Context) {
	m.refresh(ctx)
}

func (m *Monitor) refresh(ctx context.Context) {
	if figures, err := m.gw.FetchAccountSnapshot(ctx, m.sess.AccountID()); err == nil {
		m.sess.SetAccountFigures(figures.Balance, figures.Margin, figures.FreeMargin)
	} else {
		log.Printf("position: account snapshot failed: %v", err)
	}

	now := time.Now()
	for _, t := range m.sess.OpenTrades() {
		if now.Sub(t.OpenTime) > m.cfg.Window {
			continue
		}

		price, err := m.gw.CurrentPrice(ctx, t.Symbol)
		if err != nil {
			log.Printf("position: price for %s unavailable, using fallback %.2f: %v", t.Symbol, price, err)
		}

		profit := Profit(t.Direction, t.EntryPrice, price, m.cfg.PipValue, m.cfg.VolumeScale)
		if err := m.sess.UpdateTradeProfit(t.Ticket, profit); err != nil {
			continue
		}
		if m.audit != nil {
			if err := m.audit.UpdateTradeProfit(ctx, t.Ticket, profit); err != nil {
				log.Printf("position: audit write failed: %v", err)
			}
		}
	}

	if m.bus != nil {
		m.bus.Publish(events.EventPositionUpdate, m.sess.Snapshot())
	}
}

// CloseAll marks every open trade closed at the current quote and returns the
// closed trades.
func (m *Monitor) CloseAll(ctx context.Context) []session.Trade {
	var closed []session.Trade
	now := time.Now()
	for _, t := range m.sess.OpenTrades() {
		price, err := m.gw.CurrentPrice(ctx, t.Symbol)
		if err != nil {
			log.Printf("position: closing %s with fallback price %.2f: %v", t.Ticket, price, err)
		}
		profit := Profit(t.Direction, t.EntryPrice, price, m.cfg.PipValue, m.cfg.VolumeScale)
		_ = m.sess.UpdateTradeProfit(t.Ticket, profit)

		done, err := m.sess.CloseTrade(t.Ticket, price, now)
		if err != nil {
			continue
		}
		closed = append(closed, done)
		log.Printf("position: closed %s at %.2f, profit %.2f", done.Ticket, price, done.Profit)

		if m.audit != nil {
			if err := m.audit.CloseTradeRow(ctx, done.Ticket, price, done.Profit, now); err != nil {
				log.Printf("position: audit write failed: %v", err)
			}
		}
	}
	return closed
}

// Profit recomputes trade profit from scratch. The formula is direction-signed
// price movement scaled by pip value and contract size; recomputing is
// idempotent, so a repeated tick never drifts the figure.
func Profit(d session.Direction, entry, current, pipValue, volumeScale float64) float64 {
	diff := current - entry
	if d == session.Sell {
		diff = -diff
	}
	return diff * pipValue * volumeScale
}
