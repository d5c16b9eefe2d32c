package lifecycle

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/optionrun/internal/broker"
	"github.com/sawpanic/optionrun/internal/domain"
)

// OpenPosition opens a new long position in symbol. It requires trading
// hours, market-condition approval, and portfolio headroom, then submits a
// market order and waits for the fill. The contract's greeks are recorded
// on the position at fill so the per-position and portfolio greek limits
// apply from the first risk pass. Terminal failures are surfaced without
// retry; only transient submission errors consume the retry budget.
func (m *Manager) OpenPosition(ctx context.Context, snap *domain.MarketSnapshot, symbol string, quantity int64, greeks domain.Greeks, reason string) Result {
	now := snap.Timestamp
	if quantity <= 0 {
		return refused("quantity must be positive, got %d", quantity)
	}
	if !m.clk.IsTradingTime(now) {
		return refused("outside trading session")
	}
	if res := m.risk.MarketConditionOK(snap.VIX, now); !res.OK {
		m.recordViolation(res.Violation)
		return refused("market condition: %s", res.Reason())
	}

	m.mu.Lock()
	if _, busy := m.inflight[symbol]; busy {
		m.mu.Unlock()
		return refused("order already in flight for %s", symbol)
	}
	if _, open := m.positions[symbol]; open {
		m.mu.Unlock()
		return refused("position already open for %s", symbol)
	}
	held := make([]*domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		held = append(held, p)
	}
	m.mu.Unlock()

	if res := m.risk.PortfolioRiskOK(held); !res.OK {
		m.recordViolation(res.Violation)
		return refused("portfolio risk: %s", res.Reason())
	}

	order := &domain.Order{
		ClientID: uuid.NewString(),
		Symbol:   symbol,
		Side:     domain.Buy,
		Quantity: quantity,
		Kind:     domain.Market,
		Reason:   reason,
		Status:   domain.Pending,
	}
	if !m.reserve(symbol, order) {
		return refused("order already in flight for %s", symbol)
	}
	defer m.release(symbol)

	detail, res := m.executeOrder(ctx, order)
	if !res.OK {
		return res
	}

	trade := m.recordFill(ctx, order, detail, now)
	m.mu.Lock()
	pos := &domain.Position{
		Symbol:    symbol,
		Quantity:  detail.FilledQuantity,
		CostBasis: detail.AvgFillPrice,
		EntryTime: now,
		Greeks:    greeks,
	}
	pos.UpdateMark(detail.AvgFillPrice)
	m.positions[symbol] = pos
	m.updateOpenPositionsGauge()
	m.mu.Unlock()

	log.Info().Str("symbol", symbol).Int64("quantity", detail.FilledQuantity).
		Float64("price", detail.AvgFillPrice).Str("reason", reason).
		Msg("Position opened")
	return Result{OK: true, Reason: "filled", Order: order, Trade: trade}
}

// ClosePosition closes ratio of the held quantity, ratio in (0, 1]. The
// submitted quantity is floor(held*ratio) with a floor of one contract.
// Closing a symbol with no open position fails without side effects.
func (m *Manager) ClosePosition(ctx context.Context, snap *domain.MarketSnapshot, symbol, reason string, ratio float64) Result {
	if ratio <= 0 || ratio > 1 {
		return refused("close ratio must be in (0, 1], got %.2f", ratio)
	}

	m.mu.Lock()
	pos, open := m.positions[symbol]
	if !open {
		m.mu.Unlock()
		return refused("no open position for %s", symbol)
	}
	if _, busy := m.inflight[symbol]; busy {
		m.mu.Unlock()
		return refused("order already in flight for %s", symbol)
	}
	held := pos.AbsQuantity()
	costBasis := pos.CostBasis
	short := pos.Quantity < 0
	m.mu.Unlock()

	quantity := int64(math.Floor(float64(held) * ratio))
	if quantity < 1 {
		quantity = 1
	}
	if quantity > held {
		quantity = held
	}

	side := domain.Sell
	if short {
		side = domain.Buy
	}
	order := &domain.Order{
		ClientID: uuid.NewString(),
		Symbol:   symbol,
		Side:     side,
		Quantity: quantity,
		Kind:     domain.Market,
		Reason:   reason,
		Status:   domain.Pending,
	}
	if !m.reserve(symbol, order) {
		return refused("order already in flight for %s", symbol)
	}
	defer m.release(symbol)

	detail, res := m.executeOrder(ctx, order)
	if !res.OK {
		return res
	}

	// Reduce the book by what actually filled, which may be less than the
	// requested quantity.
	filled := detail.FilledQuantity
	if filled > held {
		filled = held
	}
	realized := (detail.AvgFillPrice - costBasis) * float64(filled)
	if short {
		realized = -realized
	}
	m.risk.RecordRealized(snap.Timestamp, realized)

	trade := m.recordFill(ctx, order, detail, snap.Timestamp)
	m.mu.Lock()
	if pos, open := m.positions[symbol]; open {
		if short {
			pos.Quantity += filled
		} else {
			pos.Quantity -= filled
		}
		if pos.Quantity == 0 {
			delete(m.positions, symbol)
		}
	}
	m.updateOpenPositionsGauge()
	m.mu.Unlock()

	log.Info().Str("symbol", symbol).Int64("quantity", filled).Float64("ratio", ratio).
		Float64("realized", realized).Str("reason", reason).
		Msg("Position closed")
	return Result{OK: true, Reason: "filled", Order: order, Trade: trade}
}

// CloseAllPositions attempts to fully close every active position. One
// symbol's failure does not stop the others; the aggregate succeeds only
// if every close succeeded.
func (m *Manager) CloseAllPositions(ctx context.Context, snap *domain.MarketSnapshot, reason string) (map[string]Result, bool) {
	m.mu.Lock()
	symbols := make([]string, 0, len(m.positions))
	for sym := range m.positions {
		symbols = append(symbols, sym)
	}
	m.mu.Unlock()

	results := make(map[string]Result, len(symbols))
	allOK := true
	for _, sym := range symbols {
		res := m.ClosePosition(ctx, snap, sym, reason, 1.0)
		results[sym] = res
		if !res.OK {
			allOK = false
			log.Error().Str("symbol", sym).Str("reason", res.Reason).
				Msg("Close failed during close-all")
		}
	}
	return results, allOK
}

// executeOrder submits the order with bounded retry and polls it to a
// terminal status. The order's Status field reflects the outcome.
func (m *Manager) executeOrder(ctx context.Context, order *domain.Order) (broker.OrderDetail, Result) {
	orderID, err := m.submitWithRetry(ctx, order)
	if err != nil {
		order.Status = domain.Rejected
		m.metrics.OrderOutcomes.WithLabelValues(order.Status.String()).Inc()
		return broker.OrderDetail{}, Result{OK: false, Reason: "submit failed: " + err.Error(), Order: order}
	}
	order.ID = orderID
	order.SubmittedAt = time.Now()
	m.metrics.OrdersSubmitted.WithLabelValues(order.Side.String()).Inc()

	detail := m.pollUntilTerminal(ctx, orderID)
	order.Status = detail.Status
	m.metrics.OrderOutcomes.WithLabelValues(order.Status.String()).Inc()
	m.metrics.FillWaitSeconds.Observe(time.Since(order.SubmittedAt).Seconds())

	if detail.Status != domain.Filled {
		return detail, Result{OK: false, Reason: "order " + detail.Status.String(), Order: order}
	}
	return detail, Result{OK: true, Order: order}
}

// submitWithRetry submits the order, retrying transient adapter errors up
// to the configured budget with a fixed delay. Terminal errors surface
// immediately.
func (m *Manager) submitWithRetry(ctx context.Context, order *domain.Order) (string, error) {
	req := broker.OrderRequest{
		Symbol:   order.Symbol,
		Side:     order.Side,
		Quantity: order.Quantity,
		Kind:     order.Kind,
		Remark:   order.Reason,
		ClientID: order.ClientID,
	}

	var lastErr error
	for attempt := 0; attempt <= m.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			m.metrics.SubmitRetries.Inc()
			if err := m.sleeper.Sleep(ctx, m.cfg.RetryDelay); err != nil {
				return "", err
			}
		}
		id, err := m.adapter.SubmitOrder(ctx, req)
		if err == nil {
			return id, nil
		}
		if !broker.IsTransient(err) {
			return "", err
		}
		lastErr = err
		log.Warn().Err(err).Str("symbol", order.Symbol).Int("attempt", attempt+1).
			Msg("Transient submit failure")
	}
	return "", lastErr
}

// pollUntilTerminal polls order status at a fixed interval up to the
// configured attempt budget. Exhausting the budget is a timeout, not an
// error: the order is cancelled exactly once and reported TimedOut.
func (m *Manager) pollUntilTerminal(ctx context.Context, orderID string) broker.OrderDetail {
	for attempt := 0; attempt < m.cfg.PollAttempts; attempt++ {
		detail, err := m.adapter.OrderDetail(ctx, orderID)
		if err != nil {
			log.Warn().Err(err).Str("order_id", orderID).Msg("Order status poll failed")
		} else if detail.Status.Terminal() {
			return detail
		}
		if err := m.sleeper.Sleep(ctx, m.cfg.PollInterval); err != nil {
			break
		}
	}

	if _, err := m.adapter.CancelOrder(ctx, orderID); err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("Cancel after poll timeout failed")
	}
	log.Warn().Str("order_id", orderID).Int("attempts", m.cfg.PollAttempts).
		Msg("Fill poll budget exhausted, order cancelled")
	return broker.OrderDetail{ID: orderID, Status: domain.TimedOut}
}

// recordFill appends the trade record for a filled order.
func (m *Manager) recordFill(ctx context.Context, order *domain.Order, detail broker.OrderDetail, at time.Time) *domain.TradeRecord {
	trade := &domain.TradeRecord{
		ID:       uuid.NewString(),
		Time:     at,
		Symbol:   order.Symbol,
		Side:     order.Side,
		Quantity: detail.FilledQuantity,
		Price:    detail.AvgFillPrice,
		Notional: detail.AvgFillPrice * float64(detail.FilledQuantity),
		Reason:   order.Reason,
		OrderID:  order.ID,
	}
	m.journal.Append(ctx, *trade)
	return trade
}
