package history

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/optionrun/internal/domain"
)

// Sink receives completed trade records for external persistence. Storage
// failures are logged, never allowed to fail the trade that produced them.
type Sink interface {
	Store(ctx context.Context, rec domain.TradeRecord) error
}

// Journal is the in-memory, append-only sequence of completed fills.
// Records are immutable once appended.
type Journal struct {
	mu      sync.RWMutex
	records []domain.TradeRecord
	sink    Sink // optional
}

// NewJournal builds a journal. sink may be nil.
func NewJournal(sink Sink) *Journal {
	return &Journal{sink: sink}
}

// Append records a fill and forwards it to the sink if one is configured.
func (j *Journal) Append(ctx context.Context, rec domain.TradeRecord) {
	j.mu.Lock()
	j.records = append(j.records, rec)
	j.mu.Unlock()

	log.Info().Str("symbol", rec.Symbol).Str("side", rec.Side.String()).
		Int64("quantity", rec.Quantity).Float64("price", rec.Price).
		Str("reason", rec.Reason).Msg("Trade recorded")

	if j.sink != nil {
		if err := j.sink.Store(ctx, rec); err != nil {
			log.Error().Err(err).Str("trade_id", rec.ID).Msg("Trade sink store failed")
		}
	}
}

// Records returns a copy of the full sequence in append order.
func (j *Journal) Records() []domain.TradeRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]domain.TradeRecord, len(j.records))
	copy(out, j.records)
	return out
}

// Len returns the number of recorded trades.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.records)
}

// RecordsOn returns the trades whose timestamp falls on the given day in
// the given location.
func (j *Journal) RecordsOn(day time.Time, loc *time.Location) []domain.TradeRecord {
	want := day.In(loc).Format("2006-01-02")
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []domain.TradeRecord
	for _, rec := range j.records {
		if rec.Time.In(loc).Format("2006-01-02") == want {
			out = append(out, rec)
		}
	}
	return out
}

// NetCashFlowOn sums the signed notional of the day's fills: sells credit,
// buys debit. For a flat book this equals the day's realized P&L.
func (j *Journal) NetCashFlowOn(day time.Time, loc *time.Location) float64 {
	var net float64
	for _, rec := range j.RecordsOn(day, loc) {
		if rec.Side == domain.Sell {
			net += rec.Notional
		} else {
			net -= rec.Notional
		}
	}
	return net
}
