package cache

import "sync/atomic"

// Ledger tracks run economics: dollars and tokens actually spent on model
// calls versus avoided through cache hits. Dollar amounts are stored as
// micro-USD so the counters stay atomic integers.
type Ledger struct {
	spentMicroUSD atomic.Int64
	savedMicroUSD atomic.Int64
	spentTokens   atomic.Int64
	savedTokens   atomic.Int64
	hits          atomic.Int64
	misses        atomic.Int64
}

// LedgerSnapshot is a point-in-time copy of the counters.
type LedgerSnapshot struct {
	SpentUSD    float64
	SavedUSD    float64
	SpentTokens int64
	SavedTokens int64
	Hits        int64
	Misses      int64
}

// NewLedger returns a zeroed ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// RecordSpend accounts for a model call that actually ran.
func (l *Ledger) RecordSpend(costUSD float64, tokens int) {
	l.spentMicroUSD.Add(toMicroUSD(costUSD))
	l.spentTokens.Add(int64(tokens))
}

// RecordHit accounts for a cache hit and the spend it avoided.
func (l *Ledger) RecordHit(avoidedCostUSD float64, avoidedTokens int) {
	l.hits.Add(1)
	l.savedMicroUSD.Add(toMicroUSD(avoidedCostUSD))
	l.savedTokens.Add(int64(avoidedTokens))
}

// RecordMiss accounts for a cache miss.
func (l *Ledger) RecordMiss() {
	l.misses.Add(1)
}

// Snapshot returns the current totals.
func (l *Ledger) Snapshot() LedgerSnapshot {
	return LedgerSnapshot{
		SpentUSD:    fromMicroUSD(l.spentMicroUSD.Load()),
		SavedUSD:    fromMicroUSD(l.savedMicroUSD.Load()),
		SpentTokens: l.spentTokens.Load(),
		SavedTokens: l.savedTokens.Load(),
		Hits:        l.hits.Load(),
		Misses:      l.misses.Load(),
	}
}

func toMicroUSD(usd float64) int64 {
	return int64(usd*1e6 + 0.5)
}

func fromMicroUSD(micro int64) float64 {
	return float64(micro) / 1e6
}
