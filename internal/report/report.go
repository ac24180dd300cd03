// Package report observes a run: task lifecycle and selection adjustments
// logged as they happen, and an end-of-run summary table of outcomes and
// spend.
package report

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/jackzampolin/folio/internal/cache"
	"github.com/jackzampolin/folio/internal/scheduler"
)

// Reporter implements scheduler.Events and selector.Events over slog while
// collecting the counts for the summary.
type Reporter struct {
	logger *slog.Logger

	mu         sync.Mutex
	started    time.Time
	byKind     map[string]*kindCounts
	failedDocs map[string]bool
}

type kindCounts struct {
	done    int
	skipped int
	failed  int
	costUSD float64
}

// New creates a reporter.
func New(logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		logger:     logger,
		started:    time.Now(),
		byKind:     make(map[string]*kindCounts),
		failedDocs: make(map[string]bool),
	}
}

// TaskStarted implements scheduler.Events.
func (r *Reporter) TaskStarted(t *scheduler.Task) {
	r.logger.Debug("task started", "task", t.ID, "kind", t.Kind, "doc", t.DocID)
}

// TaskFinished implements scheduler.Events.
func (r *Reporter) TaskFinished(t *scheduler.Task, state scheduler.State, err error, attempts int, costUSD float64) {
	r.mu.Lock()
	counts, ok := r.byKind[t.Kind]
	if !ok {
		counts = &kindCounts{}
		r.byKind[t.Kind] = counts
	}
	counts.costUSD += costUSD
	switch state {
	case scheduler.StateDone:
		counts.done++
	case scheduler.StateSkipped:
		counts.skipped++
	case scheduler.StateFailed:
		counts.failed++
		if t.DocID != "" {
			r.failedDocs[t.DocID] = true
		}
	}
	r.mu.Unlock()

	switch state {
	case scheduler.StateFailed:
		r.logger.Warn("task failed",
			"task", t.ID, "kind", t.Kind, "doc", t.DocID,
			"attempts", attempts, "error", err)
	case scheduler.StateSkipped:
		r.logger.Info("task skipped", "task", t.ID, "kind", t.Kind, "doc", t.DocID)
	default:
		r.logger.Info("task done", "task", t.ID, "kind", t.Kind, "doc", t.DocID)
	}
}

// SelectionAdjusted implements selector.Events.
func (r *Reporter) SelectionAdjusted(docID, reason, detail string) {
	r.logger.Info("selection adjusted", "doc", docID, "reason", reason, "detail", detail)
}

// FailedDocuments returns the IDs of documents with at least one failed
// task, sorted.
func (r *Reporter) FailedDocuments() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.failedDocs))
	for id := range r.failedDocs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Summary renders the end-of-run table: per-kind outcomes plus the cache
// ledger's economics.
func (r *Reporter) Summary(ledger cache.LedgerSnapshot, totalCostUSD float64) string {
	r.mu.Lock()
	kinds := make([]string, 0, len(r.byKind))
	for kind := range r.byKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Pass", "Done", "Skipped", "Failed", "Cost"})
	for _, kind := range kinds {
		c := r.byKind[kind]
		tw.AppendRow(table.Row{kind, c.done, c.skipped, c.failed, fmt.Sprintf("$%.4f", c.costUSD)})
	}
	failedDocs := len(r.failedDocs)
	elapsed := time.Since(r.started).Round(time.Second)
	r.mu.Unlock()

	tw.AppendFooter(table.Row{"elapsed", elapsed, "failed docs", failedDocs, ""})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})

	ew := table.NewWriter()
	ew.SetStyle(table.StyleRounded)
	ew.AppendHeader(table.Row{"Spent", "Saved", "Tokens", "Hits", "Misses"})
	ew.AppendRow(table.Row{
		fmt.Sprintf("$%.4f", totalCostUSD),
		fmt.Sprintf("$%.4f", ledger.SavedUSD),
		ledger.SpentTokens,
		ledger.Hits,
		ledger.Misses,
	})

	return tw.Render() + "\n" + ew.Render()
}
