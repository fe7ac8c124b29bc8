// Package analytics derives display values from the backend's aggregate
// snapshot. It is read-only: the snapshot is replaced whole on every fetch.
package analytics

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"studio/internal/apiclient"
	"studio/internal/domain"
	"studio/internal/latest"
)

// Placeholder stands in for a value the server did not report.
const Placeholder = "—"

// Fetcher loads one snapshot.
type Fetcher interface {
	Analytics(ctx context.Context) apiclient.Result[domain.AnalyticsSnapshot]
}

// Card is one labelled stat.
type Card struct {
	Title string
	Value string
	Hint  string
}

// Bar is one row of a ranked chart. Width is a percentage in 0..100.
type Bar struct {
	Label string
	Value int
	Width int
}

// ViewModel holds the latest snapshot. It is driven from a single event loop.
type ViewModel struct {
	guard latest.Guard
	snap  *domain.AnalyticsSnapshot
	err   string
	log   *zap.Logger
}

func New(log *zap.Logger) *ViewModel {
	if log == nil {
		log = zap.NewNop()
	}
	return &ViewModel{log: log}
}

// Begin issues a refresh ticket, superseding any refresh still outstanding.
func (v *ViewModel) Begin() latest.Ticket { return v.guard.Next() }

// Settle applies the response for t if t is still the latest refresh. A
// success replaces the snapshot wholesale; a failure keeps it and records
// the error.
func (v *ViewModel) Settle(t latest.Ticket, res apiclient.Result[domain.AnalyticsSnapshot]) bool {
	if !v.guard.Settle(t) {
		v.log.Debug("discarded stale analytics response", zap.Uint64("ticket", uint64(t)))
		return false
	}
	if !res.OK() {
		v.err = res.Err.Message("Could not load analytics")
		v.log.Warn("analytics refresh failed", zap.Stringer("kind", res.Err.Kind), zap.String("message", v.err))
		return true
	}
	snap := res.Value
	v.snap = &snap
	v.err = ""
	return true
}

// Refresh fetches on the calling goroutine.
func (v *ViewModel) Refresh(ctx context.Context, f Fetcher) {
	t := v.Begin()
	v.Settle(t, f.Analytics(ctx))
}

func (v *ViewModel) Loading() bool { return v.guard.Pending() }

func (v *ViewModel) Err() string { return v.err }

// Snapshot returns the current snapshot and whether one has arrived.
func (v *ViewModel) Snapshot() (domain.AnalyticsSnapshot, bool) {
	if v.snap == nil {
		return domain.AnalyticsSnapshot{}, false
	}
	return *v.snap, true
}

func (v *ViewModel) current() domain.AnalyticsSnapshot {
	s, _ := v.Snapshot()
	return s
}

// Insights are the analytics page cards. Missing values show Placeholder.
func (v *ViewModel) Insights() []Card {
	s := v.current()
	return []Card{
		{Title: "Top Topic", Value: orDash(s.TopKeyword), Hint: "last 30 days"},
		{Title: "Newest Paper", Value: orDash(s.NewestPaper), Hint: "recency"},
		{Title: "Most Queried", Value: orDash(s.MostQueried), Hint: "chat"},
		{Title: "Library Size", Value: countOr(s.LibrarySize, Placeholder), Hint: "papers"},
	}
}

// Overview are the home page cards. Missing counts show zero.
func (v *ViewModel) Overview() []Card {
	s := v.current()
	return []Card{
		{Title: "Papers", Value: countOr(s.LibrarySize, "0"), Hint: "library"},
		{Title: "Embeddings", Value: countOr(s.EmbeddingsCount, "0"), Hint: "vector index"},
		{Title: "Chats", Value: countOr(s.ChatCount, "0"), Hint: "history"},
		{Title: "Last Import", Value: orDash(s.LastImport), Hint: "recent"},
	}
}

// TopicBars and SourceBars chart the ranked lists of the current snapshot.
func (v *ViewModel) TopicBars() []Bar  { return Bars(v.current().Topics) }
func (v *ViewModel) SourceBars() []Bar { return Bars(v.current().Sources) }

// Bars converts ranked items into chart rows. Widths are clamped to 0..100;
// values are reported unchanged and items is not modified.
func Bars(items []domain.RankedItem) []Bar {
	out := make([]Bar, 0, len(items))
	for _, it := range items {
		out = append(out, Bar{Label: it.Label, Value: it.Value, Width: clamp(it.Value, 0, 100)})
	}
	return out
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func orDash(s string) string {
	if s == "" {
		return Placeholder
	}
	return s
}

func countOr(n *int, fallback string) string {
	if n == nil {
		return fallback
	}
	return strconv.Itoa(*n)
}
