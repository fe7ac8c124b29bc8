// Package library is the view model behind the paper list: fetched entries,
// a local substring filter, and last-request-wins refreshes.
package library

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"studio/internal/apiclient"
	"studio/internal/domain"
	"studio/internal/latest"
)

// EmptyText is shown when the library has no papers.
const EmptyText = "No papers yet, upload one to get started."

const cacheKey = "library"

// Cache holds recent library listings. It is created and purged by the
// application, never by the view model.
type Cache = expirable.LRU[string, []domain.LibraryEntry]

// NewCache returns a cache with at most size listings kept for ttl.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 1
	}
	return expirable.NewLRU[string, []domain.LibraryEntry](size, nil, ttl)
}

// Lister fetches the library.
type Lister interface {
	Library(ctx context.Context) apiclient.Result[[]domain.LibraryEntry]
}

// ViewModel is driven from a single event loop.
type ViewModel struct {
	guard   latest.Guard
	entries []domain.LibraryEntry
	loaded  bool
	err     string
	query   string
	cache   *Cache
	log     *zap.Logger
}

// New returns an empty view model. cache may be nil.
func New(cache *Cache, log *zap.Logger) *ViewModel {
	if log == nil {
		log = zap.NewNop()
	}
	return &ViewModel{cache: cache, log: log}
}

// FromCache shows a still-fresh cached listing, reporting whether one existed.
func (v *ViewModel) FromCache() bool {
	if v.cache == nil {
		return false
	}
	entries, ok := v.cache.Get(cacheKey)
	if !ok {
		return false
	}
	v.entries = entries
	v.loaded = true
	v.err = ""
	return true
}

// Invalidate drops the cached listing, e.g. after a new paper was ingested.
func (v *ViewModel) Invalidate() {
	if v.cache != nil {
		v.cache.Remove(cacheKey)
	}
}

// Begin issues a refresh ticket. Any earlier outstanding refresh becomes stale.
func (v *ViewModel) Begin() latest.Ticket {
	return v.guard.Next()
}

// Settle applies the response for t. Stale responses are dropped; failures
// keep the entries already shown and set an error.
func (v *ViewModel) Settle(t latest.Ticket, res apiclient.Result[[]domain.LibraryEntry]) bool {
	if !v.guard.Settle(t) {
		v.log.Debug("discarded stale library response", zap.Uint64("ticket", uint64(t)))
		return false
	}
	if !res.OK() {
		v.err = res.Err.Message("Could not load library")
		v.log.Warn("library refresh failed", zap.Stringer("kind", res.Err.Kind), zap.String("message", v.err))
		return true
	}
	v.entries = res.Value
	v.loaded = true
	v.err = ""
	if v.cache != nil {
		v.cache.Add(cacheKey, res.Value)
	}
	v.log.Debug("library refreshed", zap.Int("entries", len(res.Value)))
	return true
}

// Refresh fetches on the calling goroutine.
func (v *ViewModel) Refresh(ctx context.Context, l Lister) {
	t := v.Begin()
	v.Settle(t, l.Library(ctx))
}

// Loading reports whether the latest refresh is outstanding.
func (v *ViewModel) Loading() bool { return v.guard.Pending() }

// Loaded reports whether any listing has been shown.
func (v *ViewModel) Loaded() bool { return v.loaded }

// Err is the message of the latest failed refresh, or empty.
func (v *ViewModel) Err() string { return v.err }

// SetQuery changes the search filter.
func (v *ViewModel) SetQuery(q string) { v.query = q }

// Query returns the search filter.
func (v *ViewModel) Query() string { return v.query }

// All returns every entry of the latest listing.
func (v *ViewModel) All() []domain.LibraryEntry {
	return append([]domain.LibraryEntry(nil), v.entries...)
}

// Visible returns the entries matching the current query.
func (v *ViewModel) Visible() []domain.LibraryEntry {
	return Filter(v.entries, v.query)
}

// Filter keeps entries whose title or source contains q, ignoring case.
// A blank query keeps everything. The input is not modified.
func Filter(entries []domain.LibraryEntry, q string) []domain.LibraryEntry {
	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]domain.LibraryEntry, 0, len(entries))
	for _, e := range entries {
		if q == "" || strings.Contains(strings.ToLower(e.Title), q) || strings.Contains(strings.ToLower(e.Source), q) {
			out = append(out, e)
		}
	}
	return out
}

// Year is the display year of e: its own year, else the year it was added.
func Year(e domain.LibraryEntry) string {
	switch {
	case e.Year > 0:
		return strconv.Itoa(e.Year)
	case !e.CreatedAt.IsZero():
		return strconv.Itoa(e.CreatedAt.Year())
	default:
		return "—"
	}
}
