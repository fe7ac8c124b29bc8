package analytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"studio/internal/apiclient"
	"studio/internal/domain"
	"studio/internal/latest"
)

func intp(n int) *int { return &n }

type fetcherFunc func(context.Context) apiclient.Result[domain.AnalyticsSnapshot]

func (f fetcherFunc) Analytics(ctx context.Context) apiclient.Result[domain.AnalyticsSnapshot] {
	return f(ctx)
}

func TestInsights_PlaceholdersForMissingFields(t *testing.T) {
	v := New(nil)
	v.Settle(v.Begin(), apiclient.Ok(domain.AnalyticsSnapshot{TopKeyword: "transformers", LibrarySize: intp(12)}))

	require.Equal(t, []Card{
		{Title: "Top Topic", Value: "transformers", Hint: "last 30 days"},
		{Title: "Newest Paper", Value: Placeholder, Hint: "recency"},
		{Title: "Most Queried", Value: Placeholder, Hint: "chat"},
		{Title: "Library Size", Value: "12", Hint: "papers"},
	}, v.Insights())
}

func TestOverview_ZeroForMissingCounts(t *testing.T) {
	v := New(nil)
	require.Equal(t, "0", v.Overview()[0].Value, "no snapshot yet")

	v.Settle(v.Begin(), apiclient.Ok(domain.AnalyticsSnapshot{ChatCount: intp(3)}))
	cards := v.Overview()
	require.Equal(t, "0", cards[0].Value)
	require.Equal(t, "0", cards[1].Value)
	require.Equal(t, "3", cards[2].Value)
	require.Equal(t, Placeholder, cards[3].Value)
}

func TestSettle_FullReplace(t *testing.T) {
	v := New(nil)
	v.Settle(v.Begin(), apiclient.Ok(domain.AnalyticsSnapshot{TopKeyword: "old", NewestPaper: "Old Paper"}))
	v.Settle(v.Begin(), apiclient.Ok(domain.AnalyticsSnapshot{TopKeyword: "new"}))

	snap, ok := v.Snapshot()
	require.True(t, ok)
	require.Equal(t, "new", snap.TopKeyword)
	require.Empty(t, snap.NewestPaper, "fields absent from the newer snapshot are not carried over")
}

func TestSettle_FailureKeepsSnapshot(t *testing.T) {
	v := New(nil)
	v.Refresh(context.Background(), fetcherFunc(func(context.Context) apiclient.Result[domain.AnalyticsSnapshot] {
		return apiclient.Ok(domain.AnalyticsSnapshot{TopKeyword: "kept"})
	}))
	v.Refresh(context.Background(), fetcherFunc(func(context.Context) apiclient.Result[domain.AnalyticsSnapshot] {
		return apiclient.Fail[domain.AnalyticsSnapshot](&apiclient.Error{Kind: apiclient.KindNetwork})
	}))

	require.Equal(t, "Could not load analytics: server unreachable", v.Err())
	snap, _ := v.Snapshot()
	require.Equal(t, "kept", snap.TopKeyword)
}

func TestBars_ClampWithoutMutation(t *testing.T) {
	items := []domain.RankedItem{{Label: "attention", Value: 140}, {Label: "bert", Value: 40}, {Label: "odd", Value: -5}}
	v := New(nil)
	v.Settle(v.Begin(), apiclient.Ok(domain.AnalyticsSnapshot{Topics: items}))

	require.Equal(t, []Bar{
		{Label: "attention", Value: 140, Width: 100},
		{Label: "bert", Value: 40, Width: 40},
		{Label: "odd", Value: -5, Width: 0},
	}, v.TopicBars())

	snap, _ := v.Snapshot()
	require.Equal(t, 140, snap.Topics[0].Value)
	require.Equal(t, 140, items[0].Value)
	require.Empty(t, v.SourceBars())
}

func TestProperty_LatestRefreshWins(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		v := New(nil)
		n := rapid.IntRange(1, 10).Draw(rt, "refreshes")
		tickets := make([]latest.Ticket, n)
		for i := range tickets {
			tickets[i] = v.Begin()
		}
		order := rapid.Permutation(tickets).Draw(rt, "settle order")
		for _, tk := range order {
			v.Settle(tk, apiclient.Ok(domain.AnalyticsSnapshot{TopKeyword: "kw" + string(rune('a'+int(tk)))}))
		}
		snap, ok := v.Snapshot()
		if !ok {
			rt.Fatalf("latest response never applied")
		}
		want := "kw" + string(rune('a'+int(tickets[n-1])))
		if snap.TopKeyword != want {
			rt.Fatalf("snapshot %q, want %q", snap.TopKeyword, want)
		}
		if v.Loading() {
			rt.Fatalf("still loading after latest settled")
		}
	})
}
