package index

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

type fakeFeed struct {
	markets []domain.RawMarket
	err     error
}

func (f *fakeFeed) ListOpenMarkets(context.Context) ([]domain.RawMarket, error) {
	return f.markets, f.err
}

func rawSpread(id, title string) domain.RawMarket {
	return domain.RawMarket{MarketID: id, Title: title, Status: "active"}
}

func TestRefreshBuildsSnapshot(t *testing.T) {
	feed := &fakeFeed{markets: []domain.RawMarket{
		rawSpread("KXNBASPREAD-24NOV25BOSHOU-B3.5", "Celtics wins by more than 3.5"),
		{MarketID: "KXNBAGAME-24NOV25BOSHOU", Title: "Boston Celtics wins the game", Status: "active"},
		// Spread with no recoverable line: skipped.
		{MarketID: "cond-weird", Title: "Celtics cover the spread", Status: "active"},
	}}
	idx := New(feed, slog.Default())

	n, err := idx.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if n != 2 || idx.Size() != 2 {
		t.Fatalf("indexed %d/%d markets, want 2", n, idx.Size())
	}
	if idx.RefreshedAt().IsZero() {
		t.Error("refreshed-at not stamped")
	}

	spreads := idx.Lookup(domain.MarketTypeSpread, []string{"bos"})
	if len(spreads) != 1 || spreads[0].MarketID != "KXNBASPREAD-24NOV25BOSHOU-B3.5" {
		t.Fatalf("spread lookup = %v", spreads)
	}
	if spreads[0].Line == nil || *spreads[0].Line != 3.5 {
		t.Errorf("line = %v, want 3.5", spreads[0].Line)
	}
	if spreads[0].Participants != [2]string{"bos", "hou"} {
		t.Errorf("participants = %v", spreads[0].Participants)
	}

	winners := idx.Lookup(domain.MarketTypeWinner, []string{"Celtics"})
	if len(winners) != 1 {
		t.Fatalf("winner lookup by alias = %v", winners)
	}
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	feed := &fakeFeed{markets: []domain.RawMarket{
		rawSpread("KXNBASPREAD-24NOV25BOSHOU-B3.5", "Celtics wins by more than 3.5"),
	}}
	idx := New(feed, slog.Default())
	if _, err := idx.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	before := idx.RefreshedAt()

	feed.err = errors.New("exchange down")
	if _, err := idx.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if idx.Size() != 1 {
		t.Errorf("snapshot lost on failed refresh, size = %d", idx.Size())
	}
	if !idx.RefreshedAt().Equal(before) {
		t.Errorf("staleness timestamp moved on failed refresh")
	}
}

func TestSeedStampsOriginalTime(t *testing.T) {
	idx := New(&fakeFeed{}, slog.Default())
	at := time.Now().Add(-3 * time.Minute).UTC()
	line := 3.5
	idx.Seed([]domain.Market{{
		MarketID:     "KX-A",
		Type:         domain.MarketTypeSpread,
		Line:         &line,
		Participants: [2]string{"bos", "hou"},
	}}, at)

	if !idx.RefreshedAt().Equal(at) {
		t.Errorf("refreshed-at = %v, want seeded %v", idx.RefreshedAt(), at)
	}
	if !idx.Contains("KX-A") {
		t.Error("seeded market missing")
	}
	if _, ok := idx.Get("KX-B"); ok {
		t.Error("found a market never installed")
	}
}

func TestEmptyIndexServesNothing(t *testing.T) {
	idx := New(&fakeFeed{}, slog.Default())
	if got := idx.Lookup(domain.MarketTypeWinner, nil); got != nil {
		t.Errorf("lookup on empty index = %v", got)
	}
	if !idx.RefreshedAt().IsZero() {
		t.Error("empty index reports a refresh time")
	}
}

func TestLookupEmptyEntitiesReturnsType(t *testing.T) {
	idx := New(&fakeFeed{}, slog.Default())
	line := 3.5
	idx.Seed([]domain.Market{
		{MarketID: "KX-A", Type: domain.MarketTypeSpread, Line: &line, Participants: [2]string{"bos", "hou"}},
		{MarketID: "KX-B", Type: domain.MarketTypeWinner, Participants: [2]string{"bos", "hou"}},
	}, time.Now())

	got := idx.Lookup(domain.MarketTypeSpread, nil)
	if len(got) != 1 || got[0].MarketID != "KX-A" {
		t.Fatalf("type-wide lookup = %v, want KX-A only", got)
	}
}
