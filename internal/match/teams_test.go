package match

import "testing"

func TestCanonicalEntity(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Celtics", "bos"},
		{"boston", "bos"},
		{"BOS", "bos"},
		{"Golden State", "gsw"},
		{"warriors", "gsw"},
		{"St. Louis", "stl"},
		{"packers", "gb"},
		{"nobody knows them", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := CanonicalEntity(tc.in); got != tc.want {
			t.Errorf("CanonicalEntity(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSameEntity(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"Celtics", "boston", true},
		{"bos", "BOS", true},
		{"Celtics", "Rockets", false},
		// Both unknown: normalized comparison.
		{"st cloud", "St. Cloud", true},
		{"st cloud", "st paul", false},
		{"", "boston", false},
	}
	for _, tc := range cases {
		if got := SameEntity(tc.a, tc.b); got != tc.want {
			t.Errorf("SameEntity(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestTeamsFromSlug(t *testing.T) {
	cases := []struct {
		slug   string
		t1, t2 string
	}{
		{"nba-bos-hou-2025-11-24", "bos", "hou"},
		{"nfl-buf-den-2026-01-17", "buf", "den"},
		{"something", "", ""},
		{"", "", ""},
	}
	for _, tc := range cases {
		t1, t2 := TeamsFromSlug(tc.slug)
		if t1 != tc.t1 || t2 != tc.t2 {
			t.Errorf("TeamsFromSlug(%q) = %q, %q, want %q, %q", tc.slug, t1, t2, tc.t1, tc.t2)
		}
	}
}

func TestTeamsFromTicker(t *testing.T) {
	cases := []struct {
		ticker string
		t1, t2 string
	}{
		{"KXNBAGAME-24NOV25BOSHOU", "bos", "hou"},
		{"KXNBASPREAD-24NOV25BOSHOU-B3.5", "bos", "hou"},
		{"KXNBATOTAL-24NOV25BOSHOU-B210.5", "bos", "hou"},
		{"KXBTC-25AUG24", "", ""},
	}
	for _, tc := range cases {
		t1, t2 := TeamsFromTicker(tc.ticker)
		if t1 != tc.t1 || t2 != tc.t2 {
			t.Errorf("TeamsFromTicker(%q) = %q, %q, want %q, %q", tc.ticker, t1, t2, tc.t1, tc.t2)
		}
	}
}

func TestSportTokens(t *testing.T) {
	if got := SportFromSlug("nfl-buf-den-2026-01-17"); got != "nfl" {
		t.Errorf("SportFromSlug = %q, want nfl", got)
	}
	if got := SportFromSlug("ncaab-duke-kansas-2026-03-01"); got != "cbb" {
		t.Errorf("SportFromSlug ncaab = %q, want cbb", got)
	}
	if got := SportFromSlug("weather-nyc"); got != "" {
		t.Errorf("SportFromSlug unknown = %q, want empty", got)
	}
	if got := SportFromTicker("KXNBASPREAD-24NOV25BOSHOU-B3.5"); got != "nba" {
		t.Errorf("SportFromTicker = %q, want nba", got)
	}
	if got := SportFromTicker("KXNCAABGAME-26MAR01DUKKAN"); got != "cbb" {
		t.Errorf("SportFromTicker ncaab = %q, want cbb", got)
	}
}
