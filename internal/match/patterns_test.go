package match

import (
	"testing"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

func TestClassifyTitle(t *testing.T) {
	cases := []struct {
		title string
		want  domain.MarketType
	}{
		{"Celtics vs Rockets", domain.MarketTypeWinner},
		{"Will the Celtics beat the Rockets?", domain.MarketTypeWinner},
		{"Boston Celtics moneyline", domain.MarketTypeWinner},
		{"Celtics wins by more than 3.5", domain.MarketTypeSpread},
		{"Spread: Celtics -2.5", domain.MarketTypeSpread},
		{"Celtics -2.5", domain.MarketTypeSpread},
		{"Total points over 224.5", domain.MarketTypeTotal},
		{"Combined points in BOS/HOU", domain.MarketTypeTotal},
		{"BOS/HOU o/u 210.5", domain.MarketTypeTotal},
		// Nothing recognizable falls back to winner.
		{"Celtics @ Rockets", domain.MarketTypeWinner},
	}
	for _, tc := range cases {
		if got := ClassifyTitle(tc.title); got != tc.want {
			t.Errorf("ClassifyTitle(%q) = %s, want %s", tc.title, got, tc.want)
		}
	}
}

func TestExtractLine(t *testing.T) {
	cases := []struct {
		name     string
		title    string
		nativeID string
		want     *float64
	}{
		{"from title", "Celtics wins by more than 3.5", "", ptr(3.5)},
		{"signed title line", "Celtics -2.5", "", ptr(-2.5)},
		{"from identifier suffix", "", "KXNBASPREAD-24NOV25BOSHOU-B3.5", ptr(3.5)},
		{"title wins over identifier", "Over 224.5 points", "KXNBATOTAL-24NOV25BOSHOU-B210.5", ptr(224.5)},
		{"no line anywhere", "Celtics cover the spread", "market-one", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractLine(tc.title, tc.nativeID)
			switch {
			case tc.want == nil && got != nil:
				t.Fatalf("got %v, want nil", *got)
			case tc.want != nil && got == nil:
				t.Fatalf("got nil, want %v", *tc.want)
			case tc.want != nil && *got != *tc.want:
				t.Fatalf("got %v, want %v", *got, *tc.want)
			}
		})
	}
}

func TestDescribeTitleWinnerHasNoLine(t *testing.T) {
	d := DescribeTitle("Celtics beat Rockets in game 7", "KXNBAGAME-24NOV25BOSHOU")
	if d.Type != domain.MarketTypeWinner {
		t.Fatalf("type = %s, want winner", d.Type)
	}
	if d.Line != nil {
		t.Fatalf("winner market carries line %v", *d.Line)
	}
}

func ptr(v float64) *float64 { return &v }
