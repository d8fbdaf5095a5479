package match

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// classRule ties one compiled title pattern to the market type it indicates.
// Rules are evaluated in order and the first match wins, so the more specific
// spread and total shapes are tried before the winner fallback. These are real
// regular expressions, not substring probes: patterns like the signed-number
// suffix only classify correctly as anchored matches.
type classRule struct {
	typ domain.MarketType
	re  *regexp.Regexp
}

var classRules = []classRule{
	// Spread shapes: an explicit "spread" tag, a margin phrase, or a team
	// name carrying a signed line suffix ("Celtics -2.5").
	{domain.MarketTypeSpread, regexp.MustCompile(`(?i)\bspread\b`)},
	{domain.MarketTypeSpread, regexp.MustCompile(`(?i)\bwins by\b`)},
	{domain.MarketTypeSpread, regexp.MustCompile(`(?i)\bcovers?\b`)},
	{domain.MarketTypeSpread, regexp.MustCompile(`(?i)[a-z]\s[-+]\d+(\.\d+)?\b`)},

	// Total shapes: over/under phrasing or a points threshold.
	{domain.MarketTypeTotal, regexp.MustCompile(`(?i)\btotal\b`)},
	{domain.MarketTypeTotal, regexp.MustCompile(`(?i)\bo/u\b`)},
	{domain.MarketTypeTotal, regexp.MustCompile(`(?i)\bover/under\b`)},
	{domain.MarketTypeTotal, regexp.MustCompile(`(?i)\b(over|under)\b.*\bpoints?\b`)},
	{domain.MarketTypeTotal, regexp.MustCompile(`(?i)\bcombined\b`)},

	// Winner shapes. Anything that matches none of these still falls back to
	// winner; the rules exist so a "X beats Y" title never reaches the
	// fallback by accident of wording.
	{domain.MarketTypeWinner, regexp.MustCompile(`(?i)\bwinner\b`)},
	{domain.MarketTypeWinner, regexp.MustCompile(`(?i)\bwins?\b`)},
	{domain.MarketTypeWinner, regexp.MustCompile(`(?i)\bbeats?\b`)},
	{domain.MarketTypeWinner, regexp.MustCompile(`(?i)\bmoneyline\b`)},
	{domain.MarketTypeWinner, regexp.MustCompile(`(?i)\bvs\.?\s`)},
}

// ClassifyTitle decides the market type of a free-text title. The first
// matching rule wins; titles matching nothing are winner markets.
func ClassifyTitle(title string) domain.MarketType {
	for _, r := range classRules {
		if r.re.MatchString(title) {
			return r.typ
		}
	}
	return domain.MarketTypeWinner
}

var (
	// First signed or unsigned decimal in free text.
	titleLine = regexp.MustCompile(`[-+]?\d+(\.\d+)?`)
	// Trailing numeric segment of a native identifier, optionally behind a
	// single letter tag, e.g. "KXNBASPREAD-24NOV25BOSHOU-B3.5" -> 3.5.
	idLineSuffix = regexp.MustCompile(`-[A-Z]?(-?\d+(\.\d+)?)$`)
)

// ExtractLine pulls the line of a spread or total market, preferring the
// title's first decimal and falling back to a trailing numeric suffix on the
// exchange-native identifier. Many exchanges encode the line only in the
// identifier. Returns nil when neither source carries a number.
func ExtractLine(title, nativeID string) *float64 {
	if m := titleLine.FindString(title); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			return &v
		}
	}
	if m := idLineSuffix.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(nativeID))); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return &v
		}
	}
	return nil
}

// Descriptor is the classified shape of one market or one traded outcome:
// what kind of contract it is, its line if any, and the canonical entities
// involved. Both index normalization and trade normalization produce one.
type Descriptor struct {
	Type         domain.MarketType
	Line         *float64
	Participants [2]string
}

// DescribeTitle classifies a title and extracts its line in one pass.
func DescribeTitle(title, nativeID string) Descriptor {
	d := Descriptor{Type: ClassifyTitle(title)}
	if d.Type != domain.MarketTypeWinner {
		d.Line = ExtractLine(title, nativeID)
	}
	return d
}
