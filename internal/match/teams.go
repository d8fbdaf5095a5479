// Package match implements the cross-exchange semantics of the copy engine:
// canonical entity naming, market-type classification, line extraction, and
// resolution of a source trade onto the single equivalent target market.
package match

import (
	"regexp"
	"strings"
)

// teamAliases maps a canonical entity to the surface strings that name it on
// either exchange. Canonicals are city-level codes: teams sharing a metro
// share a code, so a slug abbreviation and a nickname from different leagues
// still collapse to the same entity. Nicknames that exist in more than one
// city (jets, kings, panthers, rangers) are deliberately absent; those trades
// resolve through the city name or code instead of a guess.
var teamAliases = map[string][]string{
	// NBA metros
	"uta": {"utah", "uta", "jazz", "utah hockey club"},
	"bos": {"boston", "bos", "celtics", "bruins"},
	"bkn": {"brooklyn", "bkn", "nets"},
	"cha": {"charlotte", "cha", "hornets"},
	"chi": {"chicago", "chi", "bulls", "bears", "blackhawks"},
	"cle": {"cleveland", "cle", "cavaliers", "cavs", "browns"},
	"dal": {"dallas", "dal", "mavericks", "mavs", "cowboys", "stars"},
	"den": {"denver", "den", "nuggets", "broncos"},
	"det": {"detroit", "det", "pistons", "lions", "red wings"},
	"gsw": {"golden state", "gsw", "warriors"},
	"hou": {"houston", "hou", "rockets", "texans"},
	"ind": {"indiana", "ind", "pacers", "indianapolis", "colts"},
	"lac": {"la clippers", "lac", "clippers", "la chargers", "chargers"},
	"lal": {"la lakers", "lal", "lakers"},
	"mem": {"memphis", "mem", "grizzlies"},
	"mia": {"miami", "mia", "heat", "dolphins"},
	"mil": {"milwaukee", "mil", "bucks"},
	"min": {"minnesota", "min", "timberwolves", "twolves", "vikings", "wild"},
	"nop": {"new orleans", "nop", "pelicans", "saints"},
	"nyk": {"new york", "nyk", "knicks"},
	"okc": {"oklahoma city", "okc", "thunder"},
	"orl": {"orlando", "orl", "magic"},
	"phi": {"philadelphia", "phi", "76ers", "sixers", "eagles", "flyers"},
	"phx": {"phoenix", "phx", "suns"},
	"por": {"portland", "por", "trail blazers", "blazers"},
	"sac": {"sacramento", "sac"},
	"sas": {"san antonio", "sas", "spurs"},
	"tor": {"toronto", "tor", "raptors", "maple leafs"},
	"wsh": {"washington", "wsh", "wizards", "commanders", "capitals"},

	// NFL-only metros
	"ari": {"arizona", "ari", "cardinals", "coyotes"},
	"atl": {"atlanta", "atl", "falcons"},
	"bal": {"baltimore", "bal", "ravens"},
	"buf": {"buffalo", "buf", "bills", "sabres"},
	"car": {"carolina", "car", "hurricanes"},
	"cin": {"cincinnati", "cin", "bengals"},
	"gb":  {"green bay", "gb", "packers"},
	"jax": {"jacksonville", "jax", "jaguars"},
	"kc":  {"kansas city", "kc", "chiefs"},
	"lv":  {"las vegas", "lv", "raiders"},
	"lar": {"la rams", "lar", "rams"},
	"ne":  {"new england", "ne", "patriots"},
	"nyg": {"new york giants", "nyg", "giants"},
	"nyj": {"new york jets", "nyj"},
	"pit": {"pittsburgh", "pit", "steelers", "penguins"},
	"sf":  {"san francisco", "sf", "49ers"},
	"sea": {"seattle", "sea", "seahawks", "kraken"},
	"tb":  {"tampa bay", "tb", "buccaneers"},
	"tbl": {"tbl", "lightning"},
	"ten": {"tennessee", "ten", "titans"},

	// NHL-only metros
	"cgy": {"calgary", "cgy", "flames", "cal"},
	"edm": {"edmonton", "edm", "oilers"},
	"van": {"vancouver", "van", "canucks"},
	"vgk": {"vegas", "vgk", "golden knights"},
	"lak": {"los angeles kings", "lak", "los angeles"},
	"stl": {"st. louis", "stl", "blues"},
	"col": {"colorado", "col", "avalanche"},
	"sjc": {"san jose", "sjc", "sharks"},
	"cbj": {"columbus", "cbj", "blue jackets"},
	"fla": {"florida", "fla"},
	"mtl": {"montreal", "mtl", "canadien", "canadiens"},
	"wpg": {"winnipeg", "wpg"},
	"nsh": {"nashville", "nsh", "predators"},
	"ott": {"ottawa", "ott", "senators"},
	"nyi": {"new york islanders", "nyi", "islanders"},
	"nyr": {"new york rangers", "nyr"},
	"njd": {"new jersey devils", "njd", "devils", "nj"},
	"ana": {"anaheim", "ana", "ducks"},

	// College programs
	"uconn":     {"uconn", "connecticut"},
	"purdue":    {"purdue"},
	"gonzaga":   {"gonzaga"},
	"duke":      {"duke"},
	"kansas":    {"kansas"},
	"baylor":    {"baylor"},
	"villanova": {"villanova"},
	"texas":     {"texas"},
	"kentucky":  {"kentucky"},
}

// canonicalFromAlias is the inverted, normalized index built from teamAliases.
var canonicalFromAlias = func() map[string]string {
	idx := make(map[string]string, len(teamAliases)*3)
	for canonical, aliases := range teamAliases {
		idx[NormalizeEntity(canonical)] = canonical
		for _, alias := range aliases {
			idx[NormalizeEntity(alias)] = canonical
		}
	}
	return idx
}()

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]`)

// NormalizeEntity lowercases a surface string and strips everything except
// letters and digits, so "St. Louis" and "st louis" compare equal.
func NormalizeEntity(name string) string {
	return nonAlphanumeric.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "")
}

// CanonicalEntity maps a surface string to its canonical entity, or "" when
// the string names no known entity.
func CanonicalEntity(name string) string {
	if name == "" {
		return ""
	}
	return canonicalFromAlias[NormalizeEntity(name)]
}

// SameEntity reports whether two surface strings name the same entity. Both
// unknown strings compare by normalized form, so exchange-specific codes that
// never made the alias table still match themselves.
func SameEntity(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	ca, cb := CanonicalEntity(a), CanonicalEntity(b)
	if ca != "" && cb != "" {
		return ca == cb
	}
	return NormalizeEntity(a) == NormalizeEntity(b)
}

// TeamsFromSlug extracts the two team tokens from a source slug of the form
// "nfl-buf-den-2026-01-17". Returns empty strings when the slug does not
// carry a recognizable pair.
func TeamsFromSlug(slug string) (string, string) {
	parts := strings.Split(strings.ToLower(slug), "-")
	if len(parts) < 3 {
		return "", ""
	}
	t1, t2 := parts[1], parts[2]
	if len(t1) < 2 || len(t2) < 2 {
		return "", ""
	}
	return t1, t2
}

var (
	tickerGameSegment = regexp.MustCompile(`GAME-?\d*[A-Z]*`)
	tickerTeamPair    = regexp.MustCompile(`([A-Z]{3})([A-Z]{3,4})$`)
)

// TeamsFromTicker extracts the two team codes packed at the end of a target
// ticker such as "KXNBAGAME-24NOV25BOSHOU". Returns empty strings when no
// trailing pair is present.
func TeamsFromTicker(ticker string) (string, string) {
	t := strings.TrimPrefix(strings.ToUpper(ticker), "KX")
	t = tickerGameSegment.ReplaceAllString(t, "")
	if i := strings.LastIndexByte(t, '-'); i >= 0 {
		// Line or side suffixes ("-B3.5") follow the team segment.
		if seg := t[:i]; tickerTeamPair.MatchString(seg) {
			t = seg
		}
	}
	m := tickerTeamPair.FindStringSubmatch(t)
	if m == nil {
		return "", ""
	}
	return strings.ToLower(m[1]), strings.ToLower(m[2])
}

// SportFromSlug pulls the league token off the front of a source slug, or
// returns "" when unrecognized.
func SportFromSlug(slug string) string {
	s := strings.ToLower(slug)
	for _, league := range []string{"nfl", "nba", "nhl", "cbb", "ncaab", "cfb"} {
		if strings.HasPrefix(s, league+"-") {
			if league == "ncaab" {
				return "cbb"
			}
			return league
		}
	}
	return ""
}

// SportFromTicker pulls the league token out of a target ticker series
// prefix such as "KXNBASPREAD", or returns "" when unrecognized.
func SportFromTicker(ticker string) string {
	t := strings.ToUpper(ticker)
	t = strings.TrimPrefix(t, "KX")
	for _, league := range []string{"NBA", "NFL", "NHL", "NCAAB", "NCAAF", "CBB", "CFB"} {
		if strings.HasPrefix(t, league) {
			switch league {
			case "NCAAB":
				return "cbb"
			case "NCAAF":
				return "cfb"
			}
			return strings.ToLower(league)
		}
	}
	return ""
}
