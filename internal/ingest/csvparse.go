package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
)

// Logical columns resolved case-insensitively against upstream headers.
const (
	colDate      = "date"
	colHomeTeam  = "home_team"
	colAwayTeam  = "away_team"
	colHomeGoals = "home_goals"
	colAwayGoals = "away_goals"
	colHTHome    = "ht_home_goals"
	colHTAway    = "ht_away_goals"
	colOddsHome  = "odds_home"
	colOddsDraw  = "odds_draw"
	colOddsAway  = "odds_away"
)

var requiredColumns = []string{colDate, colHomeTeam, colAwayTeam, colHomeGoals, colAwayGoals}

// columnAliases maps lowercase upstream headers to logical columns.
// Covers football-data.co.uk style plus common variants.
var columnAliases = map[string]string{
	"date":      colDate,
	"matchdate": colDate,
	"kickoff":   colDate,

	"hometeam":  colHomeTeam,
	"home_team": colHomeTeam,
	"home":      colHomeTeam,
	"ht":        colHomeTeam,

	"awayteam":  colAwayTeam,
	"away_team": colAwayTeam,
	"away":      colAwayTeam,
	"at":        colAwayTeam,

	"fthg":       colHomeGoals,
	"homegoals":  colHomeGoals,
	"home_goals": colHomeGoals,
	"hg":         colHomeGoals,

	"ftag":       colAwayGoals,
	"awaygoals":  colAwayGoals,
	"away_goals": colAwayGoals,
	"ag":         colAwayGoals,

	"hthg":          colHTHome,
	"ht_home_goals": colHTHome,
	"htag":          colHTAway,
	"ht_away_goals": colHTAway,

	"b365h":     colOddsHome,
	"psh":       colOddsHome,
	"odds_home": colOddsHome,
	"oddsh":     colOddsHome,
	"b365d":     colOddsDraw,
	"psd":       colOddsDraw,
	"odds_draw": colOddsDraw,
	"oddsd":     colOddsDraw,
	"b365a":     colOddsAway,
	"psa":       colOddsAway,
	"odds_away": colOddsAway,
	"oddsa":     colOddsAway,
}

var dateFormats = []string{
	"02/01/2006",
	"02/01/06",
	"2006-01-02",
	"02-01-2006",
	"02.01.2006",
	"01/02/2006",
	"2006/01/02",
}

// RawMatch is one successfully parsed CSV row.
type RawMatch struct {
	Date        time.Time
	HomeTeam    string
	AwayTeam    string
	HomeGoals   int
	AwayGoals   int
	HTHomeGoals *int
	HTAwayGoals *int
	OddsHome    *float64
	OddsDraw    *float64
	OddsAway    *float64
}

// ParseReport counts row-level outcomes for one file.
type ParseReport struct {
	Rows    int
	Parsed  int
	Skipped int
	// First few skip reasons, logged in detail by the caller.
	SkipSamples []string
}

// DecodeBody converts upstream bytes to UTF-8. The declared encoding
// is tried first; undeclared bodies that already hold valid UTF-8 pass
// through, the rest go through the usual western-European suspects,
// then a lossy UTF-8 pass.
func DecodeBody(declared string, body []byte) string {
	var order []encoding.Encoding
	switch strings.ToLower(strings.ReplaceAll(declared, "_", "-")) {
	case "latin-1", "latin1", "iso-8859-1":
		order = append(order, charmap.ISO8859_1)
	case "windows-1252", "cp1252":
		order = append(order, charmap.Windows1252)
	case "utf-8", "utf8":
		order = append(order, unicode.UTF8)
	}
	if len(order) == 0 && utf8Valid(body) {
		return string(body)
	}
	order = append(order, charmap.ISO8859_1, charmap.Windows1252, unicode.UTF8)

	for _, enc := range order {
		if decoded, err := enc.NewDecoder().Bytes(body); err == nil {
			if utf8Valid(decoded) {
				return string(decoded)
			}
		}
	}
	return string(bytes.ToValidUTF8(body, []byte("�")))
}

func utf8Valid(b []byte) bool {
	return bytes.Equal(b, bytes.ToValidUTF8(b, []byte("�")))
}

// ResolveColumns maps header positions to logical columns, failing
// with SchemaMismatch when a required column is absent.
func ResolveColumns(headers []string) (map[string]int, error) {
	positions := make(map[string]int, len(headers))
	for i, h := range headers {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))
		if logical, ok := columnAliases[key]; ok {
			if _, exists := positions[logical]; !exists {
				positions[logical] = i
			}
		}
	}

	var missing []string
	for _, req := range requiredColumns {
		if _, ok := positions[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.New(apperrors.CodeSchemaMismatch,
			"missing required columns %v, available headers %v", missing, headers)
	}
	return positions, nil
}

// ParseDate tries the accepted formats in order and rejects years
// outside [1900, now+1].
func ParseDate(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateFormats {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		if t.Year() < 1900 || t.Year() > now.Year()+1 {
			continue
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", value)
}

// ParseFile decodes and parses a whole CSV file, returning the parsed
// rows plus a per-row report. A missing required column rejects the
// file; a bad row only increments Skipped.
func ParseFile(declaredEncoding string, body []byte, now time.Time) ([]RawMatch, *ParseReport, error) {
	text := DecodeBody(declaredEncoding, body)

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.CodeSchemaMismatch, "reading CSV")
	}
	if len(records) == 0 {
		return nil, nil, apperrors.New(apperrors.CodeSchemaMismatch, "empty CSV file")
	}

	cols, err := ResolveColumns(records[0])
	if err != nil {
		return nil, nil, err
	}

	report := &ParseReport{}
	var out []RawMatch
	for _, record := range records[1:] {
		report.Rows++
		m, err := parseRow(record, cols, now)
		if err != nil {
			report.Skipped++
			if len(report.SkipSamples) < 5 {
				report.SkipSamples = append(report.SkipSamples, err.Error())
			}
			continue
		}
		report.Parsed++
		out = append(out, *m)
	}
	return out, report, nil
}

func parseRow(record []string, cols map[string]int, now time.Time) (*RawMatch, error) {
	field := func(logical string) (string, bool) {
		idx, ok := cols[logical]
		if !ok || idx >= len(record) {
			return "", false
		}
		return strings.TrimSpace(record[idx]), true
	}

	dateStr, _ := field(colDate)
	if dateStr == "" {
		return nil, apperrors.New(apperrors.CodeParseSkip, "empty date")
	}
	date, err := ParseDate(dateStr, now)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeParseSkip, "bad date %q", dateStr)
	}

	home, _ := field(colHomeTeam)
	away, _ := field(colAwayTeam)
	if home == "" || away == "" {
		return nil, apperrors.New(apperrors.CodeParseSkip, "empty team name (home=%q away=%q)", home, away)
	}

	hgStr, _ := field(colHomeGoals)
	agStr, _ := field(colAwayGoals)
	hg, err := strconv.Atoi(hgStr)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeParseSkip, "bad home goals %q", hgStr)
	}
	ag, err := strconv.Atoi(agStr)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeParseSkip, "bad away goals %q", agStr)
	}
	if hg < 0 || ag < 0 {
		return nil, apperrors.New(apperrors.CodeParseSkip, "negative goals %d-%d", hg, ag)
	}

	m := &RawMatch{
		Date:      date,
		HomeTeam:  home,
		AwayTeam:  away,
		HomeGoals: hg,
		AwayGoals: ag,
	}
	m.HTHomeGoals = optionalInt(field, colHTHome)
	m.HTAwayGoals = optionalInt(field, colHTAway)
	m.OddsHome = optionalFloat(field, colOddsHome)
	m.OddsDraw = optionalFloat(field, colOddsDraw)
	m.OddsAway = optionalFloat(field, colOddsAway)
	return m, nil
}

func optionalInt(field func(string) (string, bool), logical string) *int {
	s, ok := field(logical)
	if !ok || s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

func optionalFloat(field func(string) (string, bool), logical string) *float64 {
	s, ok := field(logical)
	if !ok || s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || v <= 1.0 {
		// Decimal odds below 1.0 are malformed.
		return nil
	}
	return &v
}
