package gazetteer

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/golang/geo/s2"

	"github.com/kjstillabower/geoweather-gateway/internal/models"
)

const (
	minColumns = 19

	colName           = 1
	colASCIIName      = 2
	colAlternateNames = 3
	colLatitude       = 4
	colLongitude      = 5
	colFeatureClass   = 6
	colFeatureCode    = 7
	colCountryCode    = 8
	colAdmin1Code     = 10
	colPopulation     = 14
	colTimezone       = 17

	maxLineBytes = 4 << 20
)

// Index is an immutable, in-memory gazetteer. Safe for concurrent reads.
type Index struct {
	rows        []Row
	admin1Names map[string]string
	cells       map[s2.CellID][]int
	countryName string
}

// Option configures Parse.
type Option func(*Index)

// WithCountryName sets the country label attached to every candidate.
func WithCountryName(name string) Option {
	return func(ix *Index) { ix.countryName = name }
}

// Parse reads a GeoNames dump and builds an Index. Comment lines (#), blank
// lines, short rows and rows with unparseable coordinates are skipped. An error
// is returned only when the reader itself fails.
func Parse(r io.Reader, opts ...Option) (*Index, error) {
	ix := &Index{
		admin1Names: make(map[string]string),
		countryName: DefaultCountryName,
	}
	for _, opt := range opts {
		opt(ix)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		row, ok := parseRow(line)
		if !ok {
			continue
		}
		ix.rows = append(ix.rows, row)
		if row.FeatureClass == ClassAdmin && row.FeatureCode == CodeAdmin1 && row.Admin1Code != "" {
			ix.admin1Names[row.Admin1Code] = PickBestLocalName(row.Name, row.AlternateNames, "")
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read gazetteer: %w", err)
	}
	ix.buildCellIndex()
	return ix, nil
}

func parseRow(line string) (Row, bool) {
	cols := strings.Split(line, "\t")
	if len(cols) < minColumns {
		return Row{}, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(cols[colLatitude]), 64)
	if err != nil || math.IsNaN(lat) || math.IsInf(lat, 0) {
		return Row{}, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(cols[colLongitude]), 64)
	if err != nil || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return Row{}, false
	}
	tz := cols[colTimezone]
	if tz == "" {
		tz = DefaultTimezone
	}
	return Row{
		Name:           cols[colName],
		ASCIIName:      cols[colASCIIName],
		AlternateNames: cols[colAlternateNames],
		Latitude:       lat,
		Longitude:      lon,
		FeatureClass:   cols[colFeatureClass],
		FeatureCode:    cols[colFeatureCode],
		CountryCode:    cols[colCountryCode],
		Admin1Code:     cols[colAdmin1Code],
		Population:     parsePopulation(cols[colPopulation]),
		Timezone:       tz,
	}, true
}

// parsePopulation returns 0 for empty, malformed or negative values.
func parsePopulation(s string) int64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(f)
}

// Len returns the number of indexed rows.
func (ix *Index) Len() int { return len(ix.rows) }

// Admin1Name returns the display name of a first-level division code.
func (ix *Index) Admin1Name(code string) (string, bool) {
	name, ok := ix.admin1Names[code]
	return name, ok
}

type hit struct {
	row   *Row
	score float64
}

// Search returns up to limit candidates whose name, ASCII name or alternate
// names contain the normalized query, best score first. Only administrative
// divisions and populated places are considered. Equal scores keep dataset
// order. An empty query or non-positive limit yields no candidates.
func (ix *Index) Search(query string, limit int) []models.GeoCandidate {
	q := NormalizeQuery(query)
	if q == "" || limit <= 0 {
		return nil
	}

	var hits []hit
	for i := range ix.rows {
		row := &ix.rows[i]
		if !row.searchable() {
			continue
		}
		if !matches(row, q) {
			continue
		}
		hits = append(hits, hit{row: row, score: ScoreRow(*row, q)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]models.GeoCandidate, 0, len(hits))
	for _, h := range hits {
		out = append(out, ix.candidate(h.row, q))
	}
	return out
}

func matches(row *Row, q string) bool {
	return (row.Name != "" && strings.Contains(row.Name, q)) ||
		(row.ASCIIName != "" && strings.Contains(row.ASCIIName, q)) ||
		(row.AlternateNames != "" && strings.Contains(row.AlternateNames, q))
}

func (ix *Index) candidate(row *Row, q string) models.GeoCandidate {
	c := models.GeoCandidate{
		Name:        PickBestLocalName(row.Name, row.AlternateNames, q),
		Country:     ix.countryName,
		CountryCode: row.CountryCode,
		Latitude:    row.Latitude,
		Longitude:   row.Longitude,
		Timezone:    row.Timezone,
	}
	if row.Admin1Code != "" {
		c.Admin1 = ix.admin1Names[row.Admin1Code]
	}
	return c
}
