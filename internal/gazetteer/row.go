// Package gazetteer indexes a GeoNames country dump and answers substring
// place queries with ranked candidates.
//
// The dataset is tab separated with one place per line. Column positions are
// fixed by the GeoNames export format:
//
//	1 name, 2 asciiname, 3 alternatenames, 4 latitude, 5 longitude,
//	6 feature class, 7 feature code, 8 country code, 10 admin1 code,
//	14 population, 17 timezone
//
// Rows with fewer than 19 columns or unparseable coordinates are skipped.
package gazetteer

// Feature classes and codes the index cares about.
const (
	ClassAdmin     = "A"
	ClassPopulated = "P"

	CodeCapital = "PPLC"
	CodeSeat    = "PPLA"
	CodeAdmin1  = "ADM1"
)

// DefaultTimezone fills rows whose timezone column is empty.
const DefaultTimezone = "Asia/Tokyo"

// DefaultCountryName labels candidates produced by the index.
const DefaultCountryName = "日本"

// Row is one parsed gazetteer line. Rows are never modified after indexing.
type Row struct {
	Name           string
	ASCIIName      string
	AlternateNames string
	Latitude       float64
	Longitude      float64
	FeatureClass   string
	FeatureCode    string
	CountryCode    string
	Admin1Code     string
	Population     int64
	Timezone       string
}

// searchable reports whether the row is an administrative division or a
// populated place. Other classes (mountains, rivers, spots) are noise for
// place lookup.
func (r Row) searchable() bool {
	return r.FeatureClass == ClassAdmin || r.FeatureClass == ClassPopulated
}
