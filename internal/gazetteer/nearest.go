package gazetteer

import (
	"math"
	"sort"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// cellLevel 10 cells are roughly 10km across. A query inspects every cell
// touching the MaxNearestDistanceKm cap around it.
const cellLevel = 10

const earthRadiusKm = 6371.0088

// MaxNearestDistanceKm is the cutoff beyond which Nearest reports no match.
const MaxNearestDistanceKm = 25.0

func (ix *Index) buildCellIndex() {
	ix.cells = make(map[s2.CellID][]int)
	for i, row := range ix.rows {
		if !row.searchable() {
			continue
		}
		cell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(row.Latitude, row.Longitude)).Parent(cellLevel)
		ix.cells[cell] = append(ix.cells[cell], i)
	}
}

// nearbyCells covers the cap of radius MaxNearestDistanceKm around query
// with level cellLevel cells.
func nearbyCells(query s2.LatLng) []s2.CellID {
	region := s2.CapFromCenterAngle(s2.PointFromLatLng(query), s1.Angle(MaxNearestDistanceKm/earthRadiusKm))
	coverer := &s2.RegionCoverer{MinLevel: cellLevel, MaxLevel: cellLevel, LevelMod: 1, MaxCells: 256}
	return coverer.Covering(region)
}

// Nearest returns the populated place or division closest to the point, and
// its distance in kilometres. ok is false when nothing lies within
// MaxNearestDistanceKm or the coordinates are not finite. Ties prefer the
// larger population.
func (ix *Index) Nearest(lat, lon float64) (row Row, distanceKm float64, ok bool) {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return Row{}, 0, false
	}
	query := s2.LatLngFromDegrees(lat, lon)

	type candidate struct {
		idx  int
		dist s1.Angle
	}
	var found []candidate
	for _, c := range nearbyCells(query) {
		for _, idx := range ix.cells[c] {
			r := ix.rows[idx]
			found = append(found, candidate{idx: idx, dist: query.Distance(s2.LatLngFromDegrees(r.Latitude, r.Longitude))})
		}
	}
	if len(found) == 0 {
		return Row{}, 0, false
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].dist != found[j].dist {
			return found[i].dist < found[j].dist
		}
		return ix.rows[found[i].idx].Population > ix.rows[found[j].idx].Population
	})

	best := found[0]
	km := best.dist.Radians() * earthRadiusKm
	if km > MaxNearestDistanceKm {
		return Row{}, 0, false
	}
	return ix.rows[best.idx], km, true
}

// NearestLabel returns a display label for the place nearest the point:
// its best Japanese name, suffixed with the first-level division when that
// differs.
func (ix *Index) NearestLabel(lat, lon float64) (string, bool) {
	row, _, ok := ix.Nearest(lat, lon)
	if !ok {
		return "", false
	}
	name := PickBestLocalName(row.Name, row.AlternateNames, "")
	if admin, ok := ix.admin1Names[row.Admin1Code]; ok && admin != "" && admin != name {
		return name + "（" + admin + "）", true
	}
	return name, true
}
