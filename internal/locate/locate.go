// Package locate ranks parking lots by their distance to a query point and
// picks the lot a status report applies to.
//
// Distances are planar: latitude and longitude are treated as flat
// Cartesian coordinates in degrees. Every call scans the full input.
package locate

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"parking-finder-backend/internal/model"
)

// DefaultLimit is the number of joined rows returned when no limit is given.
const DefaultLimit = 200

// Point is a query coordinate in degrees. No range checks are applied.
type Point struct {
	Lat float64
	Lon float64
}

func (p Point) orb() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// Distance returns sqrt(dLat^2 + dLon^2) between two points.
func Distance(a, b Point) float64 {
	return planar.Distance(a.orb(), b.orb())
}

func lotPoint(l model.ParkingLot) Point {
	return Point{Lat: l.Latitude, Lon: l.Longitude}
}

// CombinedRow is one parking lot joined with at most one restriction window.
type CombinedRow struct {
	ID               string          `json:"id"`
	StreetName       string          `json:"street_name"`
	Latitude         float64         `json:"latitude"`
	Longitude        float64         `json:"longitude"`
	Status           model.LotStatus `json:"status"`
	LastUpdated      string          `json:"last_updated"`
	Day              *string         `json:"day"`
	StartTime        *string         `json:"start_time"`
	EndTime          *string         `json:"end_time"`
	TimeLimitMinutes *int            `json:"time_limit_minutes"`

	// Distance is kept for ordering and tests; it is not part of the payload.
	Distance float64 `json:"-"`
}

type rankedLot struct {
	lot      model.ParkingLot
	distance float64
}

// less orders by distance, then by id so that equal distances are stable.
// NaN distances sort after every number and tie with each other.
func (r rankedLot) less(o rankedLot) bool {
	rNaN, oNaN := math.IsNaN(r.distance), math.IsNaN(o.distance)
	switch {
	case rNaN != oNaN:
		return oNaN
	case !rNaN && r.distance != o.distance:
		return r.distance < o.distance
	}
	return r.lot.ID < o.lot.ID
}

// Rank left-joins lots with their restriction windows and orders the joined
// rows by ascending distance from q. A lot with W windows yields W rows, a lot
// without windows yields one row with empty window fields. Windows whose
// BlockID matches no lot are dropped. The result holds at most limit rows;
// limit <= 0 means no truncation.
func Rank(lots []model.ParkingLot, windows []model.BlockRestriction, q Point, limit int) []CombinedRow {
	ranked := make([]rankedLot, len(lots))
	for i, l := range lots {
		ranked[i] = rankedLot{lot: l, distance: Distance(q, lotPoint(l))}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].less(ranked[j]) })

	byBlock := make(map[string][]model.BlockRestriction)
	for _, w := range windows {
		byBlock[w.BlockID] = append(byBlock[w.BlockID], w)
	}
	for _, ws := range byBlock {
		sort.Slice(ws, func(i, j int) bool { return ws[i].ID < ws[j].ID })
	}

	rows := make([]CombinedRow, 0, len(ranked))
	for _, r := range ranked {
		ws := byBlock[r.lot.ID]
		if len(ws) == 0 {
			rows = append(rows, newRow(r, nil))
		}
		for i := range ws {
			rows = append(rows, newRow(r, &ws[i]))
		}
		if limit > 0 && len(rows) >= limit {
			return rows[:limit]
		}
	}
	return rows
}

func newRow(r rankedLot, w *model.BlockRestriction) CombinedRow {
	row := CombinedRow{
		ID:          r.lot.ID,
		StreetName:  r.lot.StreetName,
		Latitude:    r.lot.Latitude,
		Longitude:   r.lot.Longitude,
		Status:      r.lot.Status,
		LastUpdated: r.lot.LastUpdated,
		Distance:    r.distance,
	}
	if w != nil {
		day, start, end := w.Day, w.StartTime, w.EndTime
		row.Day = &day
		row.StartTime = &start
		row.EndTime = &end
		if w.TimeLimitMinutes != nil {
			limit := *w.TimeLimitMinutes
			row.TimeLimitMinutes = &limit
		}
	}
	return row
}

// NearestEligible returns the lot closest to q among those whose status is
// not restricted. Equal distances resolve to the smaller id. The boolean is
// false when no lot is eligible.
func NearestEligible(lots []model.ParkingLot, q Point) (model.ParkingLot, bool) {
	var best rankedLot
	found := false
	for _, l := range lots {
		if l.Status == model.LotStatusRestricted {
			continue
		}
		c := rankedLot{lot: l, distance: Distance(q, lotPoint(l))}
		if !found || c.less(best) {
			best, found = c, true
		}
	}
	return best.lot, found
}
