// Package matcher scores a candidate business record against stored
// restaurants to decide whether they describe the same physical place.
// It is pure: no I/O, no hidden state, safe for concurrent use.
package matcher

import (
	"math"

	"github.com/plateindex/plateindex/internal/catalog"
)

// Signal weights. The scale is additive: a perfect match scores 100.
const (
	nameWeight    = 40.0
	addressWeight = 30.0
	gpsWeight     = 20.0
	phoneWeight   = 10.0

	// Threshold is the minimum additive score required to treat two records
	// as the same place. Tuned for the restaurant domain.
	Threshold = 50.0

	// GPS proximity is point-of-interest scale: full weight within
	// gpsFullMeters, decaying linearly to zero at gpsCutoffMeters.
	gpsFullMeters   = 100.0
	gpsCutoffMeters = 2000.0

	earthRadiusMeters = 6371000.0
)

// Match pairs a stored restaurant with its similarity score.
type Match struct {
	Restaurant catalog.Restaurant
	Score      float64
}

// FindMatch evaluates every candidate and returns the best one if its score
// clears the threshold. Ties break in input order, so callers should pass
// candidates sorted by a reasonable prior (e.g. nearest first).
func FindMatch(observed catalog.BusinessRecord, candidates []catalog.Restaurant) (Match, bool) {
	var best Match
	found := false
	for _, cand := range candidates {
		score := Score(observed, cand)
		if !found || score > best.Score {
			best = Match{Restaurant: cand, Score: score}
			found = true
		}
	}
	if !found || best.Score < Threshold {
		return Match{}, false
	}
	return best, true
}

// Score computes the additive similarity between a business record and a
// stored restaurant across four independent signals.
func Score(observed catalog.BusinessRecord, r catalog.Restaurant) float64 {
	score := nameWeight * similarity(NormalizeName(observed.Name), NormalizeName(r.Name))
	score += addressWeight * similarity(NormalizeAddress(observed.Address), NormalizeAddress(r.Address))
	score += gpsScore(observed, r)
	score += phoneScore(observed.Phone, r.Phone)
	return score
}

// gpsScore awards a weight that decays with great-circle distance. Missing
// coordinates on either side contribute zero.
func gpsScore(observed catalog.BusinessRecord, r catalog.Restaurant) float64 {
	if !observed.HasCoordinates() || !r.HasCoordinates() {
		return 0
	}
	d := haversineMeters(*observed.Latitude, *observed.Longitude, *r.Latitude, *r.Longitude)
	switch {
	case d <= gpsFullMeters:
		return gpsWeight
	case d >= gpsCutoffMeters:
		return 0
	default:
		return gpsWeight * (gpsCutoffMeters - d) / (gpsCutoffMeters - gpsFullMeters)
	}
}

// phoneScore is all-or-nothing on an exact normalized match.
func phoneScore(a, b string) float64 {
	na, nb := NormalizePhone(a), NormalizePhone(b)
	if na == "" || nb == "" || na != nb {
		return 0
	}
	return phoneWeight
}

// haversineMeters computes the great-circle distance between two points.
func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
