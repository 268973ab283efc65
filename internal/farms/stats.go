package farms

import "sort"

// RankedFarm pairs a farm with its derived ranking value.
type RankedFarm struct {
	Farm        Farm
	MeanRating  float64
	ReviewCount int
	MaxEarnings int
}

// Statistics is a pure aggregation over a farm subset.
type Statistics struct {
	Total        int
	TotalReviews int
	ByType       map[string]int
	ByOperator   map[string]int
	ByRegion     map[string]int
	MeanRating   float64
	TopRated     []RankedFarm
	TopEarnings  []RankedFarm
	Recent       []Farm
}

// Aggregate derives statistics from the given subset. Reviews at or
// above flagThreshold are excluded from rating math but still count
// toward nothing else here; a review without a rating counts as 3, an
// oddity of the data source that is kept deliberately.
func Aggregate(set []Farm, flagThreshold int) Statistics {
	stats := Statistics{
		Total:      len(set),
		ByType:     make(map[string]int),
		ByOperator: make(map[string]int),
		ByRegion:   make(map[string]int),
	}

	ratingSum := 0
	var rated []RankedFarm

	for _, f := range set {
		stats.ByType[TypeName(f.Type)]++
		for _, op := range f.Operators {
			stats.ByOperator[op]++
		}
		stats.ByRegion[RegionForPostcode(f.Postcode)]++

		visible := f.VisibleReviews(flagThreshold)
		if len(visible) == 0 {
			continue
		}
		stats.TotalReviews += len(visible)
		farmSum := 0
		for _, rv := range visible {
			r := rv.Rating
			if r == 0 {
				r = 3
			}
			farmSum += r
		}
		ratingSum += farmSum
		rated = append(rated, RankedFarm{
			Farm:        f,
			MeanRating:  float64(farmSum) / float64(len(visible)),
			ReviewCount: len(visible),
		})
	}

	if stats.TotalReviews > 0 {
		stats.MeanRating = float64(ratingSum) / float64(stats.TotalReviews)
	}

	// Top five by mean rating; stable sort keeps original order on ties.
	topRated := make([]RankedFarm, len(rated))
	copy(topRated, rated)
	sort.SliceStable(topRated, func(i, j int) bool {
		return topRated[i].MeanRating > topRated[j].MeanRating
	})
	stats.TopRated = head(topRated, 5)

	// Top five by maximum single-review earnings, parsed numerically.
	var earners []RankedFarm
	for i, f := range set {
		if max := f.MaxEarnings(); max > 0 {
			mean := 0.0
			for _, r := range rated {
				if r.Farm.ID == set[i].ID {
					mean = r.MeanRating
					break
				}
			}
			earners = append(earners, RankedFarm{Farm: f, MaxEarnings: max, MeanRating: mean})
		}
	}
	sort.SliceStable(earners, func(i, j int) bool {
		return earners[i].MaxEarnings > earners[j].MaxEarnings
	})
	stats.TopEarnings = head(earners, 5)

	// Last ten farms, newest first.
	n := len(set)
	for i := n - 1; i >= 0 && i >= n-10; i-- {
		stats.Recent = append(stats.Recent, set[i])
	}

	return stats
}

func head(in []RankedFarm, n int) []RankedFarm {
	if len(in) > n {
		in = in[:n]
	}
	return in
}
