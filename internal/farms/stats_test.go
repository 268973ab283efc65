package farms

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	t.Parallel()

	day := func(d int) time.Time { return time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC) }
	set := []Farm{
		{
			ID: "a", Type: "berries", Postcode: "CB4 0GF", Operators: []string{"Concordia"},
			Reviews: []Review{
				{ID: "r1", Rating: 5, Earnings: "£8,500", Date: day(1)},
				{ID: "r2", Rating: 0, Date: day(2)}, // unset rating counts as 3
			},
		},
		{
			ID: "b", Type: "tomatoes", Postcode: "ME1 1AA", Operators: []string{"Concordia", "HOPS Labour Solutions"},
			Reviews: []Review{
				{ID: "r3", Rating: 2, Earnings: "£12000", Date: day(3)},
				{ID: "r4", Rating: 1, Flags: 3, Date: day(4)}, // hidden
			},
		},
		{
			ID: "c", Type: "berries", Postcode: "ZE1 0AA",
		},
	}

	stats := Aggregate(set, 3)

	require.Equal(t, 3, stats.Total)
	require.Equal(t, 3, stats.TotalReviews)
	require.Equal(t, 2, stats.ByType["Berry farm"])
	require.Equal(t, 1, stats.ByType["Tomato farm"])
	require.Equal(t, 2, stats.ByOperator["Concordia"])
	require.Equal(t, 1, stats.ByRegion["Cambridgeshire"])
	require.Equal(t, 1, stats.ByRegion["ZE regional"])

	// (5 + 3 + 2) / 3 visible reviews.
	require.InDelta(t, 10.0/3.0, stats.MeanRating, 0.001)

	require.Len(t, stats.TopRated, 2)
	require.Equal(t, "a", stats.TopRated[0].Farm.ID)
	require.InDelta(t, 4.0, stats.TopRated[0].MeanRating, 0.001)
	require.Equal(t, "b", stats.TopRated[1].Farm.ID)

	require.Len(t, stats.TopEarnings, 2)
	require.Equal(t, "b", stats.TopEarnings[0].Farm.ID)
	require.Equal(t, 12000, stats.TopEarnings[0].MaxEarnings)
	require.Equal(t, "a", stats.TopEarnings[1].Farm.ID)
	require.Equal(t, 8500, stats.TopEarnings[1].MaxEarnings)

	require.Len(t, stats.Recent, 3)
	require.Equal(t, "c", stats.Recent[0].ID)
}

func TestAggregateEmpty(t *testing.T) {
	t.Parallel()

	stats := Aggregate(nil, 3)
	require.Zero(t, stats.Total)
	require.Zero(t, stats.TotalReviews)
	require.Zero(t, stats.MeanRating)
	require.Empty(t, stats.TopRated)
	require.Empty(t, stats.TopEarnings)
}
