package wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shardframe/shardframe"
	"github.com/shardframe/shardframe/query"
)

func TestResultRoundTripsPlainRows(t *testing.T) {
	r := &query.Result{
		Rows: []query.Row{{"city": shardframe.StringValue("nyc"), "fare": shardframe.DoubleValue(10)}},
	}

	back, err := FromResult(r).ToResult()
	require.NoError(t, err)
	require.False(t, back.Aggregated)
	require.Len(t, back.Rows, 1)
	require.True(t, back.Rows[0]["city"].Equal(shardframe.StringValue("nyc")))
}

func TestResultRoundTripsAggregatedPartials(t *testing.T) {
	r := &query.Result{
		Aggregated: true,
		Partials: []*query.PartialRow{
			{
				GroupKey: []shardframe.Value{shardframe.StringValue("nyc")},
				Values:   map[string]shardframe.Value{"total": shardframe.LongValue(42)},
				AvgPairs: map[string]query.AvgPair{"avg_fare": {Sum: 30, Count: 3}},
			},
		},
	}

	back, err := FromResult(r).ToResult()
	require.NoError(t, err)
	require.True(t, back.Aggregated)
	require.Len(t, back.Partials, 1)
	require.True(t, back.Partials[0].GroupKey[0].Equal(shardframe.StringValue("nyc")))
	require.Equal(t, int64(42), back.Partials[0].Values["total"].Int64())
	require.Equal(t, query.AvgPair{Sum: 30, Count: 3}, back.Partials[0].AvgPairs["avg_fare"])
}
