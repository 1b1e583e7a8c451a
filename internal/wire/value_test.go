package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shardframe/shardframe"
)

func TestValueRoundTripsThroughJSON(t *testing.T) {
	cases := []shardframe.Value{
		shardframe.IntValue(7),
		shardframe.LongValue(1 << 40),
		shardframe.FloatValue(1.5),
		shardframe.DoubleValue(3.25),
		shardframe.BoolValue(true),
		shardframe.StringValue("nyc"),
		shardframe.DateValue(19000),
		shardframe.TimestampValue(1700000000000),
		shardframe.NullOf(shardframe.Double),
	}

	for _, v := range cases {
		buf, err := json.Marshal(FromDomain(v))
		require.NoError(t, err)

		var decoded Value
		require.NoError(t, json.Unmarshal(buf, &decoded))

		back, err := decoded.ToDomain()
		require.NoError(t, err)
		require.Equal(t, v, back, "value %+v did not round-trip, got %+v", v, back)
	}
}

func TestValueToDomainRejectsWrongShape(t *testing.T) {
	_, err := Value{Type: "BOOLEAN", Value: "not-a-bool"}.ToDomain()
	require.Error(t, err)

	_, err = Value{Type: "NOT_A_TYPE", Value: 1}.ToDomain()
	require.Error(t, err)
}
