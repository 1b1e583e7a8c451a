package cluster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/require"
)

type rideRow struct {
	City string  `parquet:"city"`
	Fare float64 `parquet:"fare,optional"`
}

// writeRidesParquet writes n rows (fare = float64(i)) to a new file under
// dir and returns its path.
func writeRidesParquet(t *testing.T, dir string, n int) string {
	t.Helper()
	path := filepath.Join(dir, "rides.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	rows := make([]rideRow, n)
	for i := range rows {
		rows[i] = rideRow{City: "nyc", Fare: float64(i)}
	}

	w := parquet.NewWriter(f, parquet.SchemaOf(rideRow{}))
	for i := range rows {
		require.NoError(t, w.Write(&rows[i]))
	}
	require.NoError(t, w.Close())
	return path
}
