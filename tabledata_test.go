package shardframe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestSchema(t *testing.T) *Schema {
	t.Helper()
	schema, err := NewSchema([]Column{
		{Name: "id", Type: Long, Nullable: false},
		{Name: "name", Type: String, Nullable: true, Indexed: true},
	})
	require.NoError(t, err)
	return schema
}

func TestTableDataAppendRowsCommitsAtomically(t *testing.T) {
	td := NewTableData(newTestSchema(t), nil, nil)

	err := td.AppendRows([][]Value{
		{LongValue(1), StringValue("a")},
		{LongValue(2), NullOf(String)},
	})
	require.NoError(t, err)
	require.Equal(t, 2, td.RowCount())
}

func TestTableDataAppendRowsRejectsWholeBatchOnValidationFailure(t *testing.T) {
	td := NewTableData(newTestSchema(t), nil, nil)

	require.NoError(t, td.AppendRows([][]Value{{LongValue(1), StringValue("a")}}))

	err := td.AppendRows([][]Value{
		{LongValue(2), StringValue("b")},
		{NullOf(Long), StringValue("c")}, // id is not nullable
	})
	require.Error(t, err)
	require.Equal(t, 1, td.RowCount(), "a failed batch must leave row_count unchanged")
}

func TestTableDataRejectsWrongColumnCount(t *testing.T) {
	td := NewTableData(newTestSchema(t), nil, nil)
	err := td.AppendRow([]Value{LongValue(1)})
	require.Error(t, err)
}

// TestTableDataConcurrentIngestAndCount runs a writer goroutine appending
// batches against a reader goroutine polling RowCount concurrently,
// asserting the observed count never decreases and never exceeds what the
// writer has actually committed.
func TestTableDataConcurrentIngestAndCount(t *testing.T) {
	td := NewTableData(newTestSchema(t), nil, nil)

	const batches = 500
	const batchSize = 20

	stop := make(chan struct{})
	var wg sync.WaitGroup

	var readErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		last := 0
		for {
			select {
			case <-stop:
				return
			default:
			}
			current := td.RowCount()
			if current < last {
				readErr = fmt.Errorf("row count decreased from %d to %d", last, current)
				return
			}
			if current > batches*batchSize {
				readErr = fmt.Errorf("row count %d exceeds total rows ever appended %d", current, batches*batchSize)
				return
			}
			last = current
			time.Sleep(time.Microsecond)
		}
	}()

	for b := 0; b < batches; b++ {
		rows := make([][]Value, batchSize)
		for i := range rows {
			rows[i] = []Value{LongValue(int64(b*batchSize + i)), StringValue("row")}
		}
		require.NoError(t, td.AppendRows(rows))
	}
	close(stop)
	wg.Wait()

	require.NoError(t, readErr)
	require.Equal(t, batches*batchSize, td.RowCount())
}
