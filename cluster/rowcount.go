package cluster

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
)

// countParquetRows sums every row group's row count from the Parquet
// footer. This reads the same metadata a full streaming pass would reach
// for row counting purposes, without decoding a single column value.
func countParquetRows(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("cluster: failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	file, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return 0, fmt.Errorf("cluster: failed to read parquet footer: %w", err)
	}

	var total int64
	for _, rg := range file.RowGroups() {
		total += rg.NumRows()
	}
	return total, nil
}
