package ingest

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/parquet-go/parquet-go"

	"github.com/shardframe/shardframe"
	"github.com/shardframe/shardframe/errs"
)

// julianUnixEpochDay is the Julian day number of the Unix epoch
// (1970-01-01), used to convert Parquet INT96 timestamps (Julian day plus
// nanoseconds-of-day) to milliseconds since epoch.
const julianUnixEpochDay = 2440588

// Load reads a Parquet source end to end, validates its schema against the
// table's schema, and appends accepted rows in batches of opts.BatchSize,
// taking the table's writer lock once per batch. It honors skip_rows, the
// row-range filter, row_limit, and flushes any partial final batch.
func Load(ctx context.Context, td *shardframe.TableData, schema *shardframe.Schema, src io.ReaderAt, size int64, opts LoadOptions) (Report, error) {
	return LoadWithLogger(ctx, td, schema, src, size, opts, log.NewNopLogger())
}

// LoadWithLogger is Load with an explicit logger, used by callers (the
// distribution coordinator, the HTTP handlers) that already carry one
// scoped to the request or table.
func LoadWithLogger(ctx context.Context, td *shardframe.TableData, schema *shardframe.Schema, src io.ReaderAt, size int64, opts LoadOptions, logger log.Logger) (Report, error) {
	start := time.Now()
	report := Report{}

	file, err := parquet.OpenFile(src, size)
	if err != nil {
		return report, errs.Ingest("failed to read parquet footer", err, 0)
	}

	columns, err := validateSchema(schema, file.Schema().Fields())
	if err != nil {
		return report, errs.Validation(err.Error())
	}

	var deadline <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	buf := make([]parquet.Row, 256)
	batch := make([][]shardframe.Value, 0, opts.batchSize())

	var absolute int64
	var accepted int64

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := td.AppendRows(batch); err != nil {
			return errs.Ingest("failed to append batch", err, report.RowsProcessed)
		}
		report.RowsProcessed += int64(len(batch))
		report.BatchCount++
		batch = batch[:0]
		return nil
	}

groups:
	for _, rg := range file.RowGroups() {
		rows := rg.Rows()

		for {
			select {
			case <-ctx.Done():
				report.TimedOut = true
				rows.Close()
				break groups
			case <-deadline:
				report.TimedOut = true
				rows.Close()
				break groups
			default:
			}

			n, readErr := rows.ReadRows(buf)
			for i := 0; i < n; i++ {
				row := buf[i]
				idx := absolute
				absolute++

				if idx < opts.SkipRows {
					continue
				}
				if !opts.Filter.accepts(idx) {
					continue
				}

				values, convErr := convertRow(columns, row)
				if convErr != nil {
					rows.Close()
					return report, errs.Ingest("failed to decode row", convErr, report.RowsProcessed)
				}
				batch = append(batch, values)
				accepted++

				if len(batch) >= opts.batchSize() {
					if err := flush(); err != nil {
						rows.Close()
						return report, err
					}
				}
				if opts.RowLimit > 0 && accepted >= opts.RowLimit {
					rows.Close()
					break groups
				}
			}

			if readErr == io.EOF {
				break
			}
			if readErr != nil {
				rows.Close()
				return report, errs.Ingest("failed to read parquet rows", readErr, report.RowsProcessed)
			}
		}
		rows.Close()
	}

	if err := flush(); err != nil {
		return report, err
	}

	report.Elapsed = time.Since(start)
	level.Info(logger).Log(
		"msg", "parquet load complete",
		"rows", humanize.Comma(report.RowsProcessed),
		"batches", report.BatchCount,
		"timedOut", report.TimedOut,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

// sourceColumn maps one schema column position to its Parquet field
// position and the conversion it needs.
type sourceColumn struct {
	parquetIndex int
	dataType     shardframe.DataType
	isInt96      bool
}

// validateSchema checks schema compatibility against the source file:
// same column count, and each positional column has a compatible
// primitive Parquet type.
func validateSchema(schema *shardframe.Schema, fields []parquet.Field) ([]sourceColumn, error) {
	if len(fields) != len(schema.Columns) {
		return nil, fmt.Errorf("ingest: parquet file has %d columns, table schema has %d", len(fields), len(schema.Columns))
	}

	out := make([]sourceColumn, len(schema.Columns))
	for i, col := range schema.Columns {
		field := fields[i]
		kind := field.Type().Kind()
		isInt96 := false

		switch col.Type {
		case shardframe.Integer:
			if kind != parquet.Int32 {
				return nil, fmt.Errorf("ingest: column %q expects INT32, parquet column %q is %s", col.Name, field.Name(), kind)
			}
		case shardframe.Long:
			if kind != parquet.Int64 {
				return nil, fmt.Errorf("ingest: column %q expects INT64, parquet column %q is %s", col.Name, field.Name(), kind)
			}
		case shardframe.Float:
			if kind != parquet.Float {
				return nil, fmt.Errorf("ingest: column %q expects FLOAT, parquet column %q is %s", col.Name, field.Name(), kind)
			}
		case shardframe.Double:
			if kind != parquet.Double {
				return nil, fmt.Errorf("ingest: column %q expects DOUBLE, parquet column %q is %s", col.Name, field.Name(), kind)
			}
		case shardframe.Boolean:
			if kind != parquet.Boolean {
				return nil, fmt.Errorf("ingest: column %q expects BOOLEAN, parquet column %q is %s", col.Name, field.Name(), kind)
			}
		case shardframe.String:
			if kind != parquet.ByteArray && kind != parquet.FixedLenByteArray {
				return nil, fmt.Errorf("ingest: column %q expects BINARY, parquet column %q is %s", col.Name, field.Name(), kind)
			}
		case shardframe.Date, shardframe.Timestamp:
			switch kind {
			case parquet.Int96:
				isInt96 = true
			case parquet.Int64:
				// already millisecond-epoch, no conversion needed.
			default:
				return nil, fmt.Errorf("ingest: column %q expects INT64 or INT96, parquet column %q is %s", col.Name, field.Name(), kind)
			}
		}

		out[i] = sourceColumn{parquetIndex: i, dataType: col.Type, isInt96: isInt96}
	}
	return out, nil
}

// convertRow extracts one logical row's values from a flat Parquet row,
// honoring the definition-level null marker and the DATE/TIMESTAMP INT96
// conversion.
func convertRow(columns []sourceColumn, row parquet.Row) ([]shardframe.Value, error) {
	values := make([]shardframe.Value, len(columns))
	for i, col := range columns {
		v := valueForColumn(row, col.parquetIndex)

		if v.IsNull() {
			values[i] = shardframe.NullOf(col.dataType)
			continue
		}

		switch col.dataType {
		case shardframe.Integer:
			values[i] = shardframe.IntValue(v.Int32())
		case shardframe.Long:
			values[i] = shardframe.LongValue(v.Int64())
		case shardframe.Float:
			values[i] = shardframe.FloatValue(v.Float())
		case shardframe.Double:
			values[i] = shardframe.DoubleValue(v.Double())
		case shardframe.Boolean:
			values[i] = shardframe.BoolValue(v.Boolean())
		case shardframe.String:
			values[i] = shardframe.StringValue(string(v.ByteArray()))
		case shardframe.Date, shardframe.Timestamp:
			var millis int64
			if col.isInt96 {
				millis = int96ToMillis(v.ByteArray())
			} else {
				millis = v.Int64()
			}
			if col.dataType == shardframe.Date {
				values[i] = shardframe.DateValue(millis)
			} else {
				values[i] = shardframe.TimestampValue(millis)
			}
		default:
			return nil, fmt.Errorf("ingest: unhandled data type %s", col.dataType)
		}
	}
	return values, nil
}

// valueForColumn finds the parquet.Value for the given flat column index
// within row. A flat (non-repeated, non-nested) schema has exactly one
// value per column per row.
func valueForColumn(row parquet.Row, col int) parquet.Value {
	for _, v := range row {
		if v.Column() == col {
			return v
		}
	}
	return parquet.Value{}
}

// int96ToMillis converts a 12-byte Parquet INT96 timestamp (8 bytes of
// nanoseconds-of-day, little-endian, followed by a 4-byte little-endian
// Julian day number) to milliseconds since the Unix epoch.
func int96ToMillis(raw []byte) int64 {
	if len(raw) != 12 {
		return 0
	}
	var nanosOfDay int64
	for i := 7; i >= 0; i-- {
		nanosOfDay = nanosOfDay<<8 | int64(raw[i])
	}
	var julianDay int32
	for i := 11; i >= 8; i-- {
		julianDay = julianDay<<8 | int32(raw[i])
	}
	days := int64(julianDay) - julianUnixEpochDay
	return days*86400000 + nanosOfDay/1_000_000
}
