// Package csvutil reads title lists exported from vendor portals, such as
// an Overdrive MARC express report or a OneClick collection export.
package csvutil

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ProcessorOptions configures CSV processing behavior.
type ProcessorOptions struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune

	// SkipInvalid logs and skips records the parser rejects instead of
	// failing the whole file.
	SkipInvalid bool
}

// Row is one record keyed by its lower-cased, trimmed header.
type Row map[string]string

// ProcessFile opens filename and hands it to Process.
func ProcessFile[T any](filename string, parser func(Row) (T, error), opts ProcessorOptions) ([]T, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Process(f, parser, opts)
}

// Process reads a CSV with a header line and parses each record into T.
// Records with a different number of fields than the header are skipped.
func Process[T any](r io.Reader, parser func(Row) (T, error), opts ProcessorOptions) ([]T, error) {
	reader := csv.NewReader(r)
	if opts.Comma != 0 {
		reader.Comma = opts.Comma
	}
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("CSV file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	var items []T
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Warn("Error reading record", "line", line, "error", err)
			continue
		}
		if len(record) != len(header) {
			slog.Warn("Skipping record with wrong number of fields", "line", line, "fields", len(record), "want", len(header))
			continue
		}

		row := make(Row, len(header))
		for i, h := range header {
			row[h] = strings.TrimSpace(record[i])
		}

		item, err := parser(row)
		if err != nil {
			if opts.SkipInvalid {
				slog.Warn("Skipping invalid record", "line", line, "error", err)
				continue
			}
			return nil, fmt.Errorf("invalid record on line %d: %w", line, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// Column returns a parser that picks one column, failing on an empty
// value.
func Column(name string) func(Row) (string, error) {
	name = strings.ToLower(name)
	return func(row Row) (string, error) {
		v, ok := row[name]
		if !ok {
			return "", fmt.Errorf("no %q column", name)
		}
		if v == "" {
			return "", fmt.Errorf("empty %q", name)
		}
		return v, nil
	}
}
