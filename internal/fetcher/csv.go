// Package fetcher streams the plain-text tables of a pipeline run:
// whitespace tables with comment lines and headed CSV files.
package fetcher

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the headed CSV reader.
type CSVOptions struct {
	Name       string // reported in errors, usually the file name
	Delimiter  rune   // default ','
	Comment    rune   // comment character (0 = none)
	LazyQuotes bool
	// Required lists header names that must be present. Matching ignores
	// case and surrounding space.
	Required []string
}

// CSVHeader maps lower-cased column names to their position. The first
// occurrence of a repeated name wins.
type CSVHeader map[string]int

// Index returns the position of a column, ignoring case.
func (h CSVHeader) Index(name string) (int, bool) {
	i, ok := h[strings.ToLower(strings.TrimSpace(name))]
	return i, ok
}

func newCSVHeader(record []string) CSVHeader {
	h := make(CSVHeader, len(record))
	for i, f := range record {
		k := strings.ToLower(strings.TrimSpace(f))
		if _, dup := h[k]; !dup {
			h[k] = i
		}
	}
	return h
}

// StreamCSV reads the header synchronously, checks the required columns and
// then streams the remaining records as trimmed TableRows. Line numbers are
// those of the input. Both channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (CSVHeader, <-chan TableRow, <-chan error, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.Comment = opts.Comment
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1

	record, err := reader.Read()
	if err == io.EOF {
		return nil, nil, nil, eris.Errorf("csv: %s: missing header", opts.Name)
	}
	if err != nil {
		return nil, nil, nil, eris.Wrapf(err, "csv: %s: read header", opts.Name)
	}
	header := newCSVHeader(record)
	for _, k := range opts.Required {
		if _, ok := header.Index(k); !ok {
			return nil, nil, nil, eris.Errorf("csv: %s: missing column %q", opts.Name, strings.ToLower(k))
		}
	}

	rowCh := make(chan TableRow, 64)
	errCh := make(chan error, 1)
	go func() {
		defer close(rowCh)
		defer close(errCh)

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrapf(err, "csv: %s", opts.Name)
				return
			}
			line, _ := reader.FieldPos(0)
			for i, f := range record {
				record[i] = strings.TrimSpace(f)
			}

			select {
			case rowCh <- TableRow{Line: line, Fields: record}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return header, rowCh, errCh, nil
}

// ReadCSV streams a headed CSV and calls fn for each record. An error from
// fn is annotated with the file name and line and stops the read.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions, fn func(CSVHeader, TableRow) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	header, rowCh, errCh, err := StreamCSV(ctx, r, opts)
	if err != nil {
		return err
	}
	for row := range rowCh {
		if err := fn(header, row); err != nil {
			cancel()
			for range rowCh {
			}
			return eris.Wrapf(err, "csv: %s:%d", opts.Name, row.Line)
		}
	}
	return <-errCh
}

// RecordLine returns the line an error from r refers to: the line a parse
// error names, otherwise the first line of the record r last returned.
// Comment and blank lines are counted, so the result matches the file.
func RecordLine(r *csv.Reader, err error) int {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.Line
	}
	line, _ := r.FieldPos(0)
	return line
}
