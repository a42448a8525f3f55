package fetcher

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// TableOptions configures the whitespace table parser.
type TableOptions struct {
	Name       string // reported in errors, usually the file name
	Comment    string // line prefix to skip (default "#")
	Columns    int    // exact column count, 0 = any
	MinColumns int    // lower bound when Columns is 0
}

// TableRow is one data line of a whitespace table.
type TableRow struct {
	Line   int
	Fields []string
}

// Float parses field i.
func (r TableRow) Float(i int) (float64, error) {
	v, err := strconv.ParseFloat(r.Fields[i], 64)
	if err != nil {
		return 0, eris.Wrapf(err, "column %d", i+1)
	}
	return v, nil
}

// Int parses field i. Values written as floats ("3.0") are accepted.
func (r TableRow) Int(i int) (int64, error) {
	s := r.Fields[i]
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, eris.Errorf("column %d: %q is not an integer", i+1, s)
	}
	return int64(f), nil
}

// Uint parses field i as an unsigned identifier.
func (r TableRow) Uint(i int) (uint64, error) {
	v, err := r.Int(i)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, eris.Errorf("column %d: %d is negative", i+1, v)
	}
	return uint64(v), nil
}

// StreamTable reads a whitespace-delimited table with comment lines and
// sends rows to a channel. A row with the wrong number of columns is a
// structural error naming the table and line. Both channels are closed when
// processing completes.
func StreamTable(ctx context.Context, r io.Reader, opts TableOptions) (<-chan TableRow, <-chan error) {
	rowCh := make(chan TableRow, 64)
	errCh := make(chan error, 1)

	comment := opts.Comment
	if comment == "" {
		comment = "#"
	}

	go func() {
		defer close(rowCh)
		defer close(errCh)

		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

		line := 0
		for sc.Scan() {
			line++
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "table: context cancelled")
				return
			}

			text := strings.TrimSpace(sc.Text())
			if text == "" || strings.HasPrefix(text, comment) {
				continue
			}
			fields := strings.Fields(text)

			switch {
			case opts.Columns > 0 && len(fields) != opts.Columns:
				errCh <- eris.Errorf("table: %s:%d: expected %d columns, got %d", opts.Name, line, opts.Columns, len(fields))
				return
			case opts.Columns == 0 && len(fields) < opts.MinColumns:
				errCh <- eris.Errorf("table: %s:%d: expected at least %d columns, got %d", opts.Name, line, opts.MinColumns, len(fields))
				return
			}

			select {
			case rowCh <- TableRow{Line: line, Fields: fields}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "table: context cancelled")
				return
			}
		}
		if err := sc.Err(); err != nil {
			errCh <- eris.Wrapf(err, "table: %s: read line %d", opts.Name, line+1)
		}
	}()

	return rowCh, errCh
}

// ReadTable streams a table and calls fn for each row. An error from fn is
// annotated with the table name and line and stops the read.
func ReadTable(ctx context.Context, r io.Reader, opts TableOptions, fn func(TableRow) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rowCh, errCh := StreamTable(ctx, r, opts)
	for row := range rowCh {
		if err := fn(row); err != nil {
			cancel()
			for range rowCh {
			}
			return eris.Wrapf(err, "table: %s:%d", opts.Name, row.Line)
		}
	}
	if err := <-errCh; err != nil {
		return err
	}
	return nil
}
