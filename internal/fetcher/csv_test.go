package fetcher

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamCSV_Basic(t *testing.T) {
	input := "ID, RA ,Dec\n100, 10.5 ,-3\n200,11,4\n"
	header, rowCh, errCh, err := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{Name: "pos.csv"})
	require.NoError(t, err)

	i, ok := header.Index("ra")
	require.True(t, ok)
	assert.Equal(t, 1, i)

	rows, err := collectTable(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"100", "10.5", "-3"}, rows[0].Fields)
	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, 3, rows[1].Line)
}

func TestStreamCSV_CommentsKeepLineNumbers(t *testing.T) {
	input := "# exported 2024\nid,ra,dec\n# note\n1,2,3\n"
	_, rowCh, errCh, err := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{Comment: '#'})
	require.NoError(t, err)
	rows, err := collectTable(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 4, rows[0].Line)
}

func TestStreamCSV_Delimiter(t *testing.T) {
	input := "a|b\n1|2\n"
	header, rowCh, errCh, err := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{Delimiter: '|'})
	require.NoError(t, err)
	assert.Len(t, header, 2)
	rows, err := collectTable(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, rows[0].Fields)
}

func TestStreamCSV_RequiredColumns(t *testing.T) {
	_, _, _, err := StreamCSV(context.Background(), strings.NewReader("id,RA\n1,2\n"), CSVOptions{
		Name:     "pos.csv",
		Required: []string{"ID", "ra", "Dec"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing column "dec"`)
	assert.Contains(t, err.Error(), "pos.csv")
}

func TestStreamCSV_Empty(t *testing.T) {
	_, _, _, err := StreamCSV(context.Background(), strings.NewReader(""), CSVOptions{Name: "empty.csv"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing header")
}

func TestStreamCSV_DuplicateHeaderFirstWins(t *testing.T) {
	header, rowCh, errCh, err := StreamCSV(context.Background(), strings.NewReader("x,X\n1,2\n"), CSVOptions{})
	require.NoError(t, err)
	_, _ = collectTable(t, rowCh, errCh)
	i, _ := header.Index("x")
	assert.Equal(t, 0, i)
}

func TestStreamCSV_LazyQuotes(t *testing.T) {
	input := "a,b\n1,say \"hi\"\n"
	_, rowCh, errCh, err := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{LazyQuotes: true})
	require.NoError(t, err)
	rows, err := collectTable(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, `say "hi"`, rows[0].Fields[1])
}

func TestStreamCSV_ContextCancelled(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("a\n")
	for i := 0; i < 1000; i++ {
		sb.WriteString("1\n")
	}
	ctx, cancel := context.WithCancel(context.Background())
	_, rowCh, errCh, err := StreamCSV(ctx, strings.NewReader(sb.String()), CSVOptions{})
	require.NoError(t, err)
	cancel()
	_, err = collectTable(t, rowCh, errCh)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

type failingReader struct {
	data string
	read bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.read {
		r.read = true
		return copy(p, r.data), nil
	}
	return 0, io.ErrUnexpectedEOF
}

func TestStreamCSV_ReadError(t *testing.T) {
	_, rowCh, errCh, err := StreamCSV(context.Background(), &failingReader{data: "a,b\n1,2\n"}, CSVOptions{Name: "broken.csv"})
	require.NoError(t, err)
	_, err = collectTable(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.csv")
}

func TestReadCSV(t *testing.T) {
	input := "id,ra\n1,2\n3,x\n"
	var got []string
	err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{Name: "pos.csv"}, func(h CSVHeader, row TableRow) error {
		i, _ := h.Index("ra")
		if row.Fields[i] == "x" {
			return errors.New("bad ra")
		}
		got = append(got, row.Fields[i])
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pos.csv:3")
	assert.Equal(t, []string{"2"}, got)
}

func TestRecordLine(t *testing.T) {
	r := csv.NewReader(strings.NewReader("a,b\n# note\n\n1,2\n3\n"))
	r.Comment = '#'

	_, err := r.Read()
	require.NoError(t, err)
	_, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, 4, RecordLine(r, errors.New("bad value")))

	_, err = r.Read()
	require.Error(t, err)
	assert.Equal(t, 5, RecordLine(r, err))
}
