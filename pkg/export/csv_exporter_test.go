package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterWritesRowsInHeaderOrder(t *testing.T) {
	var buf bytes.Buffer
	err := NewCSVExporter(false).Write(&buf, Table{
		Headers: []string{"id", "summary"},
		Rows: []map[string]string{
			{"summary": "二次関数, 復習", "id": "r1"},
			{"id": "r2"},
		},
	})
	require.NoError(t, err)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id", "summary"}, {"r1", "二次関数, 復習"}, {"r2", ""}}, records)
}

func TestCSVExporterBOM(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCSVExporter(true).Write(&buf, Table{Headers: []string{"id"}}))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), utf8BOM))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	assert.Error(t, NewCSVExporter(false).Write(&bytes.Buffer{}, Table{}))
}
