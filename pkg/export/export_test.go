package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	table := Table{
		Headers: []string{"folder", "files", "bytes"},
		Rows: [][]string{
			{"thumbs", "12", "40960"},
			{"originals", "12"},
		},
	}

	out, err := NewCSVExporter().Render(table)
	require.NoError(t, err)
	assert.Equal(t, "folder,files,bytes\nthumbs,12,40960\noriginals,12,\n", string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Table{})
	require.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	table := Table{
		Title:   "usage report",
		Headers: []string{"folder", "files"},
		Rows:    [][]string{{"thumbs", "12"}},
	}

	out, err := NewPDFExporter().Render(table)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
