package input

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Veraticus/revfinder/internal/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRecords = `[
  {"document_id": "NFE1", "description": "CERVEJA HEINEKEN 600ML", "code": "22030000", "quantity": 12, "unit_value": "9.99", "total_value": "119.88"},
  {"document_id": "NFE1", "description": "ARROZ TIPO 1", "quantity": "1", "unit_value": 25.5, "total_value": 25.5, "line": 7}
]`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadRecords(t *testing.T) {
	records, err := ReadRecords(strings.NewReader(sampleRecords))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "CERVEJA HEINEKEN 600ML", records[0].Description)
	assert.True(t, decimal.RequireFromString("119.88").Equal(records[0].TotalValue))
	assert.True(t, decimal.NewFromInt(12).Equal(records[0].Quantity))
	assert.Equal(t, 1, records[0].Line)
	assert.Equal(t, 7, records[1].Line)
	assert.Empty(t, records[1].Code)
}

func TestReadRecords_Invalid(t *testing.T) {
	_, err := ReadRecords(strings.NewReader(`{"description": "not an array"}`))
	assert.Error(t, err)

	records, err := ReadRecords(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLoadRecords_Globs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "2024/01/a.json", sampleRecords)
	writeFile(t, dir, "2024/02/b.json", `[{"document_id": "NFE2", "description": "GUARANA 2L", "total_value": "8.50"}]`)
	writeFile(t, dir, "2024/notes.txt", "ignored")

	records, err := LoadRecords([]string{filepath.Join(dir, "**", "*.json")}, nil)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "NFE1", records[0].DocumentID)
	assert.Equal(t, "NFE2", records[2].DocumentID)
}

func TestExpandPatterns(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", "[]")
	writeFile(t, dir, "b.json", "[]")

	files, err := ExpandPatterns([]string{filepath.Join(dir, "*.json"), a})
	require.NoError(t, err)
	assert.Len(t, files, 2, "duplicates are removed")

	_, err = ExpandPatterns([]string{filepath.Join(dir, "*.xml")})
	assert.ErrorIs(t, err, common.ErrMissingConfig)

	_, err = ExpandPatterns([]string{filepath.Join(dir, "[")})
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestLoadRecords_Stdin(t *testing.T) {
	records, err := LoadRecords([]string{Stdin}, strings.NewReader(sampleRecords))
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
