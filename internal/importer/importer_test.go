package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/tailorreach/internal/model"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "customers.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadCSV(t *testing.T) {
	rows, err := ReadCSV(context.Background(), strings.NewReader("a, b\n# skip\n\"c,d\",e\n"), CSVOptions{Comment: '#', TrimSpace: true})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"c,d", "e"}}, rows)
}

func TestReadCSV_Malformed(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader("a,\"b\nc"), CSVOptions{})
	assert.Error(t, err)
}

func TestStreamCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rowCh, errCh := StreamCSV(ctx, strings.NewReader("a\nb\n"), CSVOptions{})
	for range rowCh {
	}
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestReadXLSX(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Customers": {{"Name", "Email"}, {"Ada", "ada@example.com"}},
	})

	rows, err := ReadXLSX(path, XLSXOptions{SheetName: "Customers"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Name", "Email"}, {"Ada", "ada@example.com"}}, rows)

	_, err = ReadXLSX(path, XLSXOptions{SheetName: "Missing"})
	assert.Error(t, err)
	_, err = ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	assert.Error(t, err)
	_, err = ReadXLSX(filepath.Join(t.TempDir(), "nope.xlsx"), XLSXOptions{})
	assert.Error(t, err)
}

func TestCustomers(t *testing.T) {
	rows := [][]string{
		{"\ufeffFull  Name", "E-mail", "Interests", "Channel", "Notes"},
		{"Ada", "ada@example.com", "engines", "Email", "x"},
		{"", "", "", "", ""},
		{"", "nobody@example.com", "", "", ""},
		{"Bob", "", "looms", "fax"},
		{"Cy", "", "tea", "whatsapp"},
		{"Dee"},
	}

	got, skipped, err := Customers(rows, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Ada", got[0].Name)
	assert.Equal(t, "ada@example.com", got[0].Email)
	assert.Equal(t, "engines", got[0].Likes)
	assert.Equal(t, model.PreferenceMail, got[0].Preferences)
	assert.Equal(t, model.PreferenceWhatsApp, got[1].Preferences)
	assert.Equal(t, "Dee", got[2].Name)
	assert.Equal(t, model.PreferenceMail, got[2].Preferences)

	require.Len(t, skipped, 2)
	assert.Equal(t, 4, skipped[0].Row)
	assert.Equal(t, "customer name is required", skipped[0].Reason)
	assert.Equal(t, 5, skipped[1].Row)
	assert.Contains(t, skipped[1].Reason, "fax")

	got, _, err = Customers(rows, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCustomers_NoNameColumn(t *testing.T) {
	_, _, err := Customers([][]string{{"email"}, {"a@b.c"}}, 0)
	assert.True(t, errors.Is(err, ErrNoNameColumn))

	got, skipped, err := Customers(nil, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, skipped)
}

func TestReadFile(t *testing.T) {
	ctx := context.Background()

	csvPath := writeFile(t, "list.csv", "name,email,preferences\nAda,ada@example.com,sms\nBob,,\n")
	got, _, err := ReadFile(ctx, csvPath, Options{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.PreferenceSMS, got[0].Preferences)

	tsvPath := writeFile(t, "list.tsv", "name\tlikes\nAda\tengines\n")
	got, _, err = ReadFile(ctx, tsvPath, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "engines", got[0].Likes)

	xlsxPath := createTestXLSX(t, map[string][][]string{
		"Sheet1": {{"Customer Name", "Phone"}, {"Ada", "555"}},
	})
	got, _, err = ReadFile(ctx, xlsxPath, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "555", got[0].Phone)

	_, _, err = ReadFile(ctx, writeFile(t, "list.json", "[]"), Options{})
	assert.Error(t, err)
	_, _, err = ReadFile(ctx, filepath.Join(t.TempDir(), "missing.csv"), Options{})
	assert.Error(t, err)
}
