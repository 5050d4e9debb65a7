package sheet

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTab(t *testing.T, dir, tab, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, tab+".csv"), []byte(content), 0o644))
}

func TestCSVBookReadWrite(t *testing.T) {
	dir := t.TempDir()
	writeTab(t, dir, "variants", "parent_sku,sku,name,adjust,stock,price\nP1,V1,Red,4\nP1,V2,Blue,6,,9.5\n")

	book, err := NewCSVBook(dir)
	require.NoError(t, err)
	ctx := context.Background()

	rows, err := book.Read(ctx, "variants!A2:F")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"P1", "V1", "Red", "4"},
		{"P1", "V2", "Blue", "6", "", "9.5"},
	}, rows)

	err = book.WriteCells(ctx, []CellUpdate{
		{Cell: "variants!D2", Value: "0"},
		{Cell: "variants!E2", Value: "4"},
		{Cell: "variants!F2", Value: "9.5"},
	})
	require.NoError(t, err)

	rows, err = book.Read(ctx, "variants!A2:F")
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "V1", "Red", "0", "4", "9.5"}, rows[0])

	// Header survives the rewrite.
	header, err := book.Read(ctx, "variants!A1:B1")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"parent_sku", "sku"}}, header)

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCSVBookDefaultTab(t *testing.T) {
	dir := t.TempDir()
	writeTab(t, dir, DefaultTab, "sku\nSKU1\n")

	book, err := NewCSVBook(dir)
	require.NoError(t, err)

	rows, err := book.Read(context.Background(), "A2:A")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"SKU1"}}, rows)
}

func TestCSVBookMissingTab(t *testing.T) {
	book, err := NewCSVBook(t.TempDir())
	require.NoError(t, err)

	_, err = book.Read(context.Background(), "Products!A2:L")
	assert.ErrorIs(t, err, ErrSheetNotFound)

	err = book.WriteCells(context.Background(), []CellUpdate{{Cell: "Products!G2", Value: "0"}})
	assert.ErrorIs(t, err, ErrSheetNotFound)
}

func TestNewCSVBookRequiresDirectory(t *testing.T) {
	_, err := NewCSVBook(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.csv")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = NewCSVBook(file)
	assert.Error(t, err)
}

func TestOpenCSVBackend(t *testing.T) {
	root := t.TempDir()
	src, err := Open(context.Background(), Options{Backend: BackendCSV, CSVDir: root, SpreadsheetID: "products"})
	require.NoError(t, err)

	book, ok := src.(*CSVBook)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "products"), book.Dir())
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Options{Backend: "excel"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestCredentialsJSONUnescapesKey(t *testing.T) {
	raw, err := Credentials{Email: "svc@example.iam", PrivateKey: `-----BEGIN-----\nabc\n-----END-----`}.json()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"private_key":"-----BEGIN-----\nabc\n-----END-----"`)
	assert.Contains(t, string(raw), `"type":"service_account"`)

	_, err = Credentials{Email: "svc@example.iam"}.json()
	assert.Error(t, err)
}
