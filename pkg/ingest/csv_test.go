package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"retail-cohorts/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

const cleanedCSV = `Invoice,StockCode,Description,Quantity,InvoiceDate,Price,Customer ID,Country,TotalAmount
489434,85048,15CM CHRISTMAS GLASS BALL 20 LIGHTS,12,2009-12-01 07:45:00,6.95,13085.0,United Kingdom,83.4
489435,22350,CAT BOWL,12,2009-12-01 07:46:00,2.55,,United Kingdom,30.6
C489449,22087,PAPER BUNTING WHITE LACE,-12,2009-12-01 10:33:00,2.95,16321.0,Australia,-35.4
A506401,B,Adjust bad debt,1,2010-04-29 13:36:00,-53594.36,,United Kingdom,-53594.36
489436,21755,LOVE BUILDING BLOCK WORD,18,not a date,5.45,13078.0,United Kingdom,98.1
`

func TestRead_CleanedFile(t *testing.T) {
	rows, st, err := Read(strings.NewReader(cleanedCSV), Options{})
	require.NoError(t, err)

	assert.Equal(t, 5, st.Read)
	assert.Equal(t, 2, st.Kept)
	assert.Equal(t, 2, st.MissingCustomer)
	assert.Equal(t, 1, st.BadDate)
	require.Len(t, rows, 2)

	assert.Equal(t, uint64(13085), rows[0].CustomerID)
	assert.InDelta(t, 83.4, rows[0].TotalAmount, 1e-9)
	assert.True(t, rows[0].InvoiceDate.Equal(time.Date(2009, 12, 1, 7, 45, 0, 0, time.UTC)))
	assert.True(t, rows[1].IsCancellation())
	assert.Equal(t, "Australia", rows[1].Country)
}

func TestRead_RawSemicolonLatin1(t *testing.T) {
	raw := "Invoice;StockCode;Description;Quantity;InvoiceDate;Price;Customer ID;Country\n" +
		"536365;85123A;CR\u00c8ME HOLDER;6;01/12/2010 08:26;2,55;17850;France\n" +
		"536366;22633;HAND WARMER;-2;02/12/2010 08:28;1,85;17850;France\n" +
		"536367;84879;BIRD;3;03/12/2010 08:34;-1,69;13047;France\n"
	enc, err := charmap.ISO8859_1.NewEncoder().String(raw)
	require.NoError(t, err)
	enc = "\xef\xbb\xbf" + enc // BOM UTF-8 brut devant un fichier latin1

	rows, st, err := Read(strings.NewReader(enc), Options{Delimiter: ';', DecimalComma: true, Latin1: true, DayFirst: true})
	require.NoError(t, err)
	assert.Equal(t, 1, st.NegativePrice)
	require.Len(t, rows, 2)

	assert.InDelta(t, 2.55, rows[0].Price, 1e-9)
	assert.InDelta(t, 15.3, rows[0].TotalAmount, 1e-9)
	assert.True(t, rows[0].InvoiceDate.Equal(time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)))
	assert.InDelta(t, -3.7, rows[1].TotalAmount, 1e-9)
	assert.True(t, rows[1].IsReturn())
}

func TestRead_MissingRequiredColumn(t *testing.T) {
	_, _, err := Read(strings.NewReader("Invoice,Quantity,Price\n1,1,1\n"), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Contains(t, err.Error(), "customerid")
}

func TestRead_EmptyFile(t *testing.T) {
	_, _, err := Read(strings.NewReader(""), Options{})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestReadFiles_Concatenates(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "2009-2010.csv")
	b := filepath.Join(dir, "2010-2011.csv")
	require.NoError(t, os.WriteFile(a, []byte(cleanedCSV), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("Invoice,Quantity,InvoiceDate,Price,CustomerID,Country\n"+
		"540000,1,2011-01-05 10:00:00,4.5,12346,Germany\n"), 0o644))

	tbl, st, err := ReadFiles([]string{a, b}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, 3, st.Kept)
	assert.Equal(t, []uint64{12346, 13085, 16321}, tbl.Customers())
}

func TestReadFiles_NoValidRow(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(p, []byte("Invoice,Quantity,InvoiceDate,Price,CustomerID,Country\n"), 0o644))
	_, _, err := ReadFiles([]string{p}, Options{})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestParseCustomerID(t *testing.T) {
	id, ok := parseCustomerID("17850.0")
	assert.True(t, ok)
	assert.Equal(t, uint64(17850), id)

	_, ok = parseCustomerID("")
	assert.False(t, ok)
	_, ok = parseCustomerID("abc")
	assert.False(t, ok)
}
