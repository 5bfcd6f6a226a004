package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"retail-cohorts/pkg/models"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/text/encoding/charmap"
)

// Options décrit le format du fichier source.
type Options struct {
	Delimiter    rune // ',' par défaut
	DecimalComma bool // "2,55" au lieu de "2.55"
	Latin1       bool // fichier encodé en ISO-8859-1
	DayFirst     bool // 01/12/2010 = 1er décembre
	Verbose      bool
}

// Stats résume le nettoyage.
type Stats struct {
	Read            int
	Kept            int
	MissingCustomer int
	NegativePrice   int
	BadDate         int
	BadNumber       int
}

func (s *Stats) add(o Stats) {
	s.Read += o.Read
	s.Kept += o.Kept
	s.MissingCustomer += o.MissingCustomer
	s.NegativePrice += o.NegativePrice
	s.BadDate += o.BadDate
	s.BadNumber += o.BadNumber
}

const (
	colInvoice     = "invoice"
	colStockCode   = "stockcode"
	colCustomerID  = "customerid"
	colQuantity    = "quantity"
	colPrice       = "price"
	colInvoiceDate = "invoicedate"
	colCountry     = "country"
)

var requiredColumns = []string{colInvoice, colCustomerID, colQuantity, colPrice, colInvoiceDate, colCountry}

// aliases des en-têtes rencontrés dans les exports du jeu Online Retail
var headerAliases = map[string]string{
	"invoice":     colInvoice,
	"invoiceno":   colInvoice,
	"stockcode":   colStockCode,
	"customerid":  colCustomerID,
	"quantity":    colQuantity,
	"price":       colPrice,
	"unitprice":   colPrice,
	"invoicedate": colInvoiceDate,
	"country":     colCountry,
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.TrimPrefix(h, "\u00ef\u00bb\u00bf") // BOM relu en latin1
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
	return h
}

func mapColumns(header []string) (map[string]int, error) {
	idx := make(map[string]int)
	for i, h := range header {
		if canon, ok := headerAliases[normalizeHeader(h)]; ok {
			if _, dup := idx[canon]; !dup {
				idx[canon] = i
			}
		}
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns %v: %w", missing, models.ErrInvalidInput)
	}
	return idx, nil
}

// Read lit un CSV, nettoie les lignes et renvoie les transactions retenues :
// client obligatoire, prix ≥ 0, date lisible, TotalAmount = Quantity × Price.
func Read(r io.Reader, opts Options) ([]models.Transaction, Stats, error) {
	var st Stats
	if opts.Latin1 {
		r = charmap.ISO8859_1.NewDecoder().Reader(r)
	}
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, st, fmt.Errorf("empty file: %w", models.ErrInvalidInput)
		}
		return nil, st, fmt.Errorf("read header: %w", err)
	}
	idx, err := mapColumns(header)
	if err != nil {
		return nil, st, err
	}
	layouts := dateLayouts(opts.DayFirst)

	var out []models.Transaction
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, st, fmt.Errorf("line %d: %w", st.Read+2, err)
		}
		st.Read++

		field := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		customer, ok := parseCustomerID(field(colCustomerID))
		if !ok {
			st.MissingCustomer++
			continue
		}
		qty, err := parseQuantity(field(colQuantity), opts.DecimalComma)
		if err != nil {
			st.BadNumber++
			continue
		}
		price, err := parseDecimal(field(colPrice), opts.DecimalComma)
		if err != nil {
			st.BadNumber++
			continue
		}
		if price < 0 {
			st.NegativePrice++
			continue
		}
		when, err := parseDate(field(colInvoiceDate), layouts)
		if err != nil {
			st.BadDate++
			continue
		}

		out = append(out, models.Transaction{
			Invoice:     field(colInvoice),
			StockCode:   field(colStockCode),
			CustomerID:  customer,
			Quantity:    qty,
			Price:       price,
			InvoiceDate: when,
			Country:     field(colCountry),
			TotalAmount: models.LineTotal(qty, price),
		})
		st.Kept++
	}
	return out, st, nil
}

// ReadFiles lit et concatène plusieurs fichiers (ex: 2009-2010 et 2010-2011).
func ReadFiles(paths []string, opts Options) (*models.Table, Stats, error) {
	var total Stats
	var all []models.Transaction
	for _, p := range paths {
		rows, st, err := readFile(p, opts)
		if err != nil {
			return nil, total, fmt.Errorf("%s: %w", p, err)
		}
		total.add(st)
		all = append(all, rows...)
		if opts.Verbose {
			log.Printf("[INFO] %s: lues=%d retenues=%d sans_client=%d prix_negatif=%d date_invalide=%d nombre_invalide=%d",
				p, st.Read, st.Kept, st.MissingCustomer, st.NegativePrice, st.BadDate, st.BadNumber)
		}
	}
	tbl, err := models.NewTable(all)
	if err != nil {
		return nil, total, err
	}
	return tbl, total, nil
}

func readFile(path string, opts Options) ([]models.Transaction, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, err
	}
	defer f.Close()

	size := int64(-1)
	if fi, err := f.Stat(); err == nil {
		size = fi.Size()
	}
	var bar *progressbar.ProgressBar
	if opts.Verbose {
		bar = progressbar.DefaultBytes(size, "chargement")
	} else {
		bar = progressbar.DefaultBytesSilent(size, "chargement")
	}
	defer bar.Close()
	return Read(io.TeeReader(f, bar), opts)
}

func parseCustomerID(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	// "17850.0" dans certains exports
	s = strings.SplitN(strings.ReplaceAll(s, ",", "."), ".", 2)[0]
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func parseDecimal(s string, decimalComma bool) (float64, error) {
	if decimalComma {
		s = strings.ReplaceAll(s, ",", ".")
	}
	return strconv.ParseFloat(s, 64)
}

func parseQuantity(s string, decimalComma bool) (int, error) {
	if q, err := strconv.Atoi(s); err == nil {
		return q, nil
	}
	f, err := parseDecimal(s, decimalComma)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("quantity %q is not an integer", s)
	}
	return int(f), nil
}

func dateLayouts(dayFirst bool) []string {
	layouts := []string{
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02T15:04:05",
		time.RFC3339,
		"2006-01-02",
	}
	if dayFirst {
		return append(layouts, "02/01/2006 15:04:05", "02/01/2006 15:04", "2/1/2006 15:04", "02/01/2006")
	}
	return append(layouts, "01/02/2006 15:04:05", "01/02/2006 15:04", "1/2/2006 15:04", "01/02/2006")
}

func parseDate(s string, layouts []string) (time.Time, error) {
	for _, l := range layouts {
		if t, err := time.ParseInLocation(l, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable date %q", s)
}
