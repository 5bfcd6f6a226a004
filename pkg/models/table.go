package models

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrInvalidInput signale une entrée inexploitable (table vide, colonne manquante,
// moins de 4 clients pour les quartiles...). Toujours propagée à l'appelant.
var ErrInvalidInput = errors.New("invalid input")

// Table est le jeu de transactions nettoyé. Immuable une fois construit :
// toute transformation renvoie une nouvelle Table.
type Table struct {
	rows    []Transaction
	version string
}

// NewTable valide et copie les lignes puis calcule la version.
// TotalAmount est fourni par l'ingestion (voir LineTotal).
func NewTable(rows []Transaction) (*Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty table: %w", ErrInvalidInput)
	}
	cp := make([]Transaction, len(rows))
	for i, r := range rows {
		if r.CustomerID == 0 {
			return nil, fmt.Errorf("row %d (invoice %s): missing customer id: %w", i, r.Invoice, ErrInvalidInput)
		}
		if r.InvoiceDate.IsZero() {
			return nil, fmt.Errorf("row %d (invoice %s): missing timestamp: %w", i, r.Invoice, ErrInvalidInput)
		}
		r.InvoiceDate = r.InvoiceDate.UTC()
		cp[i] = r
	}
	return &Table{rows: cp, version: contentHash(cp)}, nil
}

// contentHash identifie la table par son contenu, pas par un compteur global.
func contentHash(rows []Transaction) string {
	h := sha256.New()
	var buf [8]byte
	for _, r := range rows {
		h.Write([]byte(r.Invoice))
		h.Write([]byte{0})
		h.Write([]byte(r.StockCode))
		h.Write([]byte{0})
		binary.LittleEndian.PutUint64(buf[:], r.CustomerID)
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(r.Quantity)))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(r.Price))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(r.InvoiceDate.UnixNano()))
		h.Write(buf[:])
		h.Write([]byte(r.Country))
		h.Write([]byte{0})
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(r.TotalAmount))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// LineTotal calcule le montant d'une ligne : Quantity × Price.
func LineTotal(quantity int, price float64) float64 {
	return float64(quantity) * price
}

// Version renvoie l'empreinte du contenu de la table.
func (t *Table) Version() string { return t.version }

// Len renvoie le nombre de lignes.
func (t *Table) Len() int { return len(t.rows) }

// Row renvoie une copie de la ligne i.
func (t *Table) Row(i int) Transaction { return t.rows[i] }

// Each parcourt les lignes dans l'ordre de chargement.
func (t *Table) Each(fn func(Transaction)) {
	for _, r := range t.rows {
		fn(r)
	}
}

// Customers renvoie les identifiants clients distincts, triés.
func (t *Table) Customers() []uint64 {
	seen := make(map[uint64]struct{})
	for _, r := range t.rows {
		seen[r.CustomerID] = struct{}{}
	}
	out := make([]uint64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MinDate renvoie le plus ancien horodatage.
func (t *Table) MinDate() time.Time {
	var min time.Time
	for i, r := range t.rows {
		if i == 0 || r.InvoiceDate.Before(min) {
			min = r.InvoiceDate
		}
	}
	return min
}

// MaxDate renvoie le plus récent horodatage.
func (t *Table) MaxDate() time.Time {
	var max time.Time
	for i, r := range t.rows {
		if i == 0 || r.InvoiceDate.After(max) {
			max = r.InvoiceDate
		}
	}
	return max
}

// Countries renvoie les pays distincts, triés.
func (t *Table) Countries() []string {
	seen := make(map[string]struct{})
	for _, r := range t.rows {
		seen[r.Country] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
