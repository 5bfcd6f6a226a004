package filter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"retail-cohorts/pkg/models"

	"golang.org/x/text/cases"
)

// ReturnsMode définit le traitement des lignes de retour.
type ReturnsMode string

const (
	ReturnsInclude ReturnsMode = "include" // lignes gardées telles quelles
	ReturnsExclude ReturnsMode = "exclude" // lignes supprimées
	ReturnsZero    ReturnsMode = "zero"    // lignes gardées, montant mis à 0
)

// ParseReturnsMode accepte "", include, exclude, zero.
func ParseReturnsMode(s string) (ReturnsMode, error) {
	switch ReturnsMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ReturnsInclude:
		return ReturnsInclude, nil
	case ReturnsExclude:
		return ReturnsExclude, nil
	case ReturnsZero:
		return ReturnsZero, nil
	}
	return "", fmt.Errorf("returns mode %q (include|exclude|zero): %w", s, models.ErrInvalidInput)
}

// Criteria est le contrat de filtrage consommé par les moteurs.
type Criteria struct {
	From            time.Time   `json:"from"`              // inclus, zéro = pas de borne
	To              time.Time   `json:"to"`                // exclu, zéro = pas de borne
	Countries       []string    `json:"countries"`         // vide = tous
	MinInvoiceTotal float64     `json:"min_invoice_total"` // 0 = désactivé
	Returns         ReturnsMode `json:"returns"`
}

// Key renvoie une forme canonique des critères, utilisée comme clé de cache.
func (c Criteria) Key() string {
	fold := cases.Fold()
	countries := make([]string, len(c.Countries))
	for i, s := range c.Countries {
		countries[i] = fold.String(strings.TrimSpace(s))
	}
	sort.Strings(countries)
	if c.Returns == "" {
		c.Returns = ReturnsInclude
	}
	canon := struct {
		From      string      `json:"from"`
		To        string      `json:"to"`
		Countries []string    `json:"countries"`
		Min       float64     `json:"min"`
		Returns   ReturnsMode `json:"returns"`
	}{formatBound(c.From), formatBound(c.To), countries, c.MinInvoiceTotal, c.Returns}
	b, _ := json.Marshal(canon)
	return string(b)
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Validate vérifie la cohérence des critères.
func (c Criteria) Validate() error {
	if _, err := ParseReturnsMode(string(c.Returns)); err != nil {
		return err
	}
	if !c.From.IsZero() && !c.To.IsZero() && !c.From.Before(c.To) {
		return fmt.Errorf("date range [%s ; %s) is empty: %w", formatBound(c.From), formatBound(c.To), models.ErrInvalidInput)
	}
	return nil
}

// InDateRange indique si t est dans [From ; To).
func (c Criteria) InDateRange(t time.Time) bool {
	if !c.From.IsZero() && t.Before(c.From) {
		return false
	}
	if !c.To.IsZero() && !t.Before(c.To) {
		return false
	}
	return true
}

// Apply renvoie le sous-ensemble de la table correspondant aux critères,
// même schéma. Ordre : pays, retours, total minimal par facture, dates.
// Un résultat vide est une erreur ErrInvalidInput.
func Apply(t *models.Table, c Criteria) (*models.Table, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	mode, _ := ParseReturnsMode(string(c.Returns))

	// comparaison insensible à la casse (Unicode), un Caser par appel
	fold := cases.Fold()
	allowed := make(map[string]bool, len(c.Countries))
	for _, s := range c.Countries {
		allowed[fold.String(strings.TrimSpace(s))] = true
	}

	kept := make([]models.Transaction, 0, t.Len())
	t.Each(func(tx models.Transaction) {
		if len(allowed) > 0 && !allowed[fold.String(tx.Country)] {
			return
		}
		if tx.IsReturn() {
			switch mode {
			case ReturnsExclude:
				return
			case ReturnsZero:
				tx.TotalAmount = 0
			}
		}
		kept = append(kept, tx)
	})

	if c.MinInvoiceTotal != 0 {
		totals := make(map[string]float64)
		for _, tx := range kept {
			totals[tx.Invoice] += tx.TotalAmount
		}
		n := 0
		for _, tx := range kept {
			if totals[tx.Invoice] >= c.MinInvoiceTotal {
				kept[n] = tx
				n++
			}
		}
		kept = kept[:n]
	}

	n := 0
	for _, tx := range kept {
		if c.InDateRange(tx.InvoiceDate) {
			kept[n] = tx
			n++
		}
	}
	kept = kept[:n]

	if len(kept) == 0 {
		return nil, fmt.Errorf("filter %s: no transaction left: %w", c.Key(), models.ErrInvalidInput)
	}
	return models.NewTable(kept)
}
