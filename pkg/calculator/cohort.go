package calculator

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"retail-cohorts/pkg/models"
)

// AssignCohorts rattache chaque ligne à la cohorte (mois de première commande)
// de son client et calcule l'âge de cohorte. La table d'entrée n'est pas modifiée.
func AssignCohorts(t *models.Table) ([]models.CohortTransaction, error) {
	if t == nil || t.Len() == 0 {
		return nil, fmt.Errorf("assign cohorts: empty table: %w", models.ErrInvalidInput)
	}

	first := make(map[uint64]time.Time)
	t.Each(func(tx models.Transaction) {
		if cur, ok := first[tx.CustomerID]; !ok || tx.InvoiceDate.Before(cur) {
			first[tx.CustomerID] = tx.InvoiceDate
		}
	})

	out := make([]models.CohortTransaction, 0, t.Len())
	t.Each(func(tx models.Transaction) {
		cohort := monthStart(first[tx.CustomerID])
		invoice := monthStart(tx.InvoiceDate)
		out = append(out, models.CohortTransaction{
			Transaction:  tx,
			CohortMonth:  cohort,
			InvoiceMonth: invoice,
			CohortIndex:  cohortIndex(cohort, invoice),
		})
	})
	return out, nil
}

// cohortIndex = (Δannées × 12) + Δmois + 1
func cohortIndex(cohort, invoice time.Time) int {
	years := invoice.Year() - cohort.Year()
	months := int(invoice.Month()) - int(cohort.Month())
	return years*12 + months + 1
}

type cohortAge struct {
	cohort time.Time
	age    int
}

// BuildRetentionMatrix compte les clients distincts par (cohorte, âge).
// Taille de cohorte = effectif à l'âge 1 ; une cohorte sans ligne à l'âge 1
// est une erreur ErrInvalidInput. Les cellules sans observation restent
// invalides (pas de donnée), jamais à zéro.
func BuildRetentionMatrix(rows []models.CohortTransaction) (*models.RetentionMatrix, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("retention matrix: no rows: %w", models.ErrInvalidInput)
	}

	active := make(map[cohortAge]map[uint64]struct{})
	maxAge := 0
	for _, r := range rows {
		if r.CohortIndex < 1 {
			return nil, fmt.Errorf("retention matrix: customer %d has cohort index %d: %w",
				r.CustomerID, r.CohortIndex, models.ErrInvalidInput)
		}
		k := cohortAge{cohort: r.CohortMonth, age: r.CohortIndex}
		if active[k] == nil {
			active[k] = make(map[uint64]struct{})
		}
		active[k][r.CustomerID] = struct{}{}
		if r.CohortIndex > maxAge {
			maxAge = r.CohortIndex
		}
	}

	cohorts := make([]time.Time, 0)
	seen := make(map[time.Time]bool)
	for k := range active {
		if !seen[k.cohort] {
			seen[k.cohort] = true
			cohorts = append(cohorts, k.cohort)
		}
	}
	sort.Slice(cohorts, func(i, j int) bool { return cohorts[i].Before(cohorts[j]) })

	m := &models.RetentionMatrix{MaxAge: maxAge, Rows: make([]models.CohortRow, 0, len(cohorts))}
	for _, c := range cohorts {
		if len(active[cohortAge{cohort: c, age: 1}]) == 0 {
			return nil, fmt.Errorf("retention matrix: cohort %s has no customer at age 1: %w",
				formatMonth(c), models.ErrInvalidInput)
		}
		row := models.CohortRow{
			CohortMonth: c,
			Size:        len(active[cohortAge{cohort: c, age: 1}]),
			Counts:      make([]sql.NullInt64, maxAge),
			Fractions:   make([]sql.NullFloat64, maxAge),
		}
		for age := 1; age <= maxAge; age++ {
			customers, ok := active[cohortAge{cohort: c, age: age}]
			if !ok {
				continue
			}
			row.Counts[age-1] = sql.NullInt64{Int64: int64(len(customers)), Valid: true}
			row.Fractions[age-1] = sql.NullFloat64{
				Float64: float64(len(customers)) / float64(row.Size),
				Valid:   true,
			}
		}
		m.Rows = append(m.Rows, row)
	}
	return m, nil
}

// CohortRevenue somme le CA par (cohorte, âge), trié par cohorte puis âge.
func CohortRevenue(rows []models.CohortTransaction) []models.CohortRevenue {
	sums := make(map[cohortAge]float64)
	for _, r := range rows {
		sums[cohortAge{cohort: r.CohortMonth, age: r.CohortIndex}] += r.TotalAmount
	}
	out := make([]models.CohortRevenue, 0, len(sums))
	for k, v := range sums {
		out = append(out, models.CohortRevenue{CohortMonth: k.cohort, CohortIndex: k.age, TotalAmount: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CohortMonth.Equal(out[j].CohortMonth) {
			return out[i].CohortMonth.Before(out[j].CohortMonth)
		}
		return out[i].CohortIndex < out[j].CohortIndex
	})
	return out
}

// FocusCohort détaille une cohorte : taille initiale, CA total, montant moyen par ligne.
func FocusCohort(rows []models.CohortTransaction, m *models.RetentionMatrix, cohort time.Time) (models.CohortFocus, error) {
	cohort = monthStart(cohort)
	focus := models.CohortFocus{CohortMonth: cohort}
	lines := 0
	for _, r := range rows {
		if !r.CohortMonth.Equal(cohort) {
			continue
		}
		focus.TotalRevenue += r.TotalAmount
		lines++
	}
	if lines == 0 {
		return focus, fmt.Errorf("cohort %s: no transactions: %w", formatMonth(cohort), models.ErrInvalidInput)
	}
	focus.AvgLineAmount = focus.TotalRevenue / float64(lines)
	if size := m.Count(cohort, 1); size.Valid {
		focus.Size = int(size.Int64)
	}
	return focus, nil
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
