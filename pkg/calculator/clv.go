package calculator

import (
	"fmt"
	"sort"

	"retail-cohorts/pkg/models"
)

// EmpiricalCLV construit la courbe de CLV cumulée par âge de cohorte :
// CA de la cohorte à l'âge / taille de la cohorte, moyenné sur les cohortes
// qui observent cet âge, puis cumulé. Les âges à CA négatif (retours) font
// baisser la courbe, sans plancher.
func EmpiricalCLV(rows []models.CohortTransaction, m *models.RetentionMatrix) ([]models.CLVPoint, error) {
	if len(rows) == 0 || m == nil {
		return nil, fmt.Errorf("empirical clv: no rows: %w", models.ErrInvalidInput)
	}
	sizes := m.CohortSizes()

	perAge := make(map[int][]float64)
	for _, rev := range CohortRevenue(rows) {
		size := sizes[rev.CohortMonth]
		if size == 0 {
			continue
		}
		perAge[rev.CohortIndex] = append(perAge[rev.CohortIndex], rev.TotalAmount/float64(size))
	}

	ages := make([]int, 0, len(perAge))
	for age := range perAge {
		ages = append(ages, age)
	}
	sort.Ints(ages)

	out := make([]models.CLVPoint, 0, len(ages))
	cumulative := 0.0
	for _, age := range ages {
		avg := mean(perAge[age])
		cumulative += avg
		out = append(out, models.CLVPoint{
			CohortIndex:        age,
			RevenuePerCustomer: avg,
			CumulativeCLV:      cumulative,
		})
	}
	return out, nil
}

// FormulaCLV = (AOV × F × marge × r) / (1 + d − r).
// Au-delà du domaine (1 + d − r ≤ 0) la somme diverge : on renvoie 0.
func FormulaCLV(avgOrderValue, purchaseFreq, margin, retentionRate, discountRate float64) float64 {
	denom := 1 + discountRate - retentionRate
	if denom <= 0 {
		return 0
	}
	return (avgOrderValue * purchaseFreq * margin * retentionRate) / denom
}

// Baseline calcule AOV, fréquence d'achat et rétention moyenne sur le même
// périmètre filtré. Les paramètres ne doivent pas mélanger des périmètres.
func Baseline(t *models.Table, m *models.RetentionMatrix) (models.BaselineParams, error) {
	if t == nil || t.Len() == 0 {
		return models.BaselineParams{}, fmt.Errorf("baseline: empty table: %w", models.ErrInvalidInput)
	}

	invoiceTotals := make(map[string]float64)
	customerInvoices := make(map[uint64]map[string]struct{})
	t.Each(func(tx models.Transaction) {
		invoiceTotals[tx.Invoice] += tx.TotalAmount
		if customerInvoices[tx.CustomerID] == nil {
			customerInvoices[tx.CustomerID] = make(map[string]struct{})
		}
		customerInvoices[tx.CustomerID][tx.Invoice] = struct{}{}
	})

	totals := make([]float64, 0, len(invoiceTotals))
	for _, v := range invoiceTotals {
		totals = append(totals, v)
	}
	freqs := make([]float64, 0, len(customerInvoices))
	for _, inv := range customerInvoices {
		freqs = append(freqs, float64(len(inv)))
	}

	return models.BaselineParams{
		AvgOrderValue:     mean(totals),
		PurchaseFrequency: mean(freqs),
		RetentionRate:     AverageRetention(m),
	}, nil
}

// AverageRetention moyenne, pour les âges ≥ 2, la rétention moyenne par âge.
// Les cellules sans donnée sont ignorées ; 0 si aucun âge ≥ 2 n'est observé.
func AverageRetention(m *models.RetentionMatrix) float64 {
	if m == nil {
		return 0
	}
	var colMeans []float64
	for age := 2; age <= m.MaxAge; age++ {
		var col []float64
		for _, r := range m.Rows {
			if f := m.Fraction(r.CohortMonth, age); f.Valid {
				col = append(col, f.Float64)
			}
		}
		if len(col) > 0 {
			colMeans = append(colMeans, mean(col))
		}
	}
	return mean(colMeans)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
