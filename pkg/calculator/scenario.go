package calculator

import (
	"math"
	"sort"

	"retail-cohorts/pkg/models"
)

// MaxScenarioRetention plafonne la rétention simulée sous 1 pour garder
// le dénominateur de la formule positif même avec d = 0.
const MaxScenarioRetention = 0.99

// DefaultSensitivitySteps : -20 % à +20 % par pas de 5.
var DefaultSensitivitySteps = []int{-20, -15, -10, -5, 0, 5, 10, 15, 20}

// Simulate applique les leviers du scénario aux paramètres de référence.
// Une marge ajustée négative ou une rétention au plafond sont des résultats
// valides, signalés dans ScenarioResult.
func Simulate(base models.BaselineParams, in models.ScenarioInput) models.ScenarioResult {
	raw := base.RetentionRate * (1 + in.RetentionDelta)
	retention := clampRetention(raw)
	adjusted := in.Margin - in.AvgDiscount

	// même plafond des deux côtés : sans levier, scénario = référence
	return models.ScenarioResult{
		BaselineCLV:       FormulaCLV(base.AvgOrderValue, base.PurchaseFrequency, in.Margin, clampRetention(base.RetentionRate), in.DiscountRate),
		ScenarioCLV:       FormulaCLV(base.AvgOrderValue, base.PurchaseFrequency, adjusted, retention, in.DiscountRate),
		ScenarioRetention: retention,
		AdjustedMargin:    adjusted,
		RetentionCapped:   raw >= MaxScenarioRetention,
		Unprofitable:      adjusted < 0,
	}
}

func clampRetention(r float64) float64 {
	return math.Min(math.Max(r, 0), MaxScenarioRetention)
}

// SensitivityCurve évalue la CLV pour chaque variation relative (en %) de la
// rétention de référence. Résultat trié par variation croissante ; nil ou vide
// = DefaultSensitivitySteps. La rétention des points est strictement croissante
// si la rétention de référence est positive ; à 0 (aucun âge ≥ 2 observé) la
// courbe est plate, tous les points valent 0. Voir FlatSensitivity.
func SensitivityCurve(base models.BaselineParams, discountRate, margin float64, steps []int) []models.SensitivityPoint {
	if len(steps) == 0 {
		steps = DefaultSensitivitySteps
	}
	sorted := append([]int(nil), steps...)
	sort.Ints(sorted)

	out := make([]models.SensitivityPoint, 0, len(sorted))
	for _, pct := range sorted {
		r := base.RetentionRate * (1 + float64(pct)/100)
		out = append(out, models.SensitivityPoint{
			DeltaPct:      pct,
			RetentionRate: r,
			CLV:           FormulaCLV(base.AvgOrderValue, base.PurchaseFrequency, margin, r, discountRate),
		})
	}
	return out
}

// SensitivityRange construit les pas de from à to inclus.
func SensitivityRange(from, to, step int) []int {
	if step <= 0 || to < from {
		return nil
	}
	var out []int
	for p := from; p <= to; p += step {
		out = append(out, p)
	}
	return out
}

// FlatSensitivity indique une courbe dégénérée : aucune variation de la
// rétention ne peut changer la CLV.
func FlatSensitivity(base models.BaselineParams) bool {
	return base.RetentionRate <= 0
}
