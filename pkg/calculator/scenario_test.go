package calculator

import (
	"testing"

	"retail-cohorts/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBaseline = models.BaselineParams{AvgOrderValue: 27.5, PurchaseFrequency: 1.8, RetentionRate: 0.375}

func TestSimulate_NoChangeReproducesBaseline(t *testing.T) {
	res := Simulate(testBaseline, models.ScenarioInput{Margin: 0.2, DiscountRate: 0.1})
	assert.Equal(t, res.BaselineCLV, res.ScenarioCLV)
	assert.Equal(t, testBaseline.RetentionRate, res.ScenarioRetention)
	assert.False(t, res.RetentionCapped)
	assert.False(t, res.Unprofitable)
}

func TestSimulate_RetentionUplift(t *testing.T) {
	res := Simulate(testBaseline, models.ScenarioInput{RetentionDelta: 0.2, Margin: 0.2, DiscountRate: 0.1})
	assert.InDelta(t, 0.45, res.ScenarioRetention, 1e-12)
	assert.Greater(t, res.ScenarioCLV, res.BaselineCLV)
	assert.InDelta(t, FormulaCLV(27.5, 1.8, 0.2, 0.45, 0.1), res.ScenarioCLV, 1e-12)
}

func TestSimulate_CapsRetention(t *testing.T) {
	base := testBaseline
	base.RetentionRate = 0.9
	res := Simulate(base, models.ScenarioInput{RetentionDelta: 0.2, Margin: 0.3})
	assert.Equal(t, MaxScenarioRetention, res.ScenarioRetention)
	assert.True(t, res.RetentionCapped)
	assert.Greater(t, res.ScenarioCLV, 0.0)
}

func TestSimulate_NoChangeAtCapReproducesBaseline(t *testing.T) {
	base := testBaseline
	base.RetentionRate = 0.995
	res := Simulate(base, models.ScenarioInput{Margin: 0.2, DiscountRate: 0.1})
	assert.Equal(t, MaxScenarioRetention, res.ScenarioRetention)
	assert.True(t, res.RetentionCapped)
	assert.Equal(t, res.BaselineCLV, res.ScenarioCLV)
	assert.InDelta(t, FormulaCLV(27.5, 1.8, 0.2, MaxScenarioRetention, 0.1), res.BaselineCLV, 1e-12)
}

func TestSimulate_NegativeRetentionClampedToZero(t *testing.T) {
	res := Simulate(testBaseline, models.ScenarioInput{RetentionDelta: -1.5, Margin: 0.3, DiscountRate: 0.1})
	assert.Equal(t, 0.0, res.ScenarioRetention)
	assert.Equal(t, 0.0, res.ScenarioCLV)
}

func TestSimulate_NegativeMarginSurfaced(t *testing.T) {
	res := Simulate(testBaseline, models.ScenarioInput{Margin: 0.1, AvgDiscount: 0.25, DiscountRate: 0.1})
	assert.InDelta(t, -0.15, res.AdjustedMargin, 1e-12)
	assert.True(t, res.Unprofitable)
	assert.Less(t, res.ScenarioCLV, 0.0)
}

func TestSensitivityCurve_Default(t *testing.T) {
	curve := SensitivityCurve(testBaseline, 0.1, 0.2, nil)
	require.Len(t, curve, 9)
	assert.Equal(t, -20, curve[0].DeltaPct)
	assert.Equal(t, 20, curve[8].DeltaPct)
	for i := 1; i < len(curve); i++ {
		assert.Greater(t, curve[i].RetentionRate, curve[i-1].RetentionRate)
		assert.GreaterOrEqual(t, curve[i].CLV, curve[i-1].CLV)
	}
	assert.InDelta(t, testBaseline.RetentionRate, curve[4].RetentionRate, 1e-12)

	// déterministe et rejouable
	assert.Equal(t, curve, SensitivityCurve(testBaseline, 0.1, 0.2, DefaultSensitivitySteps))
}

func TestSensitivityCurve_ZeroRetentionIsFlat(t *testing.T) {
	base := testBaseline
	base.RetentionRate = 0
	assert.True(t, FlatSensitivity(base))
	assert.False(t, FlatSensitivity(testBaseline))

	curve := SensitivityCurve(base, 0.1, 0.2, nil)
	require.Len(t, curve, 9)
	for _, p := range curve {
		assert.Equal(t, 0.0, p.RetentionRate)
		assert.Equal(t, 0.0, p.CLV)
	}
}

func TestSensitivityCurve_UnsortedSteps(t *testing.T) {
	curve := SensitivityCurve(testBaseline, 0.1, 0.2, []int{10, -10, 0})
	require.Len(t, curve, 3)
	assert.Equal(t, []int{-10, 0, 10}, []int{curve[0].DeltaPct, curve[1].DeltaPct, curve[2].DeltaPct})
}

func TestSensitivityRange(t *testing.T) {
	assert.Equal(t, DefaultSensitivitySteps, SensitivityRange(-20, 20, 5))
	assert.Nil(t, SensitivityRange(0, 10, 0))
	assert.Nil(t, SensitivityRange(10, 0, 5))
}
