package filter

import (
	"testing"
	"time"

	"retail-cohorts/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tx(invoice string, customer uint64, qty int, price float64, day int, country string) models.Transaction {
	return models.Transaction{
		Invoice:     invoice,
		CustomerID:  customer,
		Quantity:    qty,
		Price:       price,
		InvoiceDate: time.Date(2010, 1, day, 9, 0, 0, 0, time.UTC),
		Country:     country,
		TotalAmount: models.LineTotal(qty, price),
	}
}

func sampleTable(t *testing.T) *models.Table {
	t.Helper()
	tbl, err := models.NewTable([]models.Transaction{
		tx("1", 1, 2, 10, 3, "France"),
		tx("1", 1, 1, 5, 3, "France"),
		tx("C2", 1, -1, 10, 4, "France"),
		tx("3", 2, 1, 3, 10, "Spain"),
		tx("4", 3, 10, 4, 20, "United Kingdom"),
	})
	require.NoError(t, err)
	return tbl
}

func TestParseReturnsMode(t *testing.T) {
	for in, want := range map[string]ReturnsMode{"": ReturnsInclude, "include": ReturnsInclude, "EXCLUDE": ReturnsExclude, " zero ": ReturnsZero} {
		got, err := ParseReturnsMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseReturnsMode("drop")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestApply_NoCriteriaKeepsEverything(t *testing.T) {
	tbl := sampleTable(t)
	out, err := Apply(tbl, Criteria{})
	require.NoError(t, err)
	assert.Equal(t, tbl.Len(), out.Len())
	assert.Equal(t, tbl.Version(), out.Version())
}

func TestApply_Countries(t *testing.T) {
	out, err := Apply(sampleTable(t), Criteria{Countries: []string{"france", "Spain "}})
	require.NoError(t, err)
	assert.Equal(t, 4, out.Len())
	assert.Equal(t, []string{"France", "Spain"}, out.Countries())
}

func TestApply_ReturnsModes(t *testing.T) {
	tbl := sampleTable(t)

	excluded, err := Apply(tbl, Criteria{Returns: ReturnsExclude})
	require.NoError(t, err)
	assert.Equal(t, 4, excluded.Len())

	zeroed, err := Apply(tbl, Criteria{Returns: ReturnsZero})
	require.NoError(t, err)
	require.Equal(t, 5, zeroed.Len())
	assert.Equal(t, 0.0, zeroed.Row(2).TotalAmount)
	assert.Equal(t, -1, zeroed.Row(2).Quantity)

	// la table source n'est pas modifiée
	assert.Equal(t, -10.0, tbl.Row(2).TotalAmount)
}

func TestApply_MinInvoiceTotal(t *testing.T) {
	out, err := Apply(sampleTable(t), Criteria{MinInvoiceTotal: 20})
	require.NoError(t, err)
	// facture 1 = 25, facture 4 = 40 ; C2 et 3 écartées
	assert.Equal(t, 3, out.Len())
	for i := 0; i < out.Len(); i++ {
		assert.Contains(t, []string{"1", "4"}, out.Row(i).Invoice)
	}
}

func TestApply_DateRange(t *testing.T) {
	c := Criteria{
		From: time.Date(2010, 1, 4, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2010, 1, 20, 0, 0, 0, 0, time.UTC),
	}
	out, err := Apply(sampleTable(t), c)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Len())
	assert.Equal(t, "C2", out.Row(0).Invoice)
	assert.Equal(t, "3", out.Row(1).Invoice)
}

func TestApply_EmptyResultIsInvalidInput(t *testing.T) {
	_, err := Apply(sampleTable(t), Criteria{Countries: []string{"Japan"}})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestValidate(t *testing.T) {
	d := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.ErrorIs(t, Criteria{From: d, To: d}.Validate(), models.ErrInvalidInput)
	assert.ErrorIs(t, Criteria{Returns: "maybe"}.Validate(), models.ErrInvalidInput)
	assert.NoError(t, Criteria{From: d}.Validate())
}

func TestKey_Canonical(t *testing.T) {
	a := Criteria{Countries: []string{"Spain", "France"}}
	b := Criteria{Countries: []string{"france", " spain"}, Returns: ReturnsInclude}
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), Criteria{Countries: []string{"Spain"}}.Key())

	withRange := Criteria{From: time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)}
	assert.NotEqual(t, withRange.Key(), Criteria{}.Key())
}
