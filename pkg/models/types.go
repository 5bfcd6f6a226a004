package models

import (
	"database/sql"
	"strings"
	"time"
)

/*
LOAD → une ligne de transaction nettoyée, telle que produite par l'ingestion.
*/

// CancellationPrefix marque les factures d'annulation (retours).
const CancellationPrefix = "C"

// Transaction représente une ligne de facture nettoyée.
type Transaction struct {
	Invoice     string    `json:"Invoice"`
	StockCode   string    `json:"StockCode,omitempty"`
	CustomerID  uint64    `json:"CustomerID"`
	Quantity    int       `json:"Quantity"`
	Price       float64   `json:"Price"`
	InvoiceDate time.Time `json:"InvoiceDate"`
	Country     string    `json:"Country"`
	TotalAmount float64   `json:"TotalAmount"` // Quantity × Price, négatif pour un retour
}

// IsCancellation indique une facture d'annulation.
func (t Transaction) IsCancellation() bool {
	return strings.HasPrefix(t.Invoice, CancellationPrefix)
}

// IsReturn couvre les annulations et les lignes à quantité négative.
func (t Transaction) IsReturn() bool {
	return t.IsCancellation() || t.Quantity < 0
}

// CohortTransaction est une transaction enrichie de sa cohorte.
type CohortTransaction struct {
	Transaction
	CohortMonth  time.Time `json:"CohortMonth"`  // 1er jour du mois de première commande (UTC)
	InvoiceMonth time.Time `json:"InvoiceMonth"` // 1er jour du mois de la ligne (UTC)
	CohortIndex  int       `json:"CohortIndex"`  // 1 = mois de formation
}

/*
COMPUTE → structures de résultat exportées vers la présentation
*/

// CohortRow contient une ligne de la matrice de rétention.
// Counts[i] et Fractions[i] correspondent à l'âge i+1 ; Valid=false = pas de donnée.
type CohortRow struct {
	CohortMonth time.Time         `json:"CohortMonth"`
	Size        int               `json:"Size"`
	Counts      []sql.NullInt64   `json:"Counts"`
	Fractions   []sql.NullFloat64 `json:"Fractions"`
}

// RetentionMatrix est la matrice cohorte × âge, creuse.
type RetentionMatrix struct {
	Rows   []CohortRow `json:"Rows"`
	MaxAge int         `json:"MaxAge"`
}

func (m *RetentionMatrix) row(cohort time.Time) *CohortRow {
	for i := range m.Rows {
		if m.Rows[i].CohortMonth.Equal(cohort) {
			return &m.Rows[i]
		}
	}
	return nil
}

// Count renvoie le nombre de clients actifs de la cohorte à l'âge donné.
func (m *RetentionMatrix) Count(cohort time.Time, age int) sql.NullInt64 {
	r := m.row(cohort)
	if r == nil || age < 1 || age > len(r.Counts) {
		return sql.NullInt64{}
	}
	return r.Counts[age-1]
}

// Fraction renvoie la part de la cohorte encore active à l'âge donné.
func (m *RetentionMatrix) Fraction(cohort time.Time, age int) sql.NullFloat64 {
	r := m.row(cohort)
	if r == nil || age < 1 || age > len(r.Fractions) {
		return sql.NullFloat64{}
	}
	return r.Fractions[age-1]
}

// CohortSizes renvoie la taille de chaque cohorte.
func (m *RetentionMatrix) CohortSizes() map[time.Time]int {
	out := make(map[time.Time]int, len(m.Rows))
	for _, r := range m.Rows {
		out[r.CohortMonth] = r.Size
	}
	return out
}

// CohortRevenue est le CA absolu d'une cohorte à un âge donné.
type CohortRevenue struct {
	CohortMonth time.Time `json:"CohortMonth"`
	CohortIndex int       `json:"CohortIndex"`
	TotalAmount float64   `json:"TotalAmount"`
}

// CohortFocus détaille une cohorte.
type CohortFocus struct {
	CohortMonth   time.Time `json:"CohortMonth"`
	Size          int       `json:"Size"`
	TotalRevenue  float64   `json:"TotalRevenue"`
	AvgLineAmount float64   `json:"AvgLineAmount"`
}

// RFMRecord contient les métriques RFM d'un client.
type RFMRecord struct {
	CustomerID uint64  `json:"CustomerID"`
	Recency    int     `json:"Recency"`
	Frequency  int     `json:"Frequency"`
	Monetary   float64 `json:"Monetary"`
	RScore     int     `json:"R"`
	FScore     int     `json:"F"`
	MScore     int     `json:"M"`
	RFMScore   int     `json:"RFM_Score"`
	RFMSegment string  `json:"RFM_Segment"`
	Segment    string  `json:"Segment"`
}

// SegmentSummary agrège les clients d'un segment nommé.
type SegmentSummary struct {
	Segment        string  `json:"Segment"`
	Count          int     `json:"Count"`
	Recency        float64 `json:"Recency"`   // moyenne
	Frequency      float64 `json:"Frequency"` // moyenne
	Monetary       float64 `json:"Monetary"`  // somme
	AvgOrderValue  float64 `json:"AvgOrderValue"`
	ShareOfRevenue float64 `json:"ShareOfRevenue"`
}

// CLVPoint est un point de la courbe de CLV empirique.
type CLVPoint struct {
	CohortIndex        int     `json:"CohortIndex"`
	RevenuePerCustomer float64 `json:"RevenuePerCustomer"`
	CumulativeCLV      float64 `json:"CumulativeCLV"`
}

// BaselineParams regroupe les agrégats de la population analysée.
type BaselineParams struct {
	AvgOrderValue     float64 `json:"AvgOrderValue"`
	PurchaseFrequency float64 `json:"PurchaseFrequency"`
	RetentionRate     float64 `json:"RetentionRate"`
}

// ScenarioInput contient les leviers saisis par l'utilisateur.
type ScenarioInput struct {
	RetentionDelta float64 `json:"RetentionDelta" yaml:"retention_delta"` // variation relative, ex: 0.05 = +5%
	Margin         float64 `json:"Margin" yaml:"margin"`
	DiscountRate   float64 `json:"DiscountRate" yaml:"discount_rate"`
	AvgDiscount    float64 `json:"AvgDiscount" yaml:"avg_discount"`
}

// ScenarioResult compare la CLV de référence et celle du scénario.
type ScenarioResult struct {
	BaselineCLV       float64 `json:"BaselineCLV"`
	ScenarioCLV       float64 `json:"ScenarioCLV"`
	ScenarioRetention float64 `json:"ScenarioRetention"`
	AdjustedMargin    float64 `json:"AdjustedMargin"`
	RetentionCapped   bool    `json:"RetentionCapped"` // rétention bloquée au plafond
	Unprofitable      bool    `json:"Unprofitable"`    // marge ajustée négative
}

// SensitivityPoint est un point de la courbe de sensibilité CLV / rétention.
type SensitivityPoint struct {
	DeltaPct      int     `json:"DeltaPct"`
	RetentionRate float64 `json:"RetentionRate"`
	CLV           float64 `json:"CLV"`
}

// Overview regroupe les KPI de synthèse.
type Overview struct {
	Revenue          float64        `json:"Revenue"`
	Customers        int            `json:"Customers"`
	Invoices         int            `json:"Invoices"`
	Countries        []string       `json:"Countries"`     // pays du périmètre, triés
	ActiveByMonth    map[string]int `json:"ActiveByMonth"` // "YYYY-MM" → clients actifs
	AverageRetention float64        `json:"AverageRetention"`
}

// Report est le résultat complet d'un calcul pour un jeu de filtres.
type Report struct {
	RunID         string             `json:"RunID"`
	TableVersion  string             `json:"TableVersion"`
	GeneratedAt   time.Time          `json:"GeneratedAt"`
	Overview      Overview           `json:"Overview"`
	Retention     RetentionMatrix    `json:"Retention"`
	CohortRevenue []CohortRevenue    `json:"CohortRevenue"`
	RFM           []RFMRecord        `json:"RFM"`
	Segments      []SegmentSummary   `json:"Segments"`
	EmpiricalCLV  []CLVPoint         `json:"EmpiricalCLV"`
	Baseline      BaselineParams     `json:"Baseline"`
	Scenario      ScenarioResult     `json:"Scenario"`
	Sensitivity   []SensitivityPoint `json:"Sensitivity"`
}

/*
CONFIG → paramètres globaux
*/
// Config contient les paramètres passés à la fonction de calcul.
type Config struct {
	Scenario         ScenarioInput // leviers de simulation
	SensitivitySteps []int         // variations relatives en %, nil = -20..20 pas de 5
	Verbose          bool          // Flag pour activer les logs détaillés.
}
