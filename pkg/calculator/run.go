package calculator

import (
	"context"
	"fmt"
	"log"
	"time"

	"retail-cohorts/pkg/cache"
	"retail-cohorts/pkg/filter"
	"retail-cohorts/pkg/models"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

// Analyzer expose les moteurs sur une table chargée, avec mémorisation
// adressée par contenu : clé = moteur + version de la table + filtres.
type Analyzer struct {
	table *models.Table
	store cache.Store
}

// NewAnalyzer crée un analyseur ; store peut être nil (pas de cache).
func NewAnalyzer(t *models.Table, store cache.Store) *Analyzer {
	return &Analyzer{table: t, store: store}
}

// Reload invalide le cache et renvoie un analyseur sur la nouvelle table.
func (a *Analyzer) Reload(ctx context.Context, t *models.Table) (*Analyzer, error) {
	if a.store != nil {
		if err := a.store.Purge(ctx); err != nil {
			return nil, fmt.Errorf("purge cache: %w", err)
		}
	}
	return NewAnalyzer(t, a.store), nil
}

// Table renvoie la table source.
func (a *Analyzer) Table() *models.Table { return a.table }

func (a *Analyzer) key(engine string, c filter.Criteria) string {
	return cache.Key(engine, a.table.Version(), c.Key())
}

// Filtered applique tous les critères à la table source.
func (a *Analyzer) Filtered(c filter.Criteria) (*models.Table, error) {
	return filter.Apply(a.table, c)
}

// Cohorts rattache les lignes du périmètre filtré (dates comprises) à leur
// cohorte. Toutes les vues d'un même jeu de critères partagent ce périmètre.
func (a *Analyzer) Cohorts(ctx context.Context, c filter.Criteria) ([]models.CohortTransaction, error) {
	return cache.Memo(ctx, a.store, a.key("cohorts", c), func() ([]models.CohortTransaction, error) {
		scope, err := a.Filtered(c)
		if err != nil {
			return nil, err
		}
		return AssignCohorts(scope)
	})
}

// Retention construit la matrice de rétention du périmètre.
func (a *Analyzer) Retention(ctx context.Context, c filter.Criteria) (*models.RetentionMatrix, error) {
	return cache.Memo(ctx, a.store, a.key("retention", c), func() (*models.RetentionMatrix, error) {
		rows, err := a.Cohorts(ctx, c)
		if err != nil {
			return nil, err
		}
		return BuildRetentionMatrix(rows)
	})
}

// RFM calcule la table RFM du périmètre.
func (a *Analyzer) RFM(ctx context.Context, c filter.Criteria) ([]models.RFMRecord, error) {
	return cache.Memo(ctx, a.store, a.key("rfm", c), func() ([]models.RFMRecord, error) {
		t, err := a.Filtered(c)
		if err != nil {
			return nil, err
		}
		return CalculateRFM(t)
	})
}

// EmpiricalCLV calcule la courbe de CLV cumulée du périmètre.
func (a *Analyzer) EmpiricalCLV(ctx context.Context, c filter.Criteria) ([]models.CLVPoint, error) {
	return cache.Memo(ctx, a.store, a.key("clv", c), func() ([]models.CLVPoint, error) {
		rows, err := a.Cohorts(ctx, c)
		if err != nil {
			return nil, err
		}
		m, err := a.Retention(ctx, c)
		if err != nil {
			return nil, err
		}
		return EmpiricalCLV(rows, m)
	})
}

// Baseline calcule les paramètres de référence du périmètre.
func (a *Analyzer) Baseline(ctx context.Context, c filter.Criteria) (models.BaselineParams, error) {
	return cache.Memo(ctx, a.store, a.key("baseline", c), func() (models.BaselineParams, error) {
		t, err := a.Filtered(c)
		if err != nil {
			return models.BaselineParams{}, err
		}
		m, err := a.Retention(ctx, c)
		if err != nil {
			return models.BaselineParams{}, err
		}
		return Baseline(t, m)
	})
}

// Overview calcule les KPI de synthèse du périmètre.
func (a *Analyzer) Overview(ctx context.Context, c filter.Criteria) (models.Overview, error) {
	return cache.Memo(ctx, a.store, a.key("overview", c), func() (models.Overview, error) {
		t, err := a.Filtered(c)
		if err != nil {
			return models.Overview{}, err
		}
		m, err := a.Retention(ctx, c)
		if err != nil {
			return models.Overview{}, err
		}
		return overview(t, m), nil
	})
}

func overview(t *models.Table, m *models.RetentionMatrix) models.Overview {
	ov := models.Overview{
		Customers:        len(t.Customers()),
		Countries:        t.Countries(),
		ActiveByMonth:    make(map[string]int),
		AverageRetention: AverageRetention(m),
	}
	for _, month := range monthsBetweenInclusive(t.MinDate(), t.MaxDate()) {
		ov.ActiveByMonth[monthKey(month)] = 0
	}
	invoices := make(map[string]struct{})
	active := make(map[string]map[uint64]struct{})
	t.Each(func(tx models.Transaction) {
		ov.Revenue += tx.TotalAmount
		invoices[tx.Invoice] = struct{}{}
		k := monthKey(tx.InvoiceDate)
		if active[k] == nil {
			active[k] = make(map[uint64]struct{})
		}
		active[k][tx.CustomerID] = struct{}{}
	})
	for k, customers := range active {
		ov.ActiveByMonth[k] = len(customers)
	}
	ov.Invoices = len(invoices)
	return ov
}

// Run enchaîne tous les moteurs pour un jeu de critères et produit le rapport.
// Toute ErrInvalidInput interrompt le calcul et remonte à l'appelant.
func Run(ctx context.Context, a *Analyzer, c filter.Criteria, cfg models.Config) (*models.Report, error) {
	report := &models.Report{
		RunID:        uuid.NewString(),
		TableVersion: a.table.Version(),
		GeneratedAt:  time.Now().UTC(),
	}

	stages := []struct {
		name string
		run  func() error
	}{
		{"retention", func() error {
			m, err := a.Retention(ctx, c)
			if err != nil {
				return err
			}
			report.Retention = *m
			rows, err := a.Cohorts(ctx, c)
			if err != nil {
				return err
			}
			report.CohortRevenue = CohortRevenue(rows)
			return nil
		}},
		{"overview", func() (err error) {
			report.Overview, err = a.Overview(ctx, c)
			return err
		}},
		{"rfm", func() error {
			records, err := a.RFM(ctx, c)
			if err != nil {
				return err
			}
			report.RFM = records
			report.Segments = SummarizeSegments(records)
			return nil
		}},
		{"clv", func() (err error) {
			report.EmpiricalCLV, err = a.EmpiricalCLV(ctx, c)
			return err
		}},
		{"scenario", func() error {
			base, err := a.Baseline(ctx, c)
			if err != nil {
				return err
			}
			report.Baseline = base
			report.Scenario = Simulate(base, cfg.Scenario)
			report.Sensitivity = SensitivityCurve(base, cfg.Scenario.DiscountRate, cfg.Scenario.Margin, cfg.SensitivitySteps)
			return nil
		}},
	}

	var bar *progressbar.ProgressBar
	if cfg.Verbose {
		bar = progressbar.Default(int64(len(stages)))
	} else {
		bar = progressbar.DefaultSilent(int64(len(stages)))
	}
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := st.run(); err != nil {
			return nil, fmt.Errorf("%s: %w", st.name, err)
		}
		_ = bar.Add(1)
		if cfg.Verbose {
			log.Printf("[INFO] stage %s done", st.name)
		}
	}

	if cfg.Verbose {
		log.Printf("[INFO] run=%s cohorts=%d customers=%d baseline_clv=%.2f scenario_clv=%.2f",
			report.RunID, len(report.Retention.Rows), report.Overview.Customers,
			report.Scenario.BaselineCLV, report.Scenario.ScenarioCLV)
		if report.Scenario.Unprofitable {
			log.Printf("[WARN] scenario margin is negative (%.2f)", report.Scenario.AdjustedMargin)
		}
		if FlatSensitivity(report.Baseline) {
			log.Printf("[WARN] baseline retention is 0 (no cohort age >= 2), sensitivity curve is flat")
		}
		if report.Scenario.RetentionCapped {
			log.Printf("[WARN] scenario retention capped at %.2f", MaxScenarioRetention)
		}
	}
	return report, nil
}

// MonthRange convertit deux mois "MMYYYY" en plage [début ; fin + 1 mois).
// Chaîne vide = pas de borne.
func MonthRange(startMonth, endMonth string) (time.Time, time.Time, error) {
	var from, to time.Time
	if startMonth != "" {
		start, err := parseMonth(startMonth)
		if err != nil {
			return from, to, fmt.Errorf("start_month: %w", err)
		}
		from = start
	}
	if endMonth != "" {
		end, err := parseMonth(endMonth)
		if err != nil {
			return from, to, fmt.Errorf("end_month: %w", err)
		}
		if !from.IsZero() && end.Before(from) {
			return from, to, fmt.Errorf("end_month < start_month: %w", models.ErrInvalidInput)
		}
		to = end.AddDate(0, 1, 0)
	}
	return from, to, nil
}

// parseMonth("MMYYYY") -> 1er jour du mois UTC
func parseMonth(mmyyyy string) (time.Time, error) {
	if len(mmyyyy) != 6 {
		return time.Time{}, fmt.Errorf("format attendu MMYYYY (ex: 012025): %w", models.ErrInvalidInput)
	}
	for _, ch := range mmyyyy {
		if ch < '0' || ch > '9' {
			return time.Time{}, fmt.Errorf("format attendu MMYYYY (ex: 012025): %w", models.ErrInvalidInput)
		}
	}
	month := int(mmyyyy[0]-'0')*10 + int(mmyyyy[1]-'0')
	year := int(mmyyyy[2]-'0')*1000 + int(mmyyyy[3]-'0')*100 + int(mmyyyy[4]-'0')*10 + int(mmyyyy[5]-'0')
	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("mois invalide: %w", models.ErrInvalidInput)
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
}

func monthsBetweenInclusive(start, end time.Time) []time.Time {
	cur := monthStart(start)
	last := monthStart(end)
	var out []time.Time
	for !cur.After(last) {
		out = append(out, cur)
		cur = cur.AddDate(0, 1, 0)
	}
	return out
}

func formatMonth(t time.Time) string {
	return fmt.Sprintf("%02d/%04d", int(t.Month()), t.Year())
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
