package calculator

import (
	"fmt"
	"sort"
	"time"

	"retail-cohorts/pkg/models"
)

// Segments nommés, du meilleur au moins bon.
const (
	SegmentChampions          = "Champions"
	SegmentLoyalCustomers     = "Loyal Customers"
	SegmentPotentialLoyalists = "Potential Loyalists"
	SegmentPromising          = "Promising"
	SegmentNeedsAttention     = "Needs Attention"
	SegmentAboutToSleep       = "About To Sleep"
	SegmentAtRisk             = "At Risk"

	// AllSegments désactive le filtre de segment du plan d'action.
	AllSegments = "All"
)

const minRFMCustomers = 4

type customerAgg struct {
	last     time.Time
	invoices map[string]struct{}
	monetary float64
}

// CalculateRFM calcule Recency / Frequency / Monetary par client puis les
// scores par quartile. Snapshot = horodatage max + 1 jour.
func CalculateRFM(t *models.Table) ([]models.RFMRecord, error) {
	if t == nil || t.Len() == 0 {
		return nil, fmt.Errorf("rfm: empty table: %w", models.ErrInvalidInput)
	}

	aggs := make(map[uint64]*customerAgg)
	t.Each(func(tx models.Transaction) {
		a := aggs[tx.CustomerID]
		if a == nil {
			a = &customerAgg{last: tx.InvoiceDate, invoices: make(map[string]struct{})}
			aggs[tx.CustomerID] = a
		}
		if tx.InvoiceDate.After(a.last) {
			a.last = tx.InvoiceDate
		}
		a.invoices[tx.Invoice] = struct{}{}
		a.monetary += tx.TotalAmount
	})
	if len(aggs) < minRFMCustomers {
		return nil, fmt.Errorf("rfm: %d distinct customers, need at least %d for quartiles: %w",
			len(aggs), minRFMCustomers, models.ErrInvalidInput)
	}

	snapshot := t.MaxDate().Add(24 * time.Hour)
	customers := t.Customers()
	records := make([]models.RFMRecord, len(customers))
	recency := make([]float64, len(customers))
	frequency := make([]float64, len(customers))
	monetary := make([]float64, len(customers))
	for i, id := range customers {
		a := aggs[id]
		records[i] = models.RFMRecord{
			CustomerID: id,
			Recency:    int(snapshot.Sub(a.last) / (24 * time.Hour)),
			Frequency:  len(a.invoices),
			Monetary:   a.monetary,
		}
		recency[i] = float64(records[i].Recency)
		frequency[i] = float64(records[i].Frequency)
		monetary[i] = a.monetary
	}

	rq := quartileScores(recency)
	fq := quartileScores(frequency)
	mq := quartileScores(monetary)
	for i := range records {
		r := &records[i]
		r.RScore = 5 - rq[i] // récence inversée : plus récent = 4
		r.FScore = fq[i]
		r.MScore = mq[i]
		r.RFMScore = r.RScore + r.FScore + r.MScore
		r.RFMSegment = fmt.Sprintf("%d%d%d", r.RScore, r.FScore, r.MScore)
		r.Segment = SegmentFor(r.RFMScore)
	}
	return records, nil
}

// quartileScores range les valeurs (rang d'apparition pour les ex-aequo) puis
// découpe les rangs en 4 classes d'effectif égal. Renvoie 1 (plus petites
// valeurs) à 4 (plus grandes).
func quartileScores(values []float64) []int {
	n := len(values)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] < values[order[b]] })

	// bornes des quartiles sur les rangs 1..n, interpolation linéaire
	var edges [3]float64
	for q := 1; q <= 3; q++ {
		edges[q-1] = 1 + float64(q)*float64(n-1)/4
	}

	scores := make([]int, n)
	for pos, idx := range order {
		rank := float64(pos + 1)
		s := 1
		for _, e := range edges {
			if rank > e {
				s++
			}
		}
		scores[idx] = s
	}
	return scores
}

// SegmentFor traduit un score RFM (3..12) en segment nommé ; premier seuil atteint.
func SegmentFor(score int) string {
	switch {
	case score >= 9:
		return SegmentChampions
	case score >= 8:
		return SegmentLoyalCustomers
	case score >= 7:
		return SegmentPotentialLoyalists
	case score >= 6:
		return SegmentPromising
	case score >= 5:
		return SegmentNeedsAttention
	case score >= 4:
		return SegmentAboutToSleep
	default:
		return SegmentAtRisk
	}
}

// SummarizeSegments agrège la table RFM par segment, triée par nom de segment.
func SummarizeSegments(records []models.RFMRecord) []models.SegmentSummary {
	bySeg := make(map[string]*models.SegmentSummary)
	totalFreq := make(map[string]int)
	totalMonetary := 0.0
	for _, r := range records {
		s := bySeg[r.Segment]
		if s == nil {
			s = &models.SegmentSummary{Segment: r.Segment}
			bySeg[r.Segment] = s
		}
		s.Count++
		s.Recency += float64(r.Recency)
		s.Frequency += float64(r.Frequency)
		s.Monetary += r.Monetary
		totalFreq[r.Segment] += r.Frequency
		totalMonetary += r.Monetary
	}

	out := make([]models.SegmentSummary, 0, len(bySeg))
	for name, s := range bySeg {
		s.Recency /= float64(s.Count)
		s.Frequency /= float64(s.Count)
		// AOV = CA / (fréquence moyenne × effectif)
		if f := totalFreq[name]; f > 0 {
			s.AvgOrderValue = s.Monetary / float64(f)
		}
		if totalMonetary != 0 {
			s.ShareOfRevenue = s.Monetary / totalMonetary
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Segment < out[j].Segment })
	return out
}

// ActionPlan renvoie la liste activable d'un segment ("All" = tous), triée
// par Monetary décroissant.
func ActionPlan(records []models.RFMRecord, segment string) []models.RFMRecord {
	out := make([]models.RFMRecord, 0, len(records))
	for _, r := range records {
		if segment == "" || segment == AllSegments || r.Segment == segment {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Monetary > out[j].Monetary })
	return out
}
