// rfm.go groups orders per customer and scores recency, frequency and
// monetary value on 1-4 quartiles, then maps the combined code to a
// marketing segment.
package processor

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/gonum/stat"

	"DeliveryAnalytics/src/utils"
)

// CustomerRFM is one customer's scored profile.
type CustomerRFM struct {
	CustomerID  string  `json:"customer_id"`
	RecencyDays int     `json:"recency_days"`
	Frequency   int     `json:"frequency"`
	Monetary    float64 `json:"monetary"`
	RScore      int     `json:"r_score"`
	FScore      int     `json:"f_score"`
	MScore      int     `json:"m_score"`
	Code        string  `json:"code"`
	Segment     string  `json:"segment"`
}

// ComputeRFM builds the per-customer profiles from cleaned orders.
// Customers without a single parseable order date are skipped, since
// recency is undefined for them. Output keeps first-seen customer order.
func ComputeRFM(df dataframe.DataFrame, now time.Time) []CustomerRFM {
	if df.Nrow() == 0 || !utils.HasColumn(df, ColCustomerID) {
		return nil
	}

	ids := df.Col(ColCustomerID).Records()
	var dates []string
	if utils.HasColumn(df, ColOrderDate) {
		dates = df.Col(ColOrderDate).Records()
	}
	var amounts []float64
	if utils.HasColumn(df, ColFinalAmount) {
		amounts = df.Col(ColFinalAmount).Float()
	}

	type agg struct {
		last     time.Time
		hasDate  bool
		orders   int
		monetary float64
	}
	byCustomer := make(map[string]*agg)
	var order []string

	for i, id := range ids {
		if id == "" || id == "NaN" {
			continue
		}
		a, ok := byCustomer[id]
		if !ok {
			a = &agg{}
			byCustomer[id] = a
			order = append(order, id)
		}
		a.orders++
		if amounts != nil && !math.IsNaN(amounts[i]) {
			a.monetary += amounts[i]
		}
		if dates != nil {
			if t, ok := utils.ParseDate(dates[i]); ok {
				if !a.hasDate || t.After(a.last) {
					a.last = t
					a.hasDate = true
				}
			}
		}
	}

	profiles := make([]CustomerRFM, 0, len(order))
	for _, id := range order {
		a := byCustomer[id]
		if !a.hasDate {
			continue
		}
		recency := int(now.Sub(a.last).Hours() / 24)
		if recency < 0 {
			recency = 0
		}
		profiles = append(profiles, CustomerRFM{
			CustomerID:  id,
			RecencyDays: recency,
			Frequency:   a.orders,
			Monetary:    round2(a.monetary),
		})
	}
	if len(profiles) == 0 {
		return nil
	}

	scoreRFM(profiles)
	return profiles
}

// scoreRFM assigns the 1-4 quartile scores in place. Recency is inverted:
// the most recent quartile gets the highest score. Frequency is heavily
// tied in practice, so it is scored by stable rank instead of raw value.
func scoreRFM(profiles []CustomerRFM) {
	n := len(profiles)

	recency := make([]float64, n)
	monetary := make([]float64, n)
	for i, p := range profiles {
		recency[i] = float64(p.RecencyDays)
		monetary[i] = float64(p.Monetary)
	}
	rCuts := quartileCuts(recency)
	mCuts := quartileCuts(monetary)

	// Stable rank over frequency: ties broken by input position, then
	// the rank itself is bucketed into four equal slices.
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return profiles[idx[a]].Frequency < profiles[idx[b]].Frequency
	})
	fScore := make([]int, n)
	for pos, i := range idx {
		fScore[i] = 4*pos/n + 1
	}

	for i := range profiles {
		profiles[i].RScore = 5 - quartileScore(recency[i], rCuts)
		profiles[i].FScore = fScore[i]
		profiles[i].MScore = quartileScore(monetary[i], mCuts)
		profiles[i].Code = fmt.Sprintf("%d%d%d", profiles[i].RScore, profiles[i].FScore, profiles[i].MScore)
		profiles[i].Segment = SegmentForScores(profiles[i].RScore, profiles[i].FScore, profiles[i].MScore)
	}
}

// quartileCuts returns the 25/50/75 percent cutpoints of the empirical
// distribution.
func quartileCuts(values []float64) [3]float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return [3]float64{
		stat.Quantile(0.25, stat.Empirical, sorted, nil),
		stat.Quantile(0.50, stat.Empirical, sorted, nil),
		stat.Quantile(0.75, stat.Empirical, sorted, nil),
	}
}

// quartileScore buckets a value against the cutpoints: 1 for the lowest
// quartile through 4 for the highest.
func quartileScore(v float64, cuts [3]float64) int {
	switch {
	case v <= cuts[0]:
		return 1
	case v <= cuts[1]:
		return 2
	case v <= cuts[2]:
		return 3
	default:
		return 4
	}
}

// SegmentForScores maps RFM scores to a named segment. Rules are checked
// in order and the first match wins, so a high-recency high-frequency
// customer is a Champion even when later rules would also match.
func SegmentForScores(r, f, m int) string {
	switch {
	case r >= 3 && f >= 3 && m >= 3:
		return "Champions"
	case r >= 3 && f >= 2:
		return "Loyal Customers"
	case r >= 3:
		return "Potential Loyalists"
	case f >= 3:
		return "At Risk"
	default:
		return "Lost"
	}
}

// SegmentStats summarizes one segment: how many customers it holds and
// their average recency, frequency and spend.
type SegmentStats struct {
	Segment        string  `json:"segment"`
	Customers      int     `json:"customers"`
	AvgRecencyDays float64 `json:"avg_recency_days"`
	AvgFrequency   float64 `json:"avg_frequency"`
	AvgMonetary    float64 `json:"avg_monetary"`
}

// SegmentBreakdown aggregates the profiles per segment, largest segment
// first.
func SegmentBreakdown(profiles []CustomerRFM) []SegmentStats {
	type acc struct {
		n         int
		recency   float64
		frequency float64
		monetary  float64
	}
	bySegment := make(map[string]*acc)
	var order []string
	for _, p := range profiles {
		a, ok := bySegment[p.Segment]
		if !ok {
			a = &acc{}
			bySegment[p.Segment] = a
			order = append(order, p.Segment)
		}
		a.n++
		a.recency += float64(p.RecencyDays)
		a.frequency += float64(p.Frequency)
		a.monetary += p.Monetary
	}

	stats := make([]SegmentStats, 0, len(order))
	for _, seg := range order {
		a := bySegment[seg]
		stats = append(stats, SegmentStats{
			Segment:        seg,
			Customers:      a.n,
			AvgRecencyDays: round2(a.recency / float64(a.n)),
			AvgFrequency:   round2(a.frequency / float64(a.n)),
			AvgMonetary:    round2(a.monetary / float64(a.n)),
		})
	}
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Customers != stats[j].Customers {
			return stats[i].Customers > stats[j].Customers
		}
		return stats[i].Segment < stats[j].Segment
	})
	return stats
}

// SegmentDistribution counts customers per segment, largest first.
func SegmentDistribution(profiles []CustomerRFM) View {
	view := View{Name: "customer_segments"}
	counts := make(map[string]int)
	var order []string
	for _, p := range profiles {
		if _, ok := counts[p.Segment]; !ok {
			order = append(order, p.Segment)
		}
		counts[p.Segment]++
	}
	for _, seg := range order {
		view.Rows = append(view.Rows, ViewRow{Key: seg, Value: float64(counts[seg]), Count: counts[seg]})
	}
	sortRowsDesc(view.Rows)
	return view
}
