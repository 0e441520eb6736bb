// aggregate.go
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

// Reducer names the way a metric column is folded per group.
type Reducer string

const (
	ReduceCount Reducer = "count"
	ReduceSum   Reducer = "sum"
	ReduceMean  Reducer = "mean"
)

// ViewSpec declares one aggregate view: group rows by GroupKey and fold
// Metric with Reducer. The catalog below is configuration, not logic, so a
// new dashboard widget is one more entry here.
type ViewSpec struct {
	GroupKey string  `json:"group_key"`
	Metric   string  `json:"metric"`
	Reducer  Reducer `json:"reducer"`
}

// ViewCatalog maps a task name to its declarative aggregation.
var ViewCatalog = map[string]ViewSpec{
	"orders_by_city":            {GroupKey: ColCity, Metric: ColOrderID, Reducer: ReduceCount},
	"revenue_by_city":           {GroupKey: ColCity, Metric: ColFinalAmount, Reducer: ReduceSum},
	"avg_delivery_time_by_city": {GroupKey: ColCity, Metric: ColDeliveryTime, Reducer: ReduceMean},
	"avg_margin_by_city":        {GroupKey: ColCity, Metric: ColMarginPercent, Reducer: ReduceMean},
	"cuisine_demand":            {GroupKey: ColCuisine, Metric: ColOrderID, Reducer: ReduceCount},
	"cuisine_revenue":           {GroupKey: ColCuisine, Metric: ColFinalAmount, Reducer: ReduceSum},
	"weekday_vs_weekend":        {GroupKey: ColOrderDay, Metric: ColOrderID, Reducer: ReduceCount},
	"peak_hour_demand":          {GroupKey: ColPeakHour, Metric: ColOrderID, Reducer: ReduceCount},
	"payment_mode_preferences":  {GroupKey: ColPaymentMode, Metric: ColOrderID, Reducer: ReduceCount},
	"order_status_breakdown":    {GroupKey: ColOrderStatus, Metric: ColOrderID, Reducer: ReduceCount},
	"age_group_order_value":     {GroupKey: ColAgeGroup, Metric: ColOrderValue, Reducer: ReduceMean},
	"delivery_performance":      {GroupKey: ColDeliveryCategory, Metric: ColOrderID, Reducer: ReduceCount},
	"avg_rating_by_restaurant":  {GroupKey: ColRestaurant, Metric: ColRestaurantRating, Reducer: ReduceMean},
	"revenue_by_restaurant":     {GroupKey: ColRestaurant, Metric: ColFinalAmount, Reducer: ReduceSum},
}

// ViewNames lists the catalog plus the views with dedicated computations.
func ViewNames() []string {
	names := make([]string, 0, len(ViewCatalog)+4)
	for name := range ViewCatalog {
		names = append(names, name)
	}
	names = append(names,
		"cancellation_rate_by_restaurant",
		"cancellation_reasons",
		"customer_segments",
		"monthly_revenue_trend",
	)
	sort.Strings(names)
	return names
}

// ViewRow is one group of an aggregate view.
type ViewRow struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
	Count int     `json:"count"`
}

// View is a named aggregate result, largest value first.
type View struct {
	Name string    `json:"name"`
	Rows []ViewRow `json:"rows"`
}

// Aggregate folds the table per the view's declaration. An empty or keyless table yields
// an empty view; missing metric values are skipped, and a mean over nothing
// drops the group rather than reporting a number.
func Aggregate(df dataframe.DataFrame, name string, spec ViewSpec) View {
	view := View{Name: name}
	if df.Nrow() == 0 || !utils.HasColumn(df, spec.GroupKey) {
		return view
	}

	keys := df.Col(spec.GroupKey).Records()

	var metric []float64
	if spec.Reducer != ReduceCount {
		if !utils.HasColumn(df, spec.Metric) {
			return view
		}
		metric = df.Col(spec.Metric).Float()
	}

	type acc struct {
		sum   float64
		count int
		rows  int
	}
	groups := make(map[string]*acc)
	var order []string

	for i, key := range keys {
		if key == "" || key == "NaN" {
			continue // unknown category, not a group
		}
		if spec.GroupKey == ColPeakHour {
			key = peakLabel(key)
		}
		a, ok := groups[key]
		if !ok {
			a = &acc{}
			groups[key] = a
			order = append(order, key)
		}
		a.rows++
		if metric != nil && !math.IsNaN(metric[i]) {
			a.sum += metric[i]
			a.count++
		}
	}

	for _, key := range order {
		a := groups[key]
		row := ViewRow{Key: key, Count: a.rows}
		switch spec.Reducer {
		case ReduceCount:
			row.Value = float64(a.rows)
		case ReduceSum:
			row.Value = a.sum
		case ReduceMean:
			if a.count == 0 {
				continue // mean of an empty group is undefined
			}
			row.Value = a.sum / float64(a.count)
		}
		view.Rows = append(view.Rows, row)
	}

	sortRowsDesc(view.Rows)
	return view
}

// CancellationRate ranks restaurants by cancellation percentage.
// Restaurants with fewer than minOrders total orders are excluded
// regardless of their rate, to keep small samples out of the ranking.
func CancellationRate(df dataframe.DataFrame, minOrders int) View {
	view := View{Name: "cancellation_rate_by_restaurant"}
	if df.Nrow() == 0 || !utils.HasColumn(df, ColRestaurant) || !utils.HasColumn(df, ColOrderStatus) {
		return view
	}

	names := df.Col(ColRestaurant).Records()
	status := df.Col(ColOrderStatus).Records()

	type tally struct {
		total     int
		cancelled int
	}
	groups := make(map[string]*tally)
	var order []string

	for i, name := range names {
		if name == "" || name == "NaN" {
			continue
		}
		t, ok := groups[name]
		if !ok {
			t = &tally{}
			groups[name] = t
			order = append(order, name)
		}
		t.total++
		if status[i] == StatusCancelled {
			t.cancelled++
		}
	}

	for _, name := range order {
		t := groups[name]
		if t.total < minOrders {
			continue
		}
		view.Rows = append(view.Rows, ViewRow{
			Key:   name,
			Value: round2(float64(t.cancelled) / float64(t.total) * 100),
			Count: t.total,
		})
	}

	sortRowsDesc(view.Rows)
	return view
}

// CancellationReasons counts reasons over cancelled orders only.
func CancellationReasons(df dataframe.DataFrame) View {
	view := View{Name: "cancellation_reasons"}
	if df.Nrow() == 0 || !utils.HasColumn(df, ColOrderStatus) || !utils.HasColumn(df, ColCancelReason) {
		return view
	}

	status := df.Col(ColOrderStatus).Records()
	reasons := df.Col(ColCancelReason).Records()

	counts := make(map[string]int)
	var order []string
	for i, st := range status {
		if st != StatusCancelled {
			continue
		}
		reason := reasons[i]
		if reason == "" || reason == "NaN" {
			reason = NotCancelled
		}
		if _, ok := counts[reason]; !ok {
			order = append(order, reason)
		}
		counts[reason]++
	}

	for _, reason := range order {
		view.Rows = append(view.Rows, ViewRow{Key: reason, Value: float64(counts[reason]), Count: counts[reason]})
	}
	sortRowsDesc(view.Rows)
	return view
}

// MonthlyRevenue sums Final_Amount per calendar month, oldest month first.
// Orders with an unknown date are left out.
func MonthlyRevenue(df dataframe.DataFrame) View {
	view := View{Name: "monthly_revenue_trend"}
	if df.Nrow() == 0 || !utils.HasColumn(df, ColOrderDate) || !utils.HasColumn(df, ColFinalAmount) {
		return view
	}

	dates := df.Col(ColOrderDate).Records()
	amounts := df.Col(ColFinalAmount).Float()

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for i, d := range dates {
		if len(d) < 7 {
			continue
		}
		month := d[:7] // 2006-01
		counts[month]++
		if !math.IsNaN(amounts[i]) {
			sums[month] += amounts[i]
		}
	}

	months := make([]string, 0, len(sums))
	for m := range counts {
		months = append(months, m)
	}
	sort.Strings(months)

	for _, m := range months {
		view.Rows = append(view.Rows, ViewRow{Key: m, Value: round2(sums[m]), Count: counts[m]})
	}
	return view
}

// Summary carries the dashboard metric cards. Pointer fields are nil when
// the filtered table cannot define them (empty set, zero denominator).
type Summary struct {
	TotalOrders         int      `json:"total_orders"`
	TotalRevenue        *float64 `json:"total_revenue"`
	AvgOrderValue       *float64 `json:"avg_order_value"`
	CancellationRatePct *float64 `json:"cancellation_rate_pct"`
	AvgDeliveryTimeMin  *float64 `json:"avg_delivery_time_min"`
	AvgDeliveryRating   *float64 `json:"avg_delivery_rating"`
	AvgProfitMarginPct  *float64 `json:"avg_profit_margin_pct"`
	DistanceTimeCorr    *float64 `json:"distance_time_correlation"`
}

// Summarize computes the metric cards over the (already filtered) table.
func Summarize(df dataframe.DataFrame) Summary {
	s := Summary{TotalOrders: df.Nrow()}
	if df.Nrow() == 0 {
		return s
	}

	s.TotalRevenue = columnSum(df, ColFinalAmount)
	s.AvgOrderValue = columnMean(df, ColOrderValue)
	s.AvgDeliveryTimeMin = columnMean(df, ColDeliveryTime)
	s.AvgDeliveryRating = columnMean(df, ColDeliveryRating)
	s.AvgProfitMarginPct = columnMean(df, ColMarginPercent)

	if utils.HasColumn(df, ColOrderStatus) {
		cancelled := 0
		for _, st := range df.Col(ColOrderStatus).Records() {
			if st == StatusCancelled {
				cancelled++
			}
		}
		rate := round2(float64(cancelled) / float64(df.Nrow()) * 100)
		s.CancellationRatePct = &rate
	}

	s.DistanceTimeCorr = correlate(df, ColDistance, ColDeliveryTime)
	return s
}

// correlate is the Pearson correlation between two numeric columns over the
// rows where both are present. Needs at least two such rows.
func correlate(df dataframe.DataFrame, colX, colY string) *float64 {
	if !utils.HasColumn(df, colX) || !utils.HasColumn(df, colY) {
		return nil
	}

	xsAll := df.Col(colX).Float()
	ysAll := df.Col(colY).Float()

	var xs, ys []float64
	for i := range xsAll {
		if !math.IsNaN(xsAll[i]) && !math.IsNaN(ysAll[i]) {
			xs = append(xs, xsAll[i])
			ys = append(ys, ysAll[i])
		}
	}
	if len(xs) < 2 {
		return nil
	}

	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) {
		return nil
	}
	r = round2(r)
	return &r
}

func columnSum(df dataframe.DataFrame, col string) *float64 {
	if !utils.HasColumn(df, col) {
		return nil
	}
	sum := 0.0
	seen := false
	for _, v := range df.Col(col).Float() {
		if !math.IsNaN(v) {
			sum += v
			seen = true
		}
	}
	if !seen {
		return nil
	}
	sum = round2(sum)
	return &sum
}

func columnMean(df dataframe.DataFrame, col string) *float64 {
	if !utils.HasColumn(df, col) {
		return nil
	}
	var present []float64
	for _, v := range df.Col(col).Float() {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	if len(present) == 0 {
		return nil
	}
	mean := round2(stat.Mean(present, nil))
	return &mean
}

// ComputeView resolves a view name, catalog or dedicated, against a table.
func ComputeView(df dataframe.DataFrame, name string, minOrders int) (View, error) {
	switch name {
	case "cancellation_rate_by_restaurant":
		return CancellationRate(df, minOrders), nil
	case "cancellation_reasons":
		return CancellationReasons(df), nil
	case "customer_segments":
		return SegmentDistribution(ComputeRFM(df, time.Now())), nil
	case "monthly_revenue_trend":
		return MonthlyRevenue(df), nil
	}
	spec, ok := ViewCatalog[name]
	if !ok {
		return View{}, fmt.Errorf("unknown view %q", name)
	}
	return Aggregate(df, name, spec), nil
}

// sortRowsDesc orders by value descending, key ascending on ties, so ranked
// outputs are deterministic.
func sortRowsDesc(rows []ViewRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Value != rows[j].Value {
			return rows[i].Value > rows[j].Value
		}
		return rows[i].Key < rows[j].Key
	})
}
