// clean.go
package processor

import (
	"math"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"DeliveryAnalytics/src/config"
	"DeliveryAnalytics/src/utils"
)

// ColumnGap is one row of the missing-data report.
type ColumnGap struct {
	Column         string  `json:"Column"`
	MissingCount   int     `json:"Missing_Count"`
	MissingPercent float64 `json:"Missing_Percentage"`
}

// Cleaner repairs a raw order table. It never fails on data content: missing
// values are imputed or filled with sentinels, out-of-range values are
// clamped, and unparseable values become unknown rather than dropping rows.
type Cleaner struct {
	ImputeColumns []string // numeric columns imputed with the column median
	CapColumns    []string // numeric columns capped by the Tukey rule
}

func NewCleaner(dcfg *config.DataConfig) *Cleaner {
	c := &Cleaner{
		ImputeColumns: dcfg.ImputeColumns,
		CapColumns:    dcfg.CapColumns,
	}
	if len(c.ImputeColumns) == 0 {
		c.ImputeColumns = []string{ColOrderValue, ColDeliveryTime}
	}
	if len(c.CapColumns) == 0 {
		c.CapColumns = []string{ColOrderValue, ColDeliveryTime}
	}
	return c
}

var titleCaser = cases.Title(language.English)

// Clean returns the repaired table plus the missing-data report computed on
// the table as it arrived. The input frame is not modified.
func (c *Cleaner) Clean(df dataframe.DataFrame) (dataframe.DataFrame, []ColumnGap) {
	report := MissingReport(df)

	out := df.Copy()

	// 1. median imputation, before any capping
	for _, col := range c.ImputeColumns {
		out = imputeMedian(out, col)
	}

	// 2. Tukey outlier capping
	for _, col := range c.CapColumns {
		out = capOutliers(out, col)
	}

	// 3. sentinel for missing cancellation reasons
	out = fillReason(out)

	// 4. range repair
	out = clampColumn(out, ColRestaurantRating, 0, 5)
	out = clampColumn(out, ColDeliveryRating, 0, 5)
	out = clampColumn(out, ColProfitMargin, 0, math.Inf(1))

	// 5. categorical normalization: surface form only, never the meaning
	out = mapStringColumn(out, ColCity, func(s string) string {
		return titleCaser.String(strings.TrimSpace(s))
	})
	out = mapStringColumn(out, ColOrderStatus, func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	})

	// 6. calendar columns to canonical form; unparseable stays unknown
	out = canonicalDates(out)

	// 7. consistency pass last: a cancelled order has no meaningful rating
	out = clearCancelledRatings(out)

	return out, report
}

// MissingReport counts missing values per column, descending by count.
// Only columns with at least one gap are listed.
func MissingReport(df dataframe.DataFrame) []ColumnGap {
	var report []ColumnGap

	n := df.Nrow()
	if n == 0 {
		return report
	}

	for _, col := range df.Names() {
		count := 0
		s := df.Col(col)
		if s.Type() == series.Float || s.Type() == series.Int {
			for _, v := range s.Float() {
				if math.IsNaN(v) {
					count++
				}
			}
		} else {
			for _, v := range s.Records() {
				if isMissingString(v) {
					count++
				}
			}
		}
		if count > 0 {
			report = append(report, ColumnGap{
				Column:         col,
				MissingCount:   count,
				MissingPercent: round2(float64(count) / float64(n) * 100),
			})
		}
	}

	sort.SliceStable(report, func(i, j int) bool {
		return report[i].MissingCount > report[j].MissingCount
	})
	return report
}

func isMissingString(s string) bool {
	return s == "" || s == "NaN"
}

// imputeMedian replaces missing values with the median of the present ones.
// A fully missing column stays missing; the report already flags it.
func imputeMedian(df dataframe.DataFrame, col string) dataframe.DataFrame {
	if !utils.HasColumn(df, col) {
		return df
	}

	vals := df.Col(col).Float()
	med := quantile(vals, 0.5)
	if math.IsNaN(med) {
		return df
	}

	changed := false
	for i, v := range vals {
		if math.IsNaN(v) {
			vals[i] = med
			changed = true
		}
	}
	if !changed {
		return df
	}
	return df.Mutate(series.New(vals, series.Float, col))
}

// capOutliers clips a column to [Q1-1.5*IQR, Q3+1.5*IQR]. Values are moved
// to the fence, never removed.
func capOutliers(df dataframe.DataFrame, col string) dataframe.DataFrame {
	if !utils.HasColumn(df, col) {
		return df
	}

	vals := df.Col(col).Float()
	q1 := quantile(vals, 0.25)
	q3 := quantile(vals, 0.75)
	if math.IsNaN(q1) || math.IsNaN(q3) {
		return df
	}

	iqr := q3 - q1
	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr

	for i, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		if v < lower {
			vals[i] = lower
		} else if v > upper {
			vals[i] = upper
		}
	}
	return df.Mutate(series.New(vals, series.Float, col))
}

func clampColumn(df dataframe.DataFrame, col string, lo, hi float64) dataframe.DataFrame {
	if !utils.HasColumn(df, col) {
		return df
	}

	vals := df.Col(col).Float()
	for i, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		if v < lo {
			vals[i] = lo
		} else if v > hi {
			vals[i] = hi
		}
	}
	return df.Mutate(series.New(vals, series.Float, col))
}

func fillReason(df dataframe.DataFrame) dataframe.DataFrame {
	if !utils.HasColumn(df, ColCancelReason) {
		return df
	}

	records := df.Col(ColCancelReason).Records()
	for i, v := range records {
		if isMissingString(v) {
			records[i] = NotCancelled
		}
	}
	return df.Mutate(series.New(records, series.String, ColCancelReason))
}

func mapStringColumn(df dataframe.DataFrame, col string, f func(string) string) dataframe.DataFrame {
	if !utils.HasColumn(df, col) {
		return df
	}

	records := df.Col(col).Records()
	for i, v := range records {
		if isMissingString(v) {
			records[i] = ""
			continue
		}
		records[i] = f(v)
	}
	return df.Mutate(series.New(records, series.String, col))
}

// canonicalDates rewrites Order_Date to 2006-01-02 and Order_Time to
// 15:04:05. Values no known layout can parse become empty ("unknown").
func canonicalDates(df dataframe.DataFrame) dataframe.DataFrame {
	out := df
	if utils.HasColumn(out, ColOrderDate) {
		records := out.Col(ColOrderDate).Records()
		for i, v := range records {
			if t, ok := utils.ParseDate(strings.TrimSpace(v)); ok {
				records[i] = t.Format("2006-01-02")
			} else {
				records[i] = ""
			}
		}
		out = out.Mutate(series.New(records, series.String, ColOrderDate))
	}
	if utils.HasColumn(out, ColOrderTime) {
		records := out.Col(ColOrderTime).Records()
		for i, v := range records {
			if t, ok := utils.ParseClock(strings.TrimSpace(v)); ok {
				records[i] = t.Format("15:04:05")
			} else {
				records[i] = ""
			}
		}
		out = out.Mutate(series.New(records, series.String, ColOrderTime))
	}
	return out
}

// clearCancelledRatings nulls both rating columns on cancelled orders, after
// every other repair, so rating aggregates never see unfulfilled orders.
func clearCancelledRatings(df dataframe.DataFrame) dataframe.DataFrame {
	if !utils.HasColumn(df, ColOrderStatus) {
		return df
	}

	status := df.Col(ColOrderStatus).Records()
	out := df
	for _, col := range []string{ColRestaurantRating, ColDeliveryRating} {
		if !utils.HasColumn(out, col) {
			continue
		}
		vals := out.Col(col).Float()
		changed := false
		for i, st := range status {
			if st == StatusCancelled && !math.IsNaN(vals[i]) {
				vals[i] = math.NaN()
				changed = true
			}
		}
		if changed {
			out = out.Mutate(series.New(vals, series.Float, col))
		}
	}
	return out
}

// quantile computes a linear-interpolated quantile over the non-missing
// values. Returns NaN when nothing is present.
func quantile(values []float64, p float64) float64 {
	present := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	if len(present) == 0 {
		return math.NaN()
	}
	sort.Float64s(present)

	pos := p * float64(len(present)-1)
	lo := int(math.Floor(pos))
	frac := pos - float64(lo)
	if lo+1 >= len(present) {
		return present[len(present)-1]
	}
	return present[lo] + frac*(present[lo+1]-present[lo])
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
