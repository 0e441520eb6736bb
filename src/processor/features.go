// features.go
package processor

import (
	"math"
	"strconv"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"DeliveryAnalytics/src/utils"
)

// Featurizer adds the derived columns the dashboard groups on. Input is a
// cleaned table; each derived column is computed row-wise with no cross-row
// dependency.
type Featurizer struct {
	PeakWindows [][2]int
}

func NewFeaturizer(windows [][2]int) *Featurizer {
	if len(windows) == 0 {
		windows = [][2]int{{12, 14}, {19, 22}}
	}
	return &Featurizer{PeakWindows: windows}
}

// Derive returns a new table with the derived columns appended.
func (f *Featurizer) Derive(df dataframe.DataFrame) dataframe.DataFrame {
	n := df.Nrow()
	if n == 0 {
		return df
	}

	out := df

	if utils.HasColumn(out, ColOrderDate) {
		dates := out.Col(ColOrderDate).Records()
		days := make([]string, n)
		for i, v := range dates {
			if t, ok := utils.ParseDate(v); ok {
				days[i] = DayType(t)
			} else {
				days[i] = "" // unknown date, excluded from day-type groupings
			}
		}
		out = out.Mutate(series.New(days, series.String, ColOrderDay))
	}

	if utils.HasColumn(out, ColOrderTime) {
		times := out.Col(ColOrderTime).Records()
		peaks := make([]bool, n)
		for i, v := range times {
			if t, ok := utils.ParseClock(v); ok {
				peaks[i] = IsPeakHour(t.Hour(), f.PeakWindows)
			}
		}
		out = out.Mutate(series.New(peaks, series.Bool, ColPeakHour))
	}

	if utils.HasColumn(out, ColProfitMargin) && utils.HasColumn(out, ColOrderValue) {
		margins := out.Col(ColProfitMargin).Float()
		values := out.Col(ColOrderValue).Float()
		pcts := make([]float64, n)
		for i := range pcts {
			pcts[i] = MarginPercent(margins[i], values[i])
		}
		out = out.Mutate(series.New(pcts, series.Float, ColMarginPercent))
	}

	if utils.HasColumn(out, ColDeliveryTime) {
		minutes := out.Col(ColDeliveryTime).Float()
		buckets := make([]string, n)
		for i, v := range minutes {
			buckets[i] = DeliveryBucket(v)
		}
		out = out.Mutate(series.New(buckets, series.String, ColDeliveryCategory))
	}

	if utils.HasColumn(out, ColCustomerAge) {
		ages := out.Col(ColCustomerAge).Float()
		groups := make([]string, n)
		for i, v := range ages {
			groups[i] = AgeBucket(v)
		}
		out = out.Mutate(series.New(groups, series.String, ColAgeGroup))
	}

	return out
}

// DayType labels a calendar day "Weekend" (Saturday/Sunday) or "Weekday".
func DayType(t time.Time) string {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return "Weekend"
	default:
		return "Weekday"
	}
}

// IsPeakHour reports whether the hour falls inside any window. Window ends
// are inclusive on both sides.
func IsPeakHour(hour int, windows [][2]int) bool {
	for _, w := range windows {
		if hour >= w[0] && hour <= w[1] {
			return true
		}
	}
	return false
}

// MarginPercent is profit margin over order value as a percentage, rounded
// to two decimals. Undefined (NaN) for a zero or missing order value.
func MarginPercent(margin, value float64) float64 {
	if math.IsNaN(margin) || math.IsNaN(value) || value == 0 {
		return math.NaN()
	}
	return round2(margin / value * 100)
}

// DeliveryBucket classifies a delivery time in minutes. Both boundaries are
// inclusive: exactly 30 is still "Fast", exactly 45 still "On-Time".
func DeliveryBucket(minutes float64) string {
	switch {
	case math.IsNaN(minutes):
		return ""
	case minutes <= 30:
		return "Fast"
	case minutes <= 45:
		return "On-Time"
	default:
		return "Delayed"
	}
}

// AgeBucket groups customer age: Youth below 25, Adult 25-39, Senior 40 up.
func AgeBucket(age float64) string {
	switch {
	case math.IsNaN(age):
		return ""
	case age < 25:
		return "Youth"
	case age < 40:
		return "Adult"
	default:
		return "Senior"
	}
}

// peakLabel renders the Peak_Hour flag the way group keys are shown.
func peakLabel(v string) string {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return v
	}
	if b {
		return "Peak"
	}
	return "Non-Peak"
}
