// filter.go
package processor

import (
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"DeliveryAnalytics/src/utils"
)

// Filter narrows the order table before aggregation. Zero values mean the
// dimension is not constrained. Date bounds are inclusive and compare the
// canonical Order_Date strings, so rows with an unknown date never match a
// bounded query.
type Filter struct {
	From     time.Time
	To       time.Time
	City     string
	Status   string
	Cuisines []string
}

// IsZero reports whether the filter constrains nothing.
func (f Filter) IsZero() bool {
	return f.From.IsZero() && f.To.IsZero() && f.City == "" && f.Status == "" && len(f.Cuisines) == 0
}

// Apply returns the rows matching every set dimension.
func (f Filter) Apply(df dataframe.DataFrame) dataframe.DataFrame {
	if f.IsZero() || df.Nrow() == 0 {
		return df
	}

	out := df
	if f.City != "" && utils.HasColumn(out, ColCity) {
		out = out.Filter(dataframe.F{Colname: ColCity, Comparator: series.Eq, Comparando: f.City})
	}
	if f.Status != "" && utils.HasColumn(out, ColOrderStatus) {
		status := strings.ToLower(strings.TrimSpace(f.Status))
		out = out.Filter(dataframe.F{Colname: ColOrderStatus, Comparator: series.Eq, Comparando: status})
	}
	if len(f.Cuisines) > 0 && utils.HasColumn(out, ColCuisine) {
		wanted := f.Cuisines
		out = out.Filter(dataframe.F{
			Colname:    ColCuisine,
			Comparator: series.CompFunc,
			Comparando: func(el series.Element) bool {
				return utils.Contains(wanted, el.String())
			},
		})
	}
	if (!f.From.IsZero() || !f.To.IsZero()) && utils.HasColumn(out, ColOrderDate) {
		from := ""
		if !f.From.IsZero() {
			from = f.From.Format("2006-01-02")
		}
		to := ""
		if !f.To.IsZero() {
			to = f.To.Format("2006-01-02")
		}
		out = out.Filter(dataframe.F{
			Colname:    ColOrderDate,
			Comparator: series.CompFunc,
			Comparando: func(el series.Element) bool {
				d := el.String()
				if len(d) != 10 {
					return false
				}
				if from != "" && d < from {
					return false
				}
				if to != "" && d > to {
					return false
				}
				return true
			},
		})
	}
	return out
}
