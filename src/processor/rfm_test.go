package processor

import (
	"testing"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// rfmFixture builds 8 customers with distinct recency and monetary values
// so the quartiles split them 2-2-2-2. Frequency is controlled by repeat
// rows carrying a zero amount on the customer's order date.
func rfmFixture() dataframe.DataFrame {
	type order struct {
		id     string
		date   string
		amount float64
	}
	customers := []struct {
		id       string
		date     string
		monetary float64
		orders   int
	}{
		{"C1", "2024-06-25", 800, 4},
		{"C2", "2024-06-20", 700, 4},
		{"C3", "2024-06-15", 600, 3},
		{"C4", "2024-06-10", 500, 3},
		{"C5", "2024-06-05", 400, 2},
		{"C6", "2024-05-31", 300, 2},
		{"C7", "2024-05-26", 200, 1},
		{"C8", "2024-05-21", 100, 1},
	}

	var rows []order
	for _, c := range customers {
		rows = append(rows, order{c.id, c.date, c.monetary})
		for i := 1; i < c.orders; i++ {
			rows = append(rows, order{c.id, c.date, 0})
		}
	}

	ids := make([]string, len(rows))
	dates := make([]string, len(rows))
	amounts := make([]float64, len(rows))
	for i, r := range rows {
		ids[i] = r.id
		dates[i] = r.date
		amounts[i] = r.amount
	}
	return dataframe.New(
		series.New(ids, series.String, ColCustomerID),
		series.New(dates, series.String, ColOrderDate),
		series.New(amounts, series.Float, ColFinalAmount),
	)
}

func TestComputeRFMScores(t *testing.T) {
	now := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	profiles := ComputeRFM(rfmFixture(), now)

	if len(profiles) != 8 {
		t.Fatalf("profiles = %d, want 8", len(profiles))
	}

	byID := make(map[string]CustomerRFM)
	for _, p := range profiles {
		byID[p.CustomerID] = p
	}

	c1 := byID["C1"]
	if c1.RecencyDays != 5 || c1.Frequency != 4 || c1.Monetary != 800 {
		t.Errorf("C1 profile = %+v", c1)
	}
	if c1.Code != "444" || c1.Segment != "Champions" {
		t.Errorf("C1 scored %q / %q, want 444 / Champions", c1.Code, c1.Segment)
	}

	c3 := byID["C3"]
	if c3.Code != "333" || c3.Segment != "Champions" {
		t.Errorf("C3 scored %q / %q, want 333 / Champions", c3.Code, c3.Segment)
	}

	c5 := byID["C5"]
	if c5.Code != "222" || c5.Segment != "Lost" {
		t.Errorf("C5 scored %q / %q, want 222 / Lost", c5.Code, c5.Segment)
	}

	c8 := byID["C8"]
	if c8.RecencyDays != 40 || c8.Code != "111" || c8.Segment != "Lost" {
		t.Errorf("C8 = %+v, want recency 40 code 111 Lost", c8)
	}

	// first-seen customer order is kept
	if profiles[0].CustomerID != "C1" || profiles[7].CustomerID != "C8" {
		t.Errorf("profile order = %v, %v", profiles[0].CustomerID, profiles[7].CustomerID)
	}
}

func TestComputeRFMSkipsCustomersWithoutDates(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"C1", "C2"}, series.String, ColCustomerID),
		series.New([]string{"2024-06-01", ""}, series.String, ColOrderDate),
		series.New([]float64{100, 200}, series.Float, ColFinalAmount),
	)

	profiles := ComputeRFM(df, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC))
	if len(profiles) != 1 || profiles[0].CustomerID != "C1" {
		t.Errorf("profiles = %+v, want only C1", profiles)
	}
}

func TestSegmentForScores(t *testing.T) {
	cases := []struct {
		r, f, m int
		want    string
	}{
		{4, 4, 4, "Champions"},
		{3, 3, 3, "Champions"},
		{4, 3, 2, "Loyal Customers"}, // high f, low m: not a Champion
		{3, 2, 1, "Loyal Customers"},
		{4, 1, 4, "Potential Loyalists"},
		{2, 4, 1, "At Risk"},
		{1, 1, 4, "Lost"},
	}
	for _, c := range cases {
		if got := SegmentForScores(c.r, c.f, c.m); got != c.want {
			t.Errorf("scores %d%d%d = %q, want %q", c.r, c.f, c.m, got, c.want)
		}
	}
}

func TestSegmentBreakdown(t *testing.T) {
	now := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	stats := SegmentBreakdown(ComputeRFM(rfmFixture(), now))

	total := 0
	for _, s := range stats {
		total += s.Customers
	}
	if total != 8 {
		t.Errorf("customers across segments = %d, want 8", total)
	}
	for i := 1; i < len(stats); i++ {
		if stats[i-1].Customers < stats[i].Customers {
			t.Errorf("segments not sorted by size: %+v", stats)
		}
	}
	for _, s := range stats {
		if s.AvgMonetary <= 0 {
			t.Errorf("segment %s avg monetary = %v", s.Segment, s.AvgMonetary)
		}
	}
}

func TestSegmentDistribution(t *testing.T) {
	now := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	view := SegmentDistribution(ComputeRFM(rfmFixture(), now))

	total := 0
	for _, row := range view.Rows {
		total += row.Count
	}
	if total != 8 {
		t.Errorf("distributed customers = %d, want 8", total)
	}
	if view.Rows[0].Value < view.Rows[len(view.Rows)-1].Value {
		t.Errorf("rows not sorted descending: %+v", view.Rows)
	}
}
