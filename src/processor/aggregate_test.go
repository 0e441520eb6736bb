package processor

import (
	"math"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

func ordersFixture() dataframe.DataFrame {
	return dataframe.New(
		series.New([]string{"O1", "O2", "O3", "O4", "O5", "O6"}, series.String, ColOrderID),
		series.New([]string{"Mumbai", "Mumbai", "Delhi", "Delhi", "Delhi", ""}, series.String, ColCity),
		series.New([]float64{100, 200, 300, 400, math.NaN(), 50}, series.Float, ColFinalAmount),
		series.New([]float64{20, 30, 40, 50, 60, 25}, series.Float, ColDeliveryTime),
		series.New([]string{"delivered", "delivered", "cancelled", "delivered", "cancelled", "delivered"}, series.String, ColOrderStatus),
		series.New([]string{"2024-01-05", "2024-01-20", "2024-02-01", "2024-02-15", "", "2024-02-20"}, series.String, ColOrderDate),
	)
}

func TestAggregateCount(t *testing.T) {
	view := Aggregate(ordersFixture(), "orders_by_city", ViewCatalog["orders_by_city"])

	if len(view.Rows) != 2 {
		t.Fatalf("rows = %d, want 2 (blank city excluded)", len(view.Rows))
	}
	if view.Rows[0].Key != "Delhi" || view.Rows[0].Value != 3 {
		t.Errorf("top row = %+v, want Delhi 3", view.Rows[0])
	}
	if view.Rows[1].Key != "Mumbai" || view.Rows[1].Value != 2 {
		t.Errorf("second row = %+v, want Mumbai 2", view.Rows[1])
	}
}

func TestAggregateSumSkipsMissing(t *testing.T) {
	view := Aggregate(ordersFixture(), "revenue_by_city", ViewCatalog["revenue_by_city"])

	if view.Rows[0].Key != "Delhi" || view.Rows[0].Value != 700 {
		t.Errorf("top row = %+v, want Delhi 700 (missing amount skipped)", view.Rows[0])
	}
}

func TestAggregateMean(t *testing.T) {
	view := Aggregate(ordersFixture(), "avg_delivery_time_by_city", ViewCatalog["avg_delivery_time_by_city"])

	if view.Rows[0].Key != "Delhi" || view.Rows[0].Value != 50 {
		t.Errorf("top row = %+v, want Delhi 50", view.Rows[0])
	}
	if view.Rows[1].Key != "Mumbai" || view.Rows[1].Value != 25 {
		t.Errorf("second row = %+v, want Mumbai 25", view.Rows[1])
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	view := Aggregate(dataframe.DataFrame{}, "orders_by_city", ViewCatalog["orders_by_city"])
	if len(view.Rows) != 0 {
		t.Errorf("rows = %+v, want none", view.Rows)
	}
}

func TestCancellationRateMinOrders(t *testing.T) {
	names := make([]string, 0, 13)
	status := make([]string, 0, 13)
	// Big Kitchen: 10 orders, 2 cancelled. Tiny Stall: 3 orders all
	// cancelled, below the sample floor.
	for i := 0; i < 10; i++ {
		names = append(names, "Big Kitchen")
		if i < 2 {
			status = append(status, "cancelled")
		} else {
			status = append(status, "delivered")
		}
	}
	for i := 0; i < 3; i++ {
		names = append(names, "Tiny Stall")
		status = append(status, "cancelled")
	}
	df := dataframe.New(
		series.New(names, series.String, ColRestaurant),
		series.New(status, series.String, ColOrderStatus),
	)

	view := CancellationRate(df, 10)
	if len(view.Rows) != 1 {
		t.Fatalf("rows = %+v, want only Big Kitchen", view.Rows)
	}
	if view.Rows[0].Key != "Big Kitchen" || view.Rows[0].Value != 20 || view.Rows[0].Count != 10 {
		t.Errorf("row = %+v, want Big Kitchen 20%% over 10 orders", view.Rows[0])
	}
}

func TestCancellationReasons(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"cancelled", "cancelled", "delivered"}, series.String, ColOrderStatus),
		series.New([]string{"Restaurant closed", "Restaurant closed", "Not Cancelled"}, series.String, ColCancelReason),
	)

	view := CancellationReasons(df)
	if len(view.Rows) != 1 || view.Rows[0].Key != "Restaurant closed" || view.Rows[0].Count != 2 {
		t.Errorf("rows = %+v, want Restaurant closed x2", view.Rows)
	}
}

func TestMonthlyRevenue(t *testing.T) {
	view := MonthlyRevenue(ordersFixture())

	if len(view.Rows) != 2 {
		t.Fatalf("rows = %+v, want two months", view.Rows)
	}
	if view.Rows[0].Key != "2024-01" || view.Rows[0].Value != 300 {
		t.Errorf("first month = %+v, want 2024-01 / 300", view.Rows[0])
	}
	if view.Rows[1].Key != "2024-02" || view.Rows[1].Value != 750 {
		t.Errorf("second month = %+v, want 2024-02 / 750", view.Rows[1])
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(ordersFixture())

	if s.TotalOrders != 6 {
		t.Errorf("total orders = %d, want 6", s.TotalOrders)
	}
	if s.TotalRevenue == nil || *s.TotalRevenue != 1050 {
		t.Errorf("revenue = %v, want 1050", s.TotalRevenue)
	}
	if s.CancellationRatePct == nil || *s.CancellationRatePct != 33.33 {
		t.Errorf("cancellation rate = %v, want 33.33", s.CancellationRatePct)
	}
	if s.AvgDeliveryTimeMin == nil || *s.AvgDeliveryTimeMin != 37.5 {
		t.Errorf("avg delivery time = %v, want 37.5", s.AvgDeliveryTimeMin)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(dataframe.DataFrame{})
	if s.TotalOrders != 0 || s.TotalRevenue != nil || s.CancellationRatePct != nil {
		t.Errorf("empty summary = %+v, want all nil cards", s)
	}
}

func TestComputeViewUnknownName(t *testing.T) {
	if _, err := ComputeView(ordersFixture(), "no_such_view", 10); err == nil {
		t.Error("expected an error for an unknown view name")
	}
}
