package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"DeliveryAnalytics/src/config"
	"DeliveryAnalytics/src/processor"
	"DeliveryAnalytics/src/storage"
)

const testCSV = `Order_ID,Customer_ID,City,Cuisine_Type,Order_Value,Final_Amount,Delivery_Time_Min,Customer_Age,Order_Status,Cancellation_Reason,Payment_Mode,Order_Date,Order_Time,Restaurant_Name,Profit_Margin,Restaurant_Rating,Delivery_Rating,Distance_km
O1,C1,Mumbai,Indian,300,350,25,30,Delivered,,UPI,2024-01-13,13:00:00,Spice Hub,60,4.5,4.0,3.2
O2,C1,Mumbai,Indian,200,240,50,30,Delivered,,UPI,2024-02-10,20:00:00,Spice Hub,40,4.0,3.5,5.1
O3,C2,Delhi,Chinese,400,460,35,22,Cancelled,Restaurant closed,Card,2024-02-15,12:30:00,Wok Way,80,3.8,4.2,2.4
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "orders.csv"), []byte(testCSV), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		DataDir:     dir,
		DatasetFile: "orders.csv",
		HTTPAddr:    ":0",
	}
	dcfg := &config.DataConfig{MinRestaurantOrders: 1}

	logger, err := storage.NewLogger(filepath.Join(dir, "test.log"))
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })

	p := processor.NewPipeline(cfg, dcfg, logger)
	if err := p.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	return New(cfg, dcfg, logger, p, nil)
}

func getJSON(t *testing.T, s *Server, path string, out interface{}) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rec.Code
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	var body map[string]interface{}
	if code := getJSON(t, s, "/health", &body); code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	if body["status"] != "ok" || body["rows"].(float64) != 3 {
		t.Errorf("health = %+v", body)
	}
	if body["database"] != false {
		t.Errorf("database flag = %v, want false", body["database"])
	}
}

func TestSummaryEndpoint(t *testing.T) {
	s := newTestServer(t)

	var sum processor.Summary
	if code := getJSON(t, s, "/summary", &sum); code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	if sum.TotalOrders != 3 {
		t.Errorf("total orders = %d, want 3", sum.TotalOrders)
	}
	if sum.TotalRevenue == nil || *sum.TotalRevenue != 1050 {
		t.Errorf("revenue = %v, want 1050", sum.TotalRevenue)
	}
}

func TestSummaryFiltered(t *testing.T) {
	s := newTestServer(t)

	var sum processor.Summary
	if code := getJSON(t, s, "/summary?city=Mumbai", &sum); code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	if sum.TotalOrders != 2 {
		t.Errorf("filtered orders = %d, want 2", sum.TotalOrders)
	}
}

func TestSummaryBadDate(t *testing.T) {
	s := newTestServer(t)
	if code := getJSON(t, s, "/summary?from=15-01-2024", nil); code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", code)
	}
}

func TestViewEndpoint(t *testing.T) {
	s := newTestServer(t)

	var view processor.View
	if code := getJSON(t, s, "/views/orders_by_city", &view); code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	if len(view.Rows) != 2 || view.Rows[0].Key != "Mumbai" {
		t.Errorf("rows = %+v, want Mumbai first", view.Rows)
	}
}

func TestViewUnknown(t *testing.T) {
	s := newTestServer(t)
	if code := getJSON(t, s, "/views/nope", nil); code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", code)
	}
}

func TestSegmentsEndpoint(t *testing.T) {
	s := newTestServer(t)

	var body struct {
		Customers []processor.CustomerRFM `json:"customers"`
	}
	if code := getJSON(t, s, "/segments", &body); code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	if len(body.Customers) != 2 {
		t.Errorf("customers = %d, want 2", len(body.Customers))
	}
}

func TestMissingReportEndpoint(t *testing.T) {
	s := newTestServer(t)

	var body struct {
		Columns []processor.ColumnGap `json:"columns"`
	}
	if code := getJSON(t, s, "/report/missing", &body); code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	// two orders have an empty Cancellation_Reason in the raw file
	found := false
	for _, col := range body.Columns {
		if col.Column == "Cancellation_Reason" && col.MissingCount == 2 {
			found = true
		}
	}
	if !found {
		t.Errorf("report = %+v, want Cancellation_Reason gap of 2", body.Columns)
	}
}

func TestExportEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/export", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("exported workbook is empty")
	}
}

func TestTasksWithoutDatabase(t *testing.T) {
	s := newTestServer(t)

	var body map[string]interface{}
	if code := getJSON(t, s, "/tasks", &body); code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	if body["available"] != false {
		t.Errorf("available = %v, want false", body["available"])
	}

	if code := getJSON(t, s, "/tasks/top_spending_customers", nil); code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503", code)
	}
}
