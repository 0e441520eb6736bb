package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	configJSON := `{
		"data_dir": "./data",
		"dataset_file": "food_delivery.csv",
		"cache_file": "cleaned_food_delivery.csv",
		"log_name": "app.log",
		"log_max_size": "10 * 1024 * 1024",
		"refresh_interval": "5m",
		"http_addr": ":9090"
	}`
	dataJSON := `{
		"imputecolumns": ["Order_Value", "Delivery_Time_Min"],
		"capcolumns": ["Order_Value", "Delivery_Time_Min"],
		"peakwindows": [[12, 14], [19, 22]],
		"minrestaurantorders": 10,
		"columnaliases": {"Delivery_Time_Minutes": "Delivery_Time_Min"}
	}`

	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(configJSON), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "dataconfig.json"), []byte(dataJSON), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, dcfg, err := LoadConfig(dir, "config.json", "dataconfig.json")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.DatasetFile != "food_delivery.csv" {
		t.Errorf("dataset file = %q", cfg.DatasetFile)
	}
	if time.Duration(cfg.RefreshInterval) != 5*time.Minute {
		t.Errorf("refresh interval = %v", time.Duration(cfg.RefreshInterval))
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("http addr = %q", cfg.HTTPAddr)
	}
	if cfg.Database.BatchSize != 500 {
		t.Errorf("default batch size = %d", cfg.Database.BatchSize)
	}

	if got := dcfg.GetAlias("Delivery_Time_Minutes"); got != "Delivery_Time_Min" {
		t.Errorf("alias = %q", got)
	}
	windows := dcfg.GetPeakWindows()
	if len(windows) != 2 || windows[0] != [2]int{12, 14} || windows[1] != [2]int{19, 22} {
		t.Errorf("peak windows = %v", windows)
	}
	if dcfg.MinRestaurantOrders != 10 {
		t.Errorf("min restaurant orders = %d", dcfg.MinRestaurantOrders)
	}
}

func TestDurationRoundTrip(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte(`"1h30m"`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if time.Duration(d) != 90*time.Minute {
		t.Errorf("duration = %v", time.Duration(d))
	}

	out, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `"1h30m0s"` {
		t.Errorf("marshal = %s", out)
	}
}
