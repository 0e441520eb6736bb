package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config holds the application settings loaded from config.json.
type Config struct {
	DataDir     string `json:"data_dir"`     // directory the dataset files live in
	DatasetFile string `json:"dataset_file"` // raw dataset file name (.csv or .xlsx)
	SheetName   string `json:"sheet_name"`   // worksheet name when the dataset is xlsx
	CacheFile   string `json:"cache_file"`   // cleaned-table cache file name

	LogName    string `json:"log_name"`
	LogMaxSize string `json:"log_max_size"`

	RefreshInterval Duration `json:"refresh_interval"` // pipeline recompute interval
	HTTPAddr        string   `json:"http_addr"`

	Email struct {
		Enabled       bool   `json:"enabled"`
		Server        string `json:"server"`         // IMAP server address with port
		Username      string `json:"username"`       // mailbox account
		Password      string `json:"password"`       // password / app token
		TargetSubject string `json:"target_subject"` // subject keyword for dataset mails
	} `json:"email"`

	Database struct {
		Enabled   bool   `json:"enabled"`
		DSN       string `json:"dsn"`
		BatchSize int    `json:"batch_size"`
	} `json:"database"`

	Push struct {
		Enabled    bool   `json:"enabled"`
		WebhookURL string `json:"webhook_url"`
	} `json:"push"`
}

// DataConfig is the data-driven part of the configuration: which columns the
// cleaning stage touches and the thresholds the aggregation stage applies.
// Kept separate from Config so analysts can adjust it without touching the
// service settings.
type DataConfig struct {
	ColumnAliases       map[string]string `json:"columnaliases"`       // raw header -> canonical name
	ImputeColumns       []string          `json:"imputecolumns"`       // median-imputed numeric columns
	CapColumns          []string          `json:"capcolumns"`          // Tukey-capped numeric columns
	PeakWindows         [][2]int          `json:"peakwindows"`         // inclusive [start,end] hour windows
	MinRestaurantOrders int               `json:"minrestaurantorders"` // sample floor for cancellation ranking
}

var (
	once               sync.Once
	instance           *Config
	dataConfigInstance *DataConfig
	mu                 sync.RWMutex
)

func LoadConfig(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	var err error
	once.Do(func() {
		instance, dataConfigInstance, err = loadConfigs(jsonFolder, jsonFile, dataJsonFile)
	})
	return instance, dataConfigInstance, err
}

func loadConfigs(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	configFile := filepath.Join(jsonFolder, jsonFile)
	dataConfigFile := filepath.Join(jsonFolder, dataJsonFile)

	configData, err := readFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read config file: %w", err)
	}

	dataConfigData, err := readFile(dataConfigFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read data config file: %w", err)
	}

	cfgChan := make(chan *Config, 1)
	dcfgChan := make(chan *DataConfig, 1)
	errChan := make(chan error, 2)

	go parseConfig(configData, cfgChan, errChan)
	go parseDataConfig(dataConfigData, dcfgChan, errChan)

	cfg, dcfg, err := waitForResults(cfgChan, dcfgChan, errChan)
	if err != nil {
		return nil, nil, err
	}

	return cfg, dcfg, nil
}

func readFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", filePath, err)
	}
	return data, nil
}

func parseConfig(data []byte, resultChan chan<- *Config, errChan chan<- error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		errChan <- fmt.Errorf("parse Config: %w", err)
		return
	}
	resultChan <- &cfg
}

func parseDataConfig(data []byte, resultChan chan<- *DataConfig, errChan chan<- error) {
	var dcfg DataConfig
	if err := json.Unmarshal(data, &dcfg); err != nil {
		errChan <- fmt.Errorf("parse DataConfig: %w", err)
		return
	}
	resultChan <- &dcfg
}

func waitForResults(
	cfgChan <-chan *Config,
	dcfgChan <-chan *DataConfig,
	errChan <-chan error,
) (*Config, *DataConfig, error) {
	var (
		cfg    *Config
		dcfg   *DataConfig
		errors []error
	)

	for i := 0; i < 2; i++ {
		select {
		case c := <-cfgChan:
			cfg = c
		case d := <-dcfgChan:
			dcfg = d
		case err := <-errChan:
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return nil, nil, combineErrors(errors)
	}

	if cfg == nil || dcfg == nil {
		return nil, nil, fmt.Errorf("some configuration was not loaded")
	}

	applyDefaults(cfg, dcfg)

	return cfg, dcfg, nil
}

func combineErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	msg := "configuration loading hit multiple errors:"
	for _, err := range errs {
		msg = fmt.Sprintf("%s\n- %v", msg, err)
	}
	return fmt.Errorf("%s", msg)
}

// applyDefaults fills the settings a minimal config file may omit.
func applyDefaults(cfg *Config, dcfg *DataConfig) {
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = Duration(15 * time.Minute)
	}
	if cfg.LogMaxSize == "" {
		cfg.LogMaxSize = "10 * 1024 * 1024"
	}
	if cfg.Database.BatchSize <= 0 {
		cfg.Database.BatchSize = 500
	}
	if dcfg.MinRestaurantOrders <= 0 {
		dcfg.MinRestaurantOrders = 10
	}
	if len(dcfg.PeakWindows) == 0 {
		dcfg.PeakWindows = [][2]int{{12, 14}, {19, 22}}
	}
}

// Duration wraps time.Duration so intervals can be written as "15m" in JSON.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (dc *DataConfig) GetAlias(colName string) string {
	mu.RLock()
	defer mu.RUnlock()
	return dc.ColumnAliases[colName]
}

func (dc *DataConfig) SetAlias(colName, value string) {
	mu.Lock()
	defer mu.Unlock()
	if dc.ColumnAliases == nil {
		dc.ColumnAliases = make(map[string]string)
	}
	dc.ColumnAliases[colName] = value
}

func (dc *DataConfig) GetPeakWindows() [][2]int {
	mu.RLock()
	defer mu.RUnlock()
	out := make([][2]int, len(dc.PeakWindows))
	copy(out, dc.PeakWindows)
	return out
}
