// pipeline.go drives the load -> clean -> derive sequence and holds the
// latest result for concurrent readers. Refresh replaces the whole table
// in one swap, so readers always see a consistent snapshot.
package processor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"DeliveryAnalytics/src/config"
	"DeliveryAnalytics/src/datasource/file"
	"DeliveryAnalytics/src/storage"
	"DeliveryAnalytics/src/utils"
)

// Pipeline owns the current order table.
type Pipeline struct {
	cfg        *config.Config
	dcfg       *config.DataConfig
	logger     *storage.Logger
	cleaner    *Cleaner
	featurizer *Featurizer

	mu       sync.RWMutex
	features dataframe.DataFrame // cleaned + derived columns
	cleaned  dataframe.DataFrame // cleaned only, what the cache holds
	report   []ColumnGap
	lastRun  time.Time
	source   string // md5 of the raw dataset behind the current table
}

func NewPipeline(cfg *config.Config, dcfg *config.DataConfig, logger *storage.Logger) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		dcfg:       dcfg,
		logger:     logger,
		cleaner:    NewCleaner(dcfg),
		featurizer: NewFeaturizer(dcfg.GetPeakWindows()),
	}
}

// Refresh reloads the dataset and rebuilds the table. The cleaned table is
// cached on disk keyed by the raw file's md5, so an unchanged dataset skips
// the cleaning pass.
func (p *Pipeline) Refresh() error {
	datasetPath := filepath.Join(p.cfg.DataDir, p.cfg.DatasetFile)
	return p.RefreshFrom(datasetPath)
}

// RefreshFrom rebuilds the table from an explicit dataset path, used when a
// new file lands via the directory monitor or mail ingestion.
func (p *Pipeline) RefreshFrom(datasetPath string) error {
	start := time.Now()

	sourceKey, err := file.FileMD5(datasetPath)
	if err != nil {
		return fmt.Errorf("fingerprint dataset: %w", err)
	}

	cachePath := ""
	if p.cfg.CacheFile != "" {
		cachePath = filepath.Join(p.cfg.DataDir, p.cfg.CacheFile)
	}

	var cleaned dataframe.DataFrame
	var report []ColumnGap

	cacheHit := false
	if cachePath != "" && file.CacheValid(cachePath, sourceKey) {
		if cached, cacheErr := file.ReadCleanCache(cachePath, ColumnTypes()); cacheErr == nil {
			cleaned = cached
			report = readReportSidecar(cachePath)
			cacheHit = true
			p.logger.Info(fmt.Sprintf("dataset %s unchanged, reused cleaned cache", filepath.Base(datasetPath)))
		} else {
			p.logger.Warning(fmt.Sprintf("read cleaned cache: %v", cacheErr))
		}
	}

	if !cacheHit {
		raw, loadErr := p.loadRaw(datasetPath)
		if loadErr != nil {
			return loadErr
		}
		raw = p.applyAliases(raw)

		cleaned, report = p.cleaner.Clean(raw)

		if cachePath != "" {
			if cacheErr := file.WriteCleanCache(cleaned, cachePath, sourceKey); cacheErr != nil {
				p.logger.Warning(fmt.Sprintf("write cleaned cache: %v", cacheErr))
			} else {
				writeReportSidecar(cachePath, report)
			}
		}
	}

	features := p.featurizer.Derive(cleaned)
	if features.Err != nil {
		return fmt.Errorf("derive features: %w", features.Err)
	}

	p.mu.Lock()
	p.cleaned = cleaned
	p.features = features
	p.report = report
	p.lastRun = time.Now()
	p.source = sourceKey
	p.mu.Unlock()

	p.logger.Info(fmt.Sprintf("pipeline refreshed: %d rows in %v", features.Nrow(), time.Since(start).Round(time.Millisecond)))
	return nil
}

// loadRaw reads the dataset by extension. Everything comes in as strings
// except the known numeric columns, so malformed cells become NA instead of
// failing the load. The xlsx reader delivers only strings, so its numeric
// columns are retyped here to match the CSV path.
func (p *Pipeline) loadRaw(path string) (dataframe.DataFrame, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return file.ReadCSVToDataFrame(path, ColumnTypes())
	case ".xlsx":
		df, err := file.ReadXLSXToDataFrame(path, p.cfg.SheetName)
		if err != nil {
			return df, err
		}
		return coerceColumnTypes(df, ColumnTypes()), nil
	default:
		return dataframe.DataFrame{}, fmt.Errorf("unsupported dataset format %q", filepath.Ext(path))
	}
}

// coerceColumnTypes rebuilds string columns as their declared series type.
// Cells that fail to parse become missing, the same as CSV NaN values.
func coerceColumnTypes(df dataframe.DataFrame, types map[string]series.Type) dataframe.DataFrame {
	out := df
	for col, typ := range types {
		if !utils.HasColumn(out, col) || out.Col(col).Type() == typ {
			continue
		}
		out = out.Mutate(series.New(out.Col(col).Records(), typ, col))
	}
	return out
}

// applyAliases renames raw headers to the canonical schema.
func (p *Pipeline) applyAliases(df dataframe.DataFrame) dataframe.DataFrame {
	out := df
	for _, raw := range df.Names() {
		if canonical := p.dcfg.GetAlias(raw); canonical != "" && canonical != raw {
			out = out.Rename(canonical, raw)
		}
	}
	return out
}

// Snapshot returns the current table with derived columns. The copy keeps
// callers from mutating the shared frame.
func (p *Pipeline) Snapshot() dataframe.DataFrame {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.features.Copy()
}

// Cleaned returns the current table without derived columns.
func (p *Pipeline) Cleaned() dataframe.DataFrame {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cleaned.Copy()
}

// Report returns the missing-value report of the raw dataset behind the
// current table.
func (p *Pipeline) Report() []ColumnGap {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ColumnGap, len(p.report))
	copy(out, p.report)
	return out
}

// LastRun reports when the table was last rebuilt; zero before the first
// successful refresh.
func (p *Pipeline) LastRun() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastRun
}

// SourceKey is the md5 fingerprint of the dataset behind the current table.
func (p *Pipeline) SourceKey() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.source
}

// ExportExcel writes the current table to an xlsx workbook.
func (p *Pipeline) ExportExcel(path string) error {
	return file.SaveToExcel(p.Snapshot(), path)
}

// ExportViewExcel writes one aggregate view as a two-column workbook.
func ExportViewExcel(v View, path string) error {
	keys := make([]string, len(v.Rows))
	values := make([]float64, len(v.Rows))
	for i, row := range v.Rows {
		keys[i] = row.Key
		values[i] = row.Value
	}
	df := dataframe.New(
		series.New(keys, series.String, v.Name),
		series.New(values, series.Float, "value"),
	)
	return file.SaveToExcel(df, path)
}

// The missing-value report lives next to the cleaned cache, since the
// cleaned table no longer shows which cells were originally empty.
func reportSidecarPath(cachePath string) string {
	return cachePath + ".report.json"
}

func writeReportSidecar(cachePath string, report []ColumnGap) {
	data, err := json.Marshal(report)
	if err != nil {
		return
	}
	_ = os.WriteFile(reportSidecarPath(cachePath), data, 0644)
}

func readReportSidecar(cachePath string) []ColumnGap {
	data, err := os.ReadFile(reportSidecarPath(cachePath))
	if err != nil {
		return nil
	}
	var report []ColumnGap
	if err := json.Unmarshal(data, &report); err != nil {
		return nil
	}
	return report
}
