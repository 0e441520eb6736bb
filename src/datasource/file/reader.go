// reader.go
package file

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

// nanValues are the raw cell contents treated as missing on load.
var nanValues = []string{"", "NA", "NaN", "N/A", "null", "NULL"}

// ReadCSVToDataFrame loads a delimited dataset file. Columns listed in types
// are forced to that series type; everything else stays a string column.
func ReadCSVToDataFrame(filePath string, types map[string]series.Type) (dataframe.DataFrame, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f,
		dataframe.HasHeader(true),
		dataframe.DefaultType(series.String),
		dataframe.WithTypes(types),
		dataframe.NaNValues(nanValues),
	)
	if df.Error() != nil {
		return dataframe.DataFrame{}, fmt.Errorf("parse csv %s: %w", filePath, df.Error())
	}

	return df, nil
}

// ReadXLSXToDataFrame loads a worksheet into a DataFrame. All columns come
// back as strings; numeric typing is applied by the caller the same way as
// for CSV input.
func ReadXLSXToDataFrame(filePath, sheetName string) (dataframe.DataFrame, error) {
	xlFile, err := xlsx.OpenFile(filePath)
	if err != nil {
		return dataframe.New(), fmt.Errorf("open xlsx file: %w", err)
	}

	if len(xlFile.Sheets) == 0 {
		return dataframe.New(), fmt.Errorf("xlsx file %s has no sheets", filePath)
	}

	sheet, ok := xlFile.Sheet[sheetName]
	if !ok {
		// fall back to the first sheet when the configured name is absent
		sheet = xlFile.Sheets[0]
	}

	return convertSheetToDataFrame(sheet)
}

// convertSheetToDataFrame turns an xlsx.Sheet into a DataFrame. The first row
// is the header, everything below it is data.
func convertSheetToDataFrame(sheet *xlsx.Sheet) (dataframe.DataFrame, error) {
	if len(sheet.Rows) < 2 {
		return dataframe.New(), fmt.Errorf("sheet %s has no data rows", sheet.Name)
	}

	var headers []string
	for _, cell := range sheet.Rows[0].Cells {
		headers = append(headers, strings.TrimSpace(cell.String()))
	}

	columns := make([][]string, len(headers))
	for i := range columns {
		columns[i] = make([]string, 0, len(sheet.Rows)-1)
	}

	for _, row := range sheet.Rows[1:] {
		for i := range headers {
			if i < len(row.Cells) {
				columns[i] = append(columns[i], row.Cells[i].String())
			} else {
				columns[i] = append(columns[i], "")
			}
		}
	}

	seriesList := make([]series.Series, len(headers))
	for i, colName := range headers {
		seriesList[i] = series.New(columns[i], series.String, colName)
	}

	df := dataframe.New(seriesList...)
	if df.Error() != nil {
		return dataframe.New(), fmt.Errorf("convert sheet %s: %w", sheet.Name, df.Error())
	}
	return df, nil
}

// FileMD5 fingerprints a dataset file; the cleaned-table cache is keyed on it.
func FileMD5(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", filePath, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// WriteCleanCache persists the cleaned table as CSV next to an .md5 sidecar
// recording which raw file it was derived from.
func WriteCleanCache(df dataframe.DataFrame, cachePath, sourceKey string) error {
	if err := ensureDir(filepath.Dir(cachePath)); err != nil {
		return err
	}

	f, err := os.Create(cachePath)
	if err != nil {
		return fmt.Errorf("create cache file: %w", err)
	}
	defer f.Close()

	if err := df.WriteCSV(f); err != nil {
		return fmt.Errorf("write cache csv: %w", err)
	}

	if err := os.WriteFile(cachePath+".md5", []byte(sourceKey), 0644); err != nil {
		return fmt.Errorf("write cache key: %w", err)
	}
	return nil
}

// CacheValid reports whether the cache file exists and was built from the
// raw file identified by sourceKey.
func CacheValid(cachePath, sourceKey string) bool {
	if _, err := os.Stat(cachePath); err != nil {
		return false
	}
	key, err := os.ReadFile(cachePath + ".md5")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(key)) == sourceKey
}

// ReadCleanCache loads a previously cached cleaned table.
func ReadCleanCache(cachePath string, types map[string]series.Type) (dataframe.DataFrame, error) {
	return ReadCSVToDataFrame(cachePath, types)
}

// SaveToExcel writes a DataFrame to an xlsx report file.
func SaveToExcel(df dataframe.DataFrame, filePath string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Sheet1"

	colNames := df.Names()
	for i, name := range colNames {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, name)
	}

	for rowIdx := 0; rowIdx < df.Nrow(); rowIdx++ {
		for colIdx, colName := range colNames {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			val := df.Col(colName).Val(rowIdx)
			f.SetCellValue(sheetName, cell, val)
		}
	}

	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("save xlsx file: %w", err)
	}
	return nil
}

// ensureDir makes sure the directory exists.
func ensureDir(dirPath string) error {
	if info, err := os.Stat(dirPath); err == nil {
		if info.IsDir() {
			return nil
		}
		return fmt.Errorf("%s exists but is not a directory", dirPath)
	}
	return os.MkdirAll(dirPath, 0755)
}
