// Package dataset loads customer events from CSV, XLSX and JSON files.
package dataset

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/xuri/excelize/v2"

	"campaign_worker/core/domain"
	"campaign_worker/pkg/apperr"
)

// LoadCustomers picks a reader by file extension. The first row of CSV and
// XLSX files is the header; blank rows are skipped.
func LoadCustomers(path string) ([]domain.CustomerEvent, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadCSV(path)
	case ".xlsx", ".xlsm":
		return loadXLSX(path)
	case ".json":
		return loadJSON(path)
	case ".jsonl", ".ndjson":
		return loadJSONL(path)
	default:
		return nil, apperr.InvalidInput("path", "unsupported dataset extension "+filepath.Ext(path))
	}
}

func loadCSV(path string) ([]domain.CustomerEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, rec)
	}
	return fromRows(rows)
}

func loadXLSX(path string) ([]domain.CustomerEvent, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return fromRows(rows)
}

func loadJSON(path string) ([]domain.CustomerEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	events := make([]domain.CustomerEvent, 0, len(records))
	for _, rec := range records {
		events = append(events, domain.CustomerEventFromMap(rec))
	}
	return events, nil
}

func loadJSONL(path string) ([]domain.CustomerEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	var events []domain.CustomerEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("decode line %d: %w", line, err)
		}
		events = append(events, domain.CustomerEventFromMap(rec))
	}
	return events, scanner.Err()
}

// fromRows maps header-keyed rows to events. Short rows leave missing
// columns unset.
func fromRows(rows [][]string) ([]domain.CustomerEvent, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no header row")
	}
	header := rows[0]

	events := make([]domain.CustomerEvent, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec := make(map[string]any, len(header))
		for i, h := range header {
			if i < len(row) && strings.TrimSpace(h) != "" {
				rec[h] = row[i]
			}
		}
		events = append(events, domain.CustomerEventFromMap(rec))
	}
	return events, nil
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
