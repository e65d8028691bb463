package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"campaign_worker/pkg/apperr"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeFile(t, "customers.csv", "ID,Email,First_Name,viewed_page,form_started,scheduled,attended\n"+
		"c1,ana@example.com,Ana,payment_plans,yes,no,no\n"+
		",,,,,,\n"+
		"c2,bo@example.com,Bo,loans\n")

	events, err := LoadCustomers(path)
	if err != nil {
		t.Fatalf("LoadCustomers: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID != "c1" || events[0].FirstName != "Ana" || events[0].FormStarted != "yes" {
		t.Errorf("unexpected first event %+v", events[0])
	}
	if events[1].ViewedPage != "loans" || events[1].Attended != nil {
		t.Errorf("short row should leave flags unset, got %+v", events[1])
	}
}

func TestLoadXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"email", "first_name", "viewed_page", "attended"},
		{"ana@example.com", "Ana", "debt_relief", "yes"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "customers.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}

	events, err := LoadCustomers(path)
	if err != nil {
		t.Fatalf("LoadCustomers: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].CustomerID() != "ana@example.com" || events[0].Attended != "yes" {
		t.Errorf("unexpected event %+v", events[0])
	}
}

func TestLoadJSONL(t *testing.T) {
	path := writeFile(t, "customers.jsonl", `{"id":"c1","attended":true}`+"\n\n"+`{"email":"x@y.z"}`+"\n")

	events, err := LoadCustomers(path)
	if err != nil {
		t.Fatalf("LoadCustomers: %v", err)
	}
	if len(events) != 2 || events[0].Attended != true || events[1].Email != "x@y.z" {
		t.Errorf("unexpected events %+v", events)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "customers.json", `[{"id":"c1"},{"id":"c2"}]`)

	events, err := LoadCustomers(path)
	if err != nil || len(events) != 2 {
		t.Fatalf("LoadCustomers = %v, %v", events, err)
	}
}

func TestLoadUnsupported(t *testing.T) {
	if _, err := LoadCustomers("customers.txt"); !apperr.IsCode(err, apperr.CodeInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}

func TestLoadEmptyCSV(t *testing.T) {
	if _, err := LoadCustomers(writeFile(t, "empty.csv", "")); err == nil {
		t.Error("expected error without header row")
	}
}

func TestWriteTable(t *testing.T) {
	header := []string{"id", "email", "viewed_page"}
	rows := [][]string{
		{"c1", "ana@example.com", "loans"},
		{"c2", "bo@example.com", "payment_plans"},
	}

	for _, ext := range []string{".csv", ".xlsx"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "results"+ext)
			if err := WriteTable(path, header, rows); err != nil {
				t.Fatalf("WriteTable: %v", err)
			}

			events, err := LoadCustomers(path)
			if err != nil {
				t.Fatalf("LoadCustomers: %v", err)
			}
			if len(events) != 2 || events[1].ID != "c2" || events[1].ViewedPage != "payment_plans" {
				t.Errorf("round trip = %+v", events)
			}
		})
	}

	if err := WriteTable(filepath.Join(t.TempDir(), "out.txt"), header, rows); !apperr.IsCode(err, apperr.CodeInvalidInput) {
		t.Errorf("unsupported extension: %v", err)
	}
}
