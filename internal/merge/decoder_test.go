package merge

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kfujimura/contactdesk/internal/model"
)

func TestDecode_CSV_CommaSeparated(t *testing.T) {
	csv := "nombre,email,estado\n" +
		"Ana Lopez,ana@example.com,Presente\n" +
		"Carlos Ruiz,CARLOS@example.com,Ausente\n"

	d := NewTabularDecoder()
	records, err := d.Decode(RosterFile{Name: "moodle.csv", Reader: strings.NewReader(csv)})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].IdentityKey != "ana@example.com" {
		t.Errorf("identity key = %q, want %q", records[0].IdentityKey, "ana@example.com")
	}
	if records[0].DisplayName != "Ana Lopez" {
		t.Errorf("display name = %q, want %q", records[0].DisplayName, "Ana Lopez")
	}
	if !records[0].Present {
		t.Error("Presente row should be present")
	}

	// 照合キーは小文字化される
	if records[1].IdentityKey != "carlos@example.com" {
		t.Errorf("identity key = %q, want %q", records[1].IdentityKey, "carlos@example.com")
	}
	if records[1].Present {
		t.Error("Ausente row should not be present")
	}
}

func TestDecode_CSV_SemicolonSeparated(t *testing.T) {
	csv := "Nombre;Correo;Estado\n" +
		"Elena Mora;elena@example.com;Activo\n" +
		"David Gil;david@example.com;Inactivo\n"

	d := NewTabularDecoder()
	records, err := d.Decode(RosterFile{Name: "galileo.csv", Reader: strings.NewReader(csv)})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if !records[0].Present {
		t.Error("Activo row should be present")
	}
	if records[1].Present {
		t.Error("Inactivo row should not be present")
	}
}

func TestDecode_CSV_NoStatusColumn_DefaultsToPresent(t *testing.T) {
	csv := "name,email\nAna,ana@example.com\n"

	d := NewTabularDecoder()
	records, err := d.Decode(RosterFile{Name: "roster.csv", Reader: strings.NewReader(csv)})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !records[0].Present {
		t.Error("row without a status column should default to present")
	}
}

func TestDecode_CSV_SkipsRowsWithoutIdentity(t *testing.T) {
	csv := "nombre,email\nAna,ana@example.com\nSinCorreo,\nCarlos,carlos@example.com\n"

	d := NewTabularDecoder()
	records, err := d.Decode(RosterFile{Name: "roster.csv", Reader: strings.NewReader(csv)})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("records = %d, want 2 (row without email skipped)", len(records))
	}
}

func TestDecode_CSV_MissingIdentityColumn_ReturnsFormatError(t *testing.T) {
	csv := "nombre,curso\nAna,Matematica\n"

	d := NewTabularDecoder()
	_, err := d.Decode(RosterFile{Name: "roster.csv", Reader: strings.NewReader(csv)})
	assertFormatError(t, err)
}

func TestDecode_EmptyFile_ReturnsValidationError(t *testing.T) {
	d := NewTabularDecoder()

	// 拡張子にかかわらず、中身が空のファイルは前提条件違反として扱われる
	for _, name := range []string{"empty.csv", "empty.xlsx"} {
		_, err := d.Decode(RosterFile{Name: name, Reader: strings.NewReader("  \n ")})
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("%s: expected *model.APIError, got %T: %v", name, err, err)
		}
		if apiErr.Code != model.ErrCodeValidation {
			t.Errorf("%s: error code = %q, want %q", name, apiErr.Code, model.ErrCodeValidation)
		}
	}
}

func TestDecode_HeaderOnly_ReturnsFormatError(t *testing.T) {
	d := NewTabularDecoder()
	_, err := d.Decode(RosterFile{Name: "roster.csv", Reader: strings.NewReader("nombre,email\n")})
	assertFormatError(t, err)
}

func TestDecode_UnsupportedExtension_ReturnsFormatError(t *testing.T) {
	d := NewTabularDecoder()
	_, err := d.Decode(RosterFile{Name: "roster.pdf", Reader: strings.NewReader("data")})
	assertFormatError(t, err)
}

func TestDecode_XLSX_FirstSheet(t *testing.T) {
	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	rows := [][]any{
		{"Nombre", "Email", "Estado"},
		{"Ana Lopez", "ana@example.com", "Activo"},
		{"Carlos Ruiz", "carlos@example.com", "Inactivo"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName() error = %v", err)
		}
		if err := book.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow() error = %v", err)
		}
	}

	var buf bytes.Buffer
	if err := book.Write(&buf); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	d := NewTabularDecoder()
	records, err := d.Decode(RosterFile{Name: "galileo.xlsx", Reader: &buf})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].IdentityKey != "ana@example.com" {
		t.Errorf("identity key = %q, want %q", records[0].IdentityKey, "ana@example.com")
	}
	if records[1].Present {
		t.Error("Inactivo row should not be present")
	}
}

func TestDecode_XLSX_CorruptData_ReturnsFormatError(t *testing.T) {
	d := NewTabularDecoder()
	_, err := d.Decode(RosterFile{Name: "broken.xlsx", Reader: strings.NewReader("not an xlsx")})
	assertFormatError(t, err)
}

func assertFormatError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected format error, got nil")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T: %v", err, err)
	}
	if apiErr.Code != model.ErrCodeFormat {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeFormat)
	}
}
