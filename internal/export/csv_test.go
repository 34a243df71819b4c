package export

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kfujimura/contactdesk/internal/model"
)

func TestToCSV_ParseCSV_RoundTrip(t *testing.T) {
	header := []string{"id", "nombre", "nota"}
	rows := [][]string{
		{"1", "Ana Lopez", "sin novedades"},
		{"2", "Ruiz, Carlos", `dijo "hola"`},
		{"3", "Elena\nMora", "salto de linea"},
		{"4", "", "campo vacio"},
	}

	data, err := ToCSV(header, rows)
	if err != nil {
		t.Fatalf("ToCSV() error = %v", err)
	}

	gotHeader, gotRows, err := ParseCSV(data)
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if !reflect.DeepEqual(gotHeader, header) {
		t.Errorf("header = %v, want %v", gotHeader, header)
	}
	if !reflect.DeepEqual(gotRows, rows) {
		t.Errorf("rows = %v, want %v", gotRows, rows)
	}
}

func TestToCSV_Deterministic(t *testing.T) {
	header := []string{"a", "b"}
	rows := [][]string{{"1", "2"}, {"3", "4"}}

	first, err := ToCSV(header, rows)
	if err != nil {
		t.Fatalf("ToCSV() error = %v", err)
	}
	second, err := ToCSV(header, rows)
	if err != nil {
		t.Fatalf("ToCSV() error = %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("same input must yield byte-identical output")
	}
}

func TestUnifiedRecordsCSV(t *testing.T) {
	created := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	records := []model.UnifiedRecord{
		{
			ID:           "rec-1",
			Name:         "Ana Lopez",
			Email:        "ana@example.com",
			CategoryName: "Matematica 2024",
			PresenceA:    model.PresenceAPresent,
			PresenceB:    model.PresenceBActive,
			Status:       model.MatchUnified,
			CreatedAt:    created,
		},
	}

	data, err := UnifiedRecordsCSV(records)
	if err != nil {
		t.Fatalf("UnifiedRecordsCSV() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[0] != "id,nombre,email,curso,plataforma_a,plataforma_b,status,created_at" {
		t.Errorf("unexpected header: %q", lines[0])
	}
	want := "rec-1,Ana Lopez,ana@example.com,Matematica 2024,Presente,Activo,Unificado,2024-03-15T10:30:00Z"
	if lines[1] != want {
		t.Errorf("row = %q, want %q", lines[1], want)
	}
}

func TestUnifiedRecordsCSV_EmptySet_HeaderOnly(t *testing.T) {
	data, err := UnifiedRecordsCSV(nil)
	if err != nil {
		t.Fatalf("UnifiedRecordsCSV() error = %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != "id,nombre,email,curso,plataforma_a,plataforma_b,status,created_at" {
		t.Errorf("empty set should produce the header only, got %q", got)
	}
}

func TestContactsCSV(t *testing.T) {
	contacts := []model.Contact{
		{
			ID:        "c-1",
			GivenName: "Ana",
			Surname:   "Lopez",
			Emails:    []string{"ana@example.com", "ana2@example.com"},
			Phones:    []string{"+502 5555 1234"},
			Company:   "Acme",
		},
		{
			ID:        "c-2",
			GivenName: "Carlos",
			Surname:   "Ruiz",
		},
	}

	data, err := ContactsCSV(contacts)
	if err != nil {
		t.Fatalf("ContactsCSV() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "id,nombre,apellido,email,telefono,empresa" {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if lines[1] != "c-1,Ana,Lopez,ana@example.com,+502 5555 1234,Acme" {
		t.Errorf("row = %q", lines[1])
	}
	// メールと電話が未設定の連絡先は空フィールドになる
	if lines[2] != "c-2,Carlos,Ruiz,,," {
		t.Errorf("row = %q", lines[2])
	}
}
