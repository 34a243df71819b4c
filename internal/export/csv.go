// Package export は表形式データのCSV変換を提供する。
// 状態もネットワークも持たない純粋な変換のみを行う。
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/kfujimura/contactdesk/internal/model"
)

// ToCSV は行データをCSVバイト列へ変換する。
// 区切り文字・引用符・改行を含むフィールドはRFC 4180に従ってエスケープされる。
// 同一入力に対して常にバイト単位で同一の出力を返す。
func ToCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseCSV はCSVバイト列をヘッダーと行データへ復元する。
// ToCSVの逆変換で、ラウンドトリップ検証に使用される。
func ParseCSV(data []byte) (header []string, rows [][]string, err error) {
	r := csv.NewReader(bytes.NewReader(data))
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[0], records[1:], nil
}

// unifiedHeader は統合レコードCSVの列定義。元システムのエクスポート列を踏襲する。
var unifiedHeader = []string{"id", "nombre", "email", "curso", "plataforma_a", "plataforma_b", "status", "created_at"}

// UnifiedRecordsCSV は統合レコードセットをCSVへ変換する。
func UnifiedRecordsCSV(records []model.UnifiedRecord) ([]byte, error) {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.ID,
			rec.Name,
			rec.Email,
			rec.CategoryName,
			string(rec.PresenceA),
			string(rec.PresenceB),
			string(rec.Status),
			rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return ToCSV(unifiedHeader, rows)
}

// contactHeader はカテゴリ連絡先CSVの列定義。
var contactHeader = []string{"id", "nombre", "apellido", "email", "telefono", "empresa"}

// ContactsCSV はカテゴリの連絡先一覧をCSVへ変換する。
func ContactsCSV(contacts []model.Contact) ([]byte, error) {
	rows := make([][]string, 0, len(contacts))
	for _, c := range contacts {
		phone := ""
		if len(c.Phones) > 0 {
			phone = c.Phones[0]
		}
		rows = append(rows, []string{
			c.ID,
			c.GivenName,
			c.Surname,
			c.PrimaryEmail(),
			phone,
			c.Company,
		})
	}
	return ToCSV(contactHeader, rows)
}
