// Package merge は2つの名簿エクスポートの統合・重複排除エンジンを提供する。
package merge

import (
	"bytes"
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kfujimura/contactdesk/internal/model"
)

// RosterFile はアップロードされた名簿ファイルを表す。
type RosterFile struct {
	Name   string
	Reader io.Reader
}

// RosterDecoder は名簿ファイルを生レコード列へ展開するインターフェース。
// スプレッドシート形式の内部構造は外部コラボレーターの関心事であり、
// 本エンジンは「名前と照合キーを持つ行の列」だけを消費する。
type RosterDecoder interface {
	// Decode はファイルをRosterRecordの列へ展開する。
	// 解析できない場合はmodel.FormatErrorを返す。
	Decode(file RosterFile) ([]model.RosterRecord, error)
}

// identityColumns は照合キー（メールアドレス）列として認識するヘッダー名。
var identityColumns = []string{"email", "e-mail", "correo", "correo electronico", "correo electrónico", "mail"}

// nameColumns は表示名列として認識するヘッダー名。
var nameColumns = []string{"nombre", "nombre completo", "name", "full name", "estudiante", "alumno"}

// statusColumns は在籍ステータス列として認識するヘッダー名。
var statusColumns = []string{"estado", "status", "situacion", "situación", "presencia"}

// negativeStatuses は不在・非アクティブとして扱うステータス値。
// ステータス列が存在しない、または値が空の行は在籍として扱う。
var negativeStatuses = map[string]bool{
	"ausente":  true,
	"inactivo": true,
	"inactiva": true,
	"absent":   true,
	"inactive": true,
	"baja":     true,
}

// TabularDecoder はCSVとExcel（xlsx）の名簿ファイルを扱うRosterDecoderの実装。
type TabularDecoder struct{}

// NewTabularDecoder はTabularDecoderを生成する。
func NewTabularDecoder() *TabularDecoder {
	return &TabularDecoder{}
}

// Decode はファイル拡張子に応じてCSVまたはxlsxとして行を展開する。
// 空のファイルは形式の問題ではなく前提条件違反のため、ValidationErrorを返す。
func (d *TabularDecoder) Decode(file RosterFile) ([]model.RosterRecord, error) {
	data, err := io.ReadAll(file.Reader)
	if err != nil {
		return nil, model.NewFormatError(file.Name, err.Error())
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, model.NewValidationError("名簿ファイルが空です: " + file.Name)
	}

	switch strings.ToLower(filepath.Ext(file.Name)) {
	case ".csv":
		return d.decodeCSV(file.Name, data)
	case ".xlsx", ".xlsm":
		return d.decodeXLSX(file.Name, data)
	default:
		return nil, model.NewFormatError(file.Name, "サポート対象の拡張子は .csv / .xlsx のみ")
	}
}

// decodeCSV はCSVファイルを展開する。
// スペイン語圏のエクスポートに多いセミコロン区切りも自動判別する。
func (d *TabularDecoder) decodeCSV(filename string, data []byte) ([]model.RosterRecord, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.Comma = sniffDelimiter(data)

	rows, err := r.ReadAll()
	if err != nil {
		return nil, model.NewFormatError(filename, err.Error())
	}

	return rowsToRecords(filename, rows)
}

// decodeXLSX はExcelファイルの先頭シートを展開する。
func (d *TabularDecoder) decodeXLSX(filename string, data []byte) ([]model.RosterRecord, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, model.NewFormatError(filename, err.Error())
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, model.NewFormatError(filename, "シートが存在しない")
	}

	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, model.NewFormatError(filename, err.Error())
	}

	return rowsToRecords(filename, rows)
}

// sniffDelimiter はヘッダー行から区切り文字を判別する。
// カンマを含まずセミコロンを含む場合のみセミコロンとみなす。
func sniffDelimiter(data []byte) rune {
	head := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		head = data[:i]
	}
	if !bytes.ContainsRune(head, ',') && bytes.ContainsRune(head, ';') {
		return ';'
	}
	return ','
}

// rowsToRecords はヘッダー行から列位置を特定し、生レコード列を構築する。
// 照合キー列が見つからない、または有効な行が1件もない場合はFormatError。
// 照合キーが空の行は読み飛ばす。
func rowsToRecords(filename string, rows [][]string) ([]model.RosterRecord, error) {
	if len(rows) < 2 {
		return nil, model.NewFormatError(filename, "ヘッダーとデータ行が必要")
	}

	identityIdx := findColumn(rows[0], identityColumns)
	if identityIdx < 0 {
		return nil, model.NewFormatError(filename, "メールアドレス列が見つからない")
	}
	nameIdx := findColumn(rows[0], nameColumns)
	statusIdx := findColumn(rows[0], statusColumns)

	records := make([]model.RosterRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		key := cell(row, identityIdx)
		if strings.TrimSpace(key) == "" {
			continue
		}

		rec := model.RosterRecord{
			IdentityKey: model.NormalizeIdentityKey(key),
			DisplayName: strings.TrimSpace(cell(row, nameIdx)),
			Present:     true,
		}
		if statusIdx >= 0 {
			status := strings.ToLower(strings.TrimSpace(cell(row, statusIdx)))
			if negativeStatuses[status] {
				rec.Present = false
			}
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, model.NewFormatError(filename, "有効なデータ行がない")
	}
	return records, nil
}

// findColumn はヘッダー行から候補名に一致する列位置を返す。見つからない場合は-1。
func findColumn(header []string, candidates []string) int {
	for i, h := range header {
		normalized := strings.ToLower(strings.TrimSpace(h))
		for _, c := range candidates {
			if normalized == c {
				return i
			}
		}
	}
	return -1
}

// cell は範囲外アクセスを空文字列に畳む。
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

var _ RosterDecoder = (*TabularDecoder)(nil)
