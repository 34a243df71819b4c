package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kfujimura/contactdesk/internal/merge"
	"github.com/kfujimura/contactdesk/internal/model"
)

// --- モック定義 ---

type mockMergeEngine struct {
	mergeFn         func(ctx context.Context, categoryName string, fileA, fileB merge.RosterFile) (*model.MergeResult, error)
	getByCategoryFn func(ctx context.Context, categoryName string) (*model.MergeResult, error)
}

func (m *mockMergeEngine) Merge(ctx context.Context, categoryName string, fileA, fileB merge.RosterFile) (*model.MergeResult, error) {
	if m.mergeFn != nil {
		return m.mergeFn(ctx, categoryName, fileA, fileB)
	}
	return &model.MergeResult{CategoryKey: "test", CategoryName: categoryName}, nil
}

func (m *mockMergeEngine) GetByCategory(ctx context.Context, categoryName string) (*model.MergeResult, error) {
	if m.getByCategoryFn != nil {
		return m.getByCategoryFn(ctx, categoryName)
	}
	return nil, model.NewMergeNotFoundError(categoryName)
}

type mockExportRecorder struct {
	exports int
}

func (m *mockExportRecorder) RecordCSVExport() { m.exports++ }

// --- compile-time interface checks ---
var _ MergeEngineInterface = (*mockMergeEngine)(nil)
var _ ExportRecorder = (*mockExportRecorder)(nil)

// multipartBody はマージリクエストのボディを構築するテストヘルパー。
func multipartBody(t *testing.T, categoryName string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if categoryName != "" {
		if err := w.WriteField("categoryName", categoryName); err != nil {
			t.Fatal(err)
		}
	}
	for field, content := range files {
		fw, err := w.CreateFormFile(field, field+".csv")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(fw, content); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, w.FormDataContentType()
}

// --- テスト ---

func TestMergeHandler_Merge_Success(t *testing.T) {
	var gotCategory string
	engine := &mockMergeEngine{
		mergeFn: func(ctx context.Context, categoryName string, fileA, fileB merge.RosterFile) (*model.MergeResult, error) {
			gotCategory = categoryName
			return &model.MergeResult{
				CategoryKey:  "matematica",
				CategoryName: categoryName,
				TotalRecords: 3,
			}, nil
		},
	}
	h := NewMergeHandler(engine, &mockExportRecorder{})

	body, contentType := multipartBody(t, "Matematica", map[string]string{
		"file1": "nombre,email\nAna,ana@example.com\n",
		"file2": "nombre,email\nAna,ana@example.com\n",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/merge", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h.Merge(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusCreated, w.Body.String())
	}
	if gotCategory != "Matematica" {
		t.Errorf("category = %q, want %q", gotCategory, "Matematica")
	}

	var result model.MergeResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.TotalRecords != 3 {
		t.Errorf("totalRecords = %d, want 3", result.TotalRecords)
	}
}

func TestMergeHandler_Merge_MissingFile_ReturnsBadRequest(t *testing.T) {
	h := NewMergeHandler(&mockMergeEngine{}, &mockExportRecorder{})

	body, contentType := multipartBody(t, "Matematica", map[string]string{
		"file1": "nombre,email\nAna,ana@example.com\n",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/merge", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h.Merge(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestMergeHandler_Merge_FormatError_MapsTo422(t *testing.T) {
	engine := &mockMergeEngine{
		mergeFn: func(ctx context.Context, categoryName string, fileA, fileB merge.RosterFile) (*model.MergeResult, error) {
			return nil, model.NewFormatError("file1.csv", "メールアドレス列が見つからない")
		},
	}
	h := NewMergeHandler(engine, &mockExportRecorder{})

	body, contentType := multipartBody(t, "Matematica", map[string]string{
		"file1": "x", "file2": "y",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/merge", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h.Merge(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}

	var errBody map[string]string
	if err := json.NewDecoder(w.Body).Decode(&errBody); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errBody["code"] != model.ErrCodeFormat {
		t.Errorf("code = %q, want %q", errBody["code"], model.ErrCodeFormat)
	}
}

func TestMergeHandler_Get_NotFound_MapsTo404(t *testing.T) {
	h := NewMergeHandler(&mockMergeEngine{}, &mockExportRecorder{})

	r := chi.NewRouter()
	r.Get("/api/merge/{name}", h.Get)

	req := httptest.NewRequest(http.MethodGet, "/api/merge/Inexistente", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestMergeHandler_Export_ServesArtifact(t *testing.T) {
	csvPath := filepath.Join(t.TempDir(), "matematica.csv")
	if err := os.WriteFile(csvPath, []byte("id,nombre,email\n1,Ana,ana@example.com\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	engine := &mockMergeEngine{
		getByCategoryFn: func(ctx context.Context, categoryName string) (*model.MergeResult, error) {
			return &model.MergeResult{CategoryKey: "matematica", CSVPath: csvPath}, nil
		},
	}
	metrics := &mockExportRecorder{}
	h := NewMergeHandler(engine, metrics)

	r := chi.NewRouter()
	r.Get("/api/merge/{name}/export", h.Export)

	req := httptest.NewRequest(http.MethodGet, "/api/merge/Matematica/export", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="matematica.csv"` {
		t.Errorf("content disposition = %q", got)
	}
	if !strings.Contains(w.Body.String(), "ana@example.com") {
		t.Errorf("unexpected body: %q", w.Body.String())
	}
	if metrics.exports != 1 {
		t.Errorf("exports = %d, want 1", metrics.exports)
	}
}

func TestMergeHandler_Export_MissingArtifact_RegeneratesFromRecords(t *testing.T) {
	// アーティファクトが掃除などで消えていても、保存済みレコードから
	// CSVを作り直して返す
	engine := &mockMergeEngine{
		getByCategoryFn: func(ctx context.Context, categoryName string) (*model.MergeResult, error) {
			return &model.MergeResult{
				CategoryKey: "matematica",
				CSVPath:     filepath.Join(t.TempDir(), "gone.csv"),
				Records: []model.UnifiedRecord{
					{
						ID:        "r1",
						Name:      "Ana Lopez",
						Email:     "ana@example.com",
						PresenceA: model.PresenceAPresent,
						PresenceB: model.PresenceBActive,
						Status:    model.MatchUnified,
					},
				},
			}, nil
		},
	}
	metrics := &mockExportRecorder{}
	h := NewMergeHandler(engine, metrics)

	r := chi.NewRouter()
	r.Get("/api/merge/{name}/export", h.Export)

	req := httptest.NewRequest(http.MethodGet, "/api/merge/Matematica/export", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusOK, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, "ana@example.com") || !strings.Contains(body, "Unificado") {
		t.Errorf("regenerated csv should contain stored records, got %q", body)
	}
	if metrics.exports != 1 {
		t.Errorf("exports = %d, want 1", metrics.exports)
	}
}

func TestMergeHandler_Get_ReturnsStoredResult(t *testing.T) {
	engine := &mockMergeEngine{
		getByCategoryFn: func(ctx context.Context, categoryName string) (*model.MergeResult, error) {
			return &model.MergeResult{
				CategoryKey:  "matematica_2024",
				CategoryName: categoryName,
				TotalRecords: 2,
			}, nil
		},
	}
	h := NewMergeHandler(engine, &mockExportRecorder{})

	r := chi.NewRouter()
	r.Get("/api/merge/{name}", h.Get)

	req := httptest.NewRequest(http.MethodGet, "/api/merge/Matematica%202024", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var result model.MergeResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.TotalRecords != 2 {
		t.Errorf("totalRecords = %d, want 2", result.TotalRecords)
	}
}
