package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/kfujimura/contactdesk/internal/export"
	"github.com/kfujimura/contactdesk/internal/merge"
	"github.com/kfujimura/contactdesk/internal/middleware"
	"github.com/kfujimura/contactdesk/internal/model"
)

// maxUploadBytes はマージリクエスト全体のサイズ上限（名簿2ファイル分）。
const maxUploadBytes = 20 << 20 // 20MB

// MergeReader は保存済みマージ結果の取得インターフェース。
type MergeReader interface {
	GetByCategory(ctx context.Context, categoryName string) (*model.MergeResult, error)
}

// MergeEngineInterface はマージハンドラーが必要とするエンジン操作のインターフェース。
type MergeEngineInterface interface {
	MergeReader
	Merge(ctx context.Context, categoryName string, fileA, fileB merge.RosterFile) (*model.MergeResult, error)
}

// ExportRecorder はCSVエクスポートの計測インターフェース。
type ExportRecorder interface {
	RecordCSVExport()
}

// MergeHandler は名簿マージのHTTPハンドラー。
type MergeHandler struct {
	engine  MergeEngineInterface
	metrics ExportRecorder
}

// NewMergeHandler はMergeHandlerを生成する。
func NewMergeHandler(engine MergeEngineInterface, metrics ExportRecorder) *MergeHandler {
	return &MergeHandler{
		engine:  engine,
		metrics: metrics,
	}
}

// Merge は2つの名簿ファイルを受け取りマージを実行する。
// multipart/form-dataでcategoryName、file1、file2を受け取る。
// POST /api/merge
func (h *MergeHandler) Merge(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("multipart/form-dataで送信してください"))
		return
	}

	categoryName := r.FormValue("categoryName")

	fileA, headerA, err := r.FormFile("file1")
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("file1は必須です"))
		return
	}
	defer fileA.Close()

	fileB, headerB, err := r.FormFile("file2")
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("file2は必須です"))
		return
	}
	defer fileB.Close()

	result, err := h.engine.Merge(r.Context(), categoryName,
		merge.RosterFile{Name: headerA.Filename, Reader: fileA},
		merge.RosterFile{Name: headerB.Filename, Reader: fileB},
	)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

// Get は保存済みのマージ結果をカテゴリ名で取得する。
// GET /api/merge/{name}
func (h *MergeHandler) Get(w http.ResponseWriter, r *http.Request) {
	categoryName, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || categoryName == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("カテゴリ名は必須です"))
		return
	}

	result, err := h.engine.GetByCategory(r.Context(), categoryName)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// Export は保存済みマージ結果のCSVアーティファクトをダウンロードさせる。
// GET /api/merge/{name}/export
func (h *MergeHandler) Export(w http.ResponseWriter, r *http.Request) {
	categoryName, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || categoryName == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("カテゴリ名は必須です"))
		return
	}

	result, err := h.engine.GetByCategory(r.Context(), categoryName)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	// アーティファクトが消えていてもエクスポートは失敗させない。
	// 保存済みレコードから同一内容のCSVを再生成する。
	data, err := os.ReadFile(result.CSVPath)
	if err != nil {
		slog.Warn("csv artifact missing, regenerating from stored records",
			slog.String("path", result.CSVPath),
			slog.String("error", err.Error()),
		)
		data, err = export.UnifiedRecordsCSV(result.Records)
		if err != nil {
			middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewPersistenceError(err.Error()))
			return
		}
	}

	h.metrics.RecordCSVExport()
	filename := result.CategoryKey + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Write(data)
}
