package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kfujimura/contactdesk/internal/export"
	"github.com/kfujimura/contactdesk/internal/middleware"
	"github.com/kfujimura/contactdesk/internal/model"
	"github.com/kfujimura/contactdesk/internal/repository"
)

// DirectoryServiceInterface はカテゴリディレクトリの読み取りインターフェース。
type DirectoryServiceInterface interface {
	ListCategories(ctx context.Context, token string) ([]model.Category, error)
	Search(ctx context.Context, token, categoryName, term string) ([]model.Contact, error)
}

// CategoryPublisher は統合レコードセットをOutlookカテゴリとして公開するインターフェース。
// graph.Clientの部分集合として定義する。
type CategoryPublisher interface {
	PublishCategory(ctx context.Context, token, categoryName string, records []model.UnifiedRecord) (int, error)
}

// DirectoryMetrics はディレクトリ関連の計測インターフェース。
type DirectoryMetrics interface {
	RecordCSVExport()
	RecordPublish(contactCount int)
}

// SessionInvalidator は失効したセッションを破棄するインターフェース。
// session.Controllerの部分集合として定義する。
type SessionInvalidator interface {
	Invalidate(ctx context.Context, sessionID string)
}

// CategoryHandler はカテゴリディレクトリと公開のHTTPハンドラー。
type CategoryHandler struct {
	directory   DirectoryServiceInterface
	publisher   CategoryPublisher
	mergeReader MergeReader
	receipts    repository.PublishReceiptRepository
	metrics     DirectoryMetrics
	sessions    SessionInvalidator
}

// NewCategoryHandler はCategoryHandlerを生成する。
func NewCategoryHandler(
	directory DirectoryServiceInterface,
	publisher CategoryPublisher,
	mergeReader MergeReader,
	receipts repository.PublishReceiptRepository,
	metrics DirectoryMetrics,
	sessions SessionInvalidator,
) *CategoryHandler {
	return &CategoryHandler{
		directory:   directory,
		publisher:   publisher,
		mergeReader: mergeReader,
		receipts:    receipts,
		metrics:     metrics,
		sessions:    sessions,
	}
}

// writeUpstreamError はGraph呼び出しのエラーをレスポンスへ畳む。
// 認証エラーの場合、Microsoft側のトークンはもう使えないため、
// セッションを検証失敗時と同じ扱いで破棄する。
func (h *CategoryHandler) writeUpstreamError(w http.ResponseWriter, r *http.Request, sessionID string, err error) {
	if model.IsAuthError(err) && h.sessions != nil {
		h.sessions.Invalidate(context.WithoutCancel(r.Context()), sessionID)
	}
	writeAPIError(w, err)
}

// ListCategories はカテゴリ一覧を返す。
// GET /api/categories
func (h *CategoryHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError())
		return
	}

	categories, err := h.directory.ListCategories(r.Context(), sess.AccessToken)
	if err != nil {
		h.writeUpstreamError(w, r, sess.ID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"categories": categories})
}

// ListContacts は指定カテゴリの連絡先一覧を返す。
// クエリパラメータqで名・姓・メールアドレスの部分一致検索ができる。
// GET /api/categories/{name}/contacts?q=term
func (h *CategoryHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError())
		return
	}

	categoryName, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || categoryName == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("カテゴリ名は必須です"))
		return
	}

	contacts, err := h.directory.Search(r.Context(), sess.AccessToken, categoryName, r.URL.Query().Get("q"))
	if err != nil {
		h.writeUpstreamError(w, r, sess.ID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"category": categoryName,
		"contacts": contacts,
	})
}

// ExportContacts は指定カテゴリの連絡先をCSVとしてダウンロードさせる。
// GET /api/categories/{name}/export
func (h *CategoryHandler) ExportContacts(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError())
		return
	}

	categoryName, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || categoryName == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("カテゴリ名は必須です"))
		return
	}

	contacts, err := h.directory.Search(r.Context(), sess.AccessToken, categoryName, "")
	if err != nil {
		h.writeUpstreamError(w, r, sess.ID, err)
		return
	}

	data, err := export.ContactsCSV(contacts)
	if err != nil {
		slog.Error("failed to build contacts csv", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	h.metrics.RecordCSVExport()
	filename := model.NormalizeCategoryKey(categoryName) + "_contacts.csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Write(data)
}

// publishRequest はカテゴリ公開リクエストのボディ。
type publishRequest struct {
	CategoryName string `json:"categoryName"`
}

// Publish は保存済みのマージ結果をOutlookカテゴリと連絡先として公開する。
// 公開に成功した場合は作成履歴を保存する。
// POST /api/categories/publish
func (h *CategoryHandler) Publish(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError())
		return
	}

	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディが不正です"))
		return
	}

	result, err := h.mergeReader.GetByCategory(r.Context(), req.CategoryName)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	created, err := h.publisher.PublishCategory(r.Context(), sess.AccessToken, result.CategoryName, result.Records)
	if err != nil {
		h.writeUpstreamError(w, r, sess.ID, err)
		return
	}

	receipt := &model.PublishReceipt{
		ID:           uuid.New().String(),
		CategoryName: result.CategoryName,
		ContactCount: created,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.receipts.Create(r.Context(), receipt); err != nil {
		// 公開自体は完了しているため、履歴の保存失敗はログに留める
		slog.Error("failed to store publish receipt",
			slog.String("category", result.CategoryName),
			slog.String("error", err.Error()),
		)
	}

	h.metrics.RecordPublish(created)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(receipt)
}

// writeAPIError はAPIErrorを統一フォーマットで書き込む。
// APIError以外のエラーは500に畳む。
func writeAPIError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, middleware.StatusForError(apiErr), apiErr)
		return
	}
	slog.Error("unexpected error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}
