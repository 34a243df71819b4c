package merge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kfujimura/contactdesk/internal/export"
	"github.com/kfujimura/contactdesk/internal/model"
	"github.com/kfujimura/contactdesk/internal/repository"
	"github.com/kfujimura/contactdesk/internal/security"
)

// MetricsRecorder はマージ処理の計測インターフェース。
type MetricsRecorder interface {
	RecordMerge(success bool)
	RecordRecordsMerged(count int)
}

// Engine は2プラットフォームの名簿エクスポートを統合レコードセットへ
// 変換・永続化するマージエンジン。
type Engine struct {
	decoder   RosterDecoder
	sanitizer security.FieldSanitizerService
	repo      repository.MergeResultRepository
	metrics   MetricsRecorder
	logger    *slog.Logger
	exportDir string
}

// NewEngine はEngineを生成する。
func NewEngine(
	decoder RosterDecoder,
	sanitizer security.FieldSanitizerService,
	repo repository.MergeResultRepository,
	metrics MetricsRecorder,
	logger *slog.Logger,
	exportDir string,
) *Engine {
	return &Engine{
		decoder:   decoder,
		sanitizer: sanitizer,
		repo:      repo,
		metrics:   metrics,
		logger:    logger,
		exportDir: exportDir,
	}
}

// Merge はカテゴリ名と2つの名簿ファイルからマージを実行する。
// 検証と変換がすべて成功した場合にのみ、正規化カテゴリキー配下の
// 既存セットを新しいセットで置き換える。途中で失敗した場合、
// 保存済みデータは一切変化しない。
func (e *Engine) Merge(ctx context.Context, categoryName string, fileA, fileB RosterFile) (*model.MergeResult, error) {
	key := model.NormalizeCategoryKey(categoryName)
	if key == "" {
		return nil, model.NewValidationError("カテゴリ名は必須です")
	}
	if fileA.Reader == nil || fileB.Reader == nil {
		return nil, model.NewValidationError("名簿ファイルを2つ指定してください")
	}

	recordsA, err := e.decoder.Decode(fileA)
	if err != nil {
		e.metrics.RecordMerge(false)
		return nil, err
	}
	recordsB, err := e.decoder.Decode(fileB)
	if err != nil {
		e.metrics.RecordMerge(false)
		return nil, err
	}

	now := time.Now().UTC()
	unified := combine(recordsA, recordsB, categoryName, e.sanitizer, now)

	result := &model.MergeResult{
		CategoryKey:  key,
		CategoryName: categoryName,
		Records:      unified,
		TotalRecords: len(unified),
		CreatedAt:    now,
	}

	// アーティファクトは一時ファイルへ書き、保存が確定してから本来の
	// パスへリネームする。保存に失敗したマージが前回のCSVを壊さないため。
	tmpPath, csvPath, err := e.writeArtifactTemp(key, unified)
	if err != nil {
		e.metrics.RecordMerge(false)
		return nil, model.NewPersistenceError(err.Error())
	}
	result.CSVPath = csvPath

	if err := e.repo.Replace(ctx, result); err != nil {
		e.metrics.RecordMerge(false)
		e.logger.Error("マージ結果の保存に失敗", "category_key", key, "error", err)
		if rmErr := os.Remove(tmpPath); rmErr != nil {
			e.logger.Warn("一時CSVの削除に失敗", "path", tmpPath, "error", rmErr)
		}
		return nil, model.NewPersistenceError(err.Error())
	}

	if err := os.Rename(tmpPath, csvPath); err != nil {
		// 保存自体は成功しているため失敗扱いにはしない。
		// エクスポートはDB上のレコードから再生成できる。
		e.logger.Error("CSVアーティファクトの確定に失敗", "path", csvPath, "error", err)
		if rmErr := os.Remove(tmpPath); rmErr != nil {
			e.logger.Warn("一時CSVの削除に失敗", "path", tmpPath, "error", rmErr)
		}
	}

	e.metrics.RecordMerge(true)
	e.metrics.RecordRecordsMerged(len(unified))
	e.logger.Info("マージ完了",
		"category_key", key,
		"records", len(unified),
		"source_a", len(recordsA),
		"source_b", len(recordsB),
	)
	return result, nil
}

// GetByCategory は保存済みのマージ結果をカテゴリ名で取得する。
// 検索は正規化カテゴリキーで行うため、空白や大文字小文字の揺れは吸収される。
func (e *Engine) GetByCategory(ctx context.Context, categoryName string) (*model.MergeResult, error) {
	key := model.NormalizeCategoryKey(categoryName)
	if key == "" {
		return nil, model.NewValidationError("カテゴリ名は必須です")
	}

	result, err := e.repo.FindByCategoryKey(ctx, key)
	if err != nil {
		return nil, model.NewPersistenceError(err.Error())
	}
	if result == nil {
		return nil, model.NewMergeNotFoundError(categoryName)
	}
	return result, nil
}

// combine は両ソースのレコードを照合キーで突き合わせ、統合レコード列を構築する。
// 同一ファイル内でキーが重複した場合は後の行が優先される（エクスポートの
// 最新行を採用）。結果はソースAの出現順、続いてBのみのレコードの出現順で並ぶ。
func combine(recordsA, recordsB []model.RosterRecord, categoryName string, sanitizer security.FieldSanitizerService, now time.Time) []model.UnifiedRecord {
	byKeyA := indexByKey(recordsA)
	byKeyB := indexByKey(recordsB)

	keys := make([]string, 0, len(byKeyA)+len(byKeyB))
	seen := make(map[string]bool, len(byKeyA)+len(byKeyB))
	for _, r := range recordsA {
		if !seen[r.IdentityKey] {
			seen[r.IdentityKey] = true
			keys = append(keys, r.IdentityKey)
		}
	}
	onlyB := make([]string, 0, len(byKeyB))
	for _, r := range recordsB {
		if !seen[r.IdentityKey] {
			seen[r.IdentityKey] = true
			onlyB = append(onlyB, r.IdentityKey)
		}
	}
	keys = append(keys, onlyB...)

	unified := make([]model.UnifiedRecord, 0, len(keys))
	for _, key := range keys {
		recA, inA := byKeyA[key]
		recB, inB := byKeyB[key]

		presenceA := model.PresenceAAbsent
		if inA && recA.Present {
			presenceA = model.PresenceAPresent
		}
		presenceB := model.PresenceBInactive
		if inB && recB.Present {
			presenceB = model.PresenceBActive
		}

		name := recA.DisplayName
		if name == "" {
			name = recB.DisplayName
		}

		unified = append(unified, model.UnifiedRecord{
			ID:           uuid.New().String(),
			Name:         sanitizer.Sanitize(name),
			Email:        key,
			CategoryName: categoryName,
			PresenceA:    presenceA,
			PresenceB:    presenceB,
			Status:       model.Classify(presenceA, presenceB),
			CreatedAt:    now,
		})
	}
	return unified
}

// indexByKey はレコード列を照合キーで索引化する。重複キーは後勝ち。
func indexByKey(records []model.RosterRecord) map[string]model.RosterRecord {
	index := make(map[string]model.RosterRecord, len(records))
	for _, r := range records {
		index[r.IdentityKey] = r
	}
	return index
}

// writeArtifactTemp は統合レコード列のCSVアーティファクトを一時ファイルへ
// 書き出し、一時パスと確定後のパスを返す。確定パスのファイル名は正規化
// カテゴリキーから導出され、リネーム時に前回分を上書きする。
func (e *Engine) writeArtifactTemp(key string, records []model.UnifiedRecord) (tmpPath, path string, err error) {
	data, err := export.UnifiedRecordsCSV(records)
	if err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(e.exportDir, 0o755); err != nil {
		return "", "", fmt.Errorf("エクスポートディレクトリの作成に失敗: %w", err)
	}
	path = filepath.Join(e.exportDir, key+".csv")
	tmpPath = path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", "", fmt.Errorf("CSVアーティファクトの書き込みに失敗: %w", err)
	}
	return tmpPath, path, nil
}
