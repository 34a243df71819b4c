// Package cleanup は期限切れデータの自動削除ジョブを提供する。
// 有効期限を超過したセッション行と、保持期間を超過したCSVアーティファクトを
// 定期バッチで削除する。セッション行の削除はトークンの破棄を兼ねる。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は期限切れセッションと古いCSVアーティファクトの自動削除ジョブ。
// 定期実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	db        Executor
	logger    *slog.Logger
	ExportDir string        // CSVアーティファクトの格納ディレクトリ
	ExportTTL time.Duration // CSVアーティファクトの保持期間
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger, exportDir string, exportTTL time.Duration) *CleanupJob {
	return &CleanupJob{
		db:        db,
		logger:    logger,
		ExportDir: exportDir,
		ExportTTL: exportTTL,
	}
}

// Run は期限切れセッションとCSVアーティファクトを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
// CSVの削除失敗はログに留め、セッション削除の結果のみをエラーとして返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	query := `DELETE FROM sessions WHERE expires_at < now()`
	result, err := j.db.ExecContext(ctx, query)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	removedFiles := j.removeStaleArtifacts()

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_sessions", deletedCount),
		slog.Int("removed_csv_files", removedFiles),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// removeStaleArtifacts は最終更新からExportTTLを超過したCSVファイルを削除し、
// 削除した件数を返す。ディレクトリが存在しない場合は何もしない。
// 保存済みマージ結果が参照するファイルを消しても、エクスポートは
// DB上のレコードからCSVを再生成するため結果は失われない。
func (j *CleanupJob) removeStaleArtifacts() int {
	entries, err := os.ReadDir(j.ExportDir)
	if err != nil {
		if !os.IsNotExist(err) {
			j.logger.Warn("エクスポートディレクトリの読み取りに失敗しました",
				slog.String("dir", j.ExportDir),
				slog.String("error", err.Error()),
			)
		}
		return 0
	}

	cutoff := time.Now().Add(-j.ExportTTL)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.ExportDir, entry.Name())
		if err := os.Remove(path); err != nil {
			j.logger.Warn("CSVアーティファクトの削除に失敗しました",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}
	return removed
}
