package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kfujimura/contactdesk/internal/model"
)

// PostgresMergeRepo はPostgreSQLを使用したマージ結果リポジトリ。
type PostgresMergeRepo struct {
	db *sql.DB
}

// NewPostgresMergeRepo はPostgresMergeRepoを生成する。
func NewPostgresMergeRepo(db *sql.DB) *PostgresMergeRepo {
	return &PostgresMergeRepo{db: db}
}

// Replace はカテゴリキー配下のマージ結果全体を単一トランザクションで置き換える。
// 既存セットの削除と新セットの挿入が同一トランザクションで行われるため、
// 失敗時に部分的な書き込みは残らない。
func (r *PostgresMergeRepo) Replace(ctx context.Context, result *model.MergeResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 既存レコードはON DELETE CASCADEで連鎖削除される
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM merge_results WHERE category_key = $1`,
		result.CategoryKey,
	); err != nil {
		return fmt.Errorf("failed to delete previous merge result: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO merge_results (category_key, category_name, csv_path, total_records, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		result.CategoryKey, result.CategoryName, result.CSVPath,
		result.TotalRecords, result.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert merge result: %w", err)
	}

	for i, rec := range result.Records {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO unified_records
			 (id, category_key, name, email, category_name, presence_a, presence_b, status, position, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			rec.ID, result.CategoryKey, rec.Name, rec.Email, rec.CategoryName,
			string(rec.PresenceA), string(rec.PresenceB), string(rec.Status),
			i, rec.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert unified record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit merge result: %w", err)
	}
	return nil
}

// FindByCategoryKey は正規化カテゴリキーでマージ結果を取得する。見つからない場合はnilを返す。
func (r *PostgresMergeRepo) FindByCategoryKey(ctx context.Context, key string) (*model.MergeResult, error) {
	result := &model.MergeResult{CategoryKey: key}
	err := r.db.QueryRowContext(ctx,
		`SELECT category_name, csv_path, total_records, created_at
		 FROM merge_results
		 WHERE category_key = $1`,
		key,
	).Scan(&result.CategoryName, &result.CSVPath, &result.TotalRecords, &result.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find merge result: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, email, category_name, presence_a, presence_b, status, created_at
		 FROM unified_records
		 WHERE category_key = $1
		 ORDER BY position`,
		key,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list unified records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec model.UnifiedRecord
		var presenceA, presenceB, status string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Email, &rec.CategoryName,
			&presenceA, &presenceB, &status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan unified record: %w", err)
		}
		rec.PresenceA = model.SourceAPresence(presenceA)
		rec.PresenceB = model.SourceBPresence(presenceB)
		rec.Status = model.MatchStatus(status)
		result.Records = append(result.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate unified records: %w", err)
	}

	return result, nil
}

// compile-time interface check
var _ MergeResultRepository = (*PostgresMergeRepo)(nil)
