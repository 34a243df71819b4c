package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kfujimura/contactdesk/internal/model"
)

// PostgresPublishRepo はPostgreSQLを使用した公開履歴リポジトリ。
type PostgresPublishRepo struct {
	db *sql.DB
}

// NewPostgresPublishRepo はPostgresPublishRepoを生成する。
func NewPostgresPublishRepo(db *sql.DB) *PostgresPublishRepo {
	return &PostgresPublishRepo{db: db}
}

// Create は公開履歴を作成する。
func (r *PostgresPublishRepo) Create(ctx context.Context, receipt *model.PublishReceipt) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO publish_receipts (id, category_name, contact_count, created_at)
		 VALUES ($1, $2, $3, $4)`,
		receipt.ID, receipt.CategoryName, receipt.ContactCount, receipt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create publish receipt: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PublishReceiptRepository = (*PostgresPublishRepo)(nil)
