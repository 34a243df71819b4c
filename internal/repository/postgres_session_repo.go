package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kfujimura/contactdesk/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, access_token, status, display_name, mail, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.ID, session.AccessToken, string(session.Status),
		session.DisplayName, session.Mail, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session := &model.Session{}
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, access_token, status, display_name, mail, expires_at, created_at
		 FROM sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&session.ID, &session.AccessToken, &status,
		&session.DisplayName, &session.Mail, &session.ExpiresAt, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	session.Status = model.SessionStatus(status)
	return session, nil
}

// MarkAuthenticated はセッションを認証済みに更新し、ユーザー情報をキャッシュする。
func (r *PostgresSessionRepo) MarkAuthenticated(ctx context.Context, id string, ident model.Identity) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions
		 SET status = $2, display_name = $3, mail = $4
		 WHERE id = $1`,
		id, string(model.StatusAuthenticated), ident.DisplayName, ident.Mail,
	)
	if err != nil {
		return fmt.Errorf("failed to mark session authenticated: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
