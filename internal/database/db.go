package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Open はセッション・マージ結果・公開履歴を保持するPostgreSQLへの
// 接続プールを開く。sql.Openはこの時点では接続しないため、起動時の
// 死活確認は呼び出し側がdb.Ping()で行う。
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return db, nil
}
