package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/courseman/internal/model"
)

// PostgresCartRepo はPostgreSQLを使用したカート項目リポジトリ。
type PostgresCartRepo struct {
	db *sql.DB
}

// NewPostgresCartRepo はPostgresCartRepoを生成する。
func NewPostgresCartRepo(db *sql.DB) *PostgresCartRepo {
	return &PostgresCartRepo{db: db}
}

// Exists は(userID, courseID)のカート項目が存在するかどうかを返す。
func (r *PostgresCartRepo) Exists(ctx context.Context, userID, courseID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM cart_items
		   WHERE user_id = $1 AND course_id = $2
		 )`,
		userID, courseID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("カート項目の確認に失敗しました: %w", err)
	}
	return exists, nil
}

// Create はカート項目を作成する。
// (user_id, course_id)の一意制約とON CONFLICT DO NOTHINGにより、
// 同時に同じ項目を追加しようとしても重複は生じない（冪等）。
func (r *PostgresCartRepo) Create(ctx context.Context, item *model.CartItem) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cart_items (id, user_id, course_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, course_id) DO NOTHING`,
		item.ID, item.UserID, item.CourseID, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("カート項目の作成に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CartRepository = (*PostgresCartRepo)(nil)
