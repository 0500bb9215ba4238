package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresEnrollmentRepo はPostgreSQLを使用した受講レコードリポジトリ。
// 受講登録の作成・削除は決済側の協調相手が担うため、存在確認のみ提供する。
type PostgresEnrollmentRepo struct {
	db *sql.DB
}

// NewPostgresEnrollmentRepo はPostgresEnrollmentRepoを生成する。
func NewPostgresEnrollmentRepo(db *sql.DB) *PostgresEnrollmentRepo {
	return &PostgresEnrollmentRepo{db: db}
}

// Exists は(userID, courseID)の受講レコードが存在するかどうかを返す。
func (r *PostgresEnrollmentRepo) Exists(ctx context.Context, userID, courseID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM course_enrollments
		   WHERE user_id = $1 AND course_id = $2
		 )`,
		userID, courseID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("受講状況の確認に失敗しました: %w", err)
	}
	return exists, nil
}

// compile-time interface check
var _ EnrollmentRepository = (*PostgresEnrollmentRepo)(nil)
