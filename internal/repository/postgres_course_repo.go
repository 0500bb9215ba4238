package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/courseman/internal/model"
)

// PostgresCourseRepo はPostgreSQLを使用した講座リポジトリ。
// 講座カタログは外部の協調相手が管理するため、読み取りのみ提供する。
type PostgresCourseRepo struct {
	db *sql.DB
}

// NewPostgresCourseRepo はPostgresCourseRepoを生成する。
func NewPostgresCourseRepo(db *sql.DB) *PostgresCourseRepo {
	return &PostgresCourseRepo{db: db}
}

// FindByID は指定IDの講座を取得する。見つからない場合はnilを返す。
func (r *PostgresCourseRepo) FindByID(ctx context.Context, id string) (*model.Course, error) {
	course := &model.Course{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, slug, title, price, instructor_id, created_at, updated_at
		 FROM courses WHERE id = $1`,
		id,
	).Scan(&course.ID, &course.Slug, &course.Title, &course.Price, &course.InstructorID, &course.CreatedAt, &course.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("講座の取得に失敗しました: %w", err)
	}

	return course, nil
}

// FindBySlug はスラッグで講座を検索する。見つからない場合はnilを返す。
func (r *PostgresCourseRepo) FindBySlug(ctx context.Context, slug string) (*model.Course, error) {
	course := &model.Course{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, slug, title, price, instructor_id, created_at, updated_at
		 FROM courses WHERE slug = $1`,
		slug,
	).Scan(&course.ID, &course.Slug, &course.Title, &course.Price, &course.InstructorID, &course.CreatedAt, &course.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("スラッグによる講座の検索に失敗しました: %w", err)
	}

	return course, nil
}

// FindFirstLecture は最初のセクションの最初のレクチャーを返す。
// セクション、レクチャーをそれぞれ順序の昇順で1件ずつに絞る。
// 最初のセクションにレクチャーがない場合は、後続のセクションへ
// フォールバックせずnilを返す（呼び出し側は講座トップへ誘導する）。
func (r *PostgresCourseRepo) FindFirstLecture(ctx context.Context, courseID string) (*model.Lecture, error) {
	lecture := &model.Lecture{}
	err := r.db.QueryRowContext(ctx,
		`SELECT l.id, l.section_id, l.title, l."order"
		 FROM lectures l
		 WHERE l.section_id = (
		 	SELECT id FROM sections
		 	WHERE course_id = $1
		 	ORDER BY "order" ASC
		 	LIMIT 1
		 )
		 ORDER BY l."order" ASC
		 LIMIT 1`,
		courseID,
	).Scan(&lecture.ID, &lecture.SectionID, &lecture.Title, &lecture.Order)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("最初のレクチャーの取得に失敗しました: %w", err)
	}

	return lecture, nil
}

// compile-time interface check
var _ CourseRepository = (*PostgresCourseRepo)(nil)
