package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/courseman/internal/model"
)

// PostgreSQLエラーコード
const (
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// PostgresChallengeRepo はPostgreSQLを使用したチャレンジリポジトリ。
type PostgresChallengeRepo struct {
	db *sql.DB
}

// NewPostgresChallengeRepo はPostgresChallengeRepoを生成する。
func NewPostgresChallengeRepo(db *sql.DB) *PostgresChallengeRepo {
	return &PostgresChallengeRepo{db: db}
}

const challengeColumns = `id, course_id, description, max_participants, current_participants,
	 recruit_start_at, recruit_end_at, challenge_start_at, challenge_end_at,
	 status, created_at, updated_at`

func scanChallenge(row interface{ Scan(...any) error }) (*model.Challenge, error) {
	c := &model.Challenge{}
	err := row.Scan(
		&c.ID, &c.CourseID, &c.Description, &c.MaxParticipants, &c.CurrentParticipants,
		&c.RecruitStartAt, &c.RecruitEndAt, &c.ChallengeStartAt, &c.ChallengeEndAt,
		&c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FindByID は指定IDのチャレンジを取得する。見つからない場合はnilを返す。
func (r *PostgresChallengeRepo) FindByID(ctx context.Context, id string) (*model.Challenge, error) {
	c, err := scanChallenge(r.db.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("チャレンジの取得に失敗しました: %w", err)
	}
	return c, nil
}

// FindByCourseID は講座IDでチャレンジを検索する。見つからない場合はnilを返す。
func (r *PostgresChallengeRepo) FindByCourseID(ctx context.Context, courseID string) (*model.Challenge, error) {
	c, err := scanChallenge(r.db.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE course_id = $1`,
		courseID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("講座IDによるチャレンジの検索に失敗しました: %w", err)
	}
	return c, nil
}

// List はチャレンジ一覧を募集開始日の降順で返す。
// statusがnilでない場合はその状態のみに絞り込む。
func (r *PostgresChallengeRepo) List(ctx context.Context, status *model.ChallengeStatus) ([]*model.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges`
	args := []any{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY recruit_start_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("チャレンジ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var challenges []*model.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("チャレンジ行の読み取りに失敗しました: %w", err)
		}
		challenges = append(challenges, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("チャレンジ一覧の走査に失敗しました: %w", err)
	}
	return challenges, nil
}

// ListByStatus は指定状態のチャレンジ一覧を返す。定期スイープ用。
func (r *PostgresChallengeRepo) ListByStatus(ctx context.Context, status model.ChallengeStatus) ([]*model.Challenge, error) {
	return r.List(ctx, &status)
}

// Create はチャレンジを作成する。
// 講座に既存のチャレンジがある場合はErrDuplicateChallengeを返す。
func (r *PostgresChallengeRepo) Create(ctx context.Context, c *model.Challenge) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO challenges (id, course_id, description, max_participants, current_participants,
		  recruit_start_at, recruit_end_at, challenge_start_at, challenge_end_at,
		  status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.CourseID, c.Description, c.MaxParticipants, c.CurrentParticipants,
		c.RecruitStartAt, c.RecruitEndAt, c.ChallengeStartAt, c.ChallengeEndAt,
		c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateChallenge
		}
		return fmt.Errorf("チャレンジの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はチャレンジの定員・日程・説明を更新する。
func (r *PostgresChallengeRepo) Update(ctx context.Context, c *model.Challenge) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE challenges
		 SET description = $2, max_participants = $3,
		     recruit_start_at = $4, recruit_end_at = $5,
		     challenge_start_at = $6, challenge_end_at = $7,
		     status = $8, updated_at = NOW()
		 WHERE id = $1`,
		c.ID, c.Description, c.MaxParticipants,
		c.RecruitStartAt, c.RecruitEndAt,
		c.ChallengeStartAt, c.ChallengeEndAt,
		c.Status,
	)
	if err != nil {
		return fmt.Errorf("チャレンジの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return ErrChallengeNotFound
	}
	return nil
}

// UpdateStatus は状態を条件付きで遷移させる。
// 現在の状態がfromの場合のみtoに更新し、更新できたかどうかを返す。
// 講師の中止操作と定期スイープが競合しても、どちらか一方のみが成功する。
func (r *PostgresChallengeRepo) UpdateStatus(ctx context.Context, id string, from, to model.ChallengeStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE challenges SET status = $3, updated_at = NOW()
		 WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return false, fmt.Errorf("チャレンジ状態の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("状態更新結果の取得に失敗しました: %w", err)
	}
	return rowsAffected == 1, nil
}

// Delete は指定IDのチャレンジを削除する。参加者はCASCADE削除される。
func (r *PostgresChallengeRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM challenges WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("チャレンジの削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return ErrChallengeNotFound
	}
	return nil
}

// Join は参加枠を原子的に確保する。
//
// 参加者行のINSERTと参加者数カウンタの条件付きインクリメントを単一の
// トランザクションで実行する。直列化は2つの機構で成立する:
//
//  1. challenge_participants の (challenge_id, user_id) 一意制約。
//     同一ユーザーの同時申込は一方が一意制約違反（23505）となり、
//     ErrDuplicateParticipant として中断される。
//  2. カウンタ更新の条件付きUPDATE（current_participants < max_participants）。
//     UPDATEはチャレンジ行の行ロックを取得するため、同一チャレンジへの
//     同時申込はここで直列化され、残席数を超えた申込はRowsAffected=0と
//     なって ErrCapacityExceeded として中断される。
//
// いずれの中断でもトランザクション全体がロールバックされ、参加者行と
// カウンタの片方だけが書かれた状態は他のトランザクションから観測されない。
func (r *PostgresChallengeRepo) Join(ctx context.Context, challengeID, userID string) (*model.ChallengeParticipant, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	participant := &model.ChallengeParticipant{
		ID:          uuid.NewString(),
		ChallengeID: challengeID,
		UserID:      userID,
		JoinedAt:    time.Now(),
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO challenge_participants (id, challenge_id, user_id, joined_at)
		 VALUES ($1, $2, $3, $4)`,
		participant.ID, participant.ChallengeID, participant.UserID, participant.JoinedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateParticipant
		}
		return nil, fmt.Errorf("参加者の作成に失敗しました: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE challenges
		 SET current_participants = current_participants + 1, updated_at = NOW()
		 WHERE id = $1 AND current_participants < max_participants`,
		challengeID,
	)
	if err != nil {
		// CHECK制約違反もここに含まれる。定員超過として扱う。
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgCheckViolation {
			return nil, ErrCapacityExceeded
		}
		return nil, fmt.Errorf("参加者数の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("参加者数の更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		// 最後の1枠が先行トランザクションに確保された。
		// deferされたRollbackが参加者行のINSERTも取り消す。
		return nil, ErrCapacityExceeded
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return participant, nil
}

// HasParticipant は指定ユーザーが参加済みかどうかを返す。
func (r *PostgresChallengeRepo) HasParticipant(ctx context.Context, challengeID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM challenge_participants
		   WHERE challenge_id = $1 AND user_id = $2
		 )`,
		challengeID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("参加状況の確認に失敗しました: %w", err)
	}
	return exists, nil
}

// ListParticipants は参加者一覧をjoined_atの昇順でユーザー概要付きで返す。
func (r *PostgresChallengeRepo) ListParticipants(ctx context.Context, challengeID string) ([]model.ParticipantWithUser, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id, p.challenge_id, p.user_id, p.joined_at, u.name, u.email
		 FROM challenge_participants p
		 JOIN users u ON p.user_id = u.id
		 WHERE p.challenge_id = $1
		 ORDER BY p.joined_at ASC`,
		challengeID,
	)
	if err != nil {
		return nil, fmt.Errorf("参加者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var participants []model.ParticipantWithUser
	for rows.Next() {
		var p model.ParticipantWithUser
		if err := rows.Scan(&p.ID, &p.ChallengeID, &p.UserID, &p.JoinedAt, &p.UserName, &p.UserEmail); err != nil {
			return nil, fmt.Errorf("参加者行の読み取りに失敗しました: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("参加者一覧の走査に失敗しました: %w", err)
	}
	return participants, nil
}

// isUniqueViolation は一意制約違反（23505）かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation
}

// IsSerializationFailure は直列化失敗（40001）またはデッドロック検出（40P01）
// かどうかを判定する。これらは同一リクエストの有界な再試行の対象となる。
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	code := string(pqErr.Code)
	return code == pgSerializationFailure || code == pgDeadlockDetected
}

// compile-time interface check
var _ ChallengeRepository = (*PostgresChallengeRepo)(nil)
