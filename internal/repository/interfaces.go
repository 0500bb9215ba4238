// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/courseman/internal/model"
)

// 業務上の制約違反を表すセンチネルエラー。
// インフラ障害（接続断など）と区別するため、リポジトリ実装は
// 制約違反を検出した場合にこれらを返す。
var (
	// ErrDuplicateParticipant は同一ユーザーの重複参加（一意制約違反）を表す。
	ErrDuplicateParticipant = errors.New("participant already exists for this challenge")
	// ErrCapacityExceeded は定員超過により参加トランザクションが中断されたことを表す。
	ErrCapacityExceeded = errors.New("challenge capacity exceeded")
	// ErrDuplicateChallenge は講座に対するチャレンジの重複作成を表す。
	ErrDuplicateChallenge = errors.New("challenge already exists for this course")
	// ErrChallengeNotFound は対象チャレンジが存在しないことを表す。
	ErrChallengeNotFound = errors.New("challenge not found")
)

// ChallengeRepository はチャレンジと参加者データの永続化インターフェース。
type ChallengeRepository interface {
	// FindByID は指定IDのチャレンジを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Challenge, error)

	// FindByCourseID は講座IDでチャレンジを検索する。見つからない場合はnilを返す。
	FindByCourseID(ctx context.Context, courseID string) (*model.Challenge, error)

	// List はチャレンジ一覧を募集開始日の降順で返す。
	// statusがnilでない場合はその状態のみに絞り込む。
	List(ctx context.Context, status *model.ChallengeStatus) ([]*model.Challenge, error)

	// ListByStatus は指定状態のチャレンジ一覧を返す。定期スイープ用。
	ListByStatus(ctx context.Context, status model.ChallengeStatus) ([]*model.Challenge, error)

	// Create はチャレンジを作成する。
	// 講座に既存のチャレンジがある場合はErrDuplicateChallengeを返す。
	Create(ctx context.Context, c *model.Challenge) error

	// Update はチャレンジの定員・日程・説明を更新する。
	Update(ctx context.Context, c *model.Challenge) error

	// UpdateStatus は状態を条件付きで遷移させる。
	// 現在の状態がfromの場合のみtoに更新し、更新できたかどうかを返す。
	UpdateStatus(ctx context.Context, id string, from, to model.ChallengeStatus) (bool, error)

	// Delete は指定IDのチャレンジを削除する。参加者はCASCADE削除される。
	Delete(ctx context.Context, id string) error

	// Join は参加枠を原子的に確保する。
	// 参加者行のINSERTと参加者数カウンタの条件付きインクリメントを
	// 単一トランザクションで実行し、いずれかが失敗した場合は全体を
	// ロールバックする。重複参加はErrDuplicateParticipant、
	// 定員超過はErrCapacityExceededを返す。
	Join(ctx context.Context, challengeID, userID string) (*model.ChallengeParticipant, error)

	// HasParticipant は指定ユーザーが参加済みかどうかを返す。
	HasParticipant(ctx context.Context, challengeID, userID string) (bool, error)

	// ListParticipants は参加者一覧をjoined_atの昇順でユーザー概要付きで返す。
	ListParticipants(ctx context.Context, challengeID string) ([]model.ParticipantWithUser, error)
}

// CourseRepository は講座カタログへの読み取り専用インターフェース。
// 講座CRUD自体は外部の協調相手が担う。
type CourseRepository interface {
	// FindByID は指定IDの講座を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Course, error)

	// FindBySlug はスラッグで講座を検索する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.Course, error)

	// FindFirstLecture は最初のセクションの最初のレクチャーを返す。
	// （セクション順、レクチャー順の昇順でそれぞれ1件）
	// 講座にレクチャーが存在しない場合はnilを返す。
	FindFirstLecture(ctx context.Context, courseID string) (*model.Lecture, error)
}

// EnrollmentRepository は講座アクセス権の存在確認インターフェース。
type EnrollmentRepository interface {
	// Exists は(userID, courseID)の受講レコードが存在するかどうかを返す。
	Exists(ctx context.Context, userID, courseID string) (bool, error)
}

// CartRepository はカート項目の永続化インターフェース。
type CartRepository interface {
	// Exists は(userID, courseID)のカート項目が存在するかどうかを返す。
	Exists(ctx context.Context, userID, courseID string) (bool, error)

	// Create はカート項目を作成する。同一(userID, courseID)の項目が
	// 既に存在する場合は何も作成せず成功を返す（冪等）。
	Create(ctx context.Context, item *model.CartItem) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
}
