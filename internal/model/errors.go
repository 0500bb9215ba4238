// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, challenge, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeChallengeNotFound  = "CHALLENGE_NOT_FOUND"
	ErrCodeCourseNotFound     = "COURSE_NOT_FOUND"
	ErrCodeNotInstructor      = "NOT_INSTRUCTOR"
	ErrCodeChallengeExists    = "CHALLENGE_ALREADY_EXISTS"
	ErrCodeInvalidSchedule    = "INVALID_SCHEDULE"
	ErrCodeInvalidCapacity    = "INVALID_CAPACITY"
	ErrCodeNotRecruiting      = "NOT_RECRUITING"
	ErrCodeOutsideWindow      = "OUTSIDE_RECRUIT_WINDOW"
	ErrCodeCapacityReached    = "CAPACITY_REACHED"
	ErrCodeAlreadyJoined      = "ALREADY_JOINED"
	ErrCodeEditLocked         = "CHALLENGE_EDIT_LOCKED"
	ErrCodeInvalidTransition  = "INVALID_STATUS_TRANSITION"
	ErrCodeInvalidStatusParam = "INVALID_STATUS_FILTER"
)

// NewChallengeNotFoundError はチャレンジ未検出エラーを生成する。
func NewChallengeNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeChallengeNotFound,
		Message:  "チャレンジが見つかりません。",
		Category: "challenge",
		Action:   "チャレンジのスラッグを確認してください。",
	}
}

// NewCourseNotFoundError は講座未検出エラーを生成する。
func NewCourseNotFoundError(courseID string) *APIError {
	return &APIError{
		Code:     ErrCodeCourseNotFound,
		Message:  fmt.Sprintf("講座が見つかりません: %s", courseID),
		Category: "challenge",
		Action:   "講座IDを確認してください。",
	}
}

// NewNotInstructorError は講師権限エラーを生成する。
func NewNotInstructorError() *APIError {
	return &APIError{
		Code:     ErrCodeNotInstructor,
		Message:  "この講座の講師のみが操作できます。",
		Category: "auth",
		Action:   "講師アカウントでログインしてください。",
	}
}

// NewChallengeExistsError はチャレンジ重複作成エラーを生成する。
func NewChallengeExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeChallengeExists,
		Message:  "この講座にはすでにチャレンジが存在します。",
		Category: "challenge",
		Action:   "既存のチャレンジを編集するか、削除してから作成してください。",
	}
}

// NewInvalidScheduleError は日程の前後関係が不正な場合のエラーを生成する。
func NewInvalidScheduleError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSchedule,
		Message:  fmt.Sprintf("チャレンジの日程が不正です: %s", reason),
		Category: "validation",
		Action:   "募集開始 < 募集終了 < チャレンジ開始 < チャレンジ終了 の順になるよう指定してください。",
	}
}

// NewInvalidCapacityError は定員が不正な場合のエラーを生成する。
func NewInvalidCapacityError(max int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCapacity,
		Message:  fmt.Sprintf("募集定員が不正です: %d", max),
		Category: "validation",
		Action:   "募集定員は1以上1000以下で指定してください。",
	}
}

// NewNotRecruitingError は募集中でないチャレンジへの参加申込エラーを生成する。
func NewNotRecruitingError() *APIError {
	return &APIError{
		Code:     ErrCodeNotRecruiting,
		Message:  "現在募集中のチャレンジではありません。",
		Category: "challenge",
		Action:   "募集中のチャレンジを選択してください。",
	}
}

// NewOutsideWindowError は募集期間外の参加申込エラーを生成する。
func NewOutsideWindowError() *APIError {
	return &APIError{
		Code:     ErrCodeOutsideWindow,
		Message:  "募集期間ではありません。",
		Category: "challenge",
		Action:   "募集期間内に再度お申し込みください。",
	}
}

// NewCapacityReachedError は定員到達エラーを生成する。
func NewCapacityReachedError() *APIError {
	return &APIError{
		Code:     ErrCodeCapacityReached,
		Message:  "募集定員に達しました。",
		Category: "challenge",
		Action:   "別のチャレンジをご検討ください。",
	}
}

// NewAlreadyJoinedError は重複参加申込エラーを生成する。
func NewAlreadyJoinedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyJoined,
		Message:  "すでに参加申込済みのチャレンジです。",
		Category: "challenge",
		Action:   "参加中のチャレンジ一覧をご確認ください。",
	}
}

// NewEditLockedError は募集中以外のチャレンジ編集エラーを生成する。
func NewEditLockedError(status ChallengeStatus) *APIError {
	return &APIError{
		Code:     ErrCodeEditLocked,
		Message:  fmt.Sprintf("募集中以外のチャレンジは編集できません（現在: %s）。", status),
		Category: "challenge",
		Action:   "定員・日程の変更は募集中のチャレンジに対してのみ実行できます。",
	}
}

// NewInvalidTransitionError は不正な状態遷移エラーを生成する。
func NewInvalidTransitionError(from, to ChallengeStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTransition,
		Message:  fmt.Sprintf("状態遷移が不正です: %s → %s", from, to),
		Category: "challenge",
		Action:   "チャレンジの現在の状態を確認してください。",
	}
}

// NewInvalidStatusFilterError は一覧取得の状態フィルタが不正な場合のエラーを生成する。
func NewInvalidStatusFilterError(filter string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatusParam,
		Message:  fmt.Sprintf("無効な状態フィルタです: %s", filter),
		Category: "validation",
		Action:   "status には RECRUITING、IN_PROGRESS、COMPLETED、CANCELLED のいずれかを指定してください。",
	}
}
