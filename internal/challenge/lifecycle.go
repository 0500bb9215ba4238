package challenge

import (
	"time"

	"github.com/hitoshi/courseman/internal/model"
)

// CanTransition は状態遷移 from → to が合法かどうかを返す。
// 合法な遷移:
//
//	RECRUITING  → IN_PROGRESS, CANCELLED
//	IN_PROGRESS → COMPLETED
//
// COMPLETED と CANCELLED は終端状態であり、そこからの遷移は存在しない。
func CanTransition(from, to model.ChallengeStatus) bool {
	switch from {
	case model.ChallengeStatusRecruiting:
		return to == model.ChallengeStatusInProgress || to == model.ChallengeStatusCancelled
	case model.ChallengeStatusInProgress:
		return to == model.ChallengeStatusCompleted
	default:
		return false
	}
}

// EditAllowed は定員・日程フィールドの編集が許可される状態かどうかを返す。
// 募集中のみ編集可能。
func EditAllowed(status model.ChallengeStatus) bool {
	return status == model.ChallengeStatusRecruiting
}

// ScheduledStatus は時刻nowにおいてチャレンジがあるべき状態を返す。
// 定期スイープが現在の状態と比較して遷移を適用するために使用する。
// 遷移が不要な場合は現在の状態とfalseを返す。
func ScheduledStatus(c *model.Challenge, now time.Time) (model.ChallengeStatus, bool) {
	switch c.Status {
	case model.ChallengeStatusRecruiting:
		if !now.Before(c.ChallengeStartAt) {
			return model.ChallengeStatusInProgress, true
		}
	case model.ChallengeStatusInProgress:
		if !now.Before(c.ChallengeEndAt) {
			return model.ChallengeStatusCompleted, true
		}
	}
	return c.Status, false
}

// ValidateSchedule は日程の前後関係を検証する。
// recruitStart < recruitEnd < challengeStart < challengeEnd を要求する。
func ValidateSchedule(recruitStart, recruitEnd, challengeStart, challengeEnd time.Time) *model.APIError {
	if !recruitEnd.After(recruitStart) {
		return model.NewInvalidScheduleError("募集終了日は募集開始日より後である必要があります")
	}
	if !challengeStart.After(recruitEnd) {
		return model.NewInvalidScheduleError("チャレンジ開始日は募集終了日より後である必要があります")
	}
	if !challengeEnd.After(challengeStart) {
		return model.NewInvalidScheduleError("チャレンジ終了日はチャレンジ開始日より後である必要があります")
	}
	return nil
}
