// Package challenge はチャレンジ参加申込のドメインロジックを提供する。
package challenge

import (
	"time"

	"github.com/hitoshi/courseman/internal/model"
)

// AdmissionDecision は参加申込の事前判定結果を表す。
type AdmissionDecision int

const (
	// AdmissionAdmit は参加申込をトランザクション段階へ進めてよいことを示す。
	AdmissionAdmit AdmissionDecision = iota
	// AdmissionRejectNotRecruiting は募集中でないための拒否。
	AdmissionRejectNotRecruiting
	// AdmissionRejectOutsideWindow は募集期間外のための拒否。
	AdmissionRejectOutsideWindow
	// AdmissionRejectCapacityReached は定員到達のための拒否。
	AdmissionRejectCapacityReached
	// AdmissionRejectAlreadyJoined は申込済みのための拒否。
	AdmissionRejectAlreadyJoined
)

// String はメトリクスのラベルに使う判定名を返す。
func (d AdmissionDecision) String() string {
	switch d {
	case AdmissionAdmit:
		return "admit"
	case AdmissionRejectNotRecruiting:
		return "not_recruiting"
	case AdmissionRejectOutsideWindow:
		return "outside_window"
	case AdmissionRejectCapacityReached:
		return "capacity_reached"
	case AdmissionRejectAlreadyJoined:
		return "already_joined"
	default:
		return "unknown"
	}
}

// CheckAdmission はチャレンジのスナップショットと現在時刻から参加申込の可否を判定する。
// 副作用を持たない純粋な判定であり、判定順序は固定:
// 状態 → 募集期間 → 定員 → 申込済み。
// 定員判定はスナップショット時点の助言的なものであり、最終的な定員の保証は
// 参加トランザクション側が行う。
func CheckAdmission(c *model.Challenge, now time.Time, alreadyJoined bool) AdmissionDecision {
	if c.Status != model.ChallengeStatusRecruiting {
		return AdmissionRejectNotRecruiting
	}
	if now.Before(c.RecruitStartAt) || now.After(c.RecruitEndAt) {
		return AdmissionRejectOutsideWindow
	}
	if c.CurrentParticipants >= c.MaxParticipants {
		return AdmissionRejectCapacityReached
	}
	if alreadyJoined {
		return AdmissionRejectAlreadyJoined
	}
	return AdmissionAdmit
}

// Err は拒否判定に対応するAPIErrorを返す。AdmissionAdmitの場合はnilを返す。
func (d AdmissionDecision) Err() *model.APIError {
	switch d {
	case AdmissionRejectNotRecruiting:
		return model.NewNotRecruitingError()
	case AdmissionRejectOutsideWindow:
		return model.NewOutsideWindowError()
	case AdmissionRejectCapacityReached:
		return model.NewCapacityReachedError()
	case AdmissionRejectAlreadyJoined:
		return model.NewAlreadyJoinedError()
	default:
		return nil
	}
}
