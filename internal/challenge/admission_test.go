package challenge

import (
	"testing"
	"time"

	"github.com/hitoshi/courseman/internal/model"
)

// recruitingChallenge は募集期間内の募集中チャレンジを生成する。
func recruitingChallenge(now time.Time) *model.Challenge {
	return &model.Challenge{
		ID:                  "challenge-1",
		CourseID:            "course-1",
		MaxParticipants:     10,
		CurrentParticipants: 3,
		RecruitStartAt:      now.Add(-24 * time.Hour),
		RecruitEndAt:        now.Add(24 * time.Hour),
		ChallengeStartAt:    now.Add(48 * time.Hour),
		ChallengeEndAt:      now.Add(30 * 24 * time.Hour),
		Status:              model.ChallengeStatusRecruiting,
	}
}

func TestCheckAdmission_Admit(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	ch := recruitingChallenge(now)

	got := CheckAdmission(ch, now, false)
	if got != AdmissionAdmit {
		t.Errorf("CheckAdmission = %v, want %v", got, AdmissionAdmit)
	}
}

func TestCheckAdmission_NotRecruiting(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	for _, status := range []model.ChallengeStatus{
		model.ChallengeStatusInProgress,
		model.ChallengeStatusCompleted,
		model.ChallengeStatusCancelled,
	} {
		t.Run(string(status), func(t *testing.T) {
			ch := recruitingChallenge(now)
			ch.Status = status

			got := CheckAdmission(ch, now, false)
			if got != AdmissionRejectNotRecruiting {
				t.Errorf("CheckAdmission = %v, want %v", got, AdmissionRejectNotRecruiting)
			}
		})
	}
}

func TestCheckAdmission_OutsideWindow(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		mod  func(ch *model.Challenge)
	}{
		{
			name: "募集開始前",
			mod: func(ch *model.Challenge) {
				ch.RecruitStartAt = now.Add(time.Hour)
				ch.RecruitEndAt = now.Add(48 * time.Hour)
			},
		},
		{
			name: "募集終了後",
			mod: func(ch *model.Challenge) {
				ch.RecruitStartAt = now.Add(-48 * time.Hour)
				ch.RecruitEndAt = now.Add(-time.Hour)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := recruitingChallenge(now)
			tt.mod(ch)

			got := CheckAdmission(ch, now, false)
			if got != AdmissionRejectOutsideWindow {
				t.Errorf("CheckAdmission = %v, want %v", got, AdmissionRejectOutsideWindow)
			}
		})
	}
}

func TestCheckAdmission_WindowBoundariesAreInclusive(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	// ちょうど募集開始時刻
	ch := recruitingChallenge(now)
	ch.RecruitStartAt = now
	if got := CheckAdmission(ch, now, false); got != AdmissionAdmit {
		t.Errorf("at recruit start: CheckAdmission = %v, want %v", got, AdmissionAdmit)
	}

	// ちょうど募集終了時刻
	ch = recruitingChallenge(now)
	ch.RecruitEndAt = now
	if got := CheckAdmission(ch, now, false); got != AdmissionAdmit {
		t.Errorf("at recruit end: CheckAdmission = %v, want %v", got, AdmissionAdmit)
	}
}

func TestCheckAdmission_CapacityReached(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	ch := recruitingChallenge(now)
	ch.CurrentParticipants = ch.MaxParticipants

	got := CheckAdmission(ch, now, false)
	if got != AdmissionRejectCapacityReached {
		t.Errorf("CheckAdmission = %v, want %v", got, AdmissionRejectCapacityReached)
	}
}

func TestCheckAdmission_AlreadyJoined(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	ch := recruitingChallenge(now)

	got := CheckAdmission(ch, now, true)
	if got != AdmissionRejectAlreadyJoined {
		t.Errorf("CheckAdmission = %v, want %v", got, AdmissionRejectAlreadyJoined)
	}
}

// 判定順序は 状態 → 募集期間 → 定員 → 申込済み で固定。
func TestCheckAdmission_RejectionOrder(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	// 全条件を同時に満たさないチャレンジ: 状態拒否が最優先
	ch := recruitingChallenge(now)
	ch.Status = model.ChallengeStatusCancelled
	ch.RecruitEndAt = now.Add(-time.Hour)
	ch.CurrentParticipants = ch.MaxParticipants
	if got := CheckAdmission(ch, now, true); got != AdmissionRejectNotRecruiting {
		t.Errorf("CheckAdmission = %v, want %v", got, AdmissionRejectNotRecruiting)
	}

	// 状態は募集中: 次は募集期間
	ch = recruitingChallenge(now)
	ch.RecruitEndAt = now.Add(-time.Hour)
	ch.CurrentParticipants = ch.MaxParticipants
	if got := CheckAdmission(ch, now, true); got != AdmissionRejectOutsideWindow {
		t.Errorf("CheckAdmission = %v, want %v", got, AdmissionRejectOutsideWindow)
	}

	// 期間内: 次は定員
	ch = recruitingChallenge(now)
	ch.CurrentParticipants = ch.MaxParticipants
	if got := CheckAdmission(ch, now, true); got != AdmissionRejectCapacityReached {
		t.Errorf("CheckAdmission = %v, want %v", got, AdmissionRejectCapacityReached)
	}
}

func TestAdmissionDecision_String(t *testing.T) {
	tests := []struct {
		decision AdmissionDecision
		want     string
	}{
		{AdmissionAdmit, "admit"},
		{AdmissionRejectNotRecruiting, "not_recruiting"},
		{AdmissionRejectOutsideWindow, "outside_window"},
		{AdmissionRejectCapacityReached, "capacity_reached"},
		{AdmissionRejectAlreadyJoined, "already_joined"},
	}

	for _, tt := range tests {
		if got := tt.decision.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestAdmissionDecision_Err(t *testing.T) {
	if err := AdmissionAdmit.Err(); err != nil {
		t.Errorf("AdmissionAdmit.Err() = %v, want nil", err)
	}

	tests := []struct {
		decision AdmissionDecision
		wantCode string
	}{
		{AdmissionRejectNotRecruiting, model.ErrCodeNotRecruiting},
		{AdmissionRejectOutsideWindow, model.ErrCodeOutsideWindow},
		{AdmissionRejectCapacityReached, model.ErrCodeCapacityReached},
		{AdmissionRejectAlreadyJoined, model.ErrCodeAlreadyJoined},
	}

	for _, tt := range tests {
		err := tt.decision.Err()
		if err == nil {
			t.Errorf("%v.Err() = nil, want APIError", tt.decision)
			continue
		}
		if err.Code != tt.wantCode {
			t.Errorf("%v.Err().Code = %q, want %q", tt.decision, err.Code, tt.wantCode)
		}
	}
}
