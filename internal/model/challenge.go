// Package model はドメインモデルを定義する。
package model

import "time"

// Challenge は講座に1対1で紐づく、期間・定員つきのチャレンジを表す。
type Challenge struct {
	ID                  string
	CourseID            string
	Description         string
	MaxParticipants     int
	CurrentParticipants int
	RecruitStartAt      time.Time
	RecruitEndAt        time.Time
	ChallengeStartAt    time.Time
	ChallengeEndAt      time.Time
	Status              ChallengeStatus
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ChallengeStatus はチャレンジのライフサイクル状態を表す。
type ChallengeStatus string

const (
	// ChallengeStatusRecruiting は参加者募集中の状態。作成時の初期状態。
	ChallengeStatusRecruiting ChallengeStatus = "RECRUITING"
	// ChallengeStatusInProgress はチャレンジ進行中の状態。
	ChallengeStatusInProgress ChallengeStatus = "IN_PROGRESS"
	// ChallengeStatusCompleted はチャレンジ終了の状態。終端状態。
	ChallengeStatusCompleted ChallengeStatus = "COMPLETED"
	// ChallengeStatusCancelled は中止された状態。終端状態。
	ChallengeStatusCancelled ChallengeStatus = "CANCELLED"
)

// RemainingSeats は残り参加枠数を返す。
func (c *Challenge) RemainingSeats() int {
	remaining := c.MaxParticipants - c.CurrentParticipants
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ChallengeParticipant はユーザーが確保したチャレンジの参加枠を表す。
// (ChallengeID, UserID) の組は一意であり、1ユーザーにつき1枠のみ。
type ChallengeParticipant struct {
	ID          string
	ChallengeID string
	UserID      string
	JoinedAt    time.Time
}

// ParticipantWithUser は参加者とユーザー概要を結合した読み取り用の構造体。
type ParticipantWithUser struct {
	ChallengeParticipant
	UserName  string
	UserEmail string
}
