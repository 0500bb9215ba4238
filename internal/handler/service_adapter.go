package handler

import (
	"context"

	"github.com/hitoshi/courseman/internal/challenge"
	"github.com/hitoshi/courseman/internal/model"
)

// ChallengeServiceAdapter は challenge.Service を ChallengeServiceInterface に適合させるアダプタ。
// ドメイン型からhandlerレスポンス型への変換を担う。
type ChallengeServiceAdapter struct {
	svc *challenge.Service
}

// NewChallengeServiceAdapter はChallengeServiceAdapterを生成する。
func NewChallengeServiceAdapter(svc *challenge.Service) *ChallengeServiceAdapter {
	return &ChallengeServiceAdapter{svc: svc}
}

// Join は参加申込の結果をhandlerレスポンス型で返す。
func (a *ChallengeServiceAdapter) Join(ctx context.Context, userID, slug string) (*joinResponse, error) {
	result, err := a.svc.Join(ctx, userID, slug)
	if err != nil {
		return nil, err
	}
	return &joinResponse{
		Enrolled:   result.Enrolled,
		CourseSlug: result.CourseSlug,
		Redirect:   result.Redirect,
		Message:    result.Message,
	}, nil
}

// Create はチャレンジを作成しhandlerレスポンス型で返す。
func (a *ChallengeServiceAdapter) Create(ctx context.Context, userID, courseID string, in challenge.CreateInput) (*challengeResponse, error) {
	ch, err := a.svc.Create(ctx, userID, courseID, in)
	if err != nil {
		return nil, err
	}
	resp := toChallengeResponse(ch)
	return &resp, nil
}

// Update はチャレンジを更新しhandlerレスポンス型で返す。
func (a *ChallengeServiceAdapter) Update(ctx context.Context, userID, courseID string, in challenge.UpdateInput) (*challengeResponse, error) {
	ch, err := a.svc.Update(ctx, userID, courseID, in)
	if err != nil {
		return nil, err
	}
	resp := toChallengeResponse(ch)
	return &resp, nil
}

// Cancel はチャレンジを中止しhandlerレスポンス型で返す。
func (a *ChallengeServiceAdapter) Cancel(ctx context.Context, userID, courseID string) (*challengeResponse, error) {
	ch, err := a.svc.Cancel(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	resp := toChallengeResponse(ch)
	return &resp, nil
}

// Remove はチャレンジを削除する。
func (a *ChallengeServiceAdapter) Remove(ctx context.Context, userID, courseID string) error {
	_, err := a.svc.Remove(ctx, userID, courseID)
	return err
}

// List はチャレンジ一覧をhandlerレスポンス型で返す。
func (a *ChallengeServiceAdapter) List(ctx context.Context, statusFilter string) ([]challengeResponse, error) {
	challenges, err := a.svc.List(ctx, statusFilter)
	if err != nil {
		return nil, err
	}

	results := make([]challengeResponse, len(challenges))
	for i, ch := range challenges {
		results[i] = toChallengeResponse(ch)
	}
	return results, nil
}

// GetBySlug はチャレンジ詳細をhandlerレスポンス型で返す。
func (a *ChallengeServiceAdapter) GetBySlug(ctx context.Context, slug string) (*challengeDetailResponse, error) {
	detail, err := a.svc.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return &challengeDetailResponse{
		challengeResponse: toChallengeResponse(&detail.Challenge),
		CourseSlug:        detail.Course.Slug,
		CourseTitle:       detail.Course.Title,
	}, nil
}

// Participants は参加者一覧をhandlerレスポンス型で返す。
func (a *ChallengeServiceAdapter) Participants(ctx context.Context, slug string) ([]participantResponse, error) {
	participants, err := a.svc.Participants(ctx, slug)
	if err != nil {
		return nil, err
	}

	results := make([]participantResponse, len(participants))
	for i, p := range participants {
		results[i] = participantResponse{
			UserID:   p.UserID,
			UserName: p.UserName,
			JoinedAt: p.JoinedAt,
		}
	}
	return results, nil
}

// toChallengeResponse はmodel.ChallengeからAPIレスポンスに変換する。
func toChallengeResponse(ch *model.Challenge) challengeResponse {
	return challengeResponse{
		ID:                  ch.ID,
		CourseID:            ch.CourseID,
		Description:         ch.Description,
		MaxParticipants:     ch.MaxParticipants,
		CurrentParticipants: ch.CurrentParticipants,
		RemainingSeats:      ch.RemainingSeats(),
		RecruitStartAt:      ch.RecruitStartAt,
		RecruitEndAt:        ch.RecruitEndAt,
		ChallengeStartAt:    ch.ChallengeStartAt,
		ChallengeEndAt:      ch.ChallengeEndAt,
		Status:              string(ch.Status),
		CreatedAt:           ch.CreatedAt,
	}
}

// --- compile-time interface checks ---

var _ ChallengeServiceInterface = (*ChallengeServiceAdapter)(nil)
