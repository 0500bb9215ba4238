package challenge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/courseman/internal/model"
	"github.com/hitoshi/courseman/internal/repository"
)

// 定員の許容範囲
const (
	minCapacity = 1
	maxCapacity = 1000
)

// joinMaxAttempts は直列化失敗時の参加トランザクション再試行回数の上限。
// 業務エラー（重複参加・定員超過）は再試行しない。
const joinMaxAttempts = 3

// Sanitizer はチャレンジ説明文のHTMLサニタイズインターフェース。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// MetricsRecorder は参加申込メトリクスの記録インターフェース。
type MetricsRecorder interface {
	// RecordJoinResult は参加申込の結果（admit/各拒否理由/diverted_to_cart等）を記録する。
	RecordJoinResult(result string)
	// RecordJoinConflictRetry は直列化失敗による再試行を記録する。
	RecordJoinConflictRetry()
	// RecordJoinLatency は参加申込処理のレイテンシを記録する。
	RecordJoinLatency(d time.Duration)
	// RecordLifecycleTransition はチャレンジの状態遷移を記録する。
	RecordLifecycleTransition(from, to string)
}

// JoinResult は参加申込の結果を表す。
type JoinResult struct {
	Enrolled   bool
	CourseSlug string
	Redirect   string
	Message    string
}

// ChallengeWithCourse はチャレンジと講座概要を結合した読み取り用の構造体。
type ChallengeWithCourse struct {
	Challenge model.Challenge
	Course    model.Course
}

// Service はチャレンジ管理のサービス層。
// 参加申込のルーティング、チャレンジCRUD、状態遷移のビジネスロジックを提供する。
type Service struct {
	challengeRepo  repository.ChallengeRepository
	courseRepo     repository.CourseRepository
	enrollmentRepo repository.EnrollmentRepository
	cartRepo       repository.CartRepository
	sanitizer      Sanitizer
	metrics        MetricsRecorder
	now            func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// sanitizerとmetricsはnilでもよい（サニタイズ・計測をスキップする）。
func NewService(
	challengeRepo repository.ChallengeRepository,
	courseRepo repository.CourseRepository,
	enrollmentRepo repository.EnrollmentRepository,
	cartRepo repository.CartRepository,
	sanitizer Sanitizer,
	metrics MetricsRecorder,
) *Service {
	return &Service{
		challengeRepo:  challengeRepo,
		courseRepo:     courseRepo,
		enrollmentRepo: enrollmentRepo,
		cartRepo:       cartRepo,
		sanitizer:      sanitizer,
		metrics:        metrics,
		now:            time.Now,
	}
}

// Join はスラッグで指定されたチャレンジへの参加を申し込む。
//
// 事前判定（助言的）で可否を確認した後、受講済みまたは無料講座の場合は
// 参加トランザクションを実行して参加枠を確保し、そうでない場合は講座を
// カートに追加して決済へ誘導する。カート経路では参加枠もカウンタも
// 変更しない。
//
// 事前判定はスナップショットに基づくため、確定的な定員・重複の保証は
// リポジトリのJoinトランザクションが行い、そこで検出された競合は
// 対応する業務エラーとして呼び出し元に返す。
func (s *Service) Join(ctx context.Context, userID, slug string) (*JoinResult, error) {
	start := s.now()

	course, err := s.courseRepo.FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("講座の取得に失敗しました: %w", err)
	}
	if course == nil {
		return nil, model.NewChallengeNotFoundError()
	}

	ch, err := s.challengeRepo.FindByCourseID(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("チャレンジの取得に失敗しました: %w", err)
	}
	if ch == nil {
		return nil, model.NewChallengeNotFoundError()
	}

	alreadyJoined, err := s.challengeRepo.HasParticipant(ctx, ch.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("参加状況の確認に失敗しました: %w", err)
	}

	decision := CheckAdmission(ch, s.now(), alreadyJoined)
	if decision != AdmissionAdmit {
		s.recordJoinResult(decision.String())
		return nil, decision.Err()
	}

	enrolled, err := s.enrollmentRepo.Exists(ctx, userID, course.ID)
	if err != nil {
		return nil, fmt.Errorf("受講状況の確認に失敗しました: %w", err)
	}

	// 講座アクセス権がない有料講座はカートへ誘導する
	if !enrolled && !course.IsFree() {
		if err := s.divertToCart(ctx, userID, course.ID); err != nil {
			return nil, err
		}
		s.recordJoinResult("diverted_to_cart")
		s.recordJoinLatency(s.now().Sub(start))

		slog.Info("チャレンジ申込をカートへ誘導しました",
			slog.String("user_id", userID),
			slog.String("course_id", course.ID),
			slog.String("challenge_id", ch.ID),
		)

		return &JoinResult{
			Enrolled:   false,
			CourseSlug: course.Slug,
			Redirect:   "/carts",
			Message:    "カートに追加しました。決済後にチャレンジに参加してください！",
		}, nil
	}

	if _, err := s.joinWithRetry(ctx, ch.ID, userID); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateParticipant):
			s.recordJoinResult("already_joined")
			return nil, model.NewAlreadyJoinedError()
		case errors.Is(err, repository.ErrCapacityExceeded):
			s.recordJoinResult("capacity_reached")
			return nil, model.NewCapacityReachedError()
		default:
			return nil, fmt.Errorf("参加トランザクションに失敗しました: %w", err)
		}
	}
	s.recordJoinResult("joined")
	s.recordJoinLatency(s.now().Sub(start))

	slog.Info("チャレンジへの参加が完了しました",
		slog.String("user_id", userID),
		slog.String("challenge_id", ch.ID),
	)

	return &JoinResult{
		Enrolled:   true,
		CourseSlug: course.Slug,
		Redirect:   s.resolveRedirect(ctx, course),
		Message:    "チャレンジへの参加申込が完了しました！",
	}, nil
}

// joinWithRetry は参加トランザクションを実行する。
// 直列化失敗（40001/40P01）の場合のみ上限回数まで再試行する。
// 業務エラーは再試行しても結果が変わらないため即座に返す。
func (s *Service) joinWithRetry(ctx context.Context, challengeID, userID string) (*model.ChallengeParticipant, error) {
	var lastErr error
	for attempt := 0; attempt < joinMaxAttempts; attempt++ {
		participant, err := s.challengeRepo.Join(ctx, challengeID, userID)
		if err == nil {
			return participant, nil
		}
		if !repository.IsSerializationFailure(err) {
			return nil, err
		}
		lastErr = err
		if s.metrics != nil {
			s.metrics.RecordJoinConflictRetry()
		}
		slog.Warn("参加トランザクションの直列化失敗を再試行します",
			slog.String("challenge_id", challengeID),
			slog.String("user_id", userID),
			slog.Int("attempt", attempt+1),
		)
	}
	return nil, fmt.Errorf("参加トランザクションが%d回失敗しました: %w", joinMaxAttempts, lastErr)
}

// divertToCart はカート経路の処理を行う。
// 既存のカート項目がある場合は何も作成しない（冪等）。
func (s *Service) divertToCart(ctx context.Context, userID, courseID string) error {
	exists, err := s.cartRepo.Exists(ctx, userID, courseID)
	if err != nil {
		return fmt.Errorf("カート項目の確認に失敗しました: %w", err)
	}
	if exists {
		return nil
	}

	item := &model.CartItem{
		ID:        uuid.NewString(),
		UserID:    userID,
		CourseID:  courseID,
		CreatedAt: s.now(),
	}
	if err := s.cartRepo.Create(ctx, item); err != nil {
		return fmt.Errorf("カート項目の作成に失敗しました: %w", err)
	}
	return nil
}

// resolveRedirect は参加成功後のリダイレクト先を解決する。
// 最初のセクションの最初のレクチャーがあればそのレクチャーへ、
// なければ講座ページへ誘導する。
func (s *Service) resolveRedirect(ctx context.Context, course *model.Course) string {
	lecture, err := s.courseRepo.FindFirstLecture(ctx, course.ID)
	if err != nil {
		// リダイレクト先の解決失敗は参加の成否に影響させない
		slog.Warn("最初のレクチャーの取得に失敗しました",
			slog.String("course_id", course.ID),
			slog.String("error", err.Error()),
		)
		return "/courses/" + course.Slug
	}
	if lecture == nil {
		return "/courses/" + course.Slug
	}
	return "/courses/lecture/" + lecture.ID
}

// CreateInput はチャレンジ作成の入力。
type CreateInput struct {
	Description      string
	MaxParticipants  int
	RecruitStartAt   time.Time
	RecruitEndAt     time.Time
	ChallengeStartAt time.Time
	ChallengeEndAt   time.Time
}

// Create は講座にチャレンジを作成する。講座の講師のみが実行できる。
// 1講座につきチャレンジは1つまで。
func (s *Service) Create(ctx context.Context, userID, courseID string, in CreateInput) (*model.Challenge, error) {
	course, err := s.courseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("講座の取得に失敗しました: %w", err)
	}
	if course == nil {
		return nil, model.NewCourseNotFoundError(courseID)
	}
	if course.InstructorID != userID {
		return nil, model.NewNotInstructorError()
	}

	existing, err := s.challengeRepo.FindByCourseID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("既存チャレンジの確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewChallengeExistsError()
	}

	if in.MaxParticipants < minCapacity || in.MaxParticipants > maxCapacity {
		return nil, model.NewInvalidCapacityError(in.MaxParticipants)
	}
	if apiErr := ValidateSchedule(in.RecruitStartAt, in.RecruitEndAt, in.ChallengeStartAt, in.ChallengeEndAt); apiErr != nil {
		return nil, apiErr
	}

	now := s.now()
	ch := &model.Challenge{
		ID:                  uuid.NewString(),
		CourseID:            courseID,
		Description:         s.sanitize(in.Description),
		MaxParticipants:     in.MaxParticipants,
		CurrentParticipants: 0,
		RecruitStartAt:      in.RecruitStartAt,
		RecruitEndAt:        in.RecruitEndAt,
		ChallengeStartAt:    in.ChallengeStartAt,
		ChallengeEndAt:      in.ChallengeEndAt,
		Status:              model.ChallengeStatusRecruiting,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.challengeRepo.Create(ctx, ch); err != nil {
		if errors.Is(err, repository.ErrDuplicateChallenge) {
			// 存在確認とINSERTの間に他のリクエストが作成した場合
			return nil, model.NewChallengeExistsError()
		}
		return nil, fmt.Errorf("チャレンジの作成に失敗しました: %w", err)
	}

	slog.Info("チャレンジを作成しました",
		slog.String("challenge_id", ch.ID),
		slog.String("course_id", courseID),
		slog.Int("max_participants", ch.MaxParticipants),
	)

	return ch, nil
}

// UpdateInput はチャレンジ更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Description      *string
	MaxParticipants  *int
	RecruitStartAt   *time.Time
	RecruitEndAt     *time.Time
	ChallengeStartAt *time.Time
	ChallengeEndAt   *time.Time
}

// touchesLockedFields は募集中以外で編集が禁止されるフィールドを含むかどうかを返す。
func (in UpdateInput) touchesLockedFields() bool {
	return in.MaxParticipants != nil ||
		in.RecruitStartAt != nil || in.RecruitEndAt != nil ||
		in.ChallengeStartAt != nil || in.ChallengeEndAt != nil
}

// Update はチャレンジの定員・日程・説明を更新する。講座の講師のみが実行できる。
// 定員・日程フィールドの変更は募集中のチャレンジに対してのみ許可される。
func (s *Service) Update(ctx context.Context, userID, courseID string, in UpdateInput) (*model.Challenge, error) {
	ch, _, err := s.findOwnedChallenge(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}

	if in.touchesLockedFields() && !EditAllowed(ch.Status) {
		return nil, model.NewEditLockedError(ch.Status)
	}

	if in.Description != nil {
		ch.Description = s.sanitize(*in.Description)
	}
	if in.MaxParticipants != nil {
		if *in.MaxParticipants < minCapacity || *in.MaxParticipants > maxCapacity {
			return nil, model.NewInvalidCapacityError(*in.MaxParticipants)
		}
		// 既存参加者を下回る定員には縮小できない
		if *in.MaxParticipants < ch.CurrentParticipants {
			return nil, model.NewInvalidCapacityError(*in.MaxParticipants)
		}
		ch.MaxParticipants = *in.MaxParticipants
	}
	if in.RecruitStartAt != nil {
		ch.RecruitStartAt = *in.RecruitStartAt
	}
	if in.RecruitEndAt != nil {
		ch.RecruitEndAt = *in.RecruitEndAt
	}
	if in.ChallengeStartAt != nil {
		ch.ChallengeStartAt = *in.ChallengeStartAt
	}
	if in.ChallengeEndAt != nil {
		ch.ChallengeEndAt = *in.ChallengeEndAt
	}

	if apiErr := ValidateSchedule(ch.RecruitStartAt, ch.RecruitEndAt, ch.ChallengeStartAt, ch.ChallengeEndAt); apiErr != nil {
		return nil, apiErr
	}

	if err := s.challengeRepo.Update(ctx, ch); err != nil {
		if errors.Is(err, repository.ErrChallengeNotFound) {
			return nil, model.NewChallengeNotFoundError()
		}
		return nil, fmt.Errorf("チャレンジの更新に失敗しました: %w", err)
	}

	return ch, nil
}

// Cancel は募集中のチャレンジを中止する。講座の講師のみが実行できる。
func (s *Service) Cancel(ctx context.Context, userID, courseID string) (*model.Challenge, error) {
	ch, _, err := s.findOwnedChallenge(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(ch.Status, model.ChallengeStatusCancelled) {
		return nil, model.NewInvalidTransitionError(ch.Status, model.ChallengeStatusCancelled)
	}

	updated, err := s.challengeRepo.UpdateStatus(ctx, ch.ID, ch.Status, model.ChallengeStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("チャレンジの中止に失敗しました: %w", err)
	}
	if !updated {
		// 条件付き更新に負けた＝スイープ等が先に状態を変えた
		return nil, model.NewInvalidTransitionError(ch.Status, model.ChallengeStatusCancelled)
	}

	if s.metrics != nil {
		s.metrics.RecordLifecycleTransition(string(ch.Status), string(model.ChallengeStatusCancelled))
	}

	slog.Info("チャレンジを中止しました",
		slog.String("challenge_id", ch.ID),
		slog.String("course_id", courseID),
	)

	ch.Status = model.ChallengeStatusCancelled
	return ch, nil
}

// Remove はチャレンジを削除する。講座の講師のみが実行できる。
// 参加者レコードはCASCADE削除される。
func (s *Service) Remove(ctx context.Context, userID, courseID string) (*model.Challenge, error) {
	ch, _, err := s.findOwnedChallenge(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}

	if err := s.challengeRepo.Delete(ctx, ch.ID); err != nil {
		if errors.Is(err, repository.ErrChallengeNotFound) {
			return nil, model.NewChallengeNotFoundError()
		}
		return nil, fmt.Errorf("チャレンジの削除に失敗しました: %w", err)
	}

	slog.Info("チャレンジを削除しました",
		slog.String("challenge_id", ch.ID),
		slog.String("course_id", courseID),
	)

	return ch, nil
}

// List はチャレンジ一覧を募集開始日の降順で返す。
// statusFilterが空でない場合はその状態のみに絞り込む。
func (s *Service) List(ctx context.Context, statusFilter string) ([]*model.Challenge, error) {
	var status *model.ChallengeStatus
	if statusFilter != "" {
		st := model.ChallengeStatus(statusFilter)
		switch st {
		case model.ChallengeStatusRecruiting, model.ChallengeStatusInProgress,
			model.ChallengeStatusCompleted, model.ChallengeStatusCancelled:
			status = &st
		default:
			return nil, model.NewInvalidStatusFilterError(statusFilter)
		}
	}

	challenges, err := s.challengeRepo.List(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("チャレンジ一覧の取得に失敗しました: %w", err)
	}
	return challenges, nil
}

// GetBySlug は講座スラッグでチャレンジ詳細を取得する。
func (s *Service) GetBySlug(ctx context.Context, slug string) (*ChallengeWithCourse, error) {
	course, err := s.courseRepo.FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("講座の取得に失敗しました: %w", err)
	}
	if course == nil {
		return nil, model.NewChallengeNotFoundError()
	}

	ch, err := s.challengeRepo.FindByCourseID(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("チャレンジの取得に失敗しました: %w", err)
	}
	if ch == nil {
		return nil, model.NewChallengeNotFoundError()
	}

	return &ChallengeWithCourse{Challenge: *ch, Course: *course}, nil
}

// Participants は講座スラッグで参加者一覧をjoined_atの昇順で取得する。
func (s *Service) Participants(ctx context.Context, slug string) ([]model.ParticipantWithUser, error) {
	detail, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	participants, err := s.challengeRepo.ListParticipants(ctx, detail.Challenge.ID)
	if err != nil {
		return nil, fmt.Errorf("参加者一覧の取得に失敗しました: %w", err)
	}
	return participants, nil
}

// findOwnedChallenge は講座とチャレンジを取得し、講師権限を確認する。
func (s *Service) findOwnedChallenge(ctx context.Context, userID, courseID string) (*model.Challenge, *model.Course, error) {
	course, err := s.courseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, nil, fmt.Errorf("講座の取得に失敗しました: %w", err)
	}
	if course == nil {
		return nil, nil, model.NewCourseNotFoundError(courseID)
	}

	ch, err := s.challengeRepo.FindByCourseID(ctx, courseID)
	if err != nil {
		return nil, nil, fmt.Errorf("チャレンジの取得に失敗しました: %w", err)
	}
	if ch == nil {
		return nil, nil, model.NewChallengeNotFoundError()
	}

	if course.InstructorID != userID {
		return nil, nil, model.NewNotInstructorError()
	}

	return ch, course, nil
}

func (s *Service) sanitize(raw string) string {
	if s.sanitizer == nil {
		return raw
	}
	return s.sanitizer.Sanitize(raw)
}

func (s *Service) recordJoinResult(result string) {
	if s.metrics != nil {
		s.metrics.RecordJoinResult(result)
	}
}

func (s *Service) recordJoinLatency(d time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordJoinLatency(d)
	}
}
