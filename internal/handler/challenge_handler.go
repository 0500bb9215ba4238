// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/courseman/internal/challenge"
	"github.com/hitoshi/courseman/internal/middleware"
	"github.com/hitoshi/courseman/internal/model"
)

// ChallengeServiceInterface はチャレンジハンドラーが必要とするサービスインターフェース。
type ChallengeServiceInterface interface {
	// Join は講座スラッグで指定されたチャレンジへの参加を申し込む。
	Join(ctx context.Context, userID, slug string) (*joinResponse, error)
	// Create は講座にチャレンジを作成する（講師のみ）。
	Create(ctx context.Context, userID, courseID string, in challenge.CreateInput) (*challengeResponse, error)
	// Update はチャレンジの説明・定員・日程を更新する（講師のみ）。
	Update(ctx context.Context, userID, courseID string, in challenge.UpdateInput) (*challengeResponse, error)
	// Cancel は募集中のチャレンジを中止する（講師のみ）。
	Cancel(ctx context.Context, userID, courseID string) (*challengeResponse, error)
	// Remove はチャレンジを削除する（講師のみ）。
	Remove(ctx context.Context, userID, courseID string) error
	// List はチャレンジ一覧を返す。statusFilterが空の場合は全件。
	List(ctx context.Context, statusFilter string) ([]challengeResponse, error)
	// GetBySlug は講座スラッグでチャレンジ詳細を返す。
	GetBySlug(ctx context.Context, slug string) (*challengeDetailResponse, error)
	// Participants は講座スラッグで参加者一覧を返す。
	Participants(ctx context.Context, slug string) ([]participantResponse, error)
}

// ChallengeHandler はチャレンジ管理のHTTPハンドラー。
type ChallengeHandler struct {
	service ChallengeServiceInterface
}

// NewChallengeHandler はChallengeHandlerを生成する。
func NewChallengeHandler(service ChallengeServiceInterface) *ChallengeHandler {
	return &ChallengeHandler{service: service}
}

// createChallengeRequest はチャレンジ作成リクエストのボディ。
type createChallengeRequest struct {
	Description      string    `json:"description"`
	MaxParticipants  int       `json:"max_participants"`
	RecruitStartAt   time.Time `json:"recruit_start_at"`
	RecruitEndAt     time.Time `json:"recruit_end_at"`
	ChallengeStartAt time.Time `json:"challenge_start_at"`
	ChallengeEndAt   time.Time `json:"challenge_end_at"`
}

// updateChallengeRequest はチャレンジ更新リクエストのボディ。
// nilのフィールドは変更しない。statusはCANCELLED（中止操作）のみ受け付ける。
type updateChallengeRequest struct {
	Description      *string    `json:"description"`
	MaxParticipants  *int       `json:"max_participants"`
	RecruitStartAt   *time.Time `json:"recruit_start_at"`
	RecruitEndAt     *time.Time `json:"recruit_end_at"`
	ChallengeStartAt *time.Time `json:"challenge_start_at"`
	ChallengeEndAt   *time.Time `json:"challenge_end_at"`
	Status           *string    `json:"status"`
}

// challengeResponse はチャレンジ情報のAPIレスポンス。
type challengeResponse struct {
	ID                  string    `json:"id"`
	CourseID            string    `json:"course_id"`
	Description         string    `json:"description"`
	MaxParticipants     int       `json:"max_participants"`
	CurrentParticipants int       `json:"current_participants"`
	RemainingSeats      int       `json:"remaining_seats"`
	RecruitStartAt      time.Time `json:"recruit_start_at"`
	RecruitEndAt        time.Time `json:"recruit_end_at"`
	ChallengeStartAt    time.Time `json:"challenge_start_at"`
	ChallengeEndAt      time.Time `json:"challenge_end_at"`
	Status              string    `json:"status"`
	CreatedAt           time.Time `json:"created_at"`
}

// challengeDetailResponse はチャレンジ詳細（講座概要つき）のAPIレスポンス。
type challengeDetailResponse struct {
	challengeResponse
	CourseSlug  string `json:"course_slug"`
	CourseTitle string `json:"course_title"`
}

// joinResponse は参加申込結果のAPIレスポンス。
type joinResponse struct {
	Enrolled   bool   `json:"enrolled"`
	CourseSlug string `json:"course_slug"`
	Redirect   string `json:"redirect"`
	Message    string `json:"message"`
}

// participantResponse は参加者情報のAPIレスポンス。
type participantResponse struct {
	UserID   string    `json:"user_id"`
	UserName string    `json:"user_name"`
	JoinedAt time.Time `json:"joined_at"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// CreateChallenge は講座にチャレンジを作成する。
// POST /api/courses/:courseID/challenge
func (h *ChallengeHandler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	courseID := chi.URLParam(r, "courseID")

	var req createChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	resp, err := h.service.Create(r.Context(), userID, courseID, challenge.CreateInput{
		Description:      req.Description,
		MaxParticipants:  req.MaxParticipants,
		RecruitStartAt:   req.RecruitStartAt,
		RecruitEndAt:     req.RecruitEndAt,
		ChallengeStartAt: req.ChallengeStartAt,
		ChallengeEndAt:   req.ChallengeEndAt,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

// UpdateChallenge はチャレンジの説明・定員・日程を更新する。
// statusにCANCELLEDが指定された場合は中止操作として処理する。
// PATCH /api/courses/:courseID/challenge
func (h *ChallengeHandler) UpdateChallenge(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	courseID := chi.URLParam(r, "courseID")

	var req updateChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	// 中止は状態遷移として扱い、他のフィールド更新とは排他にする
	if req.Status != nil {
		if *req.Status != string(model.ChallengeStatusCancelled) {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_REQUEST",
				Message:  "statusにはCANCELLEDのみ指定できます。",
				Category: "validation",
				Action:   "チャレンジを中止する場合はstatusにCANCELLEDを指定してください。",
			})
			return
		}

		resp, err := h.service.Cancel(r.Context(), userID, courseID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
		return
	}

	resp, err := h.service.Update(r.Context(), userID, courseID, challenge.UpdateInput{
		Description:      req.Description,
		MaxParticipants:  req.MaxParticipants,
		RecruitStartAt:   req.RecruitStartAt,
		RecruitEndAt:     req.RecruitEndAt,
		ChallengeStartAt: req.ChallengeStartAt,
		ChallengeEndAt:   req.ChallengeEndAt,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// DeleteChallenge はチャレンジを削除する。
// DELETE /api/courses/:courseID/challenge
func (h *ChallengeHandler) DeleteChallenge(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	courseID := chi.URLParam(r, "courseID")

	if err := h.service.Remove(r.Context(), userID, courseID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListChallenges はチャレンジ一覧を取得する。
// GET /api/challenges?status=RECRUITING
func (h *ChallengeHandler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	statusFilter := r.URL.Query().Get("status")

	challenges, err := h.service.List(r.Context(), statusFilter)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(challenges)
}

// GetChallenge はチャレンジ詳細を取得する。
// GET /api/challenges/:slug
func (h *ChallengeHandler) GetChallenge(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	detail, err := h.service.GetBySlug(r.Context(), slug)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(detail)
}

// JoinChallenge はチャレンジへの参加を申し込む。
// POST /api/challenges/:slug/join
func (h *ChallengeHandler) JoinChallenge(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	slug := chi.URLParam(r, "slug")

	result, err := h.service.Join(r.Context(), userID, slug)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// ListParticipants はチャレンジの参加者一覧を取得する。
// GET /api/challenges/:slug/participants
func (h *ChallengeHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	participants, err := h.service.Participants(r.Context(), slug)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(participants)
}

// --- ヘルパー関数 ---

// requireUserID はリクエストコンテキストから認証済みユーザーIDを取得する。
// 取得できない場合は401レスポンスを書き込み、falseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "認証が必要です。",
			Category: "auth",
			Action:   "ログインしてください。",
		})
		return "", false
	}
	return userID, true
}

// writeInvalidRequestBody はリクエストボディの解析失敗レスポンスを書き込む。
func writeInvalidRequestBody(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeChallengeNotFound, model.ErrCodeCourseNotFound:
		return http.StatusNotFound
	case model.ErrCodeNotInstructor:
		return http.StatusForbidden
	case model.ErrCodeChallengeExists:
		return http.StatusConflict
	case model.ErrCodeInvalidSchedule, model.ErrCodeInvalidCapacity, model.ErrCodeInvalidStatusParam:
		return http.StatusBadRequest
	case model.ErrCodeNotRecruiting, model.ErrCodeOutsideWindow:
		return http.StatusConflict
	case model.ErrCodeCapacityReached, model.ErrCodeAlreadyJoined:
		return http.StatusConflict
	case model.ErrCodeEditLocked, model.ErrCodeInvalidTransition:
		return http.StatusConflict
	case "UNAUTHORIZED":
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
