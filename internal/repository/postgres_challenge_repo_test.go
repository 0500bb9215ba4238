package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/courseman/internal/model"
)

func TestNewPostgresChallengeRepo_Initializes(t *testing.T) {
	repo := NewPostgresChallengeRepo(nil)
	if repo == nil {
		t.Fatal("NewPostgresChallengeRepo がnilを返した")
	}
}

func TestIsSerializationFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"直列化失敗_40001", &pq.Error{Code: "40001"}, true},
		{"デッドロック検出_40P01", &pq.Error{Code: "40P01"}, true},
		{"ラップされた直列化失敗", fmt.Errorf("join failed: %w", &pq.Error{Code: "40001"}), true},
		{"一意制約違反_23505", &pq.Error{Code: "23505"}, false},
		{"pq以外のエラー", errors.New("connection refused"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSerializationFailure(tt.err); got != tt.want {
				t.Errorf("IsSerializationFailure() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"一意制約違反_23505", &pq.Error{Code: "23505"}, true},
		{"ラップされた一意制約違反", fmt.Errorf("insert failed: %w", &pq.Error{Code: "23505"}), true},
		{"直列化失敗_40001", &pq.Error{Code: "40001"}, false},
		{"pq以外のエラー", errors.New("broken pipe"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("isUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPostgresChallengeRepo_CreateAndFind(t *testing.T) {
	db := repoTestDB(t)
	repo := NewPostgresChallengeRepo(db)
	ctx := context.Background()

	instructorID := seedUser(t, db, "講師")
	courseID, _ := seedCourse(t, db, instructorID, 1000)

	ch := newTestChallenge(courseID, 10)
	if err := repo.Create(ctx, ch); err != nil {
		t.Fatalf("Create に失敗: %v", err)
	}

	t.Run("FindByIDで取得できる", func(t *testing.T) {
		found, err := repo.FindByID(ctx, ch.ID)
		if err != nil {
			t.Fatalf("FindByID に失敗: %v", err)
		}
		if found == nil {
			t.Fatal("作成したチャレンジが見つからない")
		}
		if found.CourseID != courseID {
			t.Errorf("CourseID = %q, want %q", found.CourseID, courseID)
		}
		if found.MaxParticipants != 10 || found.CurrentParticipants != 0 {
			t.Errorf("定員 = %d/%d, want 0/10", found.CurrentParticipants, found.MaxParticipants)
		}
		if found.Status != model.ChallengeStatusRecruiting {
			t.Errorf("Status = %q, want %q", found.Status, model.ChallengeStatusRecruiting)
		}
		if !found.RecruitEndAt.Equal(ch.RecruitEndAt) {
			t.Errorf("RecruitEndAt = %v, want %v", found.RecruitEndAt, ch.RecruitEndAt)
		}
	})

	t.Run("FindByCourseIDで取得できる", func(t *testing.T) {
		found, err := repo.FindByCourseID(ctx, courseID)
		if err != nil {
			t.Fatalf("FindByCourseID に失敗: %v", err)
		}
		if found == nil || found.ID != ch.ID {
			t.Errorf("FindByCourseID = %+v, want ID %q", found, ch.ID)
		}
	})

	t.Run("存在しないIDはnilを返す", func(t *testing.T) {
		found, err := repo.FindByID(ctx, uuid.NewString())
		if err != nil {
			t.Fatalf("FindByID に失敗: %v", err)
		}
		if found != nil {
			t.Errorf("存在しないチャレンジが返された: %+v", found)
		}
	})
}

func TestPostgresChallengeRepo_Create_DuplicateCourse(t *testing.T) {
	db := repoTestDB(t)
	repo := NewPostgresChallengeRepo(db)
	ctx := context.Background()

	instructorID := seedUser(t, db, "講師")
	courseID, _ := seedCourse(t, db, instructorID, 1000)

	if err := repo.Create(ctx, newTestChallenge(courseID, 5)); err != nil {
		t.Fatalf("1件目の Create に失敗: %v", err)
	}

	err := repo.Create(ctx, newTestChallenge(courseID, 5))
	if !errors.Is(err, ErrDuplicateChallenge) {
		t.Errorf("同一講座への2件目の Create のエラー = %v, want ErrDuplicateChallenge", err)
	}
}

func TestPostgresChallengeRepo_Update(t *testing.T) {
	db := repoTestDB(t)
	repo := NewPostgresChallengeRepo(db)
	ctx := context.Background()

	instructorID := seedUser(t, db, "講師")
	courseID, _ := seedCourse(t, db, instructorID, 1000)

	ch := newTestChallenge(courseID, 10)
	if err := repo.Create(ctx, ch); err != nil {
		t.Fatalf("Create に失敗: %v", err)
	}

	ch.MaxParticipants = 20
	ch.Description = "定員を増やしました"
	if err := repo.Update(ctx, ch); err != nil {
		t.Fatalf("Update に失敗: %v", err)
	}

	found, err := repo.FindByID(ctx, ch.ID)
	if err != nil {
		t.Fatalf("FindByID に失敗: %v", err)
	}
	if found.MaxParticipants != 20 {
		t.Errorf("MaxParticipants = %d, want 20", found.MaxParticipants)
	}
	if found.Description != "定員を増やしました" {
		t.Errorf("Description = %q", found.Description)
	}

	t.Run("存在しないチャレンジはErrChallengeNotFound", func(t *testing.T) {
		missing := newTestChallenge(courseID, 10)
		if err := repo.Update(ctx, missing); !errors.Is(err, ErrChallengeNotFound) {
			t.Errorf("Update のエラー = %v, want ErrChallengeNotFound", err)
		}
	})
}

func TestPostgresChallengeRepo_UpdateStatus_Conditional(t *testing.T) {
	db := repoTestDB(t)
	repo := NewPostgresChallengeRepo(db)
	ctx := context.Background()

	instructorID := seedUser(t, db, "講師")
	courseID, _ := seedCourse(t, db, instructorID, 1000)

	ch := newTestChallenge(courseID, 10)
	if err := repo.Create(ctx, ch); err != nil {
		t.Fatalf("Create に失敗: %v", err)
	}

	updated, err := repo.UpdateStatus(ctx, ch.ID, model.ChallengeStatusRecruiting, model.ChallengeStatusInProgress)
	if err != nil {
		t.Fatalf("UpdateStatus に失敗: %v", err)
	}
	if !updated {
		t.Error("現在の状態が一致する遷移が適用されなかった")
	}

	// 既にIN_PROGRESSのため、RECRUITING前提の遷移は適用されない
	updated, err = repo.UpdateStatus(ctx, ch.ID, model.ChallengeStatusRecruiting, model.ChallengeStatusCancelled)
	if err != nil {
		t.Fatalf("UpdateStatus に失敗: %v", err)
	}
	if updated {
		t.Error("古い状態を前提とした遷移が適用されてしまった")
	}

	found, _ := repo.FindByID(ctx, ch.ID)
	if found.Status != model.ChallengeStatusInProgress {
		t.Errorf("Status = %q, want %q", found.Status, model.ChallengeStatusInProgress)
	}
}

func TestPostgresChallengeRepo_Join(t *testing.T) {
	db := repoTestDB(t)
	repo := NewPostgresChallengeRepo(db)
	ctx := context.Background()

	instructorID := seedUser(t, db, "講師")
	courseID, _ := seedCourse(t, db, instructorID, 1000)
	userID := seedUser(t, db, "受講者")

	ch := newTestChallenge(courseID, 10)
	if err := repo.Create(ctx, ch); err != nil {
		t.Fatalf("Create に失敗: %v", err)
	}

	participant, err := repo.Join(ctx, ch.ID, userID)
	if err != nil {
		t.Fatalf("Join に失敗: %v", err)
	}
	if participant.ChallengeID != ch.ID || participant.UserID != userID {
		t.Errorf("participant = %+v", participant)
	}
	if participant.ID == "" {
		t.Error("参加者IDが採番されていない")
	}

	t.Run("カウンタが加算される", func(t *testing.T) {
		found, err := repo.FindByID(ctx, ch.ID)
		if err != nil {
			t.Fatalf("FindByID に失敗: %v", err)
		}
		if found.CurrentParticipants != 1 {
			t.Errorf("CurrentParticipants = %d, want 1", found.CurrentParticipants)
		}
	})

	t.Run("HasParticipantがtrueになる", func(t *testing.T) {
		has, err := repo.HasParticipant(ctx, ch.ID, userID)
		if err != nil {
			t.Fatalf("HasParticipant に失敗: %v", err)
		}
		if !has {
			t.Error("参加済みユーザーが検出されない")
		}
	})

	t.Run("同一ユーザーの二重参加はErrDuplicateParticipant", func(t *testing.T) {
		_, err := repo.Join(ctx, ch.ID, userID)
		if !errors.Is(err, ErrDuplicateParticipant) {
			t.Errorf("Join のエラー = %v, want ErrDuplicateParticipant", err)
		}

		// ロールバックによりカウンタは変化しない
		found, _ := repo.FindByID(ctx, ch.ID)
		if found.CurrentParticipants != 1 {
			t.Errorf("二重参加後の CurrentParticipants = %d, want 1", found.CurrentParticipants)
		}
	})
}

func TestPostgresChallengeRepo_Join_CapacityExceeded(t *testing.T) {
	db := repoTestDB(t)
	repo := NewPostgresChallengeRepo(db)
	ctx := context.Background()

	instructorID := seedUser(t, db, "講師")
	courseID, _ := seedCourse(t, db, instructorID, 1000)
	firstUser := seedUser(t, db, "受講者1")
	secondUser := seedUser(t, db, "受講者2")

	ch := newTestChallenge(courseID, 1)
	if err := repo.Create(ctx, ch); err != nil {
		t.Fatalf("Create に失敗: %v", err)
	}

	if _, err := repo.Join(ctx, ch.ID, firstUser); err != nil {
		t.Fatalf("1人目の Join に失敗: %v", err)
	}

	_, err := repo.Join(ctx, ch.ID, secondUser)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("定員超過の Join のエラー = %v, want ErrCapacityExceeded", err)
	}

	// ロールバックにより参加者行も残らない
	has, err := repo.HasParticipant(ctx, ch.ID, secondUser)
	if err != nil {
		t.Fatalf("HasParticipant に失敗: %v", err)
	}
	if has {
		t.Error("定員超過で中断されたユーザーの参加者行が残っている")
	}
}

// TestPostgresChallengeRepo_Join_ConcurrentExactlyFillsCapacity は
// 残席数を超える同時申込で、ちょうど残席数だけが成功することを検証する。
func TestPostgresChallengeRepo_Join_ConcurrentExactlyFillsCapacity(t *testing.T) {
	db := repoTestDB(t)
	repo := NewPostgresChallengeRepo(db)
	ctx := context.Background()

	const (
		seats      = 5
		applicants = 20
	)

	instructorID := seedUser(t, db, "講師")
	courseID, _ := seedCourse(t, db, instructorID, 1000)

	userIDs := make([]string, applicants)
	for i := range userIDs {
		userIDs[i] = seedUser(t, db, fmt.Sprintf("受講者%d", i+1))
	}

	ch := newTestChallenge(courseID, seats)
	if err := repo.Create(ctx, ch); err != nil {
		t.Fatalf("Create に失敗: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]error, applicants)
	for i, userID := range userIDs {
		wg.Add(1)
		go func(i int, userID string) {
			defer wg.Done()
			_, results[i] = repo.Join(ctx, ch.ID, userID)
		}(i, userID)
	}
	wg.Wait()

	var succeeded, capacityRejected int
	for i, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrCapacityExceeded):
			capacityRejected++
		default:
			t.Errorf("受講者%d の Join で想定外のエラー: %v", i+1, err)
		}
	}

	if succeeded != seats {
		t.Errorf("成功した申込数 = %d, want %d", succeeded, seats)
	}
	if capacityRejected != applicants-seats {
		t.Errorf("定員超過で拒否された申込数 = %d, want %d", capacityRejected, applicants-seats)
	}

	found, err := repo.FindByID(ctx, ch.ID)
	if err != nil {
		t.Fatalf("FindByID に失敗: %v", err)
	}
	if found.CurrentParticipants != seats {
		t.Errorf("CurrentParticipants = %d, want %d", found.CurrentParticipants, seats)
	}

	participants, err := repo.ListParticipants(ctx, ch.ID)
	if err != nil {
		t.Fatalf("ListParticipants に失敗: %v", err)
	}
	if len(participants) != seats {
		t.Errorf("参加者行数 = %d, want %d", len(participants), seats)
	}
}

func TestPostgresChallengeRepo_Delete_CascadesParticipants(t *testing.T) {
	db := repoTestDB(t)
	repo := NewPostgresChallengeRepo(db)
	ctx := context.Background()

	instructorID := seedUser(t, db, "講師")
	courseID, _ := seedCourse(t, db, instructorID, 1000)
	userID := seedUser(t, db, "受講者")

	ch := newTestChallenge(courseID, 10)
	if err := repo.Create(ctx, ch); err != nil {
		t.Fatalf("Create に失敗: %v", err)
	}
	if _, err := repo.Join(ctx, ch.ID, userID); err != nil {
		t.Fatalf("Join に失敗: %v", err)
	}

	if err := repo.Delete(ctx, ch.ID); err != nil {
		t.Fatalf("Delete に失敗: %v", err)
	}

	found, err := repo.FindByID(ctx, ch.ID)
	if err != nil {
		t.Fatalf("FindByID に失敗: %v", err)
	}
	if found != nil {
		t.Error("削除したチャレンジが残っている")
	}

	var count int
	if err := db.QueryRow(`SELECT count(*) FROM challenge_participants WHERE challenge_id = $1`, ch.ID).Scan(&count); err != nil {
		t.Fatalf("参加者数の取得に失敗: %v", err)
	}
	if count != 0 {
		t.Errorf("参加者行が残存: count=%d", count)
	}

	t.Run("存在しないIDの削除はErrChallengeNotFound", func(t *testing.T) {
		if err := repo.Delete(ctx, uuid.NewString()); !errors.Is(err, ErrChallengeNotFound) {
			t.Errorf("Delete のエラー = %v, want ErrChallengeNotFound", err)
		}
	})
}

func TestPostgresChallengeRepo_List_FilterAndOrder(t *testing.T) {
	db := repoTestDB(t)
	repo := NewPostgresChallengeRepo(db)
	ctx := context.Background()

	// 他のテストが作成した行の影響を受けないよう、このテストは全件を入れ替える
	if _, err := db.Exec(`DELETE FROM challenges`); err != nil {
		t.Fatalf("チャレンジテーブルの初期化に失敗: %v", err)
	}

	instructorID := seedUser(t, db, "講師")
	olderCourseID, _ := seedCourse(t, db, instructorID, 1000)
	newerCourseID, _ := seedCourse(t, db, instructorID, 1000)

	older := newTestChallenge(olderCourseID, 10)
	older.RecruitStartAt = older.RecruitStartAt.Add(-72 * time.Hour)
	if err := repo.Create(ctx, older); err != nil {
		t.Fatalf("Create に失敗: %v", err)
	}

	newer := newTestChallenge(newerCourseID, 10)
	if err := repo.Create(ctx, newer); err != nil {
		t.Fatalf("Create に失敗: %v", err)
	}
	if _, err := repo.UpdateStatus(ctx, newer.ID, model.ChallengeStatusRecruiting, model.ChallengeStatusInProgress); err != nil {
		t.Fatalf("UpdateStatus に失敗: %v", err)
	}

	t.Run("絞り込みなしは募集開始日の降順", func(t *testing.T) {
		challenges, err := repo.List(ctx, nil)
		if err != nil {
			t.Fatalf("List に失敗: %v", err)
		}
		if len(challenges) != 2 {
			t.Fatalf("件数 = %d, want 2", len(challenges))
		}
		if challenges[0].ID != newer.ID || challenges[1].ID != older.ID {
			t.Errorf("並び順が不正: got [%s, %s]", challenges[0].ID, challenges[1].ID)
		}
	})

	t.Run("状態で絞り込める", func(t *testing.T) {
		status := model.ChallengeStatusRecruiting
		challenges, err := repo.List(ctx, &status)
		if err != nil {
			t.Fatalf("List に失敗: %v", err)
		}
		if len(challenges) != 1 || challenges[0].ID != older.ID {
			t.Errorf("絞り込み結果が不正: %+v", challenges)
		}
	})

	t.Run("ListByStatusはスイープ対象のみ返す", func(t *testing.T) {
		challenges, err := repo.ListByStatus(ctx, model.ChallengeStatusInProgress)
		if err != nil {
			t.Fatalf("ListByStatus に失敗: %v", err)
		}
		if len(challenges) != 1 || challenges[0].ID != newer.ID {
			t.Errorf("ListByStatus の結果が不正: %+v", challenges)
		}
	})
}

func TestPostgresChallengeRepo_ListParticipants_OrderedByJoinedAt(t *testing.T) {
	db := repoTestDB(t)
	repo := NewPostgresChallengeRepo(db)
	ctx := context.Background()

	instructorID := seedUser(t, db, "講師")
	courseID, _ := seedCourse(t, db, instructorID, 1000)
	ch := newTestChallenge(courseID, 10)
	if err := repo.Create(ctx, ch); err != nil {
		t.Fatalf("Create に失敗: %v", err)
	}

	// joined_atを明示して順序を固定する
	firstUser := seedUser(t, db, "一番乗り")
	secondUser := seedUser(t, db, "二番手")
	base := time.Now().UTC().Add(-time.Hour)
	for i, userID := range []string{secondUser, firstUser} {
		joinedAt := base.Add(time.Duration(10-i*10) * time.Minute)
		_, err := db.Exec(
			`INSERT INTO challenge_participants (id, challenge_id, user_id, joined_at)
			 VALUES (gen_random_uuid(), $1, $2, $3)`,
			ch.ID, userID, joinedAt,
		)
		if err != nil {
			t.Fatalf("参加者挿入に失敗: %v", err)
		}
	}

	participants, err := repo.ListParticipants(ctx, ch.ID)
	if err != nil {
		t.Fatalf("ListParticipants に失敗: %v", err)
	}
	if len(participants) != 2 {
		t.Fatalf("参加者数 = %d, want 2", len(participants))
	}
	if participants[0].UserName != "一番乗り" || participants[1].UserName != "二番手" {
		t.Errorf("joined_at昇順になっていない: [%s, %s]", participants[0].UserName, participants[1].UserName)
	}
	if participants[0].UserEmail == "" {
		t.Error("ユーザー概要が結合されていない")
	}
}
