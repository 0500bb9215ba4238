package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestNewPostgresCourseRepo_Initializes(t *testing.T) {
	repo := NewPostgresCourseRepo(nil)
	if repo == nil {
		t.Fatal("NewPostgresCourseRepo がnilを返した")
	}
}

func TestPostgresCourseRepo_FindBySlug(t *testing.T) {
	db := repoTestDB(t)
	repo := NewPostgresCourseRepo(db)
	ctx := context.Background()

	instructorID := seedUser(t, db, "講師")
	courseID, slug := seedCourse(t, db, instructorID, 2980)

	t.Run("スラッグで取得できる", func(t *testing.T) {
		course, err := repo.FindBySlug(ctx, slug)
		if err != nil {
			t.Fatalf("FindBySlug に失敗: %v", err)
		}
		if course == nil {
			t.Fatal("講座が見つからない")
		}
		if course.ID != courseID {
			t.Errorf("ID = %q, want %q", course.ID, courseID)
		}
		if course.Price != 2980 {
			t.Errorf("Price = %d, want 2980", course.Price)
		}
		if course.InstructorID != instructorID {
			t.Errorf("InstructorID = %q, want %q", course.InstructorID, instructorID)
		}
	})

	t.Run("存在しないスラッグはnilを返す", func(t *testing.T) {
		course, err := repo.FindBySlug(ctx, "no-such-course-"+uuid.NewString())
		if err != nil {
			t.Fatalf("FindBySlug に失敗: %v", err)
		}
		if course != nil {
			t.Errorf("存在しない講座が返された: %+v", course)
		}
	})
}

func TestPostgresCourseRepo_FindFirstLecture(t *testing.T) {
	db := repoTestDB(t)
	repo := NewPostgresCourseRepo(db)
	ctx := context.Background()

	instructorID := seedUser(t, db, "講師")
	courseID, _ := seedCourse(t, db, instructorID, 1000)

	// セクション2を先に挿入しても、セクション順・レクチャー順で最初の1件が選ばれる
	seedLecture(t, db, courseID, 2, 1, "後のセクションのレクチャー")
	firstLectureID := seedLecture(t, db, courseID, 1, 1, "最初のレクチャー")

	lecture, err := repo.FindFirstLecture(ctx, courseID)
	if err != nil {
		t.Fatalf("FindFirstLecture に失敗: %v", err)
	}
	if lecture == nil {
		t.Fatal("レクチャーが見つからない")
	}
	if lecture.ID != firstLectureID {
		t.Errorf("ID = %q, want %q", lecture.ID, firstLectureID)
	}
	if lecture.Title != "最初のレクチャー" {
		t.Errorf("Title = %q", lecture.Title)
	}

	t.Run("最初のセクションが空ならnilを返す", func(t *testing.T) {
		// セクション1にはレクチャーがなく、セクション2にはある。
		// 後続セクションへはフォールバックしない。
		courseID, _ := seedCourse(t, db, instructorID, 1000)
		seedSection(t, db, courseID, 1)
		seedLecture(t, db, courseID, 2, 1, "2番目のセクションのレクチャー")

		lecture, err := repo.FindFirstLecture(ctx, courseID)
		if err != nil {
			t.Fatalf("FindFirstLecture に失敗: %v", err)
		}
		if lecture != nil {
			t.Errorf("空の最初のセクションでレクチャーが返された: %+v", lecture)
		}
	})

	t.Run("レクチャーのない講座はnilを返す", func(t *testing.T) {
		emptyCourseID, _ := seedCourse(t, db, instructorID, 1000)
		lecture, err := repo.FindFirstLecture(ctx, emptyCourseID)
		if err != nil {
			t.Fatalf("FindFirstLecture に失敗: %v", err)
		}
		if lecture != nil {
			t.Errorf("レクチャーのない講座でレクチャーが返された: %+v", lecture)
		}
	})
}
