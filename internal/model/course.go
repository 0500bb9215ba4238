// Package model はドメインモデルを定義する。
package model

import "time"

// Course は外部の講座カタログが管理する講座を表す。
// 本コアは読み取り専用の協調相手として扱う。
type Course struct {
	ID           string
	Slug         string
	Title        string
	Price        int
	InstructorID string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsFree は無料講座かどうかを返す。
func (c *Course) IsFree() bool {
	return c.Price == 0
}

// Lecture は講座内のレクチャーを表す。
// リダイレクト先解決（最初のセクションの最初のレクチャー）にのみ使用する。
type Lecture struct {
	ID        string
	SectionID string
	Title     string
	Order     int
}

// CourseEnrollment はユーザーの講座アクセス権を表す。
// (UserID, CourseID) のレコードが存在すれば、チャレンジとは独立に
// 講座への完全なアクセス権を持つ。
type CourseEnrollment struct {
	ID        string
	UserID    string
	CourseID  string
	CreatedAt time.Time
}

// CartItem は購入意思を保留するカート項目を表す。
// (UserID, CourseID) につき最大1件。
type CartItem struct {
	ID        string
	UserID    string
	CourseID  string
	CreatedAt time.Time
}
