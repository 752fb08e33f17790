package models

import "github.com/shopspring/decimal"

// Read-only views over tables owned by the identity and course services.
// They are never migrated by this service.

type User struct {
	ID        string `gorm:"column:id;primary_key"`
	Username  string `gorm:"column:username"`
	Email     string `gorm:"column:email"`
	FirstName string `gorm:"column:first_name"`
	LastName  string `gorm:"column:last_name"`
}

func (User) TableName() string { return "users" }

type Course struct {
	ID    string          `gorm:"column:id;primary_key"`
	Title string          `gorm:"column:title"`
	Price decimal.Decimal `gorm:"column:price;type:numeric(10,2)"`
}

func (Course) TableName() string { return "courses" }

type Module struct {
	ID       string `gorm:"column:id;primary_key"`
	CourseID string `gorm:"column:course_id;index"`
	Title    string `gorm:"column:title"`
	Order    int    `gorm:"column:order"`
	IsFree   bool   `gorm:"column:is_free"`
}

func (Module) TableName() string { return "modules" }

// LearningPath is a user's enrolment in a track.
type LearningPath struct {
	ID      string `gorm:"column:id;primary_key"`
	UserID  string `gorm:"column:user_id;index"`
	TrackID string `gorm:"column:track_id;index"`
}

func (LearningPath) TableName() string { return "learning_paths" }

type TrackCourse struct {
	TrackID  string `gorm:"column:track_id;primary_key"`
	CourseID string `gorm:"column:course_id;primary_key"`
	Order    int    `gorm:"column:order"`
}

func (TrackCourse) TableName() string { return "track_courses" }
