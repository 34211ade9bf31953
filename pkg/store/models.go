package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;not null"`
	FirstName    string
	LastName     string
	PasswordHash string `gorm:"not null"`
	IsStudent    bool   `gorm:"not null;index"`
	IsTeacher    bool   `gorm:"not null"`
	IsActive     bool   `gorm:"not null"`
	CreatedAt    time.Time
}

type ClassroomModel struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"uniqueIndex;not null"`
	Description string
	TeacherID   string `gorm:"not null;index"`
	CreatedAt   time.Time
}

type StudentProfileModel struct {
	ID          string  `gorm:"primaryKey"`
	UserID      string  `gorm:"uniqueIndex;not null"`
	ClassroomID *string `gorm:"index"`
	FirstName   string
	LastName    string
	CreatedAt   time.Time
}

type WorkbookModel struct {
	ID             string `gorm:"primaryKey"`
	Role           string `gorm:"not null"`
	Title          string `gorm:"not null"`
	Description    string
	FileKey        string
	Strategy       string `gorm:"not null"`
	UploadedAt     time.Time
	ImportStarted  *time.Time
	ImportFinished *time.Time
	ImportError    string
	Sections       []SectionModel `gorm:"foreignKey:WorkbookID;constraint:OnDelete:CASCADE"`
}

type SectionModel struct {
	ID          string `gorm:"primaryKey"`
	WorkbookID  string `gorm:"not null;uniqueIndex:idx_section_workbook_order,priority:1"`
	Order       int    `gorm:"column:sort_order;not null;uniqueIndex:idx_section_workbook_order,priority:2"`
	Heading     string `gorm:"not null"`
	ContentHTML string `gorm:"type:text"`
	Images      []SectionImageModel `gorm:"foreignKey:SectionID;constraint:OnDelete:CASCADE"`
}

type SectionImageModel struct {
	ID        string `gorm:"primaryKey"`
	SectionID string `gorm:"not null;index"`
	ImageKey  string `gorm:"not null"`
	Caption   string
	Order     int `gorm:"column:sort_order;not null;default:0"`
}

type MessageModel struct {
	ID            string    `gorm:"primaryKey"`
	SenderID      string    `gorm:"not null;uniqueIndex:idx_message_triplet,priority:1"`
	RecipientID   string    `gorm:"not null;uniqueIndex:idx_message_triplet,priority:2;index:idx_inbox,priority:1"`
	Subject       string    `gorm:"not null;uniqueIndex:idx_message_triplet,priority:3"`
	Body          string    `gorm:"type:text"`
	Timestamp     time.Time `gorm:"not null;index:idx_inbox,priority:3"`
	IsRead        bool      `gorm:"not null;index:idx_inbox,priority:2"`
	AttachmentKey string
}

type LearningModuleModel struct {
	ID          string `gorm:"primaryKey"`
	Day         int    `gorm:"not null;uniqueIndex"`
	Title       string `gorm:"not null"`
	Content     string `gorm:"type:text"`
	ClassroomID string `gorm:"not null;index"`
}

type ModuleAssignmentModel struct {
	ID          string `gorm:"primaryKey"`
	ClassroomID string `gorm:"not null;uniqueIndex:idx_module_assignment,priority:1"`
	ModuleID    string `gorm:"not null;uniqueIndex:idx_module_assignment,priority:2"`
	ReleaseDate *time.Time
	CreatedAt   time.Time
}

type QuizAssignmentModel struct {
	ID          string `gorm:"primaryKey"`
	ClassroomID string `gorm:"not null;uniqueIndex:idx_quiz_assignment,priority:1"`
	QuizType    string `gorm:"not null;uniqueIndex:idx_quiz_assignment,priority:2"`
	ReleaseDate *time.Time
	CreatedAt   time.Time
}

type QuizQuestionModel struct {
	ID           string `gorm:"primaryKey"`
	QuizType     string `gorm:"not null;index:idx_quiz_question"`
	ClassroomID  string `gorm:"not null;index:idx_quiz_question"`
	QuestionText string `gorm:"type:text;not null"`
	Choices      datatypes.JSON
	Answer       string `gorm:"not null"`
}

type QuizAttemptModel struct {
	ID          string `gorm:"primaryKey"`
	StudentID   string `gorm:"not null;uniqueIndex:idx_quiz_attempt,priority:1"`
	QuizType    string `gorm:"not null;uniqueIndex:idx_quiz_attempt,priority:2"`
	Score       float64
	AttemptData datatypes.JSON
	Timestamp   time.Time
}

type StudentResponseModel struct {
	ID          string `gorm:"primaryKey"`
	StudentID   string `gorm:"not null;uniqueIndex:idx_student_response,priority:1"`
	ModuleID    string `gorm:"not null;uniqueIndex:idx_student_response,priority:2"`
	Answers     datatypes.JSON
	FileKey     string
	CompletedAt time.Time
}

type WorkbookQuestionModel struct {
	ID         string `gorm:"primaryKey"`
	WorkbookID string `gorm:"not null;uniqueIndex:idx_workbook_question,priority:1"`
	Order      int    `gorm:"column:sort_order;not null;uniqueIndex:idx_workbook_question,priority:2"`
	Prompt     string `gorm:"type:text;not null"`
	InputType  string `gorm:"not null;default:text"`
}

type StudentAnswerModel struct {
	ID         string `gorm:"primaryKey"`
	QuestionID string `gorm:"not null;uniqueIndex:idx_student_answer,priority:1"`
	StudentID  string `gorm:"not null;uniqueIndex:idx_student_answer,priority:2"`
	Answer     string `gorm:"type:text"`
	UpdatedAt  time.Time
}

type ScheduledMessageModel struct {
	ID            string `gorm:"primaryKey"`
	ClassroomID   string `gorm:"not null;index"`
	Subject       string `gorm:"not null"`
	Body          string `gorm:"type:text"`
	AttachmentKey string
	ScheduledAt   time.Time `gorm:"not null;index"`
	Sent          bool      `gorm:"not null"`
	SentAt        *time.Time
	CreatedAt     time.Time
}
