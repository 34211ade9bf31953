package domain

import (
	"encoding/json"
	"time"
)

// WorkbookRole distinguishes student and teacher editions of a workbook.
type WorkbookRole string

const (
	RoleStudentWorkbook WorkbookRole = "student"
	RoleTeacherWorkbook WorkbookRole = "teacher"
)

// ImportStrategy selects how a workbook PDF is turned into sections.
// It is chosen once when the workbook is created, not re-detected per run.
type ImportStrategy string

const (
	// StrategyText extracts text and splits it on known headings.
	StrategyText ImportStrategy = "text"
	// StrategyPages rasterizes each page into an image-backed section.
	StrategyPages ImportStrategy = "pages"
)

// ImportState is the workbook import lifecycle, projected from the
// started/finished timestamps and the error field at the storage boundary.
type ImportState string

const (
	ImportPending    ImportState = "pending"
	ImportInProgress ImportState = "in_progress"
	ImportDone       ImportState = "done"
	ImportErrored    ImportState = "errored"
)

// Workbook is an uploaded document template, pending or completed
// ingestion into sections.
type Workbook struct {
	ID             string         `json:"id"`
	Role           WorkbookRole   `json:"role"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	FileKey        string         `json:"-"` // blob store key; empty means no file yet
	Strategy       ImportStrategy `json:"strategy"`
	UploadedAt     time.Time      `json:"uploadedAt"`
	ImportStarted  *time.Time     `json:"importStarted,omitempty"`
	ImportFinished *time.Time     `json:"importFinished,omitempty"`
	ImportError    string         `json:"importError,omitempty"`
}

// ImportState derives the lifecycle state from the timestamp pair.
func (w Workbook) ImportState() ImportState {
	switch {
	case w.ImportStarted == nil:
		return ImportPending
	case w.ImportFinished == nil:
		return ImportInProgress
	case w.ImportError != "":
		return ImportErrored
	default:
		return ImportDone
	}
}

// Section is an ordered, titled chunk of a workbook's content.
// Order is 1-based and unique within the workbook.
type Section struct {
	ID          string         `json:"id"`
	WorkbookID  string         `json:"workbookId"`
	Order       int            `json:"order"`
	Heading     string         `json:"heading"`
	ContentHTML string         `json:"contentHtml"`
	Images      []SectionImage `json:"images,omitempty"`
}

// SectionImage is an image attached to a section, stored in the blob store.
type SectionImage struct {
	ID        string `json:"id"`
	SectionID string `json:"sectionId"`
	ImageKey  string `json:"imageKey"`
	Caption   string `json:"caption,omitempty"`
	Order     int    `json:"order"`
}

// User is an account on the platform. The system sender used for inbox
// seeding is a regular user with both role flags unset.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	FirstName    string    `json:"firstName,omitempty"`
	LastName     string    `json:"lastName,omitempty"`
	PasswordHash string    `json:"-"`
	IsStudent    bool      `json:"isStudent"`
	IsTeacher    bool      `json:"isTeacher"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Classroom groups students under one teacher.
type Classroom struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	TeacherID   string    `json:"teacherId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// StudentProfile links a student user to a classroom roster entry.
type StudentProfile struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	ClassroomID string    `json:"classroomId,omitempty"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Message is an inbox message. (SenderID, RecipientID, Subject) is the
// natural deduplication key and is enforced unique by the store.
type Message struct {
	ID            string    `json:"id"`
	SenderID      string    `json:"senderId"`
	RecipientID   string    `json:"recipientId"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body"`
	Timestamp     time.Time `json:"timestamp"`
	IsRead        bool      `json:"isRead"`
	AttachmentKey string    `json:"-"`
}

// LearningModule is one day of classroom content.
type LearningModule struct {
	ID          string `json:"id"`
	Day         int    `json:"day"` // 1..5, unique
	Title       string `json:"title"`
	Content     string `json:"content"`
	ClassroomID string `json:"classroomId"`
}

// ModuleAssignment releases a module to a classroom.
type ModuleAssignment struct {
	ID          string     `json:"id"`
	ClassroomID string     `json:"classroomId"`
	ModuleID    string     `json:"moduleId"`
	ReleaseDate *time.Time `json:"releaseDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// QuizType tags the pre- and post-module quizzes.
type QuizType string

const (
	QuizPre  QuizType = "pre"
	QuizPost QuizType = "post"
)

// QuizAssignment releases a quiz to a classroom.
type QuizAssignment struct {
	ID          string     `json:"id"`
	ClassroomID string     `json:"classroomId"`
	QuizType    QuizType   `json:"quizType"`
	ReleaseDate *time.Time `json:"releaseDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// QuizQuestion is a multiple-choice question. Choices maps option keys
// ("A", "B", ...) to display text; Answer is the correct key.
type QuizQuestion struct {
	ID           string            `json:"id"`
	QuizType     QuizType          `json:"quizType"`
	ClassroomID  string            `json:"classroomId"`
	QuestionText string            `json:"questionText"`
	Choices      map[string]string `json:"choices"`
	Answer       string            `json:"answer,omitempty"`
}

// QuizAttempt records one scored attempt per (student, quiz type).
type QuizAttempt struct {
	ID          string          `json:"id"`
	StudentID   string          `json:"studentId"`
	QuizType    QuizType        `json:"quizType"`
	Score       float64         `json:"score"`
	AttemptData json.RawMessage `json:"attemptData"`
	Timestamp   time.Time       `json:"timestamp"`
}

// StudentResponse holds a student's answers for one module.
type StudentResponse struct {
	ID          string          `json:"id"`
	StudentID   string          `json:"studentId"`
	ModuleID    string          `json:"moduleId"`
	Answers     json.RawMessage `json:"answers"`
	FileKey     string          `json:"-"`
	CompletedAt time.Time       `json:"completedAt"`
}

// WorkbookQuestion is an ordered prompt inside a workbook.
type WorkbookQuestion struct {
	ID         string `json:"id"`
	WorkbookID string `json:"workbookId"`
	Order      int    `json:"order"`
	Prompt     string `json:"prompt"`
	InputType  string `json:"inputType"` // text | textarea | number
}

// StudentAnswer is a student's answer to a workbook question.
type StudentAnswer struct {
	ID         string    `json:"id"`
	QuestionID string    `json:"questionId"`
	StudentID  string    `json:"studentId"`
	Answer     string    `json:"answer"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ScheduledMessage is a teacher announcement delivered to every student
// in a classroom once its scheduled time passes.
type ScheduledMessage struct {
	ID            string     `json:"id"`
	ClassroomID   string     `json:"classroomId"`
	Subject       string     `json:"subject"`
	Body          string     `json:"body"`
	AttachmentKey string     `json:"-"`
	ScheduledAt   time.Time  `json:"scheduledAt"`
	Sent          bool       `json:"sent"`
	SentAt        *time.Time `json:"sentAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}
