package store

import (
	"errors"
	"time"

	"scitrek/pkg/domain"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write violates a uniqueness
	// invariant, e.g. a second message with the same
	// (sender, recipient, subject) triplet.
	ErrDuplicate = errors.New("duplicate record")
)

// Store defines persistence for the classroom platform.
type Store interface {
	// Transact runs fn atomically. The Store passed to fn must be used
	// for every operation inside the transaction.
	Transact(fn func(Store) error) error

	// users
	CreateUser(domain.User) error
	GetUser(id string) (domain.User, error)
	GetUserByUsername(username string) (domain.User, error)
	ListActiveStudents() ([]domain.User, error)

	// classrooms and roster
	CreateClassroom(domain.Classroom) error
	GetClassroom(id string) (domain.Classroom, error)
	ListClassrooms() ([]domain.Classroom, error)
	CreateStudentProfile(domain.StudentProfile) error
	GetStudentProfileByUser(userID string) (domain.StudentProfile, error)
	ListStudentsByClassroom(classroomID string) ([]domain.StudentProfile, error)

	// workbooks and sections
	CreateWorkbook(domain.Workbook) error
	UpdateWorkbook(domain.Workbook) error
	GetWorkbook(id string) (domain.Workbook, error)
	ListWorkbooks() ([]domain.Workbook, error)
	MarkImportStarted(id string, at time.Time) error
	MarkImportFinished(id string, at time.Time, importErr string) error
	ResetImport(id string, uploadedAt time.Time) error
	ReplaceSections(workbookID string, sections []domain.Section) error
	ListSections(workbookID string) ([]domain.Section, error)
	GetSection(id string) (domain.Section, error)
	UpdateSectionContent(id, contentHTML string) error

	// workbook questions and student answers
	CreateWorkbookQuestion(domain.WorkbookQuestion) error
	ListWorkbookQuestions(workbookID string) ([]domain.WorkbookQuestion, error)
	UpsertStudentAnswer(domain.StudentAnswer) error

	// inbox messages
	CreateMessage(domain.Message) error
	MessagesBySubject(senderID, recipientID, subject string) ([]domain.Message, error)
	UpdateMessageBody(id, body string) error
	DeleteMessages(ids []string) error
	ListInbox(recipientID string) ([]domain.Message, error)
	UnreadCount(recipientID string) (int, error)
	MarkMessageRead(id, recipientID string) error

	// learning modules and assignments
	CreateModule(domain.LearningModule) error
	ListModules(classroomID string) ([]domain.LearningModule, error)
	GetModule(id string) (domain.LearningModule, error)
	CreateModuleAssignment(domain.ModuleAssignment) error
	ListModuleAssignments(classroomID string) ([]domain.ModuleAssignment, error)
	CreateQuizAssignment(domain.QuizAssignment) error
	ListQuizAssignments(classroomID string) ([]domain.QuizAssignment, error)

	// quizzes
	CreateQuizQuestion(domain.QuizQuestion) error
	ListQuizQuestions(classroomID string, quizType domain.QuizType) ([]domain.QuizQuestion, error)
	CreateQuizAttempt(domain.QuizAttempt) error
	GetQuizAttempt(studentID string, quizType domain.QuizType) (domain.QuizAttempt, error)

	// module responses
	UpsertStudentResponse(domain.StudentResponse) error
	GetStudentResponse(studentID, moduleID string) (domain.StudentResponse, error)

	// scheduled messages
	CreateScheduledMessage(domain.ScheduledMessage) error
	GetScheduledMessage(id string) (domain.ScheduledMessage, error)
	ListScheduledMessages(classroomID string) ([]domain.ScheduledMessage, error)
	ListDueScheduledMessages(now time.Time) ([]domain.ScheduledMessage, error)
	MarkScheduledMessageSent(id string, at time.Time) error
}
