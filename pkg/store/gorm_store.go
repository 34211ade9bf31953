package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"scitrek/pkg/domain"
)

const migrateLockID int64 = 52114711

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		return tx.AutoMigrate(
			&UserModel{},
			&ClassroomModel{},
			&StudentProfileModel{},
			&WorkbookModel{},
			&SectionModel{},
			&SectionImageModel{},
			&MessageModel{},
			&LearningModuleModel{},
			&ModuleAssignmentModel{},
			&QuizAssignmentModel{},
			&QuizQuestionModel{},
			&QuizAttemptModel{},
			&StudentResponseModel{},
			&WorkbookQuestionModel{},
			&StudentAnswerModel{},
			&ScheduledMessageModel{},
		)
	}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// withMigrationLock serializes schema migration across replicas starting
// at the same time.
func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

// Transact runs fn inside one database transaction.
func (s *GormStore) Transact(fn func(Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// CreateUser inserts a user; duplicate usernames map to ErrDuplicate.
func (s *GormStore) CreateUser(u domain.User) error {
	model := userToModel(u)
	return translateErr(s.db.Create(&model).Error)
}

// GetUser returns a user by ID.
func (s *GormStore) GetUser(id string) (domain.User, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		return domain.User{}, translateErr(err)
	}
	return userFromModel(model), nil
}

// GetUserByUsername looks up a user by username.
func (s *GormStore) GetUserByUsername(username string) (domain.User, error) {
	var model UserModel
	if err := s.db.First(&model, "username = ?", username).Error; err != nil {
		return domain.User{}, translateErr(err)
	}
	return userFromModel(model), nil
}

// ListActiveStudents returns all active student users ordered by creation.
func (s *GormStore) ListActiveStudents() ([]domain.User, error) {
	var models []UserModel
	if err := s.db.
		Where("is_student = ? AND is_active = ?", true, true).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, translateErr(err)
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

func (s *GormStore) CreateClassroom(c domain.Classroom) error {
	model := classroomToModel(c)
	return translateErr(s.db.Create(&model).Error)
}

func (s *GormStore) GetClassroom(id string) (domain.Classroom, error) {
	var model ClassroomModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		return domain.Classroom{}, translateErr(err)
	}
	return classroomFromModel(model), nil
}

func (s *GormStore) ListClassrooms() ([]domain.Classroom, error) {
	var models []ClassroomModel
	if err := s.db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, translateErr(err)
	}
	res := make([]domain.Classroom, 0, len(models))
	for _, m := range models {
		res = append(res, classroomFromModel(m))
	}
	return res, nil
}

func (s *GormStore) CreateStudentProfile(p domain.StudentProfile) error {
	model := profileToModel(p)
	return translateErr(s.db.Create(&model).Error)
}

func (s *GormStore) GetStudentProfileByUser(userID string) (domain.StudentProfile, error) {
	var model StudentProfileModel
	if err := s.db.First(&model, "user_id = ?", userID).Error; err != nil {
		return domain.StudentProfile{}, translateErr(err)
	}
	return profileFromModel(model), nil
}

func (s *GormStore) ListStudentsByClassroom(classroomID string) ([]domain.StudentProfile, error) {
	var models []StudentProfileModel
	if err := s.db.
		Where("classroom_id = ?", classroomID).
		Order("last_name ASC, first_name ASC").
		Find(&models).Error; err != nil {
		return nil, translateErr(err)
	}
	res := make([]domain.StudentProfile, 0, len(models))
	for _, m := range models {
		res = append(res, profileFromModel(m))
	}
	return res, nil
}

func (s *GormStore) CreateWorkbook(w domain.Workbook) error {
	model := workbookToModel(w)
	return translateErr(s.db.Create(&model).Error)
}

// UpdateWorkbook updates mutable workbook metadata; import timestamps are
// owned by MarkImportStarted/MarkImportFinished.
func (s *GormStore) UpdateWorkbook(w domain.Workbook) error {
	res := s.db.Model(&WorkbookModel{}).
		Where("id = ?", w.ID).
		Updates(map[string]any{
			"role":        string(w.Role),
			"title":       w.Title,
			"description": w.Description,
			"file_key":    w.FileKey,
			"strategy":    string(w.Strategy),
		})
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) GetWorkbook(id string) (domain.Workbook, error) {
	var model WorkbookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		return domain.Workbook{}, translateErr(err)
	}
	return workbookFromModel(model), nil
}

func (s *GormStore) ListWorkbooks() ([]domain.Workbook, error) {
	var models []WorkbookModel
	if err := s.db.Order("uploaded_at ASC").Find(&models).Error; err != nil {
		return nil, translateErr(err)
	}
	res := make([]domain.Workbook, 0, len(models))
	for _, m := range models {
		res = append(res, workbookFromModel(m))
	}
	return res, nil
}

// MarkImportStarted records the start of an import run and clears any
// previous error and finish time.
func (s *GormStore) MarkImportStarted(id string, at time.Time) error {
	res := s.db.Model(&WorkbookModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"import_started":  at,
			"import_finished": nil,
			"import_error":    "",
		})
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetImport returns a workbook to the pending state after its file
// was replaced; the previous run no longer describes the content.
func (s *GormStore) ResetImport(id string, uploadedAt time.Time) error {
	res := s.db.Model(&WorkbookModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"uploaded_at":     uploadedAt,
			"import_started":  nil,
			"import_finished": nil,
			"import_error":    "",
		})
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkImportFinished records the terminal state of an import run.
func (s *GormStore) MarkImportFinished(id string, at time.Time, importErr string) error {
	res := s.db.Model(&WorkbookModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"import_finished": at,
			"import_error":    importErr,
		})
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceSections atomically swaps the workbook's section set. Readers
// observe either the full old set or the full new set, never a mix.
func (s *GormStore) ReplaceSections(workbookID string, sections []domain.Section) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var old []SectionModel
		if err := tx.Select("id").Where("workbook_id = ?", workbookID).Find(&old).Error; err != nil {
			return err
		}
		if len(old) > 0 {
			ids := make([]string, 0, len(old))
			for _, m := range old {
				ids = append(ids, m.ID)
			}
			if err := tx.Delete(&SectionImageModel{}, "section_id IN ?", ids).Error; err != nil {
				return err
			}
			if err := tx.Delete(&SectionModel{}, "workbook_id = ?", workbookID).Error; err != nil {
				return err
			}
		}
		for _, section := range sections {
			model := sectionToModel(section)
			model.WorkbookID = workbookID
			if err := tx.Create(&model).Error; err != nil {
				return translateErr(err)
			}
		}
		return nil
	})
}

func (s *GormStore) ListSections(workbookID string) ([]domain.Section, error) {
	var models []SectionModel
	if err := s.db.
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		Where("workbook_id = ?", workbookID).
		Order("sort_order ASC").
		Find(&models).Error; err != nil {
		return nil, translateErr(err)
	}
	res := make([]domain.Section, 0, len(models))
	for _, m := range models {
		res = append(res, sectionFromModel(m))
	}
	return res, nil
}

func (s *GormStore) GetSection(id string) (domain.Section, error) {
	var model SectionModel
	if err := s.db.
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		First(&model, "id = ?", id).Error; err != nil {
		return domain.Section{}, translateErr(err)
	}
	return sectionFromModel(model), nil
}

func (s *GormStore) UpdateSectionContent(id, contentHTML string) error {
	res := s.db.Model(&SectionModel{}).
		Where("id = ?", id).
		Update("content_html", contentHTML)
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) CreateWorkbookQuestion(q domain.WorkbookQuestion) error {
	model := WorkbookQuestionModel{
		ID:         q.ID,
		WorkbookID: q.WorkbookID,
		Order:      q.Order,
		Prompt:     q.Prompt,
		InputType:  q.InputType,
	}
	return translateErr(s.db.Create(&model).Error)
}

func (s *GormStore) ListWorkbookQuestions(workbookID string) ([]domain.WorkbookQuestion, error) {
	var models []WorkbookQuestionModel
	if err := s.db.
		Where("workbook_id = ?", workbookID).
		Order("sort_order ASC").
		Find(&models).Error; err != nil {
		return nil, translateErr(err)
	}
	res := make([]domain.WorkbookQuestion, 0, len(models))
	for _, m := range models {
		res = append(res, domain.WorkbookQuestion{
			ID:         m.ID,
			WorkbookID: m.WorkbookID,
			Order:      m.Order,
			Prompt:     m.Prompt,
			InputType:  m.InputType,
		})
	}
	return res, nil
}

// UpsertStudentAnswer writes the student's answer, replacing any previous
// answer to the same question.
func (s *GormStore) UpsertStudentAnswer(a domain.StudentAnswer) error {
	res := s.db.Model(&StudentAnswerModel{}).
		Where("question_id = ? AND student_id = ?", a.QuestionID, a.StudentID).
		Updates(map[string]any{"answer": a.Answer, "updated_at": a.UpdatedAt})
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	model := StudentAnswerModel{
		ID:         a.ID,
		QuestionID: a.QuestionID,
		StudentID:  a.StudentID,
		Answer:     a.Answer,
		UpdatedAt:  a.UpdatedAt,
	}
	return translateErr(s.db.Create(&model).Error)
}

// CreateMessage inserts an inbox message. A concurrent insert of the same
// (sender, recipient, subject) triplet surfaces as ErrDuplicate.
func (s *GormStore) CreateMessage(msg domain.Message) error {
	model := messageToModel(msg)
	return translateErr(s.db.Create(&model).Error)
}

// MessagesBySubject returns all messages for one triplet, oldest first.
func (s *GormStore) MessagesBySubject(senderID, recipientID, subject string) ([]domain.Message, error) {
	var models []MessageModel
	if err := s.db.
		Where("sender_id = ? AND recipient_id = ? AND subject = ?", senderID, recipientID, subject).
		Order("timestamp ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, translateErr(err)
	}
	res := make([]domain.Message, 0, len(models))
	for _, m := range models {
		res = append(res, messageFromModel(m))
	}
	return res, nil
}

// UpdateMessageBody overwrites the body only; timestamp and read state
// are preserved.
func (s *GormStore) UpdateMessageBody(id, body string) error {
	res := s.db.Model(&MessageModel{}).Where("id = ?", id).Update("body", body)
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) DeleteMessages(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return translateErr(s.db.Delete(&MessageModel{}, "id IN ?", ids).Error)
}

// ListInbox returns a recipient's messages, newest first.
func (s *GormStore) ListInbox(recipientID string) ([]domain.Message, error) {
	var models []MessageModel
	if err := s.db.
		Where("recipient_id = ?", recipientID).
		Order("timestamp DESC, id DESC").
		Find(&models).Error; err != nil {
		return nil, translateErr(err)
	}
	res := make([]domain.Message, 0, len(models))
	for _, m := range models {
		res = append(res, messageFromModel(m))
	}
	return res, nil
}

func (s *GormStore) UnreadCount(recipientID string) (int, error) {
	var count int64
	if err := s.db.Model(&MessageModel{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error; err != nil {
		return 0, translateErr(err)
	}
	return int(count), nil
}

// MarkMessageRead flips the read flag; scoped to the recipient so users
// cannot mark other inboxes.
func (s *GormStore) MarkMessageRead(id, recipientID string) error {
	res := s.db.Model(&MessageModel{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Update("is_read", true)
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) CreateModule(m domain.LearningModule) error {
	model := moduleToModel(m)
	return translateErr(s.db.Create(&model).Error)
}

func (s *GormStore) ListModules(classroomID string) ([]domain.LearningModule, error) {
	var models []LearningModuleModel
	if err := s.db.
		Where("classroom_id = ?", classroomID).
		Order("day ASC").
		Find(&models).Error; err != nil {
		return nil, translateErr(err)
	}
	res := make([]domain.LearningModule, 0, len(models))
	for _, m := range models {
		res = append(res, moduleFromModel(m))
	}
	return res, nil
}

func (s *GormStore) GetModule(id string) (domain.LearningModule, error) {
	var model LearningModuleModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		return domain.LearningModule{}, translateErr(err)
	}
	return moduleFromModel(model), nil
}

func (s *GormStore) CreateModuleAssignment(a domain.ModuleAssignment) error {
	model := ModuleAssignmentModel{
		ID:          a.ID,
		ClassroomID: a.ClassroomID,
		ModuleID:    a.ModuleID,
		ReleaseDate: a.ReleaseDate,
		CreatedAt:   a.CreatedAt,
	}
	return translateErr(s.db.Create(&model).Error)
}

func (s *GormStore) ListModuleAssignments(classroomID string) ([]domain.ModuleAssignment, error) {
	var models []ModuleAssignmentModel
	if err := s.db.
		Where("classroom_id = ?", classroomID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, translateErr(err)
	}
	res := make([]domain.ModuleAssignment, 0, len(models))
	for _, m := range models {
		res = append(res, domain.ModuleAssignment{
			ID:          m.ID,
			ClassroomID: m.ClassroomID,
			ModuleID:    m.ModuleID,
			ReleaseDate: m.ReleaseDate,
			CreatedAt:   m.CreatedAt,
		})
	}
	return res, nil
}

func (s *GormStore) CreateQuizAssignment(a domain.QuizAssignment) error {
	model := QuizAssignmentModel{
		ID:          a.ID,
		ClassroomID: a.ClassroomID,
		QuizType:    string(a.QuizType),
		ReleaseDate: a.ReleaseDate,
		CreatedAt:   a.CreatedAt,
	}
	return translateErr(s.db.Create(&model).Error)
}

func (s *GormStore) ListQuizAssignments(classroomID string) ([]domain.QuizAssignment, error) {
	var models []QuizAssignmentModel
	if err := s.db.
		Where("classroom_id = ?", classroomID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, translateErr(err)
	}
	res := make([]domain.QuizAssignment, 0, len(models))
	for _, m := range models {
		res = append(res, domain.QuizAssignment{
			ID:          m.ID,
			ClassroomID: m.ClassroomID,
			QuizType:    domain.QuizType(m.QuizType),
			ReleaseDate: m.ReleaseDate,
			CreatedAt:   m.CreatedAt,
		})
	}
	return res, nil
}

func (s *GormStore) CreateQuizQuestion(q domain.QuizQuestion) error {
	model, err := quizQuestionToModel(q)
	if err != nil {
		return fmt.Errorf("encode quiz choices: %w", err)
	}
	return translateErr(s.db.Create(&model).Error)
}

func (s *GormStore) ListQuizQuestions(classroomID string, quizType domain.QuizType) ([]domain.QuizQuestion, error) {
	var models []QuizQuestionModel
	if err := s.db.
		Where("classroom_id = ? AND quiz_type = ?", classroomID, string(quizType)).
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, translateErr(err)
	}
	res := make([]domain.QuizQuestion, 0, len(models))
	for _, m := range models {
		res = append(res, quizQuestionFromModel(m))
	}
	return res, nil
}

// CreateQuizAttempt records a scored attempt; a second attempt for the
// same (student, quiz type) maps to ErrDuplicate.
func (s *GormStore) CreateQuizAttempt(a domain.QuizAttempt) error {
	model := quizAttemptToModel(a)
	return translateErr(s.db.Create(&model).Error)
}

func (s *GormStore) GetQuizAttempt(studentID string, quizType domain.QuizType) (domain.QuizAttempt, error) {
	var model QuizAttemptModel
	if err := s.db.
		First(&model, "student_id = ? AND quiz_type = ?", studentID, string(quizType)).Error; err != nil {
		return domain.QuizAttempt{}, translateErr(err)
	}
	return quizAttemptFromModel(model), nil
}

// UpsertStudentResponse writes or replaces a student's module answers.
func (s *GormStore) UpsertStudentResponse(r domain.StudentResponse) error {
	res := s.db.Model(&StudentResponseModel{}).
		Where("student_id = ? AND module_id = ?", r.StudentID, r.ModuleID).
		Updates(map[string]any{
			"answers":      datatypes.JSON(r.Answers),
			"file_key":     r.FileKey,
			"completed_at": r.CompletedAt,
		})
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	model := responseToModel(r)
	return translateErr(s.db.Create(&model).Error)
}

func (s *GormStore) GetStudentResponse(studentID, moduleID string) (domain.StudentResponse, error) {
	var model StudentResponseModel
	if err := s.db.
		First(&model, "student_id = ? AND module_id = ?", studentID, moduleID).Error; err != nil {
		return domain.StudentResponse{}, translateErr(err)
	}
	return responseFromModel(model), nil
}

func (s *GormStore) CreateScheduledMessage(m domain.ScheduledMessage) error {
	model := scheduledToModel(m)
	return translateErr(s.db.Create(&model).Error)
}

func (s *GormStore) GetScheduledMessage(id string) (domain.ScheduledMessage, error) {
	var model ScheduledMessageModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		return domain.ScheduledMessage{}, translateErr(err)
	}
	return scheduledFromModel(model), nil
}

func (s *GormStore) ListScheduledMessages(classroomID string) ([]domain.ScheduledMessage, error) {
	var models []ScheduledMessageModel
	if err := s.db.
		Where("classroom_id = ?", classroomID).
		Order("scheduled_at ASC").
		Find(&models).Error; err != nil {
		return nil, translateErr(err)
	}
	res := make([]domain.ScheduledMessage, 0, len(models))
	for _, m := range models {
		res = append(res, scheduledFromModel(m))
	}
	return res, nil
}

// ListDueScheduledMessages returns unsent messages whose scheduled time
// has passed.
func (s *GormStore) ListDueScheduledMessages(now time.Time) ([]domain.ScheduledMessage, error) {
	var models []ScheduledMessageModel
	if err := s.db.
		Where("sent = ? AND scheduled_at <= ?", false, now).
		Order("scheduled_at ASC").
		Find(&models).Error; err != nil {
		return nil, translateErr(err)
	}
	res := make([]domain.ScheduledMessage, 0, len(models))
	for _, m := range models {
		res = append(res, scheduledFromModel(m))
	}
	return res, nil
}

func (s *GormStore) MarkScheduledMessageSent(id string, at time.Time) error {
	res := s.db.Model(&ScheduledMessageModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"sent": true, "sent_at": at})
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
