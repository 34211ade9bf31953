package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"scitrek/pkg/domain"
)

// MemoryStore is an in-memory Store used by tests and local development.
type MemoryStore struct {
	mu sync.Mutex

	users             map[string]domain.User
	classrooms        map[string]domain.Classroom
	profiles          map[string]domain.StudentProfile
	workbooks         map[string]domain.Workbook
	sections          map[string]domain.Section
	workbookQuestions map[string]domain.WorkbookQuestion
	studentAnswers    map[string]domain.StudentAnswer
	messages          map[string]domain.Message
	msgSeq            map[string]int64
	modules           map[string]domain.LearningModule
	moduleAssigns     map[string]domain.ModuleAssignment
	quizAssigns       map[string]domain.QuizAssignment
	quizQuestions     map[string]domain.QuizQuestion
	quizAttempts      map[string]domain.QuizAttempt
	responses         map[string]domain.StudentResponse
	scheduled         map[string]domain.ScheduledMessage

	seq int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:             make(map[string]domain.User),
		classrooms:        make(map[string]domain.Classroom),
		profiles:          make(map[string]domain.StudentProfile),
		workbooks:         make(map[string]domain.Workbook),
		sections:          make(map[string]domain.Section),
		workbookQuestions: make(map[string]domain.WorkbookQuestion),
		studentAnswers:    make(map[string]domain.StudentAnswer),
		messages:          make(map[string]domain.Message),
		msgSeq:            make(map[string]int64),
		modules:           make(map[string]domain.LearningModule),
		moduleAssigns:     make(map[string]domain.ModuleAssignment),
		quizAssigns:       make(map[string]domain.QuizAssignment),
		quizQuestions:     make(map[string]domain.QuizQuestion),
		quizAttempts:      make(map[string]domain.QuizAttempt),
		responses:         make(map[string]domain.StudentResponse),
		scheduled:         make(map[string]domain.ScheduledMessage),
	}
}

// Transact runs fn against the same store. No rollback on error; the
// in-memory store is for tests and single-process development only.
func (s *MemoryStore) Transact(fn func(Store) error) error {
	return fn(s)
}

func (s *MemoryStore) CreateUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return ErrDuplicate
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) GetUser(id string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) GetUserByUsername(username string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return domain.User{}, ErrNotFound
}

func (s *MemoryStore) ListActiveStudents() ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.User
	for _, u := range s.users {
		if u.IsStudent && u.IsActive {
			res = append(res, u)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}

func (s *MemoryStore) CreateClassroom(c domain.Classroom) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.classrooms {
		if existing.Name == c.Name {
			return ErrDuplicate
		}
	}
	s.classrooms[c.ID] = c
	return nil
}

func (s *MemoryStore) GetClassroom(id string) (domain.Classroom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classrooms[id]
	if !ok {
		return domain.Classroom{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) ListClassrooms() ([]domain.Classroom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.Classroom
	for _, c := range s.classrooms {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (s *MemoryStore) CreateStudentProfile(p domain.StudentProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.profiles {
		if existing.UserID == p.UserID {
			return ErrDuplicate
		}
	}
	s.profiles[p.ID] = p
	return nil
}

func (s *MemoryStore) GetStudentProfileByUser(userID string) (domain.StudentProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.UserID == userID {
			return p, nil
		}
	}
	return domain.StudentProfile{}, ErrNotFound
}

func (s *MemoryStore) ListStudentsByClassroom(classroomID string) ([]domain.StudentProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.StudentProfile
	for _, p := range s.profiles {
		if p.ClassroomID == classroomID {
			res = append(res, p)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].LastName != res[j].LastName {
			return res[i].LastName < res[j].LastName
		}
		return res[i].FirstName < res[j].FirstName
	})
	return res, nil
}

func (s *MemoryStore) CreateWorkbook(w domain.Workbook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workbooks[w.ID] = w
	return nil
}

func (s *MemoryStore) UpdateWorkbook(w domain.Workbook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.workbooks[w.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Role = w.Role
	existing.Title = w.Title
	existing.Description = w.Description
	existing.FileKey = w.FileKey
	existing.Strategy = w.Strategy
	s.workbooks[w.ID] = existing
	return nil
}

func (s *MemoryStore) GetWorkbook(id string) (domain.Workbook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workbooks[id]
	if !ok {
		return domain.Workbook{}, ErrNotFound
	}
	return w, nil
}

func (s *MemoryStore) ListWorkbooks() ([]domain.Workbook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.Workbook
	for _, w := range s.workbooks {
		res = append(res, w)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UploadedAt.Before(res[j].UploadedAt) })
	return res, nil
}

func (s *MemoryStore) MarkImportStarted(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workbooks[id]
	if !ok {
		return ErrNotFound
	}
	started := at
	w.ImportStarted = &started
	w.ImportFinished = nil
	w.ImportError = ""
	s.workbooks[id] = w
	return nil
}

func (s *MemoryStore) ResetImport(id string, uploadedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workbooks[id]
	if !ok {
		return ErrNotFound
	}
	w.UploadedAt = uploadedAt
	w.ImportStarted = nil
	w.ImportFinished = nil
	w.ImportError = ""
	s.workbooks[id] = w
	return nil
}

func (s *MemoryStore) MarkImportFinished(id string, at time.Time, importErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workbooks[id]
	if !ok {
		return ErrNotFound
	}
	finished := at
	w.ImportFinished = &finished
	w.ImportError = importErr
	s.workbooks[id] = w
	return nil
}

func (s *MemoryStore) ReplaceSections(workbookID string, sections []domain.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sec := range s.sections {
		if sec.WorkbookID == workbookID {
			delete(s.sections, id)
		}
	}
	for _, sec := range sections {
		sec.WorkbookID = workbookID
		s.sections[sec.ID] = sec
	}
	return nil
}

func (s *MemoryStore) ListSections(workbookID string) ([]domain.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.Section
	for _, sec := range s.sections {
		if sec.WorkbookID == workbookID {
			res = append(res, sec)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Order < res[j].Order })
	return res, nil
}

func (s *MemoryStore) GetSection(id string) (domain.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.sections[id]
	if !ok {
		return domain.Section{}, ErrNotFound
	}
	return sec, nil
}

func (s *MemoryStore) UpdateSectionContent(id, contentHTML string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.sections[id]
	if !ok {
		return ErrNotFound
	}
	sec.ContentHTML = contentHTML
	s.sections[id] = sec
	return nil
}

func (s *MemoryStore) CreateWorkbookQuestion(q domain.WorkbookQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.workbookQuestions {
		if existing.WorkbookID == q.WorkbookID && existing.Order == q.Order {
			return ErrDuplicate
		}
	}
	s.workbookQuestions[q.ID] = q
	return nil
}

func (s *MemoryStore) ListWorkbookQuestions(workbookID string) ([]domain.WorkbookQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.WorkbookQuestion
	for _, q := range s.workbookQuestions {
		if q.WorkbookID == workbookID {
			res = append(res, q)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Order < res[j].Order })
	return res, nil
}

func (s *MemoryStore) UpsertStudentAnswer(a domain.StudentAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := a.QuestionID + "/" + a.StudentID
	if existing, ok := s.studentAnswers[key]; ok {
		existing.Answer = a.Answer
		existing.UpdatedAt = a.UpdatedAt
		s.studentAnswers[key] = existing
		return nil
	}
	s.studentAnswers[key] = a
	return nil
}

func (s *MemoryStore) CreateMessage(msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.messages {
		if existing.SenderID == msg.SenderID &&
			existing.RecipientID == msg.RecipientID &&
			existing.Subject == msg.Subject {
			return ErrDuplicate
		}
	}
	s.seq++
	s.messages[msg.ID] = msg
	s.msgSeq[msg.ID] = s.seq
	return nil
}

func (s *MemoryStore) MessagesBySubject(senderID, recipientID, subject string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.Message
	for _, m := range s.messages {
		if m.SenderID == senderID && m.RecipientID == recipientID && m.Subject == subject {
			res = append(res, m)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Timestamp.Equal(res[j].Timestamp) {
			return s.msgSeq[res[i].ID] < s.msgSeq[res[j].ID]
		}
		return res[i].Timestamp.Before(res[j].Timestamp)
	})
	return res, nil
}

func (s *MemoryStore) UpdateMessageBody(id, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	m.Body = body
	s.messages[id] = m
	return nil
}

func (s *MemoryStore) DeleteMessages(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.messages, id)
		delete(s.msgSeq, id)
	}
	return nil
}

func (s *MemoryStore) ListInbox(recipientID string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.Message
	for _, m := range s.messages {
		if m.RecipientID == recipientID {
			res = append(res, m)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Timestamp.Equal(res[j].Timestamp) {
			return s.msgSeq[res[i].ID] > s.msgSeq[res[j].ID]
		}
		return res[i].Timestamp.After(res[j].Timestamp)
	})
	return res, nil
}

func (s *MemoryStore) UnreadCount(recipientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, m := range s.messages {
		if m.RecipientID == recipientID && !m.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) MarkMessageRead(id, recipientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.RecipientID != recipientID {
		return ErrNotFound
	}
	m.IsRead = true
	s.messages[id] = m
	return nil
}

func (s *MemoryStore) CreateModule(m domain.LearningModule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.modules {
		if existing.Day == m.Day {
			return ErrDuplicate
		}
	}
	s.modules[m.ID] = m
	return nil
}

func (s *MemoryStore) ListModules(classroomID string) ([]domain.LearningModule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.LearningModule
	for _, m := range s.modules {
		if m.ClassroomID == classroomID {
			res = append(res, m)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Day < res[j].Day })
	return res, nil
}

func (s *MemoryStore) GetModule(id string) (domain.LearningModule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[id]
	if !ok {
		return domain.LearningModule{}, ErrNotFound
	}
	return m, nil
}

func (s *MemoryStore) CreateModuleAssignment(a domain.ModuleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.moduleAssigns {
		if existing.ClassroomID == a.ClassroomID && existing.ModuleID == a.ModuleID {
			return ErrDuplicate
		}
	}
	s.moduleAssigns[a.ID] = a
	return nil
}

func (s *MemoryStore) ListModuleAssignments(classroomID string) ([]domain.ModuleAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.ModuleAssignment
	for _, a := range s.moduleAssigns {
		if a.ClassroomID == classroomID {
			res = append(res, a)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (s *MemoryStore) CreateQuizAssignment(a domain.QuizAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.quizAssigns {
		if existing.ClassroomID == a.ClassroomID && existing.QuizType == a.QuizType {
			return ErrDuplicate
		}
	}
	s.quizAssigns[a.ID] = a
	return nil
}

func (s *MemoryStore) ListQuizAssignments(classroomID string) ([]domain.QuizAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.QuizAssignment
	for _, a := range s.quizAssigns {
		if a.ClassroomID == classroomID {
			res = append(res, a)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (s *MemoryStore) CreateQuizQuestion(q domain.QuizQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizQuestions[q.ID] = q
	return nil
}

func (s *MemoryStore) ListQuizQuestions(classroomID string, quizType domain.QuizType) ([]domain.QuizQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.QuizQuestion
	for _, q := range s.quizQuestions {
		if q.ClassroomID == classroomID && q.QuizType == quizType {
			res = append(res, q)
		}
	}
	sort.Slice(res, func(i, j int) bool { return strings.Compare(res[i].ID, res[j].ID) < 0 })
	return res, nil
}

func (s *MemoryStore) CreateQuizAttempt(a domain.QuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.quizAttempts {
		if existing.StudentID == a.StudentID && existing.QuizType == a.QuizType {
			return ErrDuplicate
		}
	}
	s.quizAttempts[a.ID] = a
	return nil
}

func (s *MemoryStore) GetQuizAttempt(studentID string, quizType domain.QuizType) (domain.QuizAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.quizAttempts {
		if a.StudentID == studentID && a.QuizType == quizType {
			return a, nil
		}
	}
	return domain.QuizAttempt{}, ErrNotFound
}

func (s *MemoryStore) UpsertStudentResponse(r domain.StudentResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := r.StudentID + "/" + r.ModuleID
	if existing, ok := s.responses[key]; ok {
		existing.Answers = r.Answers
		existing.FileKey = r.FileKey
		existing.CompletedAt = r.CompletedAt
		s.responses[key] = existing
		return nil
	}
	s.responses[key] = r
	return nil
}

func (s *MemoryStore) GetStudentResponse(studentID, moduleID string) (domain.StudentResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.responses[studentID+"/"+moduleID]
	if !ok {
		return domain.StudentResponse{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) CreateScheduledMessage(m domain.ScheduledMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled[m.ID] = m
	return nil
}

func (s *MemoryStore) GetScheduledMessage(id string) (domain.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.scheduled[id]
	if !ok {
		return domain.ScheduledMessage{}, ErrNotFound
	}
	return m, nil
}

func (s *MemoryStore) ListScheduledMessages(classroomID string) ([]domain.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.ScheduledMessage
	for _, m := range s.scheduled {
		if m.ClassroomID == classroomID {
			res = append(res, m)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ScheduledAt.Before(res[j].ScheduledAt) })
	return res, nil
}

func (s *MemoryStore) ListDueScheduledMessages(now time.Time) ([]domain.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.ScheduledMessage
	for _, m := range s.scheduled {
		if !m.Sent && !m.ScheduledAt.After(now) {
			res = append(res, m)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ScheduledAt.Before(res[j].ScheduledAt) })
	return res, nil
}

func (s *MemoryStore) MarkScheduledMessageSent(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.scheduled[id]
	if !ok {
		return ErrNotFound
	}
	m.Sent = true
	sentAt := at
	m.SentAt = &sentAt
	s.scheduled[id] = m
	return nil
}
