package store

import (
	"encoding/json"

	"gorm.io/datatypes"

	"scitrek/pkg/domain"
)

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Username:     u.Username,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		PasswordHash: u.PasswordHash,
		IsStudent:    u.IsStudent,
		IsTeacher:    u.IsTeacher,
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		PasswordHash: m.PasswordHash,
		IsStudent:    m.IsStudent,
		IsTeacher:    m.IsTeacher,
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt,
	}
}

func classroomToModel(c domain.Classroom) ClassroomModel {
	return ClassroomModel{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		TeacherID:   c.TeacherID,
		CreatedAt:   c.CreatedAt,
	}
}

func classroomFromModel(m ClassroomModel) domain.Classroom {
	return domain.Classroom{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		TeacherID:   m.TeacherID,
		CreatedAt:   m.CreatedAt,
	}
}

func profileToModel(p domain.StudentProfile) StudentProfileModel {
	m := StudentProfileModel{
		ID:        p.ID,
		UserID:    p.UserID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		CreatedAt: p.CreatedAt,
	}
	if p.ClassroomID != "" {
		classroomID := p.ClassroomID
		m.ClassroomID = &classroomID
	}
	return m
}

func profileFromModel(m StudentProfileModel) domain.StudentProfile {
	p := domain.StudentProfile{
		ID:        m.ID,
		UserID:    m.UserID,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		CreatedAt: m.CreatedAt,
	}
	if m.ClassroomID != nil {
		p.ClassroomID = *m.ClassroomID
	}
	return p
}

func workbookToModel(w domain.Workbook) WorkbookModel {
	return WorkbookModel{
		ID:             w.ID,
		Role:           string(w.Role),
		Title:          w.Title,
		Description:    w.Description,
		FileKey:        w.FileKey,
		Strategy:       string(w.Strategy),
		UploadedAt:     w.UploadedAt,
		ImportStarted:  w.ImportStarted,
		ImportFinished: w.ImportFinished,
		ImportError:    w.ImportError,
	}
}

func workbookFromModel(m WorkbookModel) domain.Workbook {
	return domain.Workbook{
		ID:             m.ID,
		Role:           domain.WorkbookRole(m.Role),
		Title:          m.Title,
		Description:    m.Description,
		FileKey:        m.FileKey,
		Strategy:       domain.ImportStrategy(m.Strategy),
		UploadedAt:     m.UploadedAt,
		ImportStarted:  m.ImportStarted,
		ImportFinished: m.ImportFinished,
		ImportError:    m.ImportError,
	}
}

func sectionToModel(s domain.Section) SectionModel {
	m := SectionModel{
		ID:          s.ID,
		WorkbookID:  s.WorkbookID,
		Order:       s.Order,
		Heading:     s.Heading,
		ContentHTML: s.ContentHTML,
	}
	for _, img := range s.Images {
		m.Images = append(m.Images, SectionImageModel{
			ID:        img.ID,
			SectionID: s.ID,
			ImageKey:  img.ImageKey,
			Caption:   img.Caption,
			Order:     img.Order,
		})
	}
	return m
}

func sectionFromModel(m SectionModel) domain.Section {
	s := domain.Section{
		ID:          m.ID,
		WorkbookID:  m.WorkbookID,
		Order:       m.Order,
		Heading:     m.Heading,
		ContentHTML: m.ContentHTML,
	}
	for _, img := range m.Images {
		s.Images = append(s.Images, domain.SectionImage{
			ID:        img.ID,
			SectionID: img.SectionID,
			ImageKey:  img.ImageKey,
			Caption:   img.Caption,
			Order:     img.Order,
		})
	}
	return s
}

func messageToModel(msg domain.Message) MessageModel {
	return MessageModel{
		ID:            msg.ID,
		SenderID:      msg.SenderID,
		RecipientID:   msg.RecipientID,
		Subject:       msg.Subject,
		Body:          msg.Body,
		Timestamp:     msg.Timestamp,
		IsRead:        msg.IsRead,
		AttachmentKey: msg.AttachmentKey,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:            m.ID,
		SenderID:      m.SenderID,
		RecipientID:   m.RecipientID,
		Subject:       m.Subject,
		Body:          m.Body,
		Timestamp:     m.Timestamp,
		IsRead:        m.IsRead,
		AttachmentKey: m.AttachmentKey,
	}
}

func moduleToModel(m domain.LearningModule) LearningModuleModel {
	return LearningModuleModel{
		ID:          m.ID,
		Day:         m.Day,
		Title:       m.Title,
		Content:     m.Content,
		ClassroomID: m.ClassroomID,
	}
}

func moduleFromModel(m LearningModuleModel) domain.LearningModule {
	return domain.LearningModule{
		ID:          m.ID,
		Day:         m.Day,
		Title:       m.Title,
		Content:     m.Content,
		ClassroomID: m.ClassroomID,
	}
}

func quizQuestionToModel(q domain.QuizQuestion) (QuizQuestionModel, error) {
	choices, err := json.Marshal(q.Choices)
	if err != nil {
		return QuizQuestionModel{}, err
	}
	return QuizQuestionModel{
		ID:           q.ID,
		QuizType:     string(q.QuizType),
		ClassroomID:  q.ClassroomID,
		QuestionText: q.QuestionText,
		Choices:      datatypes.JSON(choices),
		Answer:       q.Answer,
	}, nil
}

func quizQuestionFromModel(m QuizQuestionModel) domain.QuizQuestion {
	q := domain.QuizQuestion{
		ID:           m.ID,
		QuizType:     domain.QuizType(m.QuizType),
		ClassroomID:  m.ClassroomID,
		QuestionText: m.QuestionText,
		Answer:       m.Answer,
	}
	_ = json.Unmarshal(m.Choices, &q.Choices)
	return q
}

func quizAttemptToModel(a domain.QuizAttempt) QuizAttemptModel {
	return QuizAttemptModel{
		ID:          a.ID,
		StudentID:   a.StudentID,
		QuizType:    string(a.QuizType),
		Score:       a.Score,
		AttemptData: datatypes.JSON(a.AttemptData),
		Timestamp:   a.Timestamp,
	}
}

func quizAttemptFromModel(m QuizAttemptModel) domain.QuizAttempt {
	return domain.QuizAttempt{
		ID:          m.ID,
		StudentID:   m.StudentID,
		QuizType:    domain.QuizType(m.QuizType),
		Score:       m.Score,
		AttemptData: json.RawMessage(m.AttemptData),
		Timestamp:   m.Timestamp,
	}
}

func responseToModel(r domain.StudentResponse) StudentResponseModel {
	return StudentResponseModel{
		ID:          r.ID,
		StudentID:   r.StudentID,
		ModuleID:    r.ModuleID,
		Answers:     datatypes.JSON(r.Answers),
		FileKey:     r.FileKey,
		CompletedAt: r.CompletedAt,
	}
}

func responseFromModel(m StudentResponseModel) domain.StudentResponse {
	return domain.StudentResponse{
		ID:          m.ID,
		StudentID:   m.StudentID,
		ModuleID:    m.ModuleID,
		Answers:     json.RawMessage(m.Answers),
		FileKey:     m.FileKey,
		CompletedAt: m.CompletedAt,
	}
}

func scheduledToModel(s domain.ScheduledMessage) ScheduledMessageModel {
	return ScheduledMessageModel{
		ID:            s.ID,
		ClassroomID:   s.ClassroomID,
		Subject:       s.Subject,
		Body:          s.Body,
		AttachmentKey: s.AttachmentKey,
		ScheduledAt:   s.ScheduledAt,
		Sent:          s.Sent,
		SentAt:        s.SentAt,
		CreatedAt:     s.CreatedAt,
	}
}

func scheduledFromModel(m ScheduledMessageModel) domain.ScheduledMessage {
	return domain.ScheduledMessage{
		ID:            m.ID,
		ClassroomID:   m.ClassroomID,
		Subject:       m.Subject,
		Body:          m.Body,
		AttachmentKey: m.AttachmentKey,
		ScheduledAt:   m.ScheduledAt,
		Sent:          m.Sent,
		SentAt:        m.SentAt,
		CreatedAt:     m.CreatedAt,
	}
}
